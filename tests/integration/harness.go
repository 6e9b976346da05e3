package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// =============================================================================
// Integration Test Harness
// =============================================================================
// Runs against a live portfolio service plus the quotefeed dev tool.
// Configure via environment:
//
//   SERVICE_URL          portfolio service base URL (default :8003)
//   QUOTEFEED_URL        quotefeed base URL (default :8090)
//   JWT_SECRET           secret the service verifies tokens with
//   INTEGRATION_USER_ID  a seeded user with a funded account
// =============================================================================

// Config holds the target URLs and credentials
type Config struct {
	ServiceURL   string
	QuotefeedURL string
	JWTSecret    string
	UserID       string
}

// DefaultConfig returns the default configuration for local testing
func DefaultConfig() *Config {
	return &Config{
		ServiceURL:   getEnvOrDefault("SERVICE_URL", "http://localhost:8003"),
		QuotefeedURL: getEnvOrDefault("QUOTEFEED_URL", "http://localhost:8090"),
		JWTSecret:    getEnvOrDefault("JWT_SECRET", "dev-secret-change-in-production"),
		UserID:       getEnvOrDefault("INTEGRATION_USER_ID", "integration-user"),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Harness provides utilities for integration tests
type Harness struct {
	t      *testing.T
	config *Config
	client *http.Client
}

// NewHarness creates a new test harness
func NewHarness(t *testing.T) *Harness {
	return &Harness{
		t:      t,
		config: DefaultConfig(),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Config returns the harness configuration
func (h *Harness) Config() *Config {
	return h.config
}

// Token mints a bearer token the service will accept for userID.
func (h *Harness) Token(userID string) string {
	claims := jwt.MapClaims{
		"user_id":   userID,
		"tenant_id": "integration",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"iat":       time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.config.JWTSecret))
	if err != nil {
		h.t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// Request represents an HTTP request configuration
type Request struct {
	Method  string
	URL     string
	Body    any
	Headers map[string]string
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Do executes an HTTP request and returns the response
func (h *Harness) Do(req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		jsonBody, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		body = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequest(req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    resp.Header,
	}, nil
}

// API performs an authenticated request against the portfolio service.
func (h *Harness) API(method, path string, body any) (*Response, error) {
	return h.Do(Request{
		Method: method,
		URL:    h.config.ServiceURL + path,
		Body:   body,
		Headers: map[string]string{
			"Authorization": "Bearer " + h.Token(h.config.UserID),
		},
	})
}

// JSON unmarshals the response body into the given value
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Envelope is the service's standard response shape
type Envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

// AssertStatus fails the test when the status differs
func (h *Harness) AssertStatus(resp *Response, want int) {
	h.t.Helper()
	if resp.StatusCode != want {
		h.t.Fatalf("status = %d, want %d (body: %s)", resp.StatusCode, want, string(resp.Body))
	}
}

// SetQuote pins a price on the quotefeed
func (h *Harness) SetQuote(symbol string, price float64) error {
	resp, err := h.Do(Request{
		Method: "POST",
		URL:    h.config.QuotefeedURL + "/admin/set",
		Body:   map[string]any{"symbol": symbol, "price": price},
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("set quote failed with status %d", resp.StatusCode)
	}
	return nil
}

// WaitForService waits for the portfolio service to be ready
func (h *Harness) WaitForService(timeout time.Duration) error {
	return h.waitForHealth(h.config.ServiceURL+"/health", timeout)
}

// WaitForQuotefeed waits for the quotefeed to be ready
func (h *Harness) WaitForQuotefeed(timeout time.Duration) error {
	return h.waitForHealth(h.config.QuotefeedURL+"/health", timeout)
}

func (h *Harness) waitForHealth(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := h.client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("service at %s not healthy after %s", url, timeout)
}

func unmarshalData(env Envelope, v any) error {
	if env.Data == nil {
		return fmt.Errorf("response has no data")
	}
	return json.Unmarshal(env.Data, v)
}
