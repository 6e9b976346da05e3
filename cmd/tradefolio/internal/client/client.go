package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Client talks to the portfolio service API. Every endpoint answers with
// the standard envelope: {"data": ..., "error": ..., "meta": ...}.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

type apiError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func New() *Client {
	return &Client{
		baseURL: viper.GetString("api_url"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) do(method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode >= 400 {
			return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if env.Error != nil {
		if len(env.Error.Details) > 0 {
			return fmt.Errorf("%s: %s", env.Error.Message, env.Error.Details[0])
		}
		return fmt.Errorf("%s", env.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if result != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}
	return nil
}

// Portfolio endpoints

type Holding struct {
	Symbol   string  `json:"symbol"`
	Quantity int64   `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

type Portfolio struct {
	UserID      string             `json:"user_id"`
	Holdings    map[string]Holding `json:"holdings"`
	Prices      map[string]float64 `json:"prices"`
	CashBalance float64            `json:"cash_balance"`
	StocksValue float64            `json:"stocks_value"`
	TotalValue  float64            `json:"total_value"`
	ComputedAt  string             `json:"computed_at"`
}

func (c *Client) GetPortfolio() (*Portfolio, error) {
	var resp Portfolio
	err := c.do("GET", "/api/v1/portfolio", nil, &resp)
	return &resp, err
}

// Trade endpoints

type TradeRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
}

type TradeResult struct {
	TradeID       string  `json:"trade_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	ExecutedQty   int64   `json:"executed_qty"`
	ExecutedPrice float64 `json:"executed_price"`
	CommittedAt   string  `json:"committed_at"`
}

func (c *Client) PlaceTrade(req TradeRequest) (*TradeResult, error) {
	var resp TradeResult
	err := c.do("POST", "/api/v1/trades", req, &resp)
	return &resp, err
}

// Snapshot endpoints

type Snapshot struct {
	ID                     string  `json:"id"`
	SnapshotDate           string  `json:"snapshot_date"`
	TotalPortfolioValue    float64 `json:"total_portfolio_value"`
	CashBalance            float64 `json:"cash_balance"`
	StocksValue            float64 `json:"stocks_value"`
	RealizedPnL            float64 `json:"realized_pnl"`
	UnrealizedPnL          float64 `json:"unrealized_pnl"`
	TotalPnL               float64 `json:"total_pnl"`
	PercentChange          float64 `json:"percent_change"`
	PercentChangeFromStart float64 `json:"percent_change_from_start"`
	CreatedAt              string  `json:"created_at"`
}

func (c *Client) CreateSnapshot() (*Snapshot, error) {
	var resp Snapshot
	err := c.do("POST", "/api/v1/portfolio/snapshots", nil, &resp)
	return &resp, err
}

func (c *Client) ListSnapshots(from, to string) ([]Snapshot, error) {
	params := url.Values{}
	if from != "" {
		params.Set("from", from)
	}
	if to != "" {
		params.Set("to", to)
	}
	path := "/api/v1/portfolio/snapshots"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp []Snapshot
	err := c.do("GET", path, nil, &resp)
	return resp, err
}
