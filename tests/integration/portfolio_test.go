package integration

import (
	"testing"
	"time"
)

func setup(t *testing.T) *Harness {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	h := NewHarness(t)
	if err := h.WaitForService(30 * time.Second); err != nil {
		t.Skipf("Portfolio service not available: %v", err)
	}
	return h
}

func TestPortfolioCacheHeaders(t *testing.T) {
	h := setup(t)

	first, err := h.API("GET", "/api/v1/portfolio", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	h.AssertStatus(first, 200)

	second, err := h.API("GET", "/api/v1/portfolio", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	h.AssertStatus(second, 200)

	if got := second.Headers.Get("X-Cache"); got != "HIT" {
		t.Errorf("repeat read X-Cache = %q, want HIT", got)
	}
	if second.Headers.Get("X-Cache-Key") == "" {
		t.Error("X-Cache-Key header missing on cache outcome")
	}
	if second.Headers.Get("X-Response-Time") == "" {
		t.Error("X-Response-Time header missing")
	}
}

func TestTradeValidation(t *testing.T) {
	h := setup(t)

	resp, err := h.API("POST", "/api/v1/trades", map[string]any{
		"symbol": "ACME", "side": "hold", "quantity": 1,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	h.AssertStatus(resp, 400)

	var env Envelope
	if err := resp.JSON(&env); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v, want VALIDATION_ERROR", env.Error)
	}
}

func TestSellWithoutPosition(t *testing.T) {
	h := setup(t)

	// A symbol no seeded account holds.
	resp, err := h.API("POST", "/api/v1/trades", map[string]any{
		"symbol": "ZZZNONE", "side": "sell", "quantity": 1, "price": 10,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var env Envelope
	if err := resp.JSON(&env); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if env.Error == nil {
		t.Fatal("expected an error payload")
	}
	// NOT_FOUND when the account is not seeded, NO_POSITION when it is.
	if env.Error.Code != "NO_POSITION" && env.Error.Code != "NOT_FOUND" {
		t.Errorf("error code = %s, want NO_POSITION or NOT_FOUND", env.Error.Code)
	}
}

func TestTradeReflectedInNextRead(t *testing.T) {
	h := setup(t)
	if err := h.WaitForQuotefeed(10 * time.Second); err != nil {
		t.Skipf("Quotefeed not available: %v", err)
	}
	if err := h.SetQuote("ACME", 100); err != nil {
		t.Fatalf("failed to pin quote: %v", err)
	}

	buy, err := h.API("POST", "/api/v1/trades", map[string]any{
		"symbol": "ACME", "side": "buy", "quantity": 1, "price": 100,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if buy.StatusCode != 201 {
		t.Skipf("buy rejected (status %d), seed a funded INTEGRATION_USER_ID account: %s", buy.StatusCode, string(buy.Body))
	}

	read, err := h.API("GET", "/api/v1/portfolio", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	h.AssertStatus(read, 200)

	// The commit invalidated the cached view, so the read right after a
	// trade is always a recompute.
	if got := read.Headers.Get("X-Cache"); got != "MISS" {
		t.Errorf("read after trade X-Cache = %q, want MISS", got)
	}

	var env Envelope
	if err := read.JSON(&env); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	var view struct {
		Holdings map[string]struct {
			Quantity int64 `json:"quantity"`
		} `json:"holdings"`
	}
	if err := unmarshalData(env, &view); err != nil {
		t.Fatalf("failed to parse view: %v", err)
	}
	if view.Holdings["ACME"].Quantity < 1 {
		t.Error("bought position missing from portfolio read")
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	h := setup(t)

	create, err := h.API("POST", "/api/v1/portfolio/snapshots", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if create.StatusCode != 201 {
		t.Skipf("snapshot rejected (status %d), seed INTEGRATION_USER_ID: %s", create.StatusCode, string(create.Body))
	}

	var env Envelope
	if err := create.JSON(&env); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	var snap struct {
		ID            string  `json:"id"`
		RealizedPnL   float64 `json:"realized_pnl"`
		UnrealizedPnL float64 `json:"unrealized_pnl"`
		TotalPnL      float64 `json:"total_pnl"`
	}
	if err := unmarshalData(env, &snap); err != nil {
		t.Fatalf("failed to parse snapshot: %v", err)
	}
	if snap.TotalPnL != snap.RealizedPnL+snap.UnrealizedPnL {
		t.Error("total pnl must equal realized plus unrealized")
	}

	list, err := h.API("GET", "/api/v1/portfolio/snapshots", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	h.AssertStatus(list, 200)

	var listEnv Envelope
	if err := list.JSON(&listEnv); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	var snapshots []struct {
		ID string `json:"id"`
	}
	if err := unmarshalData(listEnv, &snapshots); err != nil {
		t.Fatalf("failed to parse snapshot list: %v", err)
	}
	found := false
	for _, s := range snapshots {
		if s.ID == snap.ID {
			found = true
		}
	}
	if !found {
		t.Error("created snapshot missing from history")
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	h := setup(t)

	resp, err := h.Do(Request{
		Method: "GET",
		URL:    h.Config().ServiceURL + "/api/v1/portfolio",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	h.AssertStatus(resp, 401)
}
