package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func tr(symbol string, side Side, qty int64, price float64, at time.Time) Trade {
	return Trade{
		ID:         symbol + "-" + string(side) + "-" + at.Format(time.RFC3339Nano),
		UserID:     "user-1",
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		ExecutedAt: at,
	}
}

func approx(t *testing.T, got, want float64, msg string) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", msg, got, want)
	}
}

func TestReplayLots_BuysAccumulate(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	holdings, closed, err := replayLots([]Trade{
		tr("ACME", SideBuy, 10, 100, base),
		tr("ACME", SideBuy, 10, 120, base.Add(time.Minute)),
	})
	if err != nil {
		t.Fatalf("replayLots: %v", err)
	}
	if len(closed) != 0 {
		t.Fatalf("closed lots = %d, want 0", len(closed))
	}
	h := holdings["ACME"]
	if h.Quantity != 20 {
		t.Errorf("quantity = %d, want 20", h.Quantity)
	}
	approx(t, h.AvgCost, 110, "avg cost")
}

func TestReplayLots_FIFOSellConsumesOldestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	holdings, closed, err := replayLots([]Trade{
		tr("ACME", SideBuy, 10, 100, base),
		tr("ACME", SideBuy, 10, 120, base.Add(time.Minute)),
		tr("ACME", SideSell, 15, 130, base.Add(2*time.Minute)),
	})
	if err != nil {
		t.Fatalf("replayLots: %v", err)
	}

	// 10 from the 100 lot, 5 from the 120 lot
	if len(closed) != 2 {
		t.Fatalf("closed lots = %d, want 2", len(closed))
	}
	if closed[0].qty != 10 || !closed[0].costBasis.Equal(decimal.NewFromFloat(100)) {
		t.Errorf("first closed lot = qty %d basis %s, want 10 @ 100", closed[0].qty, closed[0].costBasis)
	}
	if closed[1].qty != 5 || !closed[1].costBasis.Equal(decimal.NewFromFloat(120)) {
		t.Errorf("second closed lot = qty %d basis %s, want 5 @ 120", closed[1].qty, closed[1].costBasis)
	}

	h := holdings["ACME"]
	if h.Quantity != 5 {
		t.Errorf("remaining quantity = %d, want 5", h.Quantity)
	}
	approx(t, h.AvgCost, 120, "remaining avg cost")
}

func TestReplayLots_ClosedPositionDisappears(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	holdings, _, err := replayLots([]Trade{
		tr("ACME", SideBuy, 10, 100, base),
		tr("ACME", SideSell, 10, 110, base.Add(time.Minute)),
	})
	if err != nil {
		t.Fatalf("replayLots: %v", err)
	}
	if _, ok := holdings["ACME"]; ok {
		t.Error("closed position must not appear in holdings")
	}
}

func TestReplayLots_OversellIsCorruption(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, _, err := replayLots([]Trade{
		tr("ACME", SideBuy, 5, 100, base),
		tr("ACME", SideSell, 10, 110, base.Add(time.Minute)),
	})
	if err == nil {
		t.Fatal("expected error for sell exceeding open lots")
	}
}

func TestRealizedSince(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	trades := []Trade{
		tr("ACME", SideBuy, 10, 100, base),
		tr("ACME", SideSell, 5, 110, base.Add(time.Hour)),  // +50
		tr("ACME", SideSell, 5, 90, base.Add(2*time.Hour)), // -50
	}

	total, err := realizedSince(trades, time.Time{})
	if err != nil {
		t.Fatalf("realizedSince: %v", err)
	}
	approx(t, total, 0, "realized since inception")

	recent, err := realizedSince(trades, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("realizedSince: %v", err)
	}
	approx(t, recent, -50, "realized since cutoff")
}

func TestRealizedSince_NoExactBoundaryDoubleCount(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	trades := []Trade{
		tr("ACME", SideBuy, 10, 100, base),
		tr("ACME", SideSell, 10, 120, base.Add(time.Hour)),
	}

	// A cutoff equal to the sell's execution time excludes it: a snapshot
	// taken at that instant already counted the lot.
	got, err := realizedSince(trades, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("realizedSince: %v", err)
	}
	approx(t, got, 0, "realized on exact boundary")
}
