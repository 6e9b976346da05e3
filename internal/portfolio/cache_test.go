package portfolio_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tradefolio/platform/internal/ledger"
	"github.com/tradefolio/platform/internal/marketdata"
	"github.com/tradefolio/platform/internal/portfolio"
	"github.com/tradefolio/platform/pkg/cache"
)

func newFixture(t *testing.T) (*portfolio.Cache, *ledger.MemoryLedger, *marketdata.StaticProvider, *cache.Store) {
	t.Helper()
	store := cache.New()
	led := ledger.NewMemoryLedger()
	prices := marketdata.NewStaticProvider(map[string]float64{"ACME": 100, "GLOBEX": 50})
	pc := portfolio.NewCache(store, led, prices, time.Minute)
	return pc, led, prices, store
}

func commitTrade(t *testing.T, pc *portfolio.Cache, led *ledger.MemoryLedger, req ledger.TradeRequest) {
	t.Helper()
	err := pc.CommitTrade(context.Background(), req.UserID, func(ctx context.Context) error {
		_, err := led.AppendTrade(ctx, req)
		return err
	})
	if err != nil {
		t.Fatalf("CommitTrade(%s %d %s): %v", req.Side, req.Quantity, req.Symbol, err)
	}
}

func TestCache_MissThenHit(t *testing.T) {
	ctx := context.Background()
	pc, led, _, _ := newFixture(t)
	led.Deposit("user-1", 10_000)
	commitTrade(t, pc, led, ledger.TradeRequest{UserID: "user-1", Symbol: "ACME", Side: ledger.SideBuy, Quantity: 10, Price: 100})

	view, hit, err := pc.GetPortfolio(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}
	if hit {
		t.Error("first read should be a miss")
	}
	if view.CashBalance != 9_000 {
		t.Errorf("cash = %v, want 9000", view.CashBalance)
	}
	if view.StocksValue != 1_000 {
		t.Errorf("stocks value = %v, want 1000", view.StocksValue)
	}
	if view.TotalValue != 10_000 {
		t.Errorf("total value = %v, want 10000", view.TotalValue)
	}

	again, hit, err := pc.GetPortfolio(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}
	if !hit {
		t.Error("second read should be a hit")
	}
	if again != view {
		t.Error("hit should return the cached view")
	}
}

// A read issued after a successful sell must never show the sold shares,
// and a repeated sell-everything must be rejected rather than silently
// accepted against a stale view.
func TestCache_SellAllThenReadAndResell(t *testing.T) {
	ctx := context.Background()
	pc, led, _, _ := newFixture(t)
	led.Deposit("user-1", 10_000)
	commitTrade(t, pc, led, ledger.TradeRequest{UserID: "user-1", Symbol: "ACME", Side: ledger.SideBuy, Quantity: 10, Price: 100})

	// warm the cache
	if _, _, err := pc.GetPortfolio(ctx, "user-1"); err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}

	commitTrade(t, pc, led, ledger.TradeRequest{UserID: "user-1", Symbol: "ACME", Side: ledger.SideSell, Quantity: 10, Price: 110})

	view, hit, err := pc.GetPortfolio(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPortfolio after sell: %v", err)
	}
	if hit {
		t.Error("read after commit must not be served from the pre-trade cache")
	}
	if _, ok := view.Position("ACME"); ok {
		t.Error("sold-out position still visible after sell")
	}

	err = pc.CommitTrade(ctx, "user-1", func(ctx context.Context) error {
		_, err := led.AppendTrade(ctx, ledger.TradeRequest{
			UserID: "user-1", Symbol: "ACME", Side: ledger.SideSell, Quantity: 10, Price: 110,
		})
		return err
	})
	if !errors.Is(err, ledger.ErrNoPosition) {
		t.Errorf("repeated sell err = %v, want ErrNoPosition", err)
	}
}

func TestCache_FailedCommitLeavesCacheIntact(t *testing.T) {
	ctx := context.Background()
	pc, led, _, _ := newFixture(t)
	led.Deposit("user-1", 10_000)
	commitTrade(t, pc, led, ledger.TradeRequest{UserID: "user-1", Symbol: "ACME", Side: ledger.SideBuy, Quantity: 5, Price: 100})

	if _, _, err := pc.GetPortfolio(ctx, "user-1"); err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}

	wantErr := fmt.Errorf("broker unavailable")
	err := pc.CommitTrade(ctx, "user-1", func(context.Context) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("CommitTrade err = %v, want %v", err, wantErr)
	}

	_, hit, err := pc.GetPortfolio(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}
	if !hit {
		t.Error("failed commit must not invalidate the cached view")
	}
}

func TestCache_OnTradeCommittedInvalidates(t *testing.T) {
	ctx := context.Background()
	pc, led, _, _ := newFixture(t)
	led.Deposit("user-1", 10_000)

	if _, _, err := pc.GetPortfolio(ctx, "user-1"); err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}

	// trade appended outside CommitTrade, e.g. a backfill job
	if _, err := led.AppendTrade(ctx, ledger.TradeRequest{
		UserID: "user-1", Symbol: "GLOBEX", Side: ledger.SideBuy, Quantity: 4, Price: 50,
	}); err != nil {
		t.Fatalf("AppendTrade: %v", err)
	}
	pc.OnTradeCommitted("user-1")

	view, hit, err := pc.GetPortfolio(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}
	if hit {
		t.Error("read after invalidation should recompute")
	}
	if _, ok := view.Position("GLOBEX"); !ok {
		t.Error("backfilled position missing from recomputed view")
	}
}

func TestCache_MissingPriceFailsRead(t *testing.T) {
	ctx := context.Background()
	pc, led, prices, _ := newFixture(t)
	led.Deposit("user-1", 10_000)
	commitTrade(t, pc, led, ledger.TradeRequest{UserID: "user-1", Symbol: "ACME", Side: ledger.SideBuy, Quantity: 10, Price: 100})

	prices.RemovePrice("ACME")
	_, _, err := pc.GetPortfolio(ctx, "user-1")
	if !errors.Is(err, marketdata.ErrPriceNotFound) {
		t.Errorf("err = %v, want ErrPriceNotFound", err)
	}
}

func TestCache_KeyIncludesSchemaVersion(t *testing.T) {
	want := fmt.Sprintf("portfolio:v%d:user-1", portfolio.SchemaVersion)
	if got := portfolio.Key("user-1"); got != want {
		t.Errorf("Key = %q, want %q", got, want)
	}
}

// Readers racing a commit must end up with either the pre-commit or the
// post-commit view, never a rebuilt stale one.
func TestCache_ConcurrentCommitsAndReads(t *testing.T) {
	ctx := context.Background()
	pc, led, _, _ := newFixture(t)
	led.Deposit("user-1", 1_000_000)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				err := pc.CommitTrade(ctx, "user-1", func(ctx context.Context) error {
					_, err := led.AppendTrade(ctx, ledger.TradeRequest{
						UserID: "user-1", Symbol: "ACME", Side: ledger.SideBuy, Quantity: 1, Price: 100,
					})
					return err
				})
				if err != nil {
					t.Errorf("CommitTrade: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, _, err := pc.GetPortfolio(ctx, "user-1"); err != nil {
					t.Errorf("GetPortfolio: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	view, _, err := pc.GetPortfolio(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}
	h, _ := view.Position("ACME")
	if h.Quantity != 100 {
		t.Errorf("final quantity = %d, want 100", h.Quantity)
	}
	if view.CashBalance != 990_000 {
		t.Errorf("final cash = %v, want 990000", view.CashBalance)
	}
}
