package portfolio

import (
	"context"
	"fmt"
	"time"
)

// Holding is one open position in a user's portfolio. A closed position
// (quantity zero) never appears in a holdings map.
type Holding struct {
	Symbol   string  `json:"symbol"`
	Quantity int64   `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

// Validate rejects holdings that must never cross a boundary: closed or
// negative positions and positions without a symbol or with a negative
// cost basis.
func (h Holding) Validate() error {
	if h.Symbol == "" {
		return fmt.Errorf("holding without symbol")
	}
	if h.Quantity <= 0 {
		return fmt.Errorf("holding %s: quantity %d, closed positions must not appear", h.Symbol, h.Quantity)
	}
	if h.AvgCost < 0 {
		return fmt.Errorf("holding %s: negative avg cost %f", h.Symbol, h.AvgCost)
	}
	return nil
}

// View is the cached, derived picture of a user's portfolio. It is never
// persisted; the ledger stays the source of truth.
type View struct {
	UserID      string             `json:"user_id"`
	Holdings    map[string]Holding `json:"holdings"`
	Prices      map[string]float64 `json:"prices"`
	CashBalance float64            `json:"cash_balance"`
	StocksValue float64            `json:"stocks_value"`
	TotalValue  float64            `json:"total_value"`
	ComputedAt  time.Time          `json:"computed_at"`

	// ledgerSeq is the user's commit sequence at computation time. A
	// cached view whose sequence lags the current one is known-stale and
	// is never served.
	ledgerSeq uint64
}

// Position returns the holding for symbol, or false when the user holds
// no open position in it.
func (v *View) Position(symbol string) (Holding, bool) {
	h, ok := v.Holdings[symbol]
	return h, ok
}

// Snapshot is an immutable, dated record of portfolio value and PnL.
// Rows are append-only; corrections are new snapshots.
type Snapshot struct {
	ID                     string             `json:"id"`
	UserID                 string             `json:"user_id"`
	SnapshotDate           time.Time          `json:"snapshot_date"`
	TotalPortfolioValue    float64            `json:"total_portfolio_value"`
	CashBalance            float64            `json:"cash_balance"`
	StocksValue            float64            `json:"stocks_value"`
	Holdings               map[string]Holding `json:"holdings"`
	RealizedPnL            float64            `json:"realized_pnl"`
	UnrealizedPnL          float64            `json:"unrealized_pnl"`
	TotalPnL               float64            `json:"total_pnl"`
	PercentChange          float64            `json:"percent_change"`
	PercentChangeFromStart float64            `json:"percent_change_from_start"`
	CreatedAt              time.Time          `json:"created_at"`
}

// LedgerState is what a ledger replay yields for one user: open holdings
// and the current cash balance.
type LedgerState struct {
	Holdings    map[string]Holding
	CashBalance float64
}

// Ledger is the slice of the trade ledger this package consumes. The
// ledger is durable and append-only; this package never writes to it
// directly.
type Ledger interface {
	// Replay derives the user's current holdings and cash from the full
	// trade history.
	Replay(ctx context.Context, userID string) (*LedgerState, error)

	// RealizedPnL sums profit/loss over closed lots whose closing sell
	// executed after since. A zero since means since inception.
	RealizedPnL(ctx context.Context, userID string, since time.Time) (float64, error)

	// ActiveUsers lists every user with at least one trade.
	ActiveUsers(ctx context.Context) ([]string, error)
}

// PriceProvider supplies current market prices. A not-found result fails
// the calling operation; there are no partial reads.
type PriceProvider interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// SnapshotStore persists snapshots append-only. No update or delete in
// normal operation.
type SnapshotStore interface {
	Create(ctx context.Context, snap *Snapshot) error
	List(ctx context.Context, userID string, from, to time.Time) ([]Snapshot, error)

	// Latest returns the user's most recent snapshot, nil when none.
	Latest(ctx context.Context, userID string) (*Snapshot, error)

	// First returns the user's first-ever snapshot, nil when none.
	First(ctx context.Context, userID string) (*Snapshot, error)
}
