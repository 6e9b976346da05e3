package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/tradefolio/platform/internal/portfolio"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Rejection reasons, surfaced as sentinel errors so callers can map them
// to API error codes.
var (
	ErrNoPosition         = errors.New("no open position in symbol")
	ErrInsufficientShares = errors.New("insufficient shares to sell")
	ErrInsufficientFunds  = errors.New("insufficient cash balance")
	ErrAccountNotFound    = errors.New("account not found")
)

// Trade is one executed, immutable ledger entry.
type Trade struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   int64     `json:"quantity"`
	Price      float64   `json:"price"`
	ExecutedAt time.Time `json:"executed_at"`
}

// TradeRequest is a validated order ready to be committed.
type TradeRequest struct {
	UserID   string
	Symbol   string
	Side     Side
	Quantity int64
	Price    float64
}

// CommitResult describes a successfully appended trade.
type CommitResult struct {
	TradeID       string    `json:"trade_id"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	ExecutedQty   int64     `json:"executed_qty"`
	ExecutedPrice float64   `json:"executed_price"`
	CommittedAt   time.Time `json:"committed_at"`
}

// Ledger is the full trade-ledger surface: the portfolio read side plus
// the transactional append.
type Ledger interface {
	portfolio.Ledger
	AppendTrade(ctx context.Context, req TradeRequest) (*CommitResult, error)
}
