package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradefolio/platform/internal/portfolio"
)

var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger is an in-memory Ledger for tests and local development.
// It applies the same validation and PnL semantics as the postgres
// store.
type MemoryLedger struct {
	mu     sync.Mutex
	trades map[string][]Trade
	cash   map[string]float64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		trades: make(map[string][]Trade),
		cash:   make(map[string]float64),
	}
}

// Deposit credits a user's cash account, creating it if absent.
func (m *MemoryLedger) Deposit(userID string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cash[userID] += amount
}

func (m *MemoryLedger) AppendTrade(_ context.Context, req TradeRequest) (*CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cash, ok := m.cash[req.UserID]
	if !ok {
		return nil, ErrAccountNotFound
	}

	var position int64
	for _, t := range m.trades[req.UserID] {
		if t.Symbol != req.Symbol {
			continue
		}
		if t.Side == SideBuy {
			position += t.Quantity
		} else {
			position -= t.Quantity
		}
	}

	amount := float64(req.Quantity) * req.Price
	switch req.Side {
	case SideBuy:
		if cash < amount {
			return nil, ErrInsufficientFunds
		}
		m.cash[req.UserID] = cash - amount
	case SideSell:
		if position == 0 {
			return nil, ErrNoPosition
		}
		if position < req.Quantity {
			return nil, ErrInsufficientShares
		}
		m.cash[req.UserID] = cash + amount
	}

	trade := Trade{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Price:      req.Price,
		ExecutedAt: time.Now().UTC(),
	}
	m.trades[req.UserID] = append(m.trades[req.UserID], trade)

	return &CommitResult{
		TradeID:       trade.ID,
		Symbol:        trade.Symbol,
		Side:          trade.Side,
		ExecutedQty:   trade.Quantity,
		ExecutedPrice: trade.Price,
		CommittedAt:   trade.ExecutedAt,
	}, nil
}

func (m *MemoryLedger) Replay(_ context.Context, userID string) (*portfolio.LedgerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cash, ok := m.cash[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	holdings, _, err := replayLots(m.trades[userID])
	if err != nil {
		return nil, err
	}
	return &portfolio.LedgerState{Holdings: holdings, CashBalance: cash}, nil
}

func (m *MemoryLedger) RealizedPnL(_ context.Context, userID string, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return realizedSince(m.trades[userID], since)
}

func (m *MemoryLedger) ActiveUsers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]string, 0, len(m.trades))
	for id := range m.trades {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}
