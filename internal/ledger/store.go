package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradefolio/platform/internal/portfolio"
)

var _ Ledger = (*Store)(nil)

// Store is the postgres-backed trade ledger. Trades are append-only
// rows; the accounts table carries cash, debited and credited in the
// same transaction as the trade insert.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a postgres-backed ledger.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// AppendTrade validates and commits a trade atomically. The account row
// is locked for the duration, so position and cash checks cannot race
// another commit for the same user. Business rejections come back as the
// package sentinel errors.
func (s *Store) AppendTrade(ctx context.Context, req TradeRequest) (*CommitResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin trade tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var cash float64
	err = tx.QueryRow(ctx, `
		SELECT cash_balance FROM accounts WHERE user_id = $1 FOR UPDATE
	`, req.UserID).Scan(&cash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	var position int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN side = 'buy' THEN quantity ELSE -quantity END), 0)
		FROM trades
		WHERE user_id = $1 AND symbol = $2
	`, req.UserID, req.Symbol).Scan(&position)
	if err != nil {
		return nil, fmt.Errorf("failed to compute position: %w", err)
	}

	amount := float64(req.Quantity) * req.Price
	switch req.Side {
	case SideBuy:
		if cash < amount {
			return nil, ErrInsufficientFunds
		}
		cash -= amount
	case SideSell:
		if position == 0 {
			return nil, ErrNoPosition
		}
		if position < req.Quantity {
			return nil, ErrInsufficientShares
		}
		cash += amount
	default:
		return nil, fmt.Errorf("invalid side %q", req.Side)
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
	_, err = tx.Exec(ctx, `
		INSERT INTO trades (id, user_id, symbol, side, quantity, price, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, trade.ID, trade.UserID, trade.Symbol, trade.Side, trade.Quantity, trade.Price, trade.ExecutedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert trade: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE accounts SET cash_balance = $1, updated_at = NOW() WHERE user_id = $2
	`, cash, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to update cash balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit trade tx: %w", err)
	}

	return &CommitResult{
		TradeID:       trade.ID,
		Symbol:        trade.Symbol,
		Side:          trade.Side,
		ExecutedQty:   trade.Quantity,
		ExecutedPrice: trade.Price,
		CommittedAt:   trade.ExecutedAt,
	}, nil
}

// Replay derives current holdings and cash from the trade history.
func (s *Store) Replay(ctx context.Context, userID string) (*portfolio.LedgerState, error) {
	trades, err := s.tradesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings, _, err := replayLots(trades)
	if err != nil {
		return nil, err
	}

	var cash float64
	err = s.db.QueryRow(ctx, `
		SELECT cash_balance FROM accounts WHERE user_id = $1
	`, userID).Scan(&cash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get cash balance: %w", err)
	}

	return &portfolio.LedgerState{Holdings: holdings, CashBalance: cash}, nil
}

// RealizedPnL sums profit over lots closed after since.
func (s *Store) RealizedPnL(ctx context.Context, userID string, since time.Time) (float64, error) {
	trades, err := s.tradesForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return realizedSince(trades, since)
}

// ActiveUsers lists every user with at least one trade.
func (s *Store) ActiveUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT user_id FROM trades ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (s *Store) tradesForUser(ctx context.Context, userID string) ([]Trade, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, symbol, side, quantity, price, executed_at
		FROM trades
		WHERE user_id = $1
		ORDER BY executed_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Side, &t.Quantity, &t.Price, &t.ExecutedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
