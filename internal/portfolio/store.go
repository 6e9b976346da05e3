package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSnapshotStore persists snapshots in the portfolio_snapshots table.
// Holdings are stored as a JSONB document keyed by symbol.
type PGSnapshotStore struct {
	db *pgxpool.Pool
}

// NewPGSnapshotStore creates a postgres-backed snapshot store.
func NewPGSnapshotStore(db *pgxpool.Pool) *PGSnapshotStore {
	return &PGSnapshotStore{db: db}
}

func (s *PGSnapshotStore) Create(ctx context.Context, snap *Snapshot) error {
	holdings, err := json.Marshal(snap.Holdings)
	if err != nil {
		return fmt.Errorf("failed to encode holdings: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO portfolio_snapshots (
			id, user_id, snapshot_date, total_portfolio_value, cash_balance,
			stocks_value, holdings, realized_pnl, unrealized_pnl, total_pnl,
			percent_change, percent_change_from_start, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, snap.ID, snap.UserID, snap.SnapshotDate, snap.TotalPortfolioValue,
		snap.CashBalance, snap.StocksValue, holdings, snap.RealizedPnL,
		snap.UnrealizedPnL, snap.TotalPnL, snap.PercentChange,
		snap.PercentChangeFromStart, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `
	id, user_id, snapshot_date, total_portfolio_value, cash_balance,
	stocks_value, holdings, realized_pnl, unrealized_pnl, total_pnl,
	percent_change, percent_change_from_start, created_at`

func (s *PGSnapshotStore) List(ctx context.Context, userID string, from, to time.Time) ([]Snapshot, error) {
	query := `SELECT` + snapshotColumns + `
		FROM portfolio_snapshots
		WHERE user_id = $1`
	args := []any{userID}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, rows.Err()
}

func (s *PGSnapshotStore) Latest(ctx context.Context, userID string) (*Snapshot, error) {
	return s.one(ctx, userID, "DESC")
}

func (s *PGSnapshotStore) First(ctx context.Context, userID string) (*Snapshot, error) {
	return s.one(ctx, userID, "ASC")
}

func (s *PGSnapshotStore) one(ctx context.Context, userID, order string) (*Snapshot, error) {
	rows, err := s.db.Query(ctx, `SELECT`+snapshotColumns+`
		FROM portfolio_snapshots
		WHERE user_id = $1
		ORDER BY created_at `+order+`
		LIMIT 1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return scanSnapshot(rows)
}

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var snap Snapshot
	var holdings []byte
	err := row.Scan(
		&snap.ID, &snap.UserID, &snap.SnapshotDate, &snap.TotalPortfolioValue,
		&snap.CashBalance, &snap.StocksValue, &holdings, &snap.RealizedPnL,
		&snap.UnrealizedPnL, &snap.TotalPnL, &snap.PercentChange,
		&snap.PercentChangeFromStart, &snap.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	if err := json.Unmarshal(holdings, &snap.Holdings); err != nil {
		return nil, fmt.Errorf("failed to decode holdings: %w", err)
	}
	return &snap, nil
}

// MemorySnapshotStore is an in-memory SnapshotStore for tests and local
// development.
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string][]Snapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[string][]Snapshot)}
}

func (s *MemorySnapshotStore) Create(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.UserID] = append(s.snapshots[snap.UserID], *snap)
	sort.SliceStable(s.snapshots[snap.UserID], func(i, j int) bool {
		return s.snapshots[snap.UserID][i].CreatedAt.Before(s.snapshots[snap.UserID][j].CreatedAt)
	})
	return nil
}

func (s *MemorySnapshotStore) List(_ context.Context, userID string, from, to time.Time) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Snapshot
	for _, snap := range s.snapshots[userID] {
		if !from.IsZero() && snap.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && snap.CreatedAt.After(to) {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *MemorySnapshotStore) Latest(_ context.Context, userID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.snapshots[userID]
	if len(list) == 0 {
		return nil, nil
	}
	snap := list[len(list)-1]
	return &snap, nil
}

func (s *MemorySnapshotStore) First(_ context.Context, userID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.snapshots[userID]
	if len(list) == 0 {
		return nil, nil
	}
	snap := list[0]
	return &snap, nil
}
