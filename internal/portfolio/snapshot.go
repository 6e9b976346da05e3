package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tradefolio/platform/pkg/errors"
	"github.com/tradefolio/platform/pkg/events"
	"github.com/tradefolio/platform/pkg/logger"
	"github.com/tradefolio/platform/pkg/metrics"
)

// Snapshot triggers, recorded on metrics and events.
const (
	TriggerScheduled = "scheduled"
	TriggerOnDemand  = "on_demand"
)

const serviceName = "portfolio-service"

// Engine produces dated portfolio snapshots. Each snapshot captures the
// portfolio's value and PnL at creation time and is stored append-only.
type Engine struct {
	cache     *Cache
	ledger    Ledger
	prices    PriceProvider
	store     SnapshotStore
	publisher events.Publisher
}

// NewEngine wires a snapshot engine. publisher may be nil, in which case
// snapshot events are not emitted.
func NewEngine(cache *Cache, ledger Ledger, prices PriceProvider, store SnapshotStore, publisher events.Publisher) *Engine {
	return &Engine{
		cache:     cache,
		ledger:    ledger,
		prices:    prices,
		store:     store,
		publisher: publisher,
	}
}

// CreateSnapshot computes and persists a snapshot of the user's current
// portfolio. Any missing price fails the whole snapshot; nothing partial
// is ever written. PnL semantics:
//
//	realized   profit over lots closed since the previous snapshot
//	unrealized sum over open holdings of (price - avg_cost) * quantity
//	total      realized + unrealized, always
//
// percent_change compares total value against the previous snapshot and
// percent_change_from_start against the first; both are zero when no
// such snapshot exists.
func (e *Engine) CreateSnapshot(ctx context.Context, userID, trigger string) (*Snapshot, error) {
	snap, err := e.create(ctx, userID, trigger)
	if err != nil {
		metrics.RecordSnapshotFailure(serviceName, trigger)
		return nil, err
	}
	metrics.RecordSnapshotCreated(serviceName, trigger)
	return snap, nil
}

func (e *Engine) create(ctx context.Context, userID, trigger string) (*Snapshot, error) {
	view, _, err := e.cache.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, errors.ErrSnapshotFailed.WithError(err)
	}

	now := time.Now().UTC()
	snap := &Snapshot{
		ID:           uuid.New().String(),
		UserID:       userID,
		SnapshotDate: now.Truncate(24 * time.Hour),
		CashBalance:  view.CashBalance,
		Holdings:     make(map[string]Holding, len(view.Holdings)),
		CreatedAt:    now,
	}

	for symbol, h := range view.Holdings {
		price, err := e.prices.CurrentPrice(ctx, symbol)
		if err != nil {
			return nil, errors.ErrSnapshotFailed.WithError(fmt.Errorf("price %s: %w", symbol, err))
		}
		snap.Holdings[symbol] = h
		snap.StocksValue += price * float64(h.Quantity)
		snap.UnrealizedPnL += (price - h.AvgCost) * float64(h.Quantity)
	}
	snap.TotalPortfolioValue = snap.CashBalance + snap.StocksValue

	prev, err := e.store.Latest(ctx, userID)
	if err != nil {
		return nil, errors.ErrSnapshotFailed.WithError(err)
	}
	var since time.Time
	if prev != nil {
		since = prev.CreatedAt
	}
	realized, err := e.ledger.RealizedPnL(ctx, userID, since)
	if err != nil {
		return nil, errors.ErrSnapshotFailed.WithError(err)
	}
	snap.RealizedPnL = realized
	snap.TotalPnL = snap.RealizedPnL + snap.UnrealizedPnL

	if prev != nil && prev.TotalPortfolioValue != 0 {
		snap.PercentChange = (snap.TotalPortfolioValue - prev.TotalPortfolioValue) / prev.TotalPortfolioValue * 100
	}
	first, err := e.store.First(ctx, userID)
	if err != nil {
		return nil, errors.ErrSnapshotFailed.WithError(err)
	}
	if first != nil && first.TotalPortfolioValue != 0 {
		snap.PercentChangeFromStart = (snap.TotalPortfolioValue - first.TotalPortfolioValue) / first.TotalPortfolioValue * 100
	}

	if err := e.store.Create(ctx, snap); err != nil {
		return nil, errors.ErrSnapshotFailed.WithError(err)
	}

	e.publish(ctx, snap, trigger)
	return snap, nil
}

func (e *Engine) publish(ctx context.Context, snap *Snapshot, trigger string) {
	if e.publisher == nil {
		return
	}
	event := events.NewEvent(events.EventTypeSnapshotCreated, serviceName, events.SnapshotCreatedPayload{
		SnapshotID:          snap.ID,
		UserID:              snap.UserID,
		SnapshotDate:        snap.SnapshotDate,
		TotalPortfolioValue: snap.TotalPortfolioValue,
		TotalPnL:            snap.TotalPnL,
		Trigger:             trigger,
	})
	if err := e.publisher.Publish(ctx, events.TopicSnapshotCreated, event); err != nil {
		logger.Error().Err(err).Str("snapshot_id", snap.ID).Msg("failed to publish snapshot event")
	}
}

// Run snapshots every active user on each tick until ctx is cancelled.
// One user's failure is logged and counted, never aborts the sweep.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", interval).Msg("snapshot scheduler started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("snapshot scheduler stopped")
			return
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

func (e *Engine) sweep(ctx context.Context) {
	users, err := e.ledger.ActiveUsers(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("snapshot sweep: listing active users failed")
		return
	}
	var created, failed int
	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}
		if _, err := e.CreateSnapshot(ctx, userID, TriggerScheduled); err != nil {
			failed++
			logger.Error().Err(err).Str("user_id", userID).Msg("scheduled snapshot failed")
			continue
		}
		created++
	}
	logger.Info().Int("created", created).Int("failed", failed).Msg("snapshot sweep complete")
}
