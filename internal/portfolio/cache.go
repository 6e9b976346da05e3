package portfolio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradefolio/platform/pkg/cache"
	"github.com/tradefolio/platform/pkg/logger"
)

// SchemaVersion is baked into every cache key so a View shape change
// cold-starts the cache instead of decoding stale layouts.
const SchemaVersion = 1

// Key returns the cache key for a user's portfolio view.
func Key(userID string) string {
	return fmt.Sprintf("portfolio:v%d:%s", SchemaVersion, userID)
}

// Cache serves portfolio views from an in-memory store and keeps them
// consistent with the trade ledger. Consistency protocol:
//
//   - Every trade commit runs under the user's lock and invalidates the
//     cached view before the commit call returns. A read issued after a
//     successful commit response never sees the pre-trade state.
//   - Recomputation also runs under the user's lock, so a rebuild cannot
//     interleave with a commit and repopulate the cache with a view that
//     is already stale.
//   - Each committed trade bumps a per-user sequence. A cached view
//     records the sequence it was computed at; a mismatch on read forces
//     a bypass and recompute even if invalidation were ever missed.
//   - TTL expiry is a secondary defense only, never the primary
//     consistency mechanism.
type Cache struct {
	store  *cache.Store
	ledger Ledger
	prices PriceProvider
	ttl    time.Duration

	mu    sync.Mutex
	users map[string]*userState
}

type userState struct {
	mu  sync.Mutex
	seq atomic.Uint64
}

// NewCache wires a portfolio cache over the given store and collaborators.
// ttl bounds the lifetime of cached views; zero disables expiry.
func NewCache(store *cache.Store, ledger Ledger, prices PriceProvider, ttl time.Duration) *Cache {
	return &Cache{
		store:  store,
		ledger: ledger,
		prices: prices,
		ttl:    ttl,
		users:  make(map[string]*userState),
	}
}

func (c *Cache) userState(userID string) *userState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.users[userID]
	if !ok {
		st = &userState{}
		c.users[userID] = st
	}
	return st
}

// GetPortfolio returns the user's current portfolio view and whether it
// was served from cache. On a miss or a known-stale entry it recomputes
// from the ledger and price provider under the user's lock; a missing
// price fails the whole read.
func (c *Cache) GetPortfolio(ctx context.Context, userID string) (*View, bool, error) {
	key := Key(userID)
	st := c.userState(userID)

	if v, ok := c.store.Get(key); ok {
		view := v.(*View)
		if view.ledgerSeq == st.seq.Load() {
			return view, true, nil
		}
		// Sequence mismatch: the entry outlived a commit somehow. Drop it
		// and rebuild rather than serve a known-stale view.
		logger.Warn().
			Str("user_id", userID).
			Uint64("view_seq", view.ledgerSeq).
			Uint64("current_seq", st.seq.Load()).
			Msg("stale portfolio view bypassed")
		c.store.Invalidate(key)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	// Another reader may have rebuilt the view while we waited.
	if v, ok := c.store.Get(key); ok {
		view := v.(*View)
		if view.ledgerSeq == st.seq.Load() {
			return view, true, nil
		}
		c.store.Invalidate(key)
	}

	view, err := c.compute(ctx, userID, st.seq.Load())
	if err != nil {
		return nil, false, err
	}
	c.store.Set(key, view, c.ttl)
	return view, false, nil
}

// compute rebuilds a view from the ledger and prices every open holding.
// Callers must hold the user's lock.
func (c *Cache) compute(ctx context.Context, userID string, seq uint64) (*View, error) {
	state, err := c.ledger.Replay(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("replay ledger for %s: %w", userID, err)
	}

	view := &View{
		UserID:      userID,
		Holdings:    make(map[string]Holding, len(state.Holdings)),
		Prices:      make(map[string]float64, len(state.Holdings)),
		CashBalance: state.CashBalance,
		ComputedAt:  time.Now().UTC(),
		ledgerSeq:   seq,
	}
	for symbol, h := range state.Holdings {
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("invalid holding for %s: %w", userID, err)
		}
		price, err := c.prices.CurrentPrice(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("price %s: %w", symbol, err)
		}
		view.Holdings[symbol] = h
		view.Prices[symbol] = price
		view.StocksValue += price * float64(h.Quantity)
	}
	view.TotalValue = view.CashBalance + view.StocksValue
	return view, nil
}

// CommitTrade runs commit under the user's lock and, if it succeeds,
// bumps the user's sequence and invalidates the cached view before
// returning. A failed commit leaves the cache untouched. The lock also
// excludes concurrent view rebuilds, so a read racing the commit either
// sees the pre-commit view or blocks and recomputes post-commit state.
func (c *Cache) CommitTrade(ctx context.Context, userID string, commit func(ctx context.Context) error) error {
	st := c.userState(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := commit(ctx); err != nil {
		return err
	}
	st.seq.Add(1)
	c.store.Invalidate(Key(userID))
	return nil
}

// OnTradeCommitted invalidates the user's cached view for trades that
// were appended to the ledger outside CommitTrade, such as backfills.
// It completes synchronously.
func (c *Cache) OnTradeCommitted(userID string) {
	st := c.userState(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.seq.Add(1)
	c.store.Invalidate(Key(userID))
}
