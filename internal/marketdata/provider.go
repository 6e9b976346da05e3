package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tradefolio/platform/pkg/logger"
)

// ErrPriceNotFound means no quote exists for the symbol. Callers treat
// it as a hard failure; portfolio math never proceeds on partial prices.
var ErrPriceNotFound = errors.New("market price not found")

// Provider supplies the current market price for a symbol.
type Provider interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// PGProvider reads the latest quote per symbol from the market_quotes
// table, which an ingest job keeps current.
type PGProvider struct {
	db *pgxpool.Pool
}

func NewPGProvider(db *pgxpool.Pool) *PGProvider {
	return &PGProvider{db: db}
}

func (p *PGProvider) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := p.db.QueryRow(ctx, `
		SELECT price FROM market_quotes
		WHERE symbol = $1
		ORDER BY quoted_at DESC
		LIMIT 1
	`, symbol).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrPriceNotFound, symbol)
		}
		return 0, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	return price, nil
}

// CachedProvider is a redis read-through cache in front of another
// provider. Quotes age out quickly; a redis outage degrades to direct
// reads rather than failing.
type CachedProvider struct {
	client *redis.Client
	inner  Provider
	ttl    time.Duration
}

func NewCachedProvider(client *redis.Client, inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{client: client, inner: inner, ttl: ttl}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

func (p *CachedProvider) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	val, err := p.client.Get(ctx, quoteKey(symbol)).Result()
	if err == nil {
		price, perr := strconv.ParseFloat(val, 64)
		if perr == nil {
			return price, nil
		}
		logger.Warn().Str("symbol", symbol).Str("value", val).Msg("unparseable cached quote, refetching")
	} else if !errors.Is(err, redis.Nil) {
		logger.Warn().Err(err).Str("symbol", symbol).Msg("quote cache read failed, falling back to source")
	}

	price, err := p.inner.CurrentPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}

	if err := p.client.Set(ctx, quoteKey(symbol), strconv.FormatFloat(price, 'f', -1, 64), p.ttl).Err(); err != nil {
		logger.Warn().Err(err).Str("symbol", symbol).Msg("quote cache write failed")
	}
	return price, nil
}

// StaticProvider serves a fixed price table. Used in tests and local
// development without a quote feed.
type StaticProvider struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func NewStaticProvider(prices map[string]float64) *StaticProvider {
	p := &StaticProvider{prices: make(map[string]float64, len(prices))}
	for symbol, price := range prices {
		p.prices[symbol] = price
	}
	return p
}

// SetPrice sets or updates the price for a symbol.
func (p *StaticProvider) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// RemovePrice deletes a symbol's price so lookups fail.
func (p *StaticProvider) RemovePrice(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.prices, symbol)
}

func (p *StaticProvider) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPriceNotFound, symbol)
	}
	return price, nil
}
