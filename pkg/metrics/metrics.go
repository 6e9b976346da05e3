package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tradefolio/platform/pkg/cache"
)

var (
	registry = prometheus.NewRegistry()

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_cache_requests_total",
			Help: "Portfolio cache lookups by outcome",
		},
		[]string{"service", "outcome"},
	)

	tradesCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trades_committed_total",
			Help: "Total number of committed trades",
		},
		[]string{"service", "side"},
	)

	tradesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trades_rejected_total",
			Help: "Total number of rejected trades",
		},
		[]string{"service", "reason"},
	)

	snapshotsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_snapshots_created_total",
			Help: "Total number of portfolio snapshots persisted",
		},
		[]string{"service", "trigger"},
	)

	snapshotFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_snapshot_failures_total",
			Help: "Total number of failed snapshot attempts",
		},
		[]string{"service", "trigger"},
	)
)

func init() {
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry.MustRegister(httpRequestsTotal)
	registry.MustRegister(httpRequestDuration)
	registry.MustRegister(cacheRequests)
	registry.MustRegister(tradesCommitted)
	registry.MustRegister(tradesRejected)
	registry.MustRegister(snapshotsCreated)
	registry.MustRegister(snapshotFailures)
}

// Registry returns the prometheus registry
func Registry() *prometheus.Registry {
	return registry
}

// Handler returns a Fiber handler for the /metrics endpoint
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}

// Locals keys used to hand the per-request cache outcome from the
// portfolio handler to the middleware. The middleware only reads them;
// nothing here ever feeds back into a cache decision.
const (
	localCacheStatus = "cache_status"
	localCacheKey    = "cache_key"
)

// MarkCacheOutcome records whether this request's portfolio read was
// served from cache and under which key.
func MarkCacheOutcome(c *fiber.Ctx, hit bool, key string) {
	status := "miss"
	if hit {
		status = "hit"
	}
	c.Locals(localCacheStatus, status)
	c.Locals(localCacheKey, key)
}

// Config holds metrics middleware configuration
type Config struct {
	ServiceName string
	SkipPaths   []string

	// Cache, when set, contributes hit/miss totals to the diagnostic
	// headers and receives each request's latency sample.
	Cache *cache.Store
}

// Middleware returns Fiber middleware that times every request, folds the
// elapsed time into the cache store's running mean, and attaches
// diagnostic response headers: X-Response-Time, X-Cache, X-Cache-Key,
// X-Cache-Hits, X-Cache-Misses.
func Middleware(cfg Config) fiber.Handler {
	skipPaths := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *fiber.Ctx) error {
		if skipPaths[c.Path()] {
			return c.Next()
		}

		start := time.Now()

		err := c.Next()

		elapsed := time.Since(start)
		status := strconv.Itoa(c.Response().StatusCode())
		method := c.Method()
		path := c.Route().Path

		httpRequestsTotal.WithLabelValues(cfg.ServiceName, method, path, status).Inc()
		httpRequestDuration.WithLabelValues(cfg.ServiceName, method, path).Observe(elapsed.Seconds())

		c.Set("X-Response-Time", elapsed.String())

		if outcome, ok := c.Locals(localCacheStatus).(string); ok {
			cacheRequests.WithLabelValues(cfg.ServiceName, outcome).Inc()
			c.Set("X-Cache", strings.ToUpper(outcome))
			if key, ok := c.Locals(localCacheKey).(string); ok {
				c.Set("X-Cache-Key", key)
			}
		}

		if cfg.Cache != nil {
			cfg.Cache.ObserveLatency(elapsed)
			counters := cfg.Cache.Counters()
			c.Set("X-Cache-Hits", strconv.FormatUint(counters.Hits, 10))
			c.Set("X-Cache-Misses", strconv.FormatUint(counters.Misses, 10))
		}

		return err
	}
}

// RecordTradeCommitted records a committed trade
func RecordTradeCommitted(service, side string) {
	tradesCommitted.WithLabelValues(service, side).Inc()
}

// RecordTradeRejected records a rejected trade
func RecordTradeRejected(service, reason string) {
	tradesRejected.WithLabelValues(service, reason).Inc()
}

// RecordSnapshotCreated records a persisted snapshot; trigger is
// "scheduled" or "on_demand".
func RecordSnapshotCreated(service, trigger string) {
	snapshotsCreated.WithLabelValues(service, trigger).Inc()
}

// RecordSnapshotFailure records a failed snapshot attempt
func RecordSnapshotFailure(service, trigger string) {
	snapshotFailures.WithLabelValues(service, trigger).Inc()
}
