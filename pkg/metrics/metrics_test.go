package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tradefolio/platform/pkg/cache"
)

func TestMiddleware_ResponseTimeHeader(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{ServiceName: "test"}))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("X-Response-Time") == "" {
		t.Error("X-Response-Time header should be set")
	}
}

func TestMiddleware_CacheOutcomeHeaders(t *testing.T) {
	store := cache.New()
	store.Set("portfolio:v1:u1", "view", 0)
	store.Get("portfolio:v1:u1") // hit
	store.Get("absent")          // miss

	app := fiber.New()
	app.Use(Middleware(Config{ServiceName: "test", Cache: store}))
	app.Get("/portfolio", func(c *fiber.Ctx) error {
		MarkCacheOutcome(c, true, "portfolio:v1:u1")
		return c.SendString("ok")
	})

	req := httptest.NewRequest("GET", "/portfolio", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Cache"); got != "HIT" {
		t.Errorf("X-Cache = %v, want HIT", got)
	}
	if got := resp.Header.Get("X-Cache-Key"); got != "portfolio:v1:u1" {
		t.Errorf("X-Cache-Key = %v, want portfolio:v1:u1", got)
	}
	if got := resp.Header.Get("X-Cache-Hits"); got != "1" {
		t.Errorf("X-Cache-Hits = %v, want 1", got)
	}
	if got := resp.Header.Get("X-Cache-Misses"); got != "1" {
		t.Errorf("X-Cache-Misses = %v, want 1", got)
	}
}

func TestMiddleware_MissOutcome(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{ServiceName: "test"}))
	app.Get("/portfolio", func(c *fiber.Ctx) error {
		MarkCacheOutcome(c, false, "portfolio:v1:u2")
		return c.SendString("ok")
	})

	req := httptest.NewRequest("GET", "/portfolio", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %v, want MISS", got)
	}
}

func TestMiddleware_SkipPaths(t *testing.T) {
	store := cache.New()
	app := fiber.New()
	app.Use(Middleware(Config{ServiceName: "test", SkipPaths: []string{"/health"}, Cache: store}))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("X-Response-Time") != "" {
		t.Error("skipped path should not get timing headers")
	}
	if store.Counters().AvgLatency != 0 {
		t.Error("skipped path should not fold a latency sample")
	}
}

func TestMiddleware_FoldsLatencyIntoRunningMean(t *testing.T) {
	store := cache.New()
	app := fiber.New()
	app.Use(Middleware(Config{ServiceName: "test", Cache: store}))
	app.Get("/", func(c *fiber.Ctx) error {
		time.Sleep(time.Millisecond)
		return c.SendString("ok")
	})

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	resp.Body.Close()

	if store.Counters().AvgLatency <= 0 {
		t.Error("request latency should be folded into the running mean")
	}
}
