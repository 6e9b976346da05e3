package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tradefolio/platform/internal/handler"
	"github.com/tradefolio/platform/internal/ledger"
	"github.com/tradefolio/platform/internal/marketdata"
	"github.com/tradefolio/platform/internal/portfolio"
	"github.com/tradefolio/platform/pkg/cache"
	"github.com/tradefolio/platform/pkg/config"
	"github.com/tradefolio/platform/pkg/database"
	"github.com/tradefolio/platform/pkg/events"
	"github.com/tradefolio/platform/pkg/logger"
	"github.com/tradefolio/platform/pkg/metrics"
	"github.com/tradefolio/platform/pkg/middleware"
	"github.com/tradefolio/platform/pkg/response"
	"github.com/tradefolio/platform/pkg/telemetry"
)

const serviceName = "portfolio-service"

func main() {
	_ = godotenv.Load()

	logger.Init(serviceName, getEnvOrDefault("LOG_LEVEL", "info"), os.Getenv("LOG_PRETTY") == "true")
	logger.Info().Msg("Starting Portfolio Service")

	cfg, err := config.Load("config")
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	tp, err := telemetry.Init(ctx, &telemetry.Config{
		ServiceName:  serviceName,
		CollectorURL: cfg.Telemetry.CollectorURL,
		Environment:  getEnvOrDefault("ENVIRONMENT", "development"),
		Enabled:      cfg.Telemetry.Enabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize tracing")
	}
	defer tp.Shutdown(context.Background())

	// Database
	db, err := database.NewPool(ctx, &database.Config{
		Host:     getEnvOrDefault("DB_HOST", cfg.Database.Host),
		Port:     cfg.Database.Port,
		User:     getEnvOrDefault("DB_USER", cfg.Database.User),
		Password: getEnvOrDefault("DB_PASSWORD", cfg.Database.Password),
		Database: getEnvOrDefault("DB_NAME", cfg.Database.Database),
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	logger.Info().Msg("Connected to database")

	// Redis, used as the quote read-through cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	var prices marketdata.Provider = marketdata.NewPGProvider(db)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, quotes will not be cached")
	} else {
		prices = marketdata.NewCachedProvider(redisClient, prices, cfg.Cache.QuoteTTL)
		logger.Info().Msg("Connected to Redis")
	}

	// Kafka publisher
	var publisher events.Publisher
	if brokers := cfg.Kafka.Brokers; len(brokers) > 0 && brokers[0] != "" {
		kafkaPublisher := events.NewKafkaPublisher(brokers)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.Info().Msg("Connected to Kafka")
	} else {
		logger.Warn().Msg("Kafka not configured, events will not be published")
	}

	// Core wiring
	cacheStore := cache.New()
	ledgerStore := ledger.NewStore(db)
	snapshotStore := portfolio.NewPGSnapshotStore(db)
	portfolioCache := portfolio.NewCache(cacheStore, ledgerStore, prices, cfg.Cache.PortfolioTTL)
	engine := portfolio.NewEngine(portfolioCache, ledgerStore, prices, snapshotStore, publisher)

	if cfg.Snapshot.Enabled {
		go engine.Run(ctx, cfg.Snapshot.Interval)
	} else {
		logger.Warn().Msg("Scheduled snapshots disabled")
	}

	h := handler.New(portfolioCache, engine, ledgerStore, snapshotStore, prices, publisher)

	jwtSecret := getEnvOrDefault("JWT_SECRET", "dev-secret-change-in-production")

	app := fiber.New(fiber.Config{
		AppName:      "Tradefolio Portfolio Service",
		ErrorHandler: response.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	app.Use(middleware.SecurityHeaders())
	app.Use(metrics.Middleware(metrics.Config{
		ServiceName: serviceName,
		SkipPaths:   []string{"/health", "/metrics"},
		Cache:       cacheStore,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "service": serviceName})
	})
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api/v1",
		middleware.RateLimiter(middleware.RateLimitConfig{Max: 120, Duration: time.Minute}),
		middleware.Auth(jwtSecret),
	)
	h.RegisterRoutes(api)

	port := getEnvOrDefault("PORT", fmt.Sprintf("%d", cfg.Server.Port))
	go func() {
		if err := app.Listen(":" + port); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	logger.Info().Str("port", port).Msg("Portfolio Service started")

	<-ctx.Done()

	logger.Info().Msg("Shutting down Portfolio Service")
	if err := app.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
