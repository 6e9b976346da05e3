package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tradefolio/platform/internal/ledger"
	"github.com/tradefolio/platform/internal/marketdata"
	"github.com/tradefolio/platform/internal/portfolio"
	apperrors "github.com/tradefolio/platform/pkg/errors"
	"github.com/tradefolio/platform/pkg/events"
	"github.com/tradefolio/platform/pkg/logger"
	"github.com/tradefolio/platform/pkg/metrics"
	"github.com/tradefolio/platform/pkg/middleware"
	"github.com/tradefolio/platform/pkg/response"
)

const serviceName = "portfolio-service"

// Handler serves the portfolio HTTP API.
type Handler struct {
	cache     *portfolio.Cache
	engine    *portfolio.Engine
	ledger    ledger.Ledger
	snapshots portfolio.SnapshotStore
	prices    marketdata.Provider
	publisher events.Publisher
}

// New creates a portfolio handler. publisher may be nil to disable
// event emission.
func New(
	cache *portfolio.Cache,
	engine *portfolio.Engine,
	led ledger.Ledger,
	snapshots portfolio.SnapshotStore,
	prices marketdata.Provider,
	publisher events.Publisher,
) *Handler {
	return &Handler{
		cache:     cache,
		engine:    engine,
		ledger:    led,
		snapshots: snapshots,
		prices:    prices,
		publisher: publisher,
	}
}

// RegisterRoutes mounts the API under router.
func (h *Handler) RegisterRoutes(router fiber.Router) {
	router.Post("/trades", h.PlaceTrade)
	router.Get("/portfolio", h.GetPortfolio)
	router.Post("/portfolio/snapshots", h.CreateSnapshot)
	router.Get("/portfolio/snapshots", h.ListSnapshots)
}

// PlaceTradeRequest is the trade submission body. Quantity is a whole
// number of shares. Price is optional; when omitted the trade executes
// at the current market price.
type PlaceTradeRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

// PlaceTrade commits a trade against the ledger. On success the user's
// cached portfolio view is already invalidated by the time the response
// is sent, so a follow-up read reflects the trade.
func (h *Handler) PlaceTrade(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	tenantID := middleware.GetTenantID(c)

	var req PlaceTradeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.ErrValidation.WithDetails("Invalid request body")
	}
	if req.Symbol == "" {
		return apperrors.ErrValidation.WithDetails("Symbol is required")
	}
	side := ledger.Side(req.Side)
	if !side.Valid() {
		return apperrors.ErrValidation.WithDetails("Side must be 'buy' or 'sell'")
	}
	if req.Quantity <= 0 {
		return apperrors.ErrValidation.WithDetails("Quantity must be a positive whole number of shares")
	}

	ctx := c.Context()

	price := req.Price
	if price <= 0 {
		quote, err := h.prices.CurrentPrice(ctx, req.Symbol)
		if err != nil {
			if errors.Is(err, marketdata.ErrPriceNotFound) {
				return apperrors.ErrPriceUnavailable.WithDetails(req.Symbol)
			}
			logger.Error().Err(err).Str("symbol", req.Symbol).Msg("Failed to get quote")
			return apperrors.ErrServiceUnavailable
		}
		price = quote
	}

	var result *ledger.CommitResult
	err := h.cache.CommitTrade(ctx, userID, func(ctx context.Context) error {
		var err error
		result, err = h.ledger.AppendTrade(ctx, ledger.TradeRequest{
			UserID:   userID,
			Symbol:   req.Symbol,
			Side:     side,
			Quantity: req.Quantity,
			Price:    price,
		})
		return err
	})
	if err != nil {
		appErr := tradeError(err)
		metrics.RecordTradeRejected(serviceName, appErr.Code)
		h.publishTradeRejected(ctx, userID, tenantID, req, appErr.Code)
		return appErr
	}

	metrics.RecordTradeCommitted(serviceName, string(side))
	h.publishTradeCommitted(ctx, userID, tenantID, result)

	logger.Info().
		Str("user_id", userID).
		Str("trade_id", result.TradeID).
		Str("symbol", result.Symbol).
		Str("side", string(result.Side)).
		Int64("quantity", result.ExecutedQty).
		Float64("price", result.ExecutedPrice).
		Msg("trade committed")

	return response.Created(c, result)
}

func tradeError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, ledger.ErrNoPosition):
		return apperrors.ErrNoPosition
	case errors.Is(err, ledger.ErrInsufficientShares):
		return apperrors.ErrInsufficientShares
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return apperrors.ErrInsufficientFunds
	case errors.Is(err, ledger.ErrAccountNotFound):
		return apperrors.ErrNotFound.WithDetails("No account for user")
	default:
		logger.Error().Err(err).Msg("trade commit failed")
		return apperrors.ErrTradeRejected.WithError(err)
	}
}

// GetPortfolio returns the user's current portfolio view, served from
// cache when a fresh view exists.
func (h *Handler) GetPortfolio(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	view, hit, err := h.cache.GetPortfolio(c.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAccountNotFound):
			return apperrors.ErrNotFound.WithDetails("No account for user")
		case errors.Is(err, marketdata.ErrPriceNotFound):
			return apperrors.ErrPriceUnavailable.WithError(err)
		}
		logger.Error().Err(err).Str("user_id", userID).Msg("Failed to compute portfolio")
		return apperrors.ErrInternal
	}

	metrics.MarkCacheOutcome(c, hit, portfolio.Key(userID))
	return response.Success(c, view)
}

// CreateSnapshot takes an on-demand snapshot of the user's portfolio.
func (h *Handler) CreateSnapshot(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	snap, err := h.engine.CreateSnapshot(c.Context(), userID, portfolio.TriggerOnDemand)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			if errors.Is(err, ledger.ErrAccountNotFound) {
				return apperrors.ErrNotFound.WithDetails("No account for user")
			}
			return appErr
		}
		logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create snapshot")
		return apperrors.ErrSnapshotFailed
	}
	return response.Created(c, snap)
}

// ListSnapshots returns the user's snapshot history, optionally bounded
// by from/to query params (RFC 3339).
func (h *Handler) ListSnapshots(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	from, err := parseTimeParam(c.Query("from"))
	if err != nil {
		return apperrors.ErrValidation.WithDetails("from must be an RFC 3339 timestamp")
	}
	to, err := parseTimeParam(c.Query("to"))
	if err != nil {
		return apperrors.ErrValidation.WithDetails("to must be an RFC 3339 timestamp")
	}

	snapshots, err := h.snapshots.List(c.Context(), userID, from, to)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list snapshots")
		return apperrors.ErrInternal
	}
	if snapshots == nil {
		snapshots = []portfolio.Snapshot{}
	}
	return response.Success(c, snapshots)
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *Handler) publishTradeCommitted(ctx context.Context, userID, tenantID string, res *ledger.CommitResult) {
	if h.publisher == nil {
		return
	}
	event := events.NewEvent(events.EventTypeTradeCommitted, serviceName, events.TradeCommittedPayload{
		TradeID:       res.TradeID,
		UserID:        userID,
		Symbol:        res.Symbol,
		Side:          string(res.Side),
		ExecutedQty:   res.ExecutedQty,
		ExecutedPrice: res.ExecutedPrice,
		CommittedAt:   res.CommittedAt,
	})
	if tenantID != "" {
		event.WithMetadata("tenant_id", tenantID)
	}
	if err := h.publisher.Publish(ctx, events.TopicTradeCommitted, event); err != nil {
		logger.Error().Err(err).Str("trade_id", res.TradeID).Msg("failed to publish trade event")
	}
}

func (h *Handler) publishTradeRejected(ctx context.Context, userID, tenantID string, req PlaceTradeRequest, reason string) {
	if h.publisher == nil {
		return
	}
	event := events.NewEvent(events.EventTypeTradeRejected, serviceName, events.TradeRejectedPayload{
		UserID:       userID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		RejectReason: reason,
	})
	if tenantID != "" {
		event.WithMetadata("tenant_id", tenantID)
	}
	if err := h.publisher.Publish(ctx, events.TopicTradeRejected, event); err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("failed to publish trade rejection event")
	}
}
