package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for every Kafka message this service publishes.
//
// Topic naming: tradefolio.<domain>.<action>
// Event types are versioned independently: "trade.committed.v1".
type Event struct {
	// EventID is a unique identifier for this event instance
	EventID string `json:"event_id"`

	// EventType describes the event in format: <domain>.<action>.v<version>
	EventType string `json:"event_type"`

	// OccurredAt is when the event actually happened (not when it was published)
	OccurredAt time.Time `json:"occurred_at"`

	// CorrelationID links related events across services
	CorrelationID string `json:"correlation_id,omitempty"`

	// Source identifies the service that produced this event
	Source string `json:"source"`

	// Payload contains the event-specific data
	Payload any `json:"payload"`

	// Metadata contains optional key-value pairs for tracing, debugging, etc.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, payload any) *Event {
	return &Event{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Source:     source,
		Payload:    payload,
		Metadata:   make(map[string]string),
	}
}

// WithCorrelationID sets the correlation ID for request tracing
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithMetadata adds a metadata key-value pair
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

const (
	// TopicTradeCommitted is published after a trade's ledger write is
	// durable and the user's portfolio cache has been invalidated.
	// Payload: TradeCommittedPayload
	TopicTradeCommitted = "tradefolio.trades.committed"

	// TopicTradeRejected is published when a trade fails validation or
	// the ledger write fails.
	// Payload: TradeRejectedPayload
	TopicTradeRejected = "tradefolio.trades.rejected"

	// TopicSnapshotCreated is published after a portfolio snapshot row
	// has been persisted.
	// Payload: SnapshotCreatedPayload
	TopicSnapshotCreated = "tradefolio.snapshots.created"
)

// AllTopics lists every registered topic for admin/setup purposes
var AllTopics = []string{
	TopicTradeCommitted,
	TopicTradeRejected,
	TopicSnapshotCreated,
}

const (
	EventTypeTradeCommitted  = "trade.committed.v1"
	EventTypeTradeRejected   = "trade.rejected.v1"
	EventTypeSnapshotCreated = "snapshot.created.v1"
)

// TradeCommittedPayload is the payload for trade.committed.v1 events
type TradeCommittedPayload struct {
	TradeID       string    `json:"trade_id"`
	UserID        string    `json:"user_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"` // buy, sell
	ExecutedQty   int64     `json:"executed_qty"`
	ExecutedPrice float64   `json:"executed_price"`
	CommittedAt   time.Time `json:"committed_at"`
}

// TradeRejectedPayload is the payload for trade.rejected.v1 events
type TradeRejectedPayload struct {
	UserID       string `json:"user_id"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	RejectReason string `json:"reject_reason"`
}

// SnapshotCreatedPayload is the payload for snapshot.created.v1 events
type SnapshotCreatedPayload struct {
	SnapshotID          string    `json:"snapshot_id"`
	UserID              string    `json:"user_id"`
	SnapshotDate        time.Time `json:"snapshot_date"`
	TotalPortfolioValue float64   `json:"total_portfolio_value"`
	TotalPnL            float64   `json:"total_pnl"`
	Trigger             string    `json:"trigger"` // scheduled, on_demand
}

// Publisher publishes events to Kafka topics
type Publisher interface {
	// Publish sends an event to the specified topic
	Publish(ctx context.Context, topic string, event *Event) error

	// Close closes the publisher and releases resources
	Close() error
}
