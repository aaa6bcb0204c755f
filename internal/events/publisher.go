package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/price-tracker/internal/database"
)

type EventType string

const (
	// EventTypePriceChanged is published when a poll finds a new price
	EventTypePriceChanged EventType = "PRICE_CHANGED"
	// EventTypePricesUnchanged is published once when a pass finds no changes
	EventTypePricesUnchanged EventType = "PRICES_UNCHANGED"
)

type PriceChangedPayload struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	ItemID    string    `json:"item_id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Source    string    `json:"source"`
	OwnerID   string    `json:"owner_id"`
	Target    string    `json:"notification_target"`
	OldPrice  string    `json:"old_price"`
	NewPrice  string    `json:"new_price"`
	Direction string    `json:"direction"`
}

type PricesUnchangedPayload struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Target    string    `json:"notification_target"`
}

// OutboxWriter stores one event for later relay
type OutboxWriter interface {
	Insert(ctx context.Context, event *database.OutboxEvent) error
}

// Publisher writes events to the transactional outbox
type Publisher struct {
	outbox OutboxWriter
	logger *slog.Logger
}

func NewPublisher(outbox OutboxWriter, logger *slog.Logger) *Publisher {
	return &Publisher{
		outbox: outbox,
		logger: logger.With("component", "event_publisher"),
	}
}

func (p *Publisher) PublishPriceChanged(ctx context.Context, payload *PriceChangedPayload) error {
	event, err := p.PriceChangedEvent(payload)
	if err != nil {
		return err
	}
	return p.insert(ctx, event, payload.EventID)
}

// PriceChangedEvent builds the outbox row for payload without storing it, for
// callers that insert it inside their own transaction.
func (p *Publisher) PriceChangedEvent(payload *PriceChangedPayload) (*database.OutboxEvent, error) {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	payload.EventType = string(EventTypePriceChanged)
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}

	return newEvent("tracked_item", payload.ItemID, EventTypePriceChanged, payload)
}

func (p *Publisher) PublishPricesUnchanged(ctx context.Context, payload *PricesUnchangedPayload) error {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	payload.EventType = string(EventTypePricesUnchanged)
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}

	event, err := newEvent("owner", payload.Target, EventTypePricesUnchanged, payload)
	if err != nil {
		return err
	}
	return p.insert(ctx, event, payload.EventID)
}

func newEvent(aggregateType, aggregateID string, eventType EventType, payload interface{}) (*database.OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       data,
	}, nil
}

func (p *Publisher) insert(ctx context.Context, event *database.OutboxEvent, eventID string) error {
	if err := p.outbox.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", event.EventType,
		"event_id", eventID,
		"aggregate_id", event.AggregateID,
		"outbox_id", event.ID,
	)

	return nil
}
