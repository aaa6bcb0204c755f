package notify

import (
	"context"
	"fmt"

	"github.com/maltedev/price-tracker/internal/database"
	"github.com/maltedev/price-tracker/internal/events"
	"github.com/maltedev/price-tracker/internal/store"
)

// ItemEventWriter updates an item and stores an outbox event atomically.
type ItemEventWriter interface {
	UpdateWithEvent(ctx context.Context, id string, update store.ItemUpdate, event *database.OutboxEvent) error
}

type ChangeEventBuilder interface {
	PriceChangedEvent(payload *events.PriceChangedPayload) (*database.OutboxEvent, error)
}

// OutboxRecorder persists a new price together with its PRICE_CHANGED event,
// so a stored change always has a queued alert.
type OutboxRecorder struct {
	items   ItemEventWriter
	builder ChangeEventBuilder
}

func NewOutboxRecorder(items ItemEventWriter, builder ChangeEventBuilder) *OutboxRecorder {
	return &OutboxRecorder{items: items, builder: builder}
}

// RecordPriceChange stores notice.NewPrice and notice.Item.LastCheckedAt.
func (r *OutboxRecorder) RecordPriceChange(ctx context.Context, notice ChangeNotice) error {
	event, err := r.builder.PriceChangedEvent(changedPayload(notice))
	if err != nil {
		return fmt.Errorf("failed to build change event: %w", err)
	}

	price := notice.NewPrice
	checkedAt := notice.Item.LastCheckedAt
	update := store.ItemUpdate{Price: &price, LastCheckedAt: &checkedAt}

	if err := r.items.UpdateWithEvent(ctx, notice.Item.ID, update, event); err != nil {
		return fmt.Errorf("failed to record price change: %w", err)
	}
	return nil
}
