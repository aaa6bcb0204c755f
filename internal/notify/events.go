package notify

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/maltedev/price-tracker/internal/events"
	"github.com/maltedev/price-tracker/internal/models"
)

type EventPublisher interface {
	PublishPriceChanged(ctx context.Context, payload *events.PriceChangedPayload) error
	PublishPricesUnchanged(ctx context.Context, payload *events.PricesUnchangedPayload) error
}

// EventNotifier turns notices into outbox events.
type EventNotifier struct {
	publisher EventPublisher
}

func NewEventNotifier(publisher EventPublisher) *EventNotifier {
	return &EventNotifier{publisher: publisher}
}

func (n *EventNotifier) NotifyChange(ctx context.Context, notice ChangeNotice) error {
	return n.publisher.PublishPriceChanged(ctx, changedPayload(notice))
}

func changedPayload(notice ChangeNotice) *events.PriceChangedPayload {
	return &events.PriceChangedPayload{
		ItemID:    notice.Item.ID,
		Name:      notice.Item.Name,
		URL:       notice.Item.URL,
		Source:    notice.Item.SourceID,
		OwnerID:   notice.Item.OwnerID,
		Target:    notice.Item.NotificationTarget,
		OldPrice:  notice.OldPrice.StringFixed(2),
		NewPrice:  notice.NewPrice.StringFixed(2),
		Direction: string(notice.Direction),
	}
}

func (n *EventNotifier) NotifyNoChange(ctx context.Context, target string) error {
	return n.publisher.PublishPricesUnchanged(ctx, &events.PricesUnchangedPayload{Target: target})
}

// EventHandler delivers events read from the alert stream through a Notifier.
type EventHandler struct {
	notifier Notifier
}

func NewEventHandler(notifier Notifier) *EventHandler {
	return &EventHandler{notifier: notifier}
}

func (h *EventHandler) HandlePriceChanged(ctx context.Context, p events.PriceChangedPayload) error {
	oldPrice, err := decimal.NewFromString(p.OldPrice)
	if err != nil {
		return fmt.Errorf("failed to parse old price: %w", err)
	}
	newPrice, err := decimal.NewFromString(p.NewPrice)
	if err != nil {
		return fmt.Errorf("failed to parse new price: %w", err)
	}

	return h.notifier.NotifyChange(ctx, ChangeNotice{
		Item: models.TrackedItem{
			ID:                 p.ItemID,
			URL:                p.URL,
			SourceID:           p.Source,
			Name:               p.Name,
			CurrentPrice:       newPrice,
			OwnerID:            p.OwnerID,
			NotificationTarget: p.Target,
		},
		OldPrice:  oldPrice,
		NewPrice:  newPrice,
		Direction: models.Direction(p.Direction),
	})
}

func (h *EventHandler) HandlePricesUnchanged(ctx context.Context, p events.PricesUnchangedPayload) error {
	return h.notifier.NotifyNoChange(ctx, p.Target)
}
