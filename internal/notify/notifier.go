package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/maltedev/price-tracker/internal/models"
)

// ChangeNotice describes one detected price change.
type ChangeNotice struct {
	Item      models.TrackedItem
	OldPrice  decimal.Decimal
	NewPrice  decimal.Decimal
	Direction models.Direction
}

type Notifier interface {
	NotifyChange(ctx context.Context, notice ChangeNotice) error
	NotifyNoChange(ctx context.Context, target string) error
}

// Multi sends every notice to all notifiers and joins their errors.
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	return &Multi{
		notifiers: notifiers,
		logger:    logger.With("component", "notifier"),
	}
}

func (m *Multi) NotifyChange(ctx context.Context, notice ChangeNotice) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.NotifyChange(ctx, notice); err != nil {
			m.logger.Error("failed to send change notice", "item_id", notice.Item.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) NotifyNoChange(ctx context.Context, target string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.NotifyNoChange(ctx, target); err != nil {
			m.logger.Error("failed to send no-change notice", "target", target, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
