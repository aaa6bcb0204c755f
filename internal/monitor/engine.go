package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/maltedev/price-tracker/internal/extractor"
	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/notify"
	"github.com/maltedev/price-tracker/internal/store"
)

type Resolver interface {
	Resolve(rawURL string) extractor.Extractor
}

// ChangeRecorder stores a changed price and its alert as one unit. The notice
// carries the new price and check time.
type ChangeRecorder interface {
	RecordPriceChange(ctx context.Context, notice notify.ChangeNotice) error
}

// PassReport summarizes one monitoring pass.
type PassReport struct {
	Checked            int  `json:"checked"`
	Skipped            int  `json:"skipped"`
	Changed            int  `json:"changed"`
	Failed             int  `json:"failed"`
	NoChangeNoticeSent bool `json:"no_change_notice_sent"`
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeSkipped
	outcomeAdopted
	outcomeChanged
)

// Engine re-extracts every tracked item and reports price changes.
//
// The no-change notice is sent at most once per process, and only after a pass
// in which at least one item was checked without error. A later pass with
// changes does not re-arm it; only ResetNoChangeNotice does.
//
// With a ChangeRecorder, price changes go through it instead of UpdateItem
// followed by NotifyChange.
type Engine struct {
	store    store.Store
	resolver Resolver
	notifier notify.Notifier
	recorder ChangeRecorder
	logger   *slog.Logger
	now      func() time.Time

	noChangeSent atomic.Bool
}

func NewEngine(s store.Store, resolver Resolver, notifier notify.Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		store:    s,
		resolver: resolver,
		notifier: notifier,
		logger:   logger.With("component", "monitor"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) WithChangeRecorder(r ChangeRecorder) *Engine {
	e.recorder = r
	return e
}

func (e *Engine) NoChangeNoticeSent() bool {
	return e.noChangeSent.Load()
}

func (e *Engine) ResetNoChangeNotice() {
	e.noChangeSent.Store(false)
}

// CheckPrices runs one pass over all tracked items.
func (e *Engine) CheckPrices(ctx context.Context) PassReport {
	var report PassReport

	items, err := e.store.ListItems(ctx, "")
	if err != nil {
		e.logger.Error("failed to list items", "error", err)
		return report
	}
	if len(items) == 0 {
		e.logger.Debug("no tracked items")
		return report
	}

	e.logger.Info("starting price check", "items", len(items))

	var lastTarget string
	for _, item := range items {
		if ctx.Err() != nil {
			e.logger.Warn("price check cancelled", "checked", report.Checked)
			return report
		}

		lastTarget = item.NotificationTarget
		report.Checked++

		out, err := e.checkItem(ctx, item)
		if err != nil {
			report.Failed++
			e.logger.Error("failed to check item", "item_id", item.ID, "url", item.URL, "error", err)
			continue
		}

		switch out {
		case outcomeSkipped:
			report.Skipped++
		case outcomeChanged:
			report.Changed++
		}
	}

	completed := report.Checked - report.Failed
	if report.Changed == 0 && completed > 0 && e.noChangeSent.CompareAndSwap(false, true) {
		if err := e.notifier.NotifyNoChange(ctx, lastTarget); err != nil {
			e.logger.Error("failed to send no-change notice", "target", lastTarget, "error", err)
		}
		report.NoChangeNoticeSent = true
	}

	e.logger.Info("price check completed",
		"checked", report.Checked,
		"skipped", report.Skipped,
		"changed", report.Changed,
		"failed", report.Failed)

	return report
}

func (e *Engine) checkItem(ctx context.Context, item models.TrackedItem) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while checking item: %v", r)
		}
	}()

	result := e.resolver.Resolve(item.URL).Extract(ctx, item.URL)
	newPrice := models.NormalizePrice(result.Price)

	if newPrice.IsZero() {
		e.logger.Info("price temporarily unavailable", "item_id", item.ID, "url", item.URL)
		return outcomeSkipped, nil
	}

	now := e.now()
	if err := e.store.AppendObservation(ctx, item.ID, newPrice, now); err != nil {
		return 0, fmt.Errorf("failed to append observation: %w", err)
	}

	oldPrice := models.NormalizePrice(item.CurrentPrice)
	if oldPrice.IsZero() {
		if err := e.store.UpdateItem(ctx, item.ID, store.ItemUpdate{Price: &newPrice, LastCheckedAt: &now}); err != nil {
			return 0, fmt.Errorf("failed to adopt price: %w", err)
		}
		e.logger.Info("adopted first price", "item_id", item.ID, "price", newPrice.StringFixed(2))
		return outcomeAdopted, nil
	}

	direction := models.ComparePrices(oldPrice, newPrice)
	if direction == models.DirectionUnchanged {
		return outcomeUnchanged, nil
	}

	item.CurrentPrice = newPrice
	item.LastCheckedAt = now
	notice := notify.ChangeNotice{Item: item, OldPrice: oldPrice, NewPrice: newPrice, Direction: direction}

	if e.recorder != nil {
		if err := e.recorder.RecordPriceChange(ctx, notice); err != nil {
			return 0, err
		}
		e.logChange(notice)
		return outcomeChanged, nil
	}

	if err := e.store.UpdateItem(ctx, item.ID, store.ItemUpdate{Price: &newPrice, LastCheckedAt: &now}); err != nil {
		return 0, fmt.Errorf("failed to update price: %w", err)
	}
	e.logChange(notice)

	if err := e.notifier.NotifyChange(ctx, notice); err != nil {
		e.logger.Error("failed to send change notice", "item_id", item.ID, "error", err)
	}

	return outcomeChanged, nil
}

func (e *Engine) logChange(n notify.ChangeNotice) {
	e.logger.Info("price changed",
		"item_id", n.Item.ID,
		"old_price", n.OldPrice.StringFixed(2),
		"new_price", n.NewPrice.StringFixed(2),
		"direction", n.Direction)
}
