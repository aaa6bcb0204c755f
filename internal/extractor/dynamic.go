package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maltedev/price-tracker/internal/browser"
	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/parser"
)

const metaPriceSelector = "meta[property='product:price:amount']"

type DynamicSpec struct {
	Source         string
	NameSelectors  []string
	TitleMarker    string
	PriceSelectors []string
	Placeholders   []string
	MetaFallback   bool
}

type WaitOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// DynamicExtractor renders the page in a headless browser and waits for
// price elements to appear before reading them.
type DynamicExtractor struct {
	spec     DynamicSpec
	renderer Renderer
	wait     WaitOptions
	logger   *slog.Logger
}

func NewDynamicExtractor(spec DynamicSpec, renderer Renderer, wait WaitOptions, logger *slog.Logger) *DynamicExtractor {
	if wait.Timeout <= 0 {
		wait.Timeout = 20 * time.Second
	}
	if wait.PollInterval <= 0 {
		wait.PollInterval = 500 * time.Millisecond
	}
	return &DynamicExtractor{
		spec:     spec,
		renderer: renderer,
		wait:     wait,
		logger:   logger.With("component", "dynamic_extractor", "source", spec.Source),
	}
}

func (e *DynamicExtractor) Source() string {
	return e.spec.Source
}

func (e *DynamicExtractor) Extract(ctx context.Context, url string) (result models.ExtractionResult) {
	result = models.FailedResult(e.spec.Source)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panicked", "url", url, "panic", fmt.Sprint(r))
			result = models.FailedResult(e.spec.Source)
		}
	}()

	err := e.renderer.Render(ctx, url, func(page browser.Page) error {
		if price, err := e.extractPrice(ctx, page); err == nil {
			result.SetPrice(price)
		} else {
			e.logger.Warn("price not found", "url", url, "error", err)
		}

		if name, err := e.extractName(page); err == nil {
			result.SetName(name)
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("failed to render page", "url", url, "error", err)
		return models.FailedResult(e.spec.Source)
	}

	return result
}

func (e *DynamicExtractor) extractPrice(ctx context.Context, page browser.Page) (decimal.Decimal, error) {
	for _, selector := range e.spec.PriceSelectors {
		if err := e.waitFor(ctx, page, selector); err != nil {
			if errors.Is(err, ErrRenderTimeout) {
				e.logger.Debug("price candidate did not appear", "selector", selector)
				continue
			}
			return decimal.Zero, err
		}

		text, err := page.Text(selector)
		if err != nil {
			e.logger.Debug("failed to read price candidate", "selector", selector, "error", err)
			continue
		}
		if e.isPlaceholder(text) {
			e.logger.Debug("skipping placeholder text", "selector", selector, "text", text)
			continue
		}

		price, err := parser.ParsePrice(text)
		if err != nil || !price.IsPositive() {
			continue
		}
		return price, nil
	}

	// Attr blocks until the element exists, so a missing tag is detected first.
	if e.spec.MetaFallback {
		if n, err := page.Count(metaPriceSelector); err != nil || n == 0 {
			return decimal.Zero, parser.ErrNoMatch
		}
		if content, err := page.Attr(metaPriceSelector, "content"); err == nil && content != "" {
			if price, err := parser.ParsePrice(content); err == nil {
				return price, nil
			}
		}
	}

	return decimal.Zero, parser.ErrNoMatch
}

func (e *DynamicExtractor) extractName(page browser.Page) (string, error) {
	for _, selector := range e.spec.NameSelectors {
		if n, err := page.Count(selector); err != nil || n == 0 {
			continue
		}
		if text, err := page.Text(selector); err == nil && text != "" {
			return text, nil
		}
	}

	title, err := page.Title()
	if err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return parser.TitleName(title, e.spec.TitleMarker)
}

func (e *DynamicExtractor) isPlaceholder(text string) bool {
	for _, p := range e.spec.Placeholders {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// waitFor polls until selector matches at least one element or the wait
// timeout passes.
func (e *DynamicExtractor) waitFor(ctx context.Context, page browser.Page, selector string) error {
	deadline := time.NewTimer(e.wait.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.wait.PollInterval)
	defer ticker.Stop()

	for {
		if n, err := page.Count(selector); err == nil && n > 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: %s", ErrRenderTimeout, selector)
		case <-ticker.C:
		}
	}
}
