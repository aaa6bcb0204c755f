package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/parser"
)

// PriceRule reads a price from a parsed document.
type PriceRule func(doc *goquery.Document) (decimal.Decimal, error)

// SelectorPrice builds a rule walking selectors in order.
func SelectorPrice(selectors ...string) PriceRule {
	return func(doc *goquery.Document) (decimal.Decimal, error) {
		return parser.FirstPrice(doc, selectors)
	}
}

type StaticSpec struct {
	Source        string
	NameSelectors []string
	Price         PriceRule
}

// StaticExtractor fetches raw HTML and reads it with selector lists.
type StaticExtractor struct {
	spec    StaticSpec
	fetcher Fetcher
	headers http.Header
	logger  *slog.Logger
}

func NewStaticExtractor(spec StaticSpec, fetcher Fetcher, headers http.Header, logger *slog.Logger) *StaticExtractor {
	return &StaticExtractor{
		spec:    spec,
		fetcher: fetcher,
		headers: headers,
		logger:  logger.With("component", "static_extractor", "source", spec.Source),
	}
}

func (e *StaticExtractor) Source() string {
	return e.spec.Source
}

func (e *StaticExtractor) Extract(ctx context.Context, url string) (result models.ExtractionResult) {
	result = models.FailedResult(e.spec.Source)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panicked", "url", url, "panic", fmt.Sprint(r))
			result = models.FailedResult(e.spec.Source)
		}
	}()

	body, err := e.fetcher.Fetch(ctx, url, e.headers)
	if err != nil {
		e.logger.Warn("failed to fetch page", "url", url, "error", err)
		return result
	}

	doc, err := parser.NewDocument(body)
	if err != nil {
		e.logger.Warn("failed to parse page", "url", url, "error", err)
		return result
	}

	if name, err := parser.FirstText(doc, e.spec.NameSelectors); err == nil {
		result.SetName(name)
	} else {
		e.logger.Debug("name not found", "url", url)
	}

	if e.spec.Price != nil {
		if price, err := e.spec.Price(doc); err == nil {
			result.SetPrice(price)
		} else {
			e.logger.Debug("price not found", "url", url)
		}
	}

	return result
}
