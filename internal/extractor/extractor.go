package extractor

import (
	"context"
	"errors"
	"net/http"

	"github.com/maltedev/price-tracker/internal/browser"
	"github.com/maltedev/price-tracker/internal/models"
)

var ErrRenderTimeout = errors.New("timed out waiting for element")

// Extractor turns a product URL into a name and price. Extract never fails:
// faults degrade the result instead.
type Extractor interface {
	Source() string
	Extract(ctx context.Context, url string) models.ExtractionResult
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, headers http.Header) ([]byte, error)
}

type Renderer interface {
	Render(ctx context.Context, url string, fn func(browser.Page) error) error
}

// Noop is the extractor for hosts no source claims.
type Noop struct{}

func (Noop) Source() string {
	return GenericSource
}

func (Noop) Extract(context.Context, string) models.ExtractionResult {
	return models.FailedResult(GenericSource)
}
