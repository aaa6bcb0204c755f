package compare

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/price-tracker/internal/extractor"
	"github.com/maltedev/price-tracker/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingExtractor struct {
	source string
	price  string
	calls  atomic.Int64
	panics bool
	delay  time.Duration
}

func (c *countingExtractor) Source() string { return c.source }

func (c *countingExtractor) Extract(context.Context, string) models.ExtractionResult {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.panics {
		panic("render crashed")
	}

	result := models.FailedResult(c.source)
	if c.price != "" {
		result.SetPrice(decimal.RequireFromString(c.price))
	}
	return result
}

type staticSources []extractor.Source

func (s staticSources) Sources() []extractor.Source { return s }

func source(id string, ex extractor.Extractor) extractor.Source {
	return extractor.Source{
		ID:        id,
		HostMatch: id,
		Extractor: ex,
		SearchURL: func(q string) string { return "https://" + id + ".test/search?q=" + url.QueryEscape(q) },
	}
}

func fourSources() (staticSources, []*countingExtractor) {
	exs := []*countingExtractor{
		{source: "Amazon", price: "1999"},
		{source: "Flipkart", price: "1899.5"},
		{source: "AJIO", price: "2100"},
		{source: "Shopsy", price: "1750"},
	}
	var srcs staticSources
	for _, ex := range exs {
		srcs = append(srcs, source(ex.source, ex))
	}
	return srcs, exs
}

func TestCompareReturnsOneRowPerSource(t *testing.T) {
	srcs, exs := fourSources()
	job := New(srcs, Options{}, testLogger())

	rows := job.Compare(context.Background(), "Running Shoes", decimal.RequireFromString("1999"), "Amazon")

	require.Len(t, rows, 4)
	assert.Equal(t, "Amazon", rows[0].Source)
	assert.Equal(t, "1999.00", rows[0].Price.StringFixed(2))
	assert.Equal(t, models.AlreadyTrackedURL, rows[0].URL)
	assert.True(t, rows[0].Available)

	assert.Equal(t, []string{"Flipkart", "AJIO", "Shopsy"}, []string{rows[1].Source, rows[2].Source, rows[3].Source})
	assert.Equal(t, "1899.50", rows[1].Price.StringFixed(2))
	assert.Equal(t, "https://Flipkart.test/search?q=Running+Shoes", rows[1].URL)

	assert.Zero(t, exs[0].calls.Load(), "the current source is never re-fetched")
}

func TestCompareUsesCache(t *testing.T) {
	srcs, exs := fourSources()
	job := New(srcs, Options{}, testLogger())
	ctx := context.Background()

	first := job.Compare(ctx, "Running Shoes", decimal.NewFromInt(1999), "Amazon")
	second := job.Compare(ctx, "Running Shoes", decimal.NewFromInt(1999), "Amazon")

	assert.Equal(t, first, second)
	for _, ex := range exs[1:] {
		assert.Equal(t, int64(1), ex.calls.Load(), ex.source)
	}
}

func TestCompareCacheExpires(t *testing.T) {
	srcs, exs := fourSources()
	job := New(srcs, Options{CacheTTL: time.Minute}, testLogger())
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }
	ctx := context.Background()

	job.Compare(ctx, "Running Shoes", decimal.NewFromInt(1999), "Amazon")
	now = now.Add(2 * time.Minute)
	job.Compare(ctx, "Running Shoes", decimal.NewFromInt(1999), "Amazon")

	assert.Equal(t, int64(2), exs[1].calls.Load())
}

func TestCompareCacheEvictsLeastRecent(t *testing.T) {
	srcs, exs := fourSources()
	job := New(srcs, Options{CacheSize: 1}, testLogger())
	ctx := context.Background()

	job.Compare(ctx, "Shoes", decimal.NewFromInt(10), "Amazon")
	job.Compare(ctx, "Shirt", decimal.NewFromInt(10), "Amazon")
	job.Compare(ctx, "Shoes", decimal.NewFromInt(10), "Amazon")

	assert.Equal(t, int64(3), exs[1].calls.Load())
}

func TestCompareFailingSourceIsUnavailable(t *testing.T) {
	srcs, _ := fourSources()
	srcs[2] = source("AJIO", &countingExtractor{source: "AJIO", panics: true})
	srcs[3] = source("Shopsy", &countingExtractor{source: "Shopsy"})
	job := New(srcs, Options{}, testLogger())

	rows := job.Compare(context.Background(), "Running Shoes", decimal.NewFromInt(1999), "Amazon")

	require.Len(t, rows, 4)
	assert.True(t, rows[1].Available)
	assert.Equal(t, models.UnavailableRow("AJIO"), rows[2])
	assert.Equal(t, models.UnavailableRow("Shopsy"), rows[3])
}

func TestCompareUnknownCurrentSource(t *testing.T) {
	srcs, _ := fourSources()
	job := New(srcs, Options{}, testLogger())

	rows := job.Compare(context.Background(), "Lamp", decimal.NewFromInt(500), extractor.GenericSource)

	require.Len(t, rows, 5)
	assert.Equal(t, extractor.GenericSource, rows[0].Source)
}

func TestCompareCollapsesConcurrentCalls(t *testing.T) {
	srcs, exs := fourSources()
	for _, ex := range exs {
		ex.delay = 50 * time.Millisecond
	}
	job := New(srcs, Options{}, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows := job.Compare(context.Background(), "Running Shoes", decimal.NewFromInt(1999), "Amazon")
			assert.Len(t, rows, 4)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), exs[1].calls.Load())
}

func TestCompareResultsAreCopies(t *testing.T) {
	srcs, _ := fourSources()
	job := New(srcs, Options{}, testLogger())
	ctx := context.Background()

	rows := job.Compare(ctx, "Running Shoes", decimal.NewFromInt(1999), "Amazon")
	rows[1].Source = "mutated"

	again := job.Compare(ctx, "Running Shoes", decimal.NewFromInt(1999), "Amazon")
	assert.Equal(t, "Flipkart", again[1].Source)
}
