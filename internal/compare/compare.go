package compare

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/maltedev/price-tracker/internal/extractor"
	"github.com/maltedev/price-tracker/internal/models"
)

const (
	DefaultCacheSize = 10
	DefaultCacheTTL  = 10 * time.Minute
)

type SourceLister interface {
	Sources() []extractor.Source
}

type Options struct {
	CacheSize int
	CacheTTL  time.Duration
}

type cacheKey struct {
	name   string
	price  string
	source string
}

func (k cacheKey) String() string {
	return k.name + "\x00" + k.price + "\x00" + k.source
}

type cacheEntry struct {
	rows    []models.ComparisonRow
	expires time.Time
}

// Job looks an item up on every other registered source concurrently.
// Results are memoized in an LRU cache with a TTL.
type Job struct {
	sources SourceLister
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache *lru.Cache
	group singleflight.Group
}

func New(sources SourceLister, opts Options, logger *slog.Logger) *Job {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}

	return &Job{
		sources: sources,
		ttl:     opts.CacheTTL,
		logger:  logger.With("component", "compare"),
		now:     time.Now,
		cache:   lru.New(opts.CacheSize),
	}
}

// Compare returns one row per registered source. Row 0 is always the
// current source with the price already known.
func (j *Job) Compare(ctx context.Context, name string, price decimal.Decimal, currentSource string) []models.ComparisonRow {
	price = models.NormalizePrice(price)
	key := cacheKey{name: name, price: price.StringFixed(2), source: currentSource}

	if rows, ok := j.lookup(key); ok {
		j.logger.Debug("comparison cache hit", "name", name, "source", currentSource)
		return rows
	}

	v, _, _ := j.group.Do(key.String(), func() (interface{}, error) {
		if rows, ok := j.lookup(key); ok {
			return rows, nil
		}

		rows := j.run(ctx, name, price, currentSource)
		if ctx.Err() == nil {
			j.store(key, rows)
		}
		return rows, nil
	})

	return cloneRows(v.([]models.ComparisonRow))
}

func (j *Job) run(ctx context.Context, name string, price decimal.Decimal, currentSource string) []models.ComparisonRow {
	var others []extractor.Source
	for _, s := range j.sources.Sources() {
		if !strings.EqualFold(s.ID, currentSource) {
			others = append(others, s)
		}
	}

	slots := make([]models.ComparisonRow, len(others))

	var g errgroup.Group
	for i, src := range others {
		g.Go(func() error {
			slots[i] = j.lookupSource(ctx, src, name)
			return nil
		})
	}
	_ = g.Wait()

	rows := make([]models.ComparisonRow, 0, len(others)+1)
	rows = append(rows, models.ComparisonRow{
		Source:    currentSource,
		Price:     price,
		Available: true,
		URL:       models.AlreadyTrackedURL,
	})
	rows = append(rows, slots...)

	j.logger.Info("comparison completed", "name", name, "source", currentSource, "rows", len(rows))
	return rows
}

func (j *Job) lookupSource(ctx context.Context, src extractor.Source, name string) (row models.ComparisonRow) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("comparison task panicked", "source", src.ID, "panic", fmt.Sprint(r))
			row = models.UnavailableRow(src.ID)
		}
	}()

	if src.SearchURL == nil || src.Extractor == nil {
		return models.UnavailableRow(src.ID)
	}

	searchURL := src.SearchURL(name)
	result := src.Extractor.Extract(ctx, searchURL)
	if !result.Success || !result.Price.IsPositive() {
		j.logger.Debug("source has no price", "source", src.ID, "url", searchURL)
		return models.UnavailableRow(src.ID)
	}

	return models.ComparisonRow{
		Source:    src.ID,
		Price:     models.NormalizePrice(result.Price),
		Available: true,
		URL:       searchURL,
	}
}

func (j *Job) lookup(key cacheKey) ([]models.ComparisonRow, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	v, ok := j.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if j.now().After(entry.expires) {
		j.cache.Remove(key)
		return nil, false
	}
	return cloneRows(entry.rows), true
}

func (j *Job) store(key cacheKey, rows []models.ComparisonRow) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.cache.Add(key, cacheEntry{rows: cloneRows(rows), expires: j.now().Add(j.ttl)})
}

func cloneRows(rows []models.ComparisonRow) []models.ComparisonRow {
	out := make([]models.ComparisonRow, len(rows))
	copy(out, rows)
	return out
}
