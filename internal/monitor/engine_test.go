package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/price-tracker/internal/extractor"
	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/notify"
	"github.com/maltedev/price-tracker/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedExtractor returns the next queued price on every call.
type scriptedExtractor struct {
	mu     sync.Mutex
	prices []string
	panics bool
}

func (s *scriptedExtractor) Source() string { return "Amazon" }

func (s *scriptedExtractor) Extract(context.Context, string) models.ExtractionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.panics {
		panic("selector blew up")
	}

	result := models.FailedResult("Amazon")
	if len(s.prices) == 0 {
		return result
	}
	price := s.prices[0]
	s.prices = s.prices[1:]

	result.SetName("Headphones")
	result.SetPrice(decimal.RequireFromString(price))
	return result
}

type staticResolver map[string]extractor.Extractor

func (r staticResolver) Resolve(rawURL string) extractor.Extractor {
	if ex, ok := r[rawURL]; ok {
		return ex
	}
	return extractor.Noop{}
}

type recordingNotifier struct {
	changes   []notify.ChangeNotice
	noChanges []string
	err       error
}

func (r *recordingNotifier) NotifyChange(_ context.Context, n notify.ChangeNotice) error {
	r.changes = append(r.changes, n)
	return r.err
}

func (r *recordingNotifier) NotifyNoChange(_ context.Context, target string) error {
	r.noChanges = append(r.noChanges, target)
	return r.err
}

func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s, err := store.NewMemoryStore("")
	require.NoError(t, err)
	return s
}

func insertItem(t *testing.T, s store.Store, url, price, target string) string {
	t.Helper()
	id, err := s.InsertItem(context.Background(), &models.TrackedItem{
		URL:                url,
		SourceID:           "Amazon",
		Name:               "Headphones",
		CurrentPrice:       decimal.RequireFromString(price),
		OwnerID:            "alice",
		NotificationTarget: target,
	})
	require.NoError(t, err)
	return id
}

func TestCheckPricesIncreaseDecreaseUnchanged(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := insertItem(t, s, "https://www.amazon.in/dp/B0", "120", "alice@example.com")

	ex := &scriptedExtractor{prices: []string{"150", "90", "90"}}
	n := &recordingNotifier{}
	e := NewEngine(s, staticResolver{"https://www.amazon.in/dp/B0": ex}, n, testLogger())

	report := e.CheckPrices(ctx)
	assert.Equal(t, 1, report.Changed)
	require.Len(t, n.changes, 1)
	assert.Equal(t, models.DirectionIncreased, n.changes[0].Direction)
	assert.Equal(t, "120.00", n.changes[0].OldPrice.StringFixed(2))
	assert.Equal(t, "150.00", n.changes[0].NewPrice.StringFixed(2))

	report = e.CheckPrices(ctx)
	assert.Equal(t, 1, report.Changed)
	require.Len(t, n.changes, 2)
	assert.Equal(t, models.DirectionDecreased, n.changes[1].Direction)
	assert.Equal(t, "150.00", n.changes[1].OldPrice.StringFixed(2))
	assert.Equal(t, "90.00", n.changes[1].NewPrice.StringFixed(2))

	before, err := s.GetItem(ctx, id)
	require.NoError(t, err)

	report = e.CheckPrices(ctx)
	assert.Equal(t, 0, report.Changed)
	assert.Len(t, n.changes, 2)

	after, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "90.00", after.CurrentPrice.StringFixed(2))
	assert.Equal(t, before.LastCheckedAt, after.LastCheckedAt)

	obs, err := s.ListObservations(ctx, id)
	require.NoError(t, err)
	assert.Len(t, obs, 3)
}

func TestCheckPricesSkipsZeroPrice(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := insertItem(t, s, "https://www.amazon.in/dp/B0", "120", "alice@example.com")

	n := &recordingNotifier{}
	e := NewEngine(s, staticResolver{"https://www.amazon.in/dp/B0": &scriptedExtractor{}}, n, testLogger())

	report := e.CheckPrices(ctx)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, n.changes)

	item, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "120.00", item.CurrentPrice.StringFixed(2))
	assert.True(t, item.LastCheckedAt.IsZero())

	obs, err := s.ListObservations(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestCheckPricesAdoptsFirstPriceSilently(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := insertItem(t, s, "https://www.amazon.in/dp/B0", "0", "alice@example.com")

	n := &recordingNotifier{}
	e := NewEngine(s, staticResolver{"https://www.amazon.in/dp/B0": &scriptedExtractor{prices: []string{"499.999"}}}, n, testLogger())
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	report := e.CheckPrices(ctx)
	assert.Equal(t, 0, report.Changed)
	assert.Empty(t, n.changes)

	item, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "500.00", item.CurrentPrice.StringFixed(2))
	assert.Equal(t, fixed, item.LastCheckedAt)
}

func TestNoChangeNoticeOncePerProcess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	insertItem(t, s, "https://a.test/1", "100", "first@example.com")
	insertItem(t, s, "https://a.test/2", "200", "last@example.com")

	resolver := staticResolver{
		"https://a.test/1": &scriptedExtractor{prices: []string{"100", "100", "100"}},
		"https://a.test/2": &scriptedExtractor{prices: []string{"200", "200", "200"}},
	}
	n := &recordingNotifier{}
	e := NewEngine(s, resolver, n, testLogger())

	report := e.CheckPrices(ctx)
	assert.True(t, report.NoChangeNoticeSent)
	assert.Equal(t, []string{"last@example.com"}, n.noChanges)
	assert.True(t, e.NoChangeNoticeSent())

	report = e.CheckPrices(ctx)
	assert.False(t, report.NoChangeNoticeSent)
	assert.Len(t, n.noChanges, 1)

	e.ResetNoChangeNotice()
	report = e.CheckPrices(ctx)
	assert.True(t, report.NoChangeNoticeSent)
	assert.Len(t, n.noChanges, 2)
}

func TestCheckPricesWithoutItemsSendsNothing(t *testing.T) {
	n := &recordingNotifier{}
	e := NewEngine(newTestStore(t), staticResolver{}, n, testLogger())

	report := e.CheckPrices(context.Background())
	assert.Equal(t, PassReport{}, report)
	assert.Empty(t, n.noChanges)
	assert.False(t, e.NoChangeNoticeSent())
}

func TestCheckPricesContinuesAfterPanic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	insertItem(t, s, "https://a.test/broken", "100", "alice@example.com")
	id := insertItem(t, s, "https://a.test/ok", "100", "alice@example.com")

	resolver := staticResolver{
		"https://a.test/broken": &scriptedExtractor{panics: true},
		"https://a.test/ok":     &scriptedExtractor{prices: []string{"80"}},
	}
	n := &recordingNotifier{err: errors.New("smtp down")}
	e := NewEngine(s, resolver, n, testLogger())

	report := e.CheckPrices(ctx)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Changed)

	item, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "80.00", item.CurrentPrice.StringFixed(2), "notifier errors must not roll back the update")
}

// flakyHistoryStore fails AppendObservation while broken is set.
type flakyHistoryStore struct {
	store.Store
	broken bool
}

func (f *flakyHistoryStore) AppendObservation(ctx context.Context, itemID string, price decimal.Decimal, at time.Time) error {
	if f.broken {
		return errors.New("disk full")
	}
	return f.Store.AppendObservation(ctx, itemID, price, at)
}

func TestNoChangeNoticeNeedsACompletedCheck(t *testing.T) {
	ctx := context.Background()
	s := &flakyHistoryStore{Store: newTestStore(t), broken: true}
	insertItem(t, s, "https://a.test/1", "100", "alice@example.com")

	n := &recordingNotifier{}
	e := NewEngine(s, staticResolver{"https://a.test/1": &scriptedExtractor{prices: []string{"100", "100"}}}, n, testLogger())

	report := e.CheckPrices(ctx)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.NoChangeNoticeSent)
	assert.Empty(t, n.noChanges)
	assert.False(t, e.NoChangeNoticeSent())

	s.broken = false
	report = e.CheckPrices(ctx)
	assert.Zero(t, report.Failed)
	assert.True(t, report.NoChangeNoticeSent)
	assert.Equal(t, []string{"alice@example.com"}, n.noChanges)
}

type recordingRecorder struct {
	notices []notify.ChangeNotice
	err     error
}

func (r *recordingRecorder) RecordPriceChange(_ context.Context, n notify.ChangeNotice) error {
	r.notices = append(r.notices, n)
	return r.err
}

func TestChangeRecorderTakesOverChangedPrices(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := insertItem(t, s, "https://a.test/1", "120", "alice@example.com")

	fixed := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	rec := &recordingRecorder{}
	n := &recordingNotifier{}
	e := NewEngine(s, staticResolver{"https://a.test/1": &scriptedExtractor{prices: []string{"150"}}}, n, testLogger()).
		WithChangeRecorder(rec)
	e.now = func() time.Time { return fixed }

	report := e.CheckPrices(ctx)
	assert.Equal(t, 1, report.Changed)
	assert.Empty(t, n.changes, "recorded changes are not notified separately")

	require.Len(t, rec.notices, 1)
	got := rec.notices[0]
	assert.Equal(t, id, got.Item.ID)
	assert.Equal(t, "120.00", got.OldPrice.StringFixed(2))
	assert.Equal(t, "150.00", got.NewPrice.StringFixed(2))
	assert.Equal(t, fixed, got.Item.LastCheckedAt)
	assert.Equal(t, models.DirectionIncreased, got.Direction)

	item, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "120.00", item.CurrentPrice.StringFixed(2), "the recorder owns the price write")
}

func TestChangeRecorderFailureCountsAsFailed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	insertItem(t, s, "https://a.test/1", "120", "alice@example.com")

	rec := &recordingRecorder{err: errors.New("tx aborted")}
	n := &recordingNotifier{}
	e := NewEngine(s, staticResolver{"https://a.test/1": &scriptedExtractor{prices: []string{"90"}}}, n, testLogger()).
		WithChangeRecorder(rec)

	report := e.CheckPrices(ctx)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Changed)
	assert.Empty(t, n.changes)
	assert.Empty(t, n.noChanges)
}
