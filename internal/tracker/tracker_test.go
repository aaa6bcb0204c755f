package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/price-tracker/internal/extractor"
	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedExtractor struct {
	name  string
	price string
	calls int
}

func (f *fixedExtractor) Source() string { return "Amazon" }

func (f *fixedExtractor) Extract(context.Context, string) models.ExtractionResult {
	f.calls++
	result := models.FailedResult("Amazon")
	result.SetName(f.name)
	if f.price != "" {
		result.SetPrice(decimal.RequireFromString(f.price))
	}
	return result
}

type fakeComparer struct {
	name   string
	price  decimal.Decimal
	source string
}

func (f *fakeComparer) Compare(_ context.Context, name string, price decimal.Decimal, source string) []models.ComparisonRow {
	f.name, f.price, f.source = name, price, source
	return []models.ComparisonRow{{Source: source, Price: price, Available: true, URL: models.AlreadyTrackedURL}}
}

func newService(t *testing.T, ex extractor.Extractor) (*Service, *store.MemoryStore, *fakeComparer) {
	t.Helper()

	s, err := store.NewMemoryStore("")
	require.NoError(t, err)

	reg := extractor.NewRegistry(testLogger())
	reg.Register(extractor.Source{ID: "Amazon", HostMatch: "amazon", Extractor: ex})

	cmp := &fakeComparer{}
	return NewService(s, reg, cmp, testLogger()), s, cmp
}

func TestIsWellFormed(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.amazon.in/dp/B0", true},
		{"http://shop.example.com", true},
		{"www.amazon.in/dp/B0", false},
		{"not a url", false},
		{"", false},
		{"https://", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWellFormed(tt.url))
		})
	}
}

func TestAddItem(t *testing.T) {
	ex := &fixedExtractor{name: "Headphones", price: "1499.499"}
	svc, _, _ := newService(t, ex)

	item, err := svc.AddItem(context.Background(), "https://www.amazon.in/dp/B0", "alice", "alice@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "Amazon", item.SourceID)
	assert.Equal(t, "Headphones", item.Name)
	assert.Equal(t, "1499.50", item.CurrentPrice.StringFixed(2))
	assert.Equal(t, "alice@example.com", item.NotificationTarget)
}

func TestAddItemRejectsMalformedURL(t *testing.T) {
	ex := &fixedExtractor{name: "Headphones"}
	svc, s, _ := newService(t, ex)

	_, err := svc.AddItem(context.Background(), "amazon.in/dp/B0", "alice", "")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Zero(t, ex.calls)

	items, _ := s.ListItems(context.Background(), "")
	assert.Empty(t, items)
}

func TestAddItemRejectsDuplicateBeforeExtracting(t *testing.T) {
	ex := &fixedExtractor{name: "Headphones", price: "100"}
	svc, _, _ := newService(t, ex)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "https://www.amazon.in/dp/B0", "alice", "")
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, "https://www.amazon.in/dp/B0", "alice", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, store.ErrDuplicate)
	assert.Equal(t, 1, ex.calls)

	_, err = svc.AddItem(ctx, "https://www.amazon.in/dp/B0", "bob", "")
	assert.NoError(t, err, "another owner may track the same url")
}

func TestAddItemWithoutPrice(t *testing.T) {
	svc, _, _ := newService(t, &fixedExtractor{})

	item, err := svc.AddItem(context.Background(), "https://www.amazon.in/dp/B0", "alice", "")
	require.NoError(t, err)
	assert.Equal(t, models.UnknownProductName, item.Name)
	assert.True(t, item.CurrentPrice.IsZero())
}

func TestAddItemUnregisteredHost(t *testing.T) {
	svc, _, _ := newService(t, &fixedExtractor{})

	item, err := svc.AddItem(context.Background(), "https://shop.example.com/p/1", "alice", "")
	require.NoError(t, err)
	assert.Equal(t, extractor.GenericSource, item.SourceID)
}

func TestDeleteItemOnlyByOwner(t *testing.T) {
	svc, _, _ := newService(t, &fixedExtractor{name: "Headphones", price: "100"})
	ctx := context.Background()

	item, err := svc.AddItem(ctx, "https://www.amazon.in/dp/B0", "alice", "")
	require.NoError(t, err)

	err = svc.DeleteItem(ctx, item.ID, "mallory")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, svc.DeleteItem(ctx, item.ID, "alice"))
	_, err = svc.GetItem(ctx, item.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHistoryAndCompare(t *testing.T) {
	svc, s, cmp := newService(t, &fixedExtractor{name: "Headphones", price: "100"})
	ctx := context.Background()

	item, err := svc.AddItem(ctx, "https://www.amazon.in/dp/B0", "alice", "")
	require.NoError(t, err)

	require.NoError(t, s.AppendObservation(ctx, item.ID, decimal.NewFromInt(90), item.CreatedAt))
	obs, err := svc.History(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, obs, 1)

	rows, err := svc.Compare(ctx, item.ID, "alice")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Headphones", cmp.name)
	assert.Equal(t, "Amazon", cmp.source)
	assert.True(t, decimal.NewFromInt(100).Equal(cmp.price))

	_, err = svc.Compare(ctx, item.ID, "bob")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
