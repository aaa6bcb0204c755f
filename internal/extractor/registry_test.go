package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	return NewDefaultRegistry(Deps{
		Fetcher:  &fakeFetcher{},
		Renderer: &fakeRenderer{},
		Wait:     fastWait,
		Logger:   testLogger(),
	})
}

func TestRegistryResolve(t *testing.T) {
	r := testRegistry()

	tests := []struct {
		url    string
		source string
	}{
		{"https://www.amazon.in/dp/B0C1", SourceAmazon},
		{"https://WWW.FLIPKART.COM/item/p/itm", SourceFlipkart},
		{"https://www.ajio.com/p/123", SourceAJIO},
		{"https://www.shopsy.in/p/abc", SourceShopsy},
		{"https://www.myntra.com/p/1", GenericSource},
		{"not a url", GenericSource},
		{"", GenericSource},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			ext := r.Resolve(tt.url)
			require.NotNil(t, ext)
			assert.Equal(t, tt.source, ext.Source())
			assert.Equal(t, tt.source, r.SourceFor(tt.url))
		})
	}
}

func TestUnregisteredHostYieldsNoop(t *testing.T) {
	r := testRegistry()
	result := r.Resolve("https://shop.example.com/item/1").Extract(context.Background(), "https://shop.example.com/item/1")

	assert.False(t, result.Success)
	assert.Equal(t, GenericSource, result.Source)
	assert.True(t, result.Price.IsZero())
}

func TestRegistryOrderAndLookup(t *testing.T) {
	r := testRegistry()

	var ids []string
	for _, s := range r.Sources() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{SourceAmazon, SourceFlipkart, SourceAJIO, SourceShopsy}, ids)

	s, ok := r.Lookup("flipkart")
	require.True(t, ok)
	assert.Equal(t, SourceFlipkart, s.ID)

	_, ok = r.Lookup("myntra")
	assert.False(t, ok)
}

func TestRegisterAddsSourceAsData(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(Source{ID: "Myntra", HostMatch: "MYNTRA", Extractor: Noop{}})

	assert.Equal(t, "Myntra", r.SourceFor("https://www.myntra.com/p/1"))
}

func TestSearchURLs(t *testing.T) {
	r := testRegistry()

	want := map[string]string{
		SourceAmazon:   "https://www.amazon.in/s?k=Noise+ColorFit+Pro",
		SourceFlipkart: "https://www.flipkart.com/search?q=Noise%20ColorFit%20Pro",
		SourceAJIO:     "https://www.ajio.com/search/?text=Noise%20ColorFit%20Pro",
		SourceShopsy:   "https://www.shopsy.in/search?q=Noise%20ColorFit%20Pro",
	}

	for _, s := range r.Sources() {
		assert.Equal(t, want[s.ID], s.SearchURL("Noise ColorFit Pro"))
	}
}
