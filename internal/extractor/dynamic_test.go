package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maltedev/price-tracker/internal/models"
)

func TestDynamicExtractorAJIO(t *testing.T) {
	page := newFakePage("AJIO", map[string]fakeElement{
		".prod-name": {text: "Slim Fit Shirt"},
		".prod-sp":   {text: "₹1,199", appearsAt: 3},
	})
	renderer := &fakeRenderer{page: page}

	got := NewDynamicExtractor(ajioSpec, renderer, fastWait, testLogger()).Extract(context.Background(), "https://www.ajio.com/p/1")

	assert.True(t, got.Success)
	assert.Equal(t, "Slim Fit Shirt", got.Name)
	assert.Equal(t, "1199.00", got.Price.StringFixed(2))
	assert.Equal(t, 1, renderer.renders)
}

func TestDynamicExtractorShopsyFallbackChain(t *testing.T) {
	tests := []struct {
		name      string
		elements  map[string]fakeElement
		wantPrice string
		success   bool
	}{
		{
			name: "placeholder skipped for compound selector",
			elements: map[string]fakeElement{
				".css-146c3p1": {text: "Add to cart"},
				".css-146c3p1.r-cqee49.r-1vgyyaa.r-1rsjblm.r-13hce6t": {text: "₹349"},
			},
			wantPrice: "349.00",
			success:   true,
		},
		{
			name: "xpath candidate after timeouts",
			elements: map[string]fakeElement{
				"xpath=//div[contains(@class, 'css-146c3p1')]": {text: "₹ 212"},
			},
			wantPrice: "212.00",
			success:   true,
		},
		{
			name: "meta fallback",
			elements: map[string]fakeElement{
				".css-146c3p1": {text: "Add to cart"},
				metaPriceSelector: {attributes: map[string]string{"content": "499.5"}},
			},
			wantPrice: "499.50",
			success:   true,
		},
		{
			name:      "nothing usable",
			elements:  map[string]fakeElement{},
			wantPrice: "0.00",
			success:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFakePage("Cotton Kurta Price in India - Buy Online", tt.elements)
			got := NewDynamicExtractor(shopsySpec, &fakeRenderer{page: page}, fastWait, testLogger()).
				Extract(context.Background(), "https://www.shopsy.in/p/1")

			assert.Equal(t, tt.success, got.Success)
			assert.Equal(t, tt.wantPrice, got.Price.StringFixed(2))
			assert.Equal(t, "Cotton Kurta", got.Name)
			assert.Zero(t, page.attrMisses, "attributes of absent elements are never read")
		})
	}
}

func TestDynamicExtractorRenderFailure(t *testing.T) {
	renderer := &fakeRenderer{err: errors.New("browser crashed")}
	got := NewDynamicExtractor(ajioSpec, renderer, fastWait, testLogger()).Extract(context.Background(), "https://www.ajio.com/p/1")

	assert.Equal(t, models.FailedResult(SourceAJIO), got)
}

func TestDynamicExtractorRecoversFromPanics(t *testing.T) {
	renderer := &fakeRenderer{panics: true}
	got := NewDynamicExtractor(shopsySpec, renderer, fastWait, testLogger()).Extract(context.Background(), "https://www.shopsy.in/p/1")

	assert.False(t, got.Success)
	assert.Equal(t, models.UnknownProductName, got.Name)
}

func TestWaitForTimesOut(t *testing.T) {
	e := NewDynamicExtractor(ajioSpec, nil, fastWait, testLogger())
	err := e.waitFor(context.Background(), newFakePage("", nil), ".prod-sp")

	assert.ErrorIs(t, err, ErrRenderTimeout)
}

func TestWaitForHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewDynamicExtractor(ajioSpec, nil, fastWait, testLogger())
	err := e.waitFor(ctx, newFakePage("", nil), ".prod-sp")

	assert.ErrorIs(t, err, context.Canceled)
}
