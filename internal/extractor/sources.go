package extractor

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/maltedev/price-tracker/internal/parser"
)

const (
	SourceAmazon   = "Amazon"
	SourceFlipkart = "Flipkart"
	SourceAJIO     = "AJIO"
	SourceShopsy   = "Shopsy"
)

var (
	amazonSpec = StaticSpec{
		Source:        SourceAmazon,
		NameSelectors: []string{"span#productTitle", "#productTitle"},
		Price:         parser.AmazonPrice,
	}

	flipkartSpec = StaticSpec{
		Source:        SourceFlipkart,
		NameSelectors: []string{"span.VU-ZEz", "h1._6EBuvT span", "h1"},
		Price:         SelectorPrice("div.Nx9bqj", "div._30jeq3._16Jk6d", "span._30jeq3"),
	}

	ajioSpec = DynamicSpec{
		Source:         SourceAJIO,
		NameSelectors:  []string{".prod-name"},
		PriceSelectors: []string{".prod-sp"},
	}

	shopsySpec = DynamicSpec{
		Source:      SourceShopsy,
		TitleMarker: "Price in India",
		PriceSelectors: []string{
			".css-146c3p1",
			".css-146c3p1.r-cqee49.r-1vgyyaa.r-1rsjblm.r-13hce6t",
			"xpath=//div[contains(@class, 'css-146c3p1')]",
		},
		Placeholders: []string{"Add to cart"},
		MetaFallback: true,
	}
)

// Deps carries what the built-in sources need.
type Deps struct {
	Fetcher  Fetcher
	Renderer Renderer
	Headers  http.Header
	Wait     WaitOptions
	Logger   *slog.Logger
}

// DefaultSources returns the built-in sources in match priority order.
func DefaultSources(d Deps) []Source {
	return []Source{
		{
			ID:        SourceAmazon,
			HostMatch: "amazon",
			Extractor: NewStaticExtractor(amazonSpec, d.Fetcher, d.Headers, d.Logger),
			SearchURL: plusSearch("https://www.amazon.in/s?k="),
		},
		{
			ID:        SourceFlipkart,
			HostMatch: "flipkart",
			Extractor: NewStaticExtractor(flipkartSpec, d.Fetcher, d.Headers, d.Logger),
			SearchURL: percentSearch("https://www.flipkart.com/search?q="),
		},
		{
			ID:        SourceAJIO,
			HostMatch: "ajio",
			Extractor: NewDynamicExtractor(ajioSpec, d.Renderer, d.Wait, d.Logger),
			SearchURL: percentSearch("https://www.ajio.com/search/?text="),
		},
		{
			ID:        SourceShopsy,
			HostMatch: "shopsy",
			Extractor: NewDynamicExtractor(shopsySpec, d.Renderer, d.Wait, d.Logger),
			SearchURL: percentSearch("https://www.shopsy.in/search?q="),
		},
	}
}

// NewDefaultRegistry returns a registry holding DefaultSources.
func NewDefaultRegistry(d Deps) *Registry {
	r := NewRegistry(d.Logger)
	for _, s := range DefaultSources(d) {
		r.Register(s)
	}
	return r
}

func plusSearch(prefix string) func(string) string {
	return func(query string) string {
		return prefix + url.QueryEscape(strings.TrimSpace(query))
	}
}

func percentSearch(prefix string) func(string) string {
	return func(query string) string {
		return prefix + strings.ReplaceAll(url.QueryEscape(strings.TrimSpace(query)), "+", "%20")
	}
}
