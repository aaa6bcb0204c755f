package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// AmazonPrice reads the split whole/fraction price block and falls back to
// the screen-reader price.
func AmazonPrice(doc *goquery.Document) (decimal.Decimal, error) {
	whole := strings.TrimSpace(doc.Find(".a-price-whole").First().Text())
	whole = strings.TrimRight(strings.ReplaceAll(whole, ",", ""), ".")

	if whole != "" {
		fraction := strings.TrimSpace(doc.Find(".a-price-fraction").First().Text())
		text := whole
		if fraction != "" {
			text = whole + "." + fraction
		}
		if price, err := ParsePrice(text); err == nil {
			return price, nil
		}
	}

	return FirstPrice(doc, []string{"span.a-offscreen", ".a-offscreen"})
}
