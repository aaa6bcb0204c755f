package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/maltedev/price-tracker/internal/models"
)

// ErrNoMatch is returned when no selector or pattern yields a value.
var ErrNoMatch = errors.New("no selector matched")

var (
	pricePattern  = regexp.MustCompile(`\d+(\.\d+)?`)
	currencyNoise = strings.NewReplacer("₹", "", "$", "", "€", "", "£", "", "Rs.", "", "Rs", "", ",", "", " ", "")
)

func NewDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// FirstText returns the trimmed text of the first selector whose first
// element has non-empty text.
func FirstText(doc *goquery.Document, selectors []string) (string, error) {
	for _, selector := range selectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" {
			return text, nil
		}
	}
	return "", ErrNoMatch
}

// FirstPrice walks selectors in order and returns the first price that parses.
// Elements without a numeric price are skipped.
func FirstPrice(doc *goquery.Document, selectors []string) (decimal.Decimal, error) {
	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if price, err := ParsePrice(sel.Text()); err == nil {
			return price, nil
		}
	}
	return decimal.Zero, ErrNoMatch
}

// MetaContent returns the content attribute of the first matching meta tag.
func MetaContent(doc *goquery.Document, selector string) (string, error) {
	content, ok := doc.Find(selector).First().Attr("content")
	content = strings.TrimSpace(content)
	if !ok || content == "" {
		return "", ErrNoMatch
	}
	return content, nil
}

// ParsePrice strips currency symbols and thousands separators and reads the
// first decimal number, rounded to two places.
func ParsePrice(text string) (decimal.Decimal, error) {
	cleaned := currencyNoise.Replace(strings.TrimSpace(text))
	match := pricePattern.FindString(cleaned)
	if match == "" {
		return decimal.Zero, ErrNoMatch
	}

	price, err := decimal.NewFromString(match)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse price %q: %w", match, err)
	}

	return models.NormalizePrice(price), nil
}

// TitleName cuts a page title at marker and trims the rest.
func TitleName(title, marker string) (string, error) {
	if marker != "" {
		if idx := strings.Index(title, marker); idx >= 0 {
			title = title[:idx]
		}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrNoMatch
	}
	return title, nil
}
