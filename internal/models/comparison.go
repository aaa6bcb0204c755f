package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const (
	AlreadyTrackedURL = "Already Tracked"
	UnavailableURL    = "N/A"
	unavailablePrice  = "unavailable"
)

type Direction string

const (
	DirectionIncreased Direction = "increased"
	DirectionDecreased Direction = "decreased"
	DirectionUnchanged Direction = "unchanged"
)

// ComparePrices compares both prices at two decimal places.
func ComparePrices(oldPrice, newPrice decimal.Decimal) Direction {
	switch NormalizePrice(newPrice).Cmp(NormalizePrice(oldPrice)) {
	case 1:
		return DirectionIncreased
	case -1:
		return DirectionDecreased
	default:
		return DirectionUnchanged
	}
}

// ComparisonRow is one source's answer in a price comparison.
type ComparisonRow struct {
	Source    string
	Price     decimal.Decimal
	Available bool
	URL       string
}

func UnavailableRow(source string) ComparisonRow {
	return ComparisonRow{Source: source, URL: UnavailableURL}
}

func (r ComparisonRow) MarshalJSON() ([]byte, error) {
	price := unavailablePrice
	if r.Available {
		price = r.Price.StringFixed(2)
	}
	return json.Marshal(struct {
		Source    string `json:"source"`
		Price     string `json:"price"`
		Available bool   `json:"available"`
		URL       string `json:"url"`
	}{
		Source:    r.Source,
		Price:     price,
		Available: r.Available,
		URL:       r.URL,
	})
}
