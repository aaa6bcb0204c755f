package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnknownProductName is reported when no name selector matched.
const UnknownProductName = "Unknown Product"

// TrackedItem is a product URL a user watches for price changes.
// CurrentPrice zero means the price is not known yet.
type TrackedItem struct {
	ID                 string          `json:"id"`
	URL                string          `json:"url"`
	SourceID           string          `json:"source"`
	Name               string          `json:"name"`
	CurrentPrice       decimal.Decimal `json:"current_price"`
	OwnerID            string          `json:"owner_id"`
	NotificationTarget string          `json:"notification_target"`
	LastCheckedAt      time.Time       `json:"last_checked_at"`
	CreatedAt          time.Time       `json:"created_at"`
}

// HasKnownPrice reports whether a non-zero price was ever recorded.
func (t *TrackedItem) HasKnownPrice() bool {
	return t.CurrentPrice.IsPositive()
}

// PriceObservation is one append-only history record.
type PriceObservation struct {
	ItemID     string          `json:"item_id"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

type ExtractionResult struct {
	Source     string          `json:"source"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Success    bool            `json:"success"`
	NameFound  bool            `json:"name_found"`
	PriceFound bool            `json:"price_found"`
}

// FailedResult is the degraded result every extractor falls back to.
func FailedResult(source string) ExtractionResult {
	return ExtractionResult{
		Source: source,
		Name:   UnknownProductName,
		Price:  decimal.Zero,
	}
}

// SetName records a located product name.
func (r *ExtractionResult) SetName(name string) {
	if name == "" {
		return
	}
	r.Name = name
	r.NameFound = true
}

// SetPrice records a located price. A non-positive price leaves the result failed.
func (r *ExtractionResult) SetPrice(price decimal.Decimal) {
	price = NormalizePrice(price)
	if !price.IsPositive() {
		return
	}
	r.Price = price
	r.PriceFound = true
	r.Success = true
}

// NormalizePrice rounds to two decimal places and clamps negatives to zero.
func NormalizePrice(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	return p.Round(2)
}
