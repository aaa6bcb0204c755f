package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maltedev/price-tracker/internal/models"
)

var (
	ErrNotFound  = errors.New("item not found")
	ErrDuplicate = errors.New("item already tracked")
)

// ItemUpdate lists the fields to change; nil fields are left alone.
type ItemUpdate struct {
	Name          *string
	Price         *decimal.Decimal
	LastCheckedAt *time.Time
}

// Store persists tracked items and their price history. UpdateItem must
// apply all set fields in one atomic write.
type Store interface {
	FindItem(ctx context.Context, url, ownerID string) (*models.TrackedItem, error)
	InsertItem(ctx context.Context, item *models.TrackedItem) (string, error)
	UpdateItem(ctx context.Context, id string, update ItemUpdate) error
	ListItems(ctx context.Context, ownerID string) ([]models.TrackedItem, error)
	GetItem(ctx context.Context, id string) (*models.TrackedItem, error)
	DeleteItem(ctx context.Context, id string) error
	AppendObservation(ctx context.Context, itemID string, price decimal.Decimal, at time.Time) error
	ListObservations(ctx context.Context, itemID string) ([]models.PriceObservation, error)
}
