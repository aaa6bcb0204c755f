package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/maltedev/price-tracker/internal/extractor"
	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/store"
)

var ErrInvalidURL = errors.New("invalid url")

// ValidationError is returned for requests that can never succeed as sent.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type Registry interface {
	Resolve(rawURL string) extractor.Extractor
	SourceFor(rawURL string) string
}

type Comparer interface {
	Compare(ctx context.Context, name string, price decimal.Decimal, currentSource string) []models.ComparisonRow
}

// Service implements the user-facing operations on tracked items.
type Service struct {
	store    store.Store
	registry Registry
	comparer Comparer
	logger   *slog.Logger
}

func NewService(s store.Store, registry Registry, comparer Comparer, logger *slog.Logger) *Service {
	return &Service{
		store:    s,
		registry: registry,
		comparer: comparer,
		logger:   logger.With("component", "tracker"),
	}
}

// IsWellFormed reports whether rawURL has both a scheme and a host.
func IsWellFormed(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// AddItem extracts the product once and starts tracking it. An item whose
// price could not be read is stored with price 0 and picked up by the
// monitor later.
func (s *Service) AddItem(ctx context.Context, rawURL, ownerID, target string) (*models.TrackedItem, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !IsWellFormed(rawURL) {
		return nil, &ValidationError{Field: "url", Reason: "must include scheme and host", Err: ErrInvalidURL}
	}

	_, err := s.store.FindItem(ctx, rawURL, ownerID)
	switch {
	case err == nil:
		return nil, &ValidationError{Field: "url", Reason: "already tracked", Err: store.ErrDuplicate}
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to check existing item: %w", err)
	}

	result := s.registry.Resolve(rawURL).Extract(ctx, rawURL)
	if !result.Success {
		s.logger.Warn("initial extraction incomplete", "url", rawURL, "name_found", result.NameFound)
	}

	item := &models.TrackedItem{
		URL:                rawURL,
		SourceID:           s.registry.SourceFor(rawURL),
		Name:               result.Name,
		CurrentPrice:       models.NormalizePrice(result.Price),
		OwnerID:            ownerID,
		NotificationTarget: target,
	}
	if item.Name == "" {
		item.Name = models.UnknownProductName
	}

	id, err := s.store.InsertItem(ctx, item)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, &ValidationError{Field: "url", Reason: "already tracked", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert item: %w", err)
	}

	created, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load item: %w", err)
	}

	s.logger.Info("item added", "id", id, "source", created.SourceID, "name", created.Name, "owner", ownerID)
	return created, nil
}

func (s *Service) ListItems(ctx context.Context, ownerID string) ([]models.TrackedItem, error) {
	items, err := s.store.ListItems(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (s *Service) GetItem(ctx context.Context, id string) (*models.TrackedItem, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// GetOwnedItem is GetItem restricted to ownerID. Items of other owners are
// reported as not found.
func (s *Service) GetOwnedItem(ctx context.Context, id, ownerID string) (*models.TrackedItem, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != ownerID {
		return nil, fmt.Errorf("failed to get item: %w", store.ErrNotFound)
	}
	return item, nil
}

func (s *Service) DeleteItem(ctx context.Context, id, ownerID string) error {
	if _, err := s.GetOwnedItem(ctx, id, ownerID); err != nil {
		return err
	}

	if err := s.store.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	s.logger.Info("item deleted", "id", id, "owner", ownerID)
	return nil
}

func (s *Service) History(ctx context.Context, id string) ([]models.PriceObservation, error) {
	obs, err := s.store.ListObservations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return obs, nil
}

func (s *Service) Compare(ctx context.Context, id, ownerID string) ([]models.ComparisonRow, error) {
	item, err := s.GetOwnedItem(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	return s.comparer.Compare(ctx, item.Name, item.CurrentPrice, item.SourceID), nil
}
