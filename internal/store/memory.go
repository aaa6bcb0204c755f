package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maltedev/price-tracker/internal/models"
)

type snapshot struct {
	Items        []*models.TrackedItem                `json:"items"`
	Observations map[string][]models.PriceObservation `json:"observations"`
}

// MemoryStore keeps everything in memory. With a filename it writes a JSON
// snapshot after every mutation and loads it on start.
type MemoryStore struct {
	mu           sync.RWMutex
	items        map[string]*models.TrackedItem
	order        []string
	observations map[string][]models.PriceObservation
	filename     string
}

func NewMemoryStore(filename string) (*MemoryStore, error) {
	ms := &MemoryStore{
		items:        make(map[string]*models.TrackedItem),
		observations: make(map[string][]models.PriceObservation),
		filename:     filename,
	}

	if filename == "" {
		return ms, nil
	}

	if err := ms.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load store file: %w", err)
	}

	return ms, nil
}

func (ms *MemoryStore) FindItem(_ context.Context, url, ownerID string) (*models.TrackedItem, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, id := range ms.order {
		item := ms.items[id]
		if item.URL == url && item.OwnerID == ownerID {
			cp := *item
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (ms *MemoryStore) InsertItem(_ context.Context, item *models.TrackedItem) (string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, existing := range ms.items {
		if existing.URL == item.URL && existing.OwnerID == item.OwnerID {
			return "", ErrDuplicate
		}
	}

	cp := *item
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.CurrentPrice = models.NormalizePrice(cp.CurrentPrice)

	ms.items[cp.ID] = &cp
	ms.order = append(ms.order, cp.ID)

	if err := ms.save(); err != nil {
		delete(ms.items, cp.ID)
		ms.order = ms.order[:len(ms.order)-1]
		return "", err
	}
	return cp.ID, nil
}

func (ms *MemoryStore) UpdateItem(_ context.Context, id string, update ItemUpdate) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	item, ok := ms.items[id]
	if !ok {
		return ErrNotFound
	}
	prev := *item

	if update.Name != nil {
		item.Name = *update.Name
	}
	if update.Price != nil {
		item.CurrentPrice = models.NormalizePrice(*update.Price)
	}
	if update.LastCheckedAt != nil {
		item.LastCheckedAt = *update.LastCheckedAt
	}

	if err := ms.save(); err != nil {
		*item = prev
		return err
	}
	return nil
}

func (ms *MemoryStore) ListItems(_ context.Context, ownerID string) ([]models.TrackedItem, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	items := make([]models.TrackedItem, 0, len(ms.order))
	for _, id := range ms.order {
		item := ms.items[id]
		if ownerID == "" || item.OwnerID == ownerID {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (ms *MemoryStore) GetItem(_ context.Context, id string) (*models.TrackedItem, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	item, ok := ms.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (ms *MemoryStore) DeleteItem(_ context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	item, ok := ms.items[id]
	if !ok {
		return ErrNotFound
	}
	obs, hadObs := ms.observations[id]
	order := ms.order

	delete(ms.items, id)
	delete(ms.observations, id)
	kept := make([]string, 0, len(order))
	for _, existing := range order {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	ms.order = kept

	if err := ms.save(); err != nil {
		ms.items[id] = item
		if hadObs {
			ms.observations[id] = obs
		}
		ms.order = order
		return err
	}
	return nil
}

func (ms *MemoryStore) AppendObservation(_ context.Context, itemID string, price decimal.Decimal, at time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.items[itemID]; !ok {
		return ErrNotFound
	}

	prev, had := ms.observations[itemID]
	ms.observations[itemID] = append(prev[:len(prev):len(prev)], models.PriceObservation{
		ItemID:     itemID,
		Price:      models.NormalizePrice(price),
		ObservedAt: at,
	})

	if err := ms.save(); err != nil {
		if had {
			ms.observations[itemID] = prev
		} else {
			delete(ms.observations, itemID)
		}
		return err
	}
	return nil
}

func (ms *MemoryStore) ListObservations(_ context.Context, itemID string) ([]models.PriceObservation, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if _, ok := ms.items[itemID]; !ok {
		return nil, ErrNotFound
	}

	out := make([]models.PriceObservation, len(ms.observations[itemID]))
	copy(out, ms.observations[itemID])
	return out, nil
}

func (ms *MemoryStore) save() error {
	if ms.filename == "" {
		return nil
	}

	snap := snapshot{Observations: ms.observations}
	for _, id := range ms.order {
		snap.Items = append(snap.Items, ms.items[id])
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	tmpFile := ms.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}

	if err := os.Rename(tmpFile, ms.filename); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

func (ms *MemoryStore) load() error {
	data, err := os.ReadFile(ms.filename)
	if err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode store file: %w", err)
	}

	for _, item := range snap.Items {
		ms.items[item.ID] = item
		ms.order = append(ms.order, item.ID)
	}
	if snap.Observations != nil {
		ms.observations = snap.Observations
	}

	return nil
}
