package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/store"
)

const uniqueViolation = "23505"

const itemColumns = `id::text, url, source_id, name, current_price::text, owner_id,
	notification_target, last_checked_at, created_at`

// ItemRepository is the PostgreSQL implementation of store.Store.
type ItemRepository struct {
	db     *DB
	outbox *OutboxRepository
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// WithOutbox returns a repository whose UpdateWithEvent queues events in outbox.
func (r *ItemRepository) WithOutbox(outbox *OutboxRepository) *ItemRepository {
	return &ItemRepository{db: r.db, outbox: outbox}
}

var _ store.Store = (*ItemRepository)(nil)

func (r *ItemRepository) FindItem(ctx context.Context, url, ownerID string) (*models.TrackedItem, error) {
	query := `SELECT ` + itemColumns + ` FROM tracked_items WHERE url = $1 AND owner_id = $2`
	return scanItem(r.db.QueryRow(ctx, query, url, ownerID))
}

func (r *ItemRepository) InsertItem(ctx context.Context, item *models.TrackedItem) (string, error) {
	id := item.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tracked_items (
			id, url, source_id, name, current_price, owner_id,
			notification_target, last_checked_at, created_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		id, item.URL, item.SourceID, item.Name,
		models.NormalizePrice(item.CurrentPrice).StringFixed(2),
		item.OwnerID, item.NotificationTarget, nullTime(item.LastCheckedAt), createdAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", store.ErrDuplicate
		}
		return "", fmt.Errorf("failed to insert item: %w", err)
	}

	return id, nil
}

// UpdateItem writes all set fields in a single UPDATE statement.
func (r *ItemRepository) UpdateItem(ctx context.Context, id string, update store.ItemUpdate) error {
	return r.updateItem(ctx, r.db, id, update)
}

// UpdateWithEvent applies update and inserts event into the outbox in one
// transaction. Neither is visible unless both succeed.
func (r *ItemRepository) UpdateWithEvent(ctx context.Context, id string, update store.ItemUpdate, event *OutboxEvent) error {
	if r.outbox == nil {
		return errors.New("item repository has no outbox")
	}

	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := r.updateItem(ctx, tx, id, update); err != nil {
			return err
		}
		return r.outbox.InsertWithTx(ctx, tx, event)
	})
}

func (r *ItemRepository) updateItem(ctx context.Context, q execer, id string, update store.ItemUpdate) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}

	var price *string
	if update.Price != nil {
		p := models.NormalizePrice(*update.Price).StringFixed(2)
		price = &p
	}

	query := `
		UPDATE tracked_items SET
			name = COALESCE($2, name),
			current_price = COALESCE($3::numeric, current_price),
			last_checked_at = COALESCE($4, last_checked_at)
		WHERE id = $1`

	tag, err := q.Exec(ctx, query, id, update.Name, price, update.LastCheckedAt)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ItemRepository) ListItems(ctx context.Context, ownerID string) ([]models.TrackedItem, error) {
	query := `SELECT ` + itemColumns + ` FROM tracked_items
		WHERE ($1::text = '' OR owner_id = $1)
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []models.TrackedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return items, nil
}

func (r *ItemRepository) GetItem(ctx context.Context, id string) (*models.TrackedItem, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	query := `SELECT ` + itemColumns + ` FROM tracked_items WHERE id = $1`
	return scanItem(r.db.QueryRow(ctx, query, id))
}

func (r *ItemRepository) DeleteItem(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM tracked_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ItemRepository) AppendObservation(ctx context.Context, itemID string, price decimal.Decimal, at time.Time) error {
	if _, err := uuid.Parse(itemID); err != nil {
		return store.ErrNotFound
	}

	query := `
		INSERT INTO price_observations (item_id, price, observed_at)
		VALUES ($1, $2::numeric, $3)`

	_, err := r.db.Exec(ctx, query, itemID, models.NormalizePrice(price).StringFixed(2), at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to append observation: %w", err)
	}
	return nil
}

func (r *ItemRepository) ListObservations(ctx context.Context, itemID string) ([]models.PriceObservation, error) {
	if _, err := r.GetItem(ctx, itemID); err != nil {
		return nil, err
	}

	query := `
		SELECT item_id::text, price::text, observed_at
		FROM price_observations
		WHERE item_id = $1
		ORDER BY observed_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	defer rows.Close()

	var out []models.PriceObservation
	for rows.Next() {
		var (
			obs   models.PriceObservation
			price string
		)
		if err := rows.Scan(&obs.ItemID, &price, &obs.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		if obs.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("failed to parse price: %w", err)
		}
		out = append(out, obs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}

func scanItem(row pgx.Row) (*models.TrackedItem, error) {
	var (
		item        models.TrackedItem
		price       string
		lastChecked *time.Time
	)

	err := row.Scan(
		&item.ID, &item.URL, &item.SourceID, &item.Name, &price, &item.OwnerID,
		&item.NotificationTarget, &lastChecked, &item.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	if item.CurrentPrice, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("failed to parse price: %w", err)
	}
	if lastChecked != nil {
		item.LastCheckedAt = *lastChecked
	}

	return &item, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
