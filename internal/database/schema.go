package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tracked_items (
		id                  UUID PRIMARY KEY,
		url                 TEXT NOT NULL,
		source_id           TEXT NOT NULL,
		name                TEXT NOT NULL,
		current_price       NUMERIC(12, 2) NOT NULL DEFAULT 0 CHECK (current_price >= 0),
		owner_id            TEXT NOT NULL,
		notification_target TEXT NOT NULL DEFAULT '',
		last_checked_at     TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (url, owner_id)
	)`,
	`CREATE TABLE IF NOT EXISTS price_observations (
		id          BIGSERIAL PRIMARY KEY,
		item_id     UUID NOT NULL REFERENCES tracked_items(id) ON DELETE CASCADE,
		price       NUMERIC(12, 2) NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_price_observations_item ON price_observations (item_id, observed_at)`,
	`CREATE TABLE IF NOT EXISTS outbox_event (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		target_stream  TEXT NOT NULL,
		status         TEXT NOT NULL,
		retry_count    INT NOT NULL DEFAULT 0,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL,
		processed_at   TIMESTAMPTZ,
		next_retry_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_event_pending ON outbox_event (status, next_retry_at)`,
}

// EnsureSchema creates the tables this service needs if they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
