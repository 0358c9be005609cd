package postgres

import (
	"context"
	"fmt"

	"tip-settlement/internal/storage"
)

// IngestionCursorStore is a PostgreSQL implementation of storage.IngestionCursorStore.
// One row per source in ingestion_cursors.
type IngestionCursorStore struct {
	pool *Pool
}

// NewIngestionCursorStore creates a new PostgreSQL ingestion cursor store.
func NewIngestionCursorStore(pool *Pool) *IngestionCursorStore {
	return &IngestionCursorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.IngestionCursorStore = (*IngestionCursorStore)(nil)

// Get returns the cursor of a source.
func (s *IngestionCursorStore) Get(ctx context.Context, sourceID string) (*storage.IngestionCursor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT source_id, slot, signature
		FROM ingestion_cursors
		WHERE source_id = $1
	`, sourceID)

	var c storage.IngestionCursor
	if err := row.Scan(&c.SourceID, &c.Slot, &c.Signature); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get ingestion cursor: %w", err)
	}
	return &c, nil
}

// Set saves the cursor of a source.
// Uses upsert to handle initial insert and subsequent updates.
func (s *IngestionCursorStore) Set(ctx context.Context, cursor *storage.IngestionCursor) error {
	if cursor == nil || cursor.SourceID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingestion_cursors (source_id, slot, signature, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (source_id) DO UPDATE
		SET slot = EXCLUDED.slot,
		    signature = EXCLUDED.signature,
		    updated_at = NOW()
	`, cursor.SourceID, cursor.Slot, cursor.Signature)
	if err != nil {
		return fmt.Errorf("set ingestion cursor: %w", err)
	}
	return nil
}
