package memory

import (
	"context"
	"sync"

	"tip-settlement/internal/storage"
)

// IngestionCursorStore is an in-memory implementation of storage.IngestionCursorStore.
type IngestionCursorStore struct {
	mu      sync.RWMutex
	cursors map[string]storage.IngestionCursor
}

// NewIngestionCursorStore creates a new in-memory ingestion cursor store.
func NewIngestionCursorStore() *IngestionCursorStore {
	return &IngestionCursorStore{
		cursors: make(map[string]storage.IngestionCursor),
	}
}

// Get returns the cursor of a source.
func (s *IngestionCursorStore) Get(_ context.Context, sourceID string) (*storage.IngestionCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cursors[sourceID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

// Set saves the cursor of a source.
func (s *IngestionCursorStore) Set(_ context.Context, cursor *storage.IngestionCursor) error {
	if cursor == nil || cursor.SourceID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[cursor.SourceID] = *cursor
	return nil
}

var _ storage.IngestionCursorStore = (*IngestionCursorStore)(nil)
