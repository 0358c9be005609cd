package storage

import "context"

// IngestionCursor represents the last processed position of one chain source.
type IngestionCursor struct {
	SourceID  string // e.g. "solana:<program id>"
	Slot      uint64 // last processed slot
	Signature string // last processed transaction signature
}

// IngestionCursorStore provides persistence for ingestion state.
// This enables resumption after restarts without reprocessing the whole history.
type IngestionCursorStore interface {
	// Get returns the cursor of a source.
	// Returns ErrNotFound if no progress has been saved yet.
	Get(ctx context.Context, sourceID string) (*IngestionCursor, error)

	// Set saves the cursor of a source.
	Set(ctx context.Context, cursor *IngestionCursor) error
}
