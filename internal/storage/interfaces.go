package storage

import (
	"context"

	"tip-settlement/internal/domain"
)

// TipLedgerStore provides access to tip_records, postings and balances storage.
// Tip records are append-only: a tip_id is written once, as settled or rejected.
type TipLedgerStore interface {
	// Settle atomically inserts a settled record, its postings and the balance credits.
	// Returns ErrDuplicateKey if tip_id exists; nothing is written in that case.
	Settle(ctx context.Context, rec *domain.TipRecord, postings []*domain.Posting) error

	// Reject inserts a rejected record without touching balances.
	// Returns ErrDuplicateKey if tip_id exists.
	Reject(ctx context.Context, rec *domain.TipRecord) error

	// GetByID retrieves a record by tip_id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tipID string) (*domain.TipRecord, error)

	// GetPostings retrieves the postings of a tip, ordered by kind.
	GetPostings(ctx context.Context, tipID string) ([]*domain.Posting, error)

	// GetByToAddress retrieves records paid to an address, newest first, at most limit.
	GetByToAddress(ctx context.Context, network domain.Network, address string, limit int) ([]*domain.TipRecord, error)

	// GetBalance retrieves the credited balance of an address. Returns ErrNotFound if never credited.
	GetBalance(ctx context.Context, network domain.Network, address string) (*domain.Balance, error)

	// ListBalances retrieves all balances on a network, ordered by address.
	ListBalances(ctx context.Context, network domain.Network) ([]*domain.Balance, error)
}

// FeeSettingStore provides access to fee_settings storage.
// Keyed by (recipient_id, content_id); an empty content_id is the recipient-wide default.
type FeeSettingStore interface {
	// Put stores s unless a setting with a newer UpdatedAt already exists (last writer wins).
	// The store assigns Version. Returns the setting in effect after the call.
	Put(ctx context.Context, s *domain.FeeSetting) (*domain.FeeSetting, error)

	// Get retrieves a setting. Returns ErrNotFound if not exists.
	Get(ctx context.Context, recipientID, contentID string) (*domain.FeeSetting, error)

	// ListByRecipient retrieves all settings of a recipient, ordered by content_id.
	ListByRecipient(ctx context.Context, recipientID string) ([]*domain.FeeSetting, error)
}

// SettlementEventStore provides access to settlement_events analytics storage.
type SettlementEventStore interface {
	// InsertBulk appends events. Re-inserting a tip_id does not double count.
	InsertBulk(ctx context.Context, events []*domain.SettlementEvent) error

	// TotalsByAddress sums credited amounts per address on a network.
	TotalsByAddress(ctx context.Context, network domain.Network) ([]*domain.AddressTotal, error)

	// CountByNetwork returns the number of distinct settled tips on a network.
	CountByNetwork(ctx context.Context, network domain.Network) (int64, error)
}
