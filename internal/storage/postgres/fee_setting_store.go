package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/storage"
)

// FeeSettingStore implements storage.FeeSettingStore using PostgreSQL.
type FeeSettingStore struct {
	pool *Pool
}

// NewFeeSettingStore creates a new FeeSettingStore.
func NewFeeSettingStore(pool *Pool) *FeeSettingStore {
	return &FeeSettingStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeeSettingStore = (*FeeSettingStore)(nil)

// Put stores fs unless a newer setting exists (last writer wins on updated_at).
// The upsert returns no row when the stored setting is newer; the current row is read instead.
func (s *FeeSettingStore) Put(ctx context.Context, fs *domain.FeeSetting) (*domain.FeeSetting, error) {
	if fs == nil || fs.RecipientID == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO fee_settings (recipient_id, content_id, basis_points, fee_recipient, version, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, 1, $5, $6)
		ON CONFLICT (recipient_id, content_id) DO UPDATE
		SET basis_points = EXCLUDED.basis_points,
		    fee_recipient = EXCLUDED.fee_recipient,
		    version = fee_settings.version + 1,
		    updated_at = EXCLUDED.updated_at,
		    updated_by = EXCLUDED.updated_by
		WHERE fee_settings.updated_at <= EXCLUDED.updated_at
		RETURNING recipient_id, content_id, basis_points, fee_recipient, version, updated_at, updated_by
	`, fs.RecipientID, fs.ContentID, fs.BasisPoints, fs.FeeRecipient, fs.UpdatedAt, fs.UpdatedBy)

	stored, err := scanFeeSetting(row)
	if err == nil {
		return stored, nil
	}
	if !isNotFoundError(err) {
		return nil, fmt.Errorf("upsert fee setting: %w", err)
	}

	return s.Get(ctx, fs.RecipientID, fs.ContentID)
}

// Get retrieves a setting. Returns ErrNotFound if not exists.
func (s *FeeSettingStore) Get(ctx context.Context, recipientID, contentID string) (*domain.FeeSetting, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT recipient_id, content_id, basis_points, fee_recipient, version, updated_at, updated_by
		FROM fee_settings
		WHERE recipient_id = $1 AND content_id = $2
	`, recipientID, contentID)

	fs, err := scanFeeSetting(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get fee setting: %w", err)
	}
	return fs, nil
}

// ListByRecipient retrieves all settings of a recipient, ordered by content_id.
func (s *FeeSettingStore) ListByRecipient(ctx context.Context, recipientID string) ([]*domain.FeeSetting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT recipient_id, content_id, basis_points, fee_recipient, version, updated_at, updated_by
		FROM fee_settings
		WHERE recipient_id = $1
		ORDER BY content_id ASC
	`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list fee settings: %w", err)
	}
	defer rows.Close()

	var settings []*domain.FeeSetting
	for rows.Next() {
		fs, err := scanFeeSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fee setting row: %w", err)
		}
		settings = append(settings, fs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fee setting rows: %w", err)
	}
	return settings, nil
}

// scanFeeSetting scans a single row into a FeeSetting.
func scanFeeSetting(row pgx.Row) (*domain.FeeSetting, error) {
	var fs domain.FeeSetting
	err := row.Scan(
		&fs.RecipientID,
		&fs.ContentID,
		&fs.BasisPoints,
		&fs.FeeRecipient,
		&fs.Version,
		&fs.UpdatedAt,
		&fs.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &fs, nil
}
