package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/storage"
)

// TipLedgerStore implements storage.TipLedgerStore using PostgreSQL.
// Settle runs in one transaction; concurrent credits to the same address
// serialize on the balances row lock taken by the upsert.
type TipLedgerStore struct {
	pool *Pool
}

// NewTipLedgerStore creates a new TipLedgerStore.
func NewTipLedgerStore(pool *Pool) *TipLedgerStore {
	return &TipLedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TipLedgerStore = (*TipLedgerStore)(nil)

const insertTipRecordQuery = `
	INSERT INTO tip_records (
		tip_id, network, tx_id, event_index, from_address, to_address,
		amount, platform_amount, custom_fee_amount, creator_amount,
		platform_fee_bps, custom_fee_bps, recipient_id, content_id, custom_fee_recipient, fee_version,
		memo, status, reason, created_at, settled_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
`

const selectTipRecordColumns = `
	tip_id, network, tx_id, event_index, from_address, to_address,
	amount, platform_amount, custom_fee_amount, creator_amount,
	platform_fee_bps, custom_fee_bps, recipient_id, content_id, custom_fee_recipient, fee_version,
	memo, status, reason, created_at, settled_at
`

func tipRecordArgs(rec *domain.TipRecord) []any {
	return []any{
		rec.TipID,
		string(rec.Network),
		rec.TxID,
		rec.EventIndex,
		rec.From,
		rec.To,
		toNumeric(&rec.Amount),
		toNumeric(&rec.Split.Platform),
		toNumeric(&rec.Split.CustomFee),
		toNumeric(&rec.Split.Creator),
		rec.Fees.PlatformFeeBps,
		rec.Fees.CustomFeeBps,
		rec.Fees.RecipientID,
		rec.Fees.ContentID,
		rec.Fees.CustomFeeRecipient,
		rec.Fees.Version,
		rec.Memo,
		string(rec.Status),
		rec.Reason,
		rec.CreatedAt,
		rec.SettledAt,
	}
}

// Settle atomically inserts a settled record, its postings and the balance credits.
// Returns ErrDuplicateKey if tip_id exists.
func (s *TipLedgerStore) Settle(ctx context.Context, rec *domain.TipRecord, postings []*domain.Posting) error {
	if rec == nil || rec.TipID == "" || rec.Status != domain.TipStatusSettled {
		return storage.ErrInvalidInput
	}
	for _, p := range postings {
		if p == nil || p.TipID != rec.TipID {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertTipRecordQuery, tipRecordArgs(rec)...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert tip record: %w", err)
	}

	for _, p := range postings {
		_, err := tx.Exec(ctx, `
			INSERT INTO tip_postings (posting_id, tip_id, network, address, kind, amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, p.PostingID, p.TipID, string(p.Network), p.Address, string(p.Kind), toNumeric(&p.Amount), p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert posting %s: %w", p.Kind, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO balances (network, address, credited, posting_count, updated_at)
			VALUES ($1, $2, $3, 1, $4)
			ON CONFLICT (network, address) DO UPDATE
			SET credited = balances.credited + EXCLUDED.credited,
			    posting_count = balances.posting_count + 1,
			    updated_at = GREATEST(balances.updated_at, EXCLUDED.updated_at)
		`, string(p.Network), p.Address, toNumeric(&p.Amount), p.CreatedAt)
		if err != nil {
			if isBalanceOverflowError(err) {
				return fmt.Errorf("credit %s: %w", p.Address, domain.ErrAmountOverflow)
			}
			return fmt.Errorf("credit balance %s: %w", p.Address, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Reject inserts a rejected record without touching balances.
// Returns ErrDuplicateKey if tip_id exists.
func (s *TipLedgerStore) Reject(ctx context.Context, rec *domain.TipRecord) error {
	if rec == nil || rec.TipID == "" || rec.Status != domain.TipStatusRejected {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertTipRecordQuery, tipRecordArgs(rec)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert rejected tip record: %w", err)
	}
	return nil
}

// GetByID retrieves a record by tip_id. Returns ErrNotFound if not exists.
func (s *TipLedgerStore) GetByID(ctx context.Context, tipID string) (*domain.TipRecord, error) {
	query := `SELECT ` + selectTipRecordColumns + ` FROM tip_records WHERE tip_id = $1`

	rec, err := scanTipRecord(s.pool.QueryRow(ctx, query, tipID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get tip record: %w", err)
	}
	return rec, nil
}

// GetPostings retrieves the postings of a tip, ordered by kind.
func (s *TipLedgerStore) GetPostings(ctx context.Context, tipID string) ([]*domain.Posting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT posting_id::text, tip_id, network, address, kind, amount, created_at
		FROM tip_postings
		WHERE tip_id = $1
		ORDER BY kind ASC
	`, tipID)
	if err != nil {
		return nil, fmt.Errorf("get postings: %w", err)
	}
	defer rows.Close()

	var postings []*domain.Posting
	for rows.Next() {
		var (
			p       domain.Posting
			network string
			kind    string
			amount  pgtype.Numeric
		)
		if err := rows.Scan(&p.PostingID, &p.TipID, &network, &p.Address, &kind, &amount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan posting row: %w", err)
		}
		p.Network = domain.Network(network)
		p.Kind = domain.PostingKind(kind)
		if p.Amount, err = fromNumeric(amount); err != nil {
			return nil, fmt.Errorf("decode posting amount: %w", err)
		}
		postings = append(postings, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posting rows: %w", err)
	}
	return postings, nil
}

// GetByToAddress retrieves records paid to an address, newest first.
func (s *TipLedgerStore) GetByToAddress(ctx context.Context, network domain.Network, address string, limit int) ([]*domain.TipRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + selectTipRecordColumns + `
		FROM tip_records
		WHERE network = $1 AND to_address = $2
		ORDER BY created_at DESC, tip_id DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, string(network), address, limit)
	if err != nil {
		return nil, fmt.Errorf("get tip records by to address: %w", err)
	}
	defer rows.Close()

	var recs []*domain.TipRecord
	for rows.Next() {
		rec, err := scanTipRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tip record row: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tip record rows: %w", err)
	}
	return recs, nil
}

// GetBalance retrieves the credited balance of an address. Returns ErrNotFound if never credited.
func (s *TipLedgerStore) GetBalance(ctx context.Context, network domain.Network, address string) (*domain.Balance, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT network, address, credited, posting_count, updated_at
		FROM balances
		WHERE network = $1 AND address = $2
	`, string(network), address)

	b, err := scanBalance(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// ListBalances retrieves all balances on a network, ordered by address.
func (s *TipLedgerStore) ListBalances(ctx context.Context, network domain.Network) ([]*domain.Balance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT network, address, credited, posting_count, updated_at
		FROM balances
		WHERE network = $1
		ORDER BY address ASC
	`, string(network))
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var balances []*domain.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan balance row: %w", err)
		}
		balances = append(balances, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance rows: %w", err)
	}
	return balances, nil
}

// scanTipRecord scans a single row into a TipRecord.
func scanTipRecord(row pgx.Row) (*domain.TipRecord, error) {
	var (
		rec                                  domain.TipRecord
		network, status                      string
		amount, platform, customFee, creator pgtype.Numeric
	)

	err := row.Scan(
		&rec.TipID,
		&network,
		&rec.TxID,
		&rec.EventIndex,
		&rec.From,
		&rec.To,
		&amount,
		&platform,
		&customFee,
		&creator,
		&rec.Fees.PlatformFeeBps,
		&rec.Fees.CustomFeeBps,
		&rec.Fees.RecipientID,
		&rec.Fees.ContentID,
		&rec.Fees.CustomFeeRecipient,
		&rec.Fees.Version,
		&rec.Memo,
		&status,
		&rec.Reason,
		&rec.CreatedAt,
		&rec.SettledAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Network = domain.Network(network)
	rec.Status = domain.TipStatus(status)

	if rec.Amount, err = fromNumeric(amount); err != nil {
		return nil, fmt.Errorf("decode amount: %w", err)
	}
	if rec.Split.Platform, err = fromNumeric(platform); err != nil {
		return nil, fmt.Errorf("decode platform amount: %w", err)
	}
	if rec.Split.CustomFee, err = fromNumeric(customFee); err != nil {
		return nil, fmt.Errorf("decode custom fee amount: %w", err)
	}
	if rec.Split.Creator, err = fromNumeric(creator); err != nil {
		return nil, fmt.Errorf("decode creator amount: %w", err)
	}

	return &rec, nil
}

// scanBalance scans a single row into a Balance.
func scanBalance(row pgx.Row) (*domain.Balance, error) {
	var (
		b        domain.Balance
		network  string
		credited pgtype.Numeric
	)

	if err := row.Scan(&network, &b.Address, &credited, &b.PostingCount, &b.UpdatedAt); err != nil {
		return nil, err
	}

	b.Network = domain.Network(network)
	amount, err := fromNumeric(credited)
	if err != nil {
		return nil, fmt.Errorf("decode credited: %w", err)
	}
	b.Credited = amount
	return &b, nil
}
