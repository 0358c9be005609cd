package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/storage"
)

// SettlementEventStore implements storage.SettlementEventStore using ClickHouse.
// settlement_events is a ReplacingMergeTree keyed on (network, tip_id); every
// read uses FINAL so replayed events are counted once.
type SettlementEventStore struct {
	conn *Conn
}

// NewSettlementEventStore creates a new SettlementEventStore.
func NewSettlementEventStore(conn *Conn) *SettlementEventStore {
	return &SettlementEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SettlementEventStore = (*SettlementEventStore)(nil)

// InsertBulk appends events in a single batch.
func (s *SettlementEventStore) InsertBulk(ctx context.Context, events []*domain.SettlementEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.TipID == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO settlement_events (
			tip_id, network, tx_id, from_address, to_address, recipient_id, content_id,
			amount, platform_amount, custom_fee_amount, creator_amount,
			platform_address, custom_fee_address, platform_fee_bps, custom_fee_bps, settled_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.TipID, string(e.Network), e.TxID, e.FromAddress, e.ToAddress, e.RecipientID, e.ContentID,
			e.Amount.ToBig(), e.PlatformAmount.ToBig(), e.CustomFeeAmount.ToBig(), e.CreatorAmount.ToBig(),
			e.PlatformAddress, e.CustomFeeAddress, e.PlatformFeeBps, e.CustomFeeBps,
			time.UnixMilli(e.SettledAt).UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// TotalsByAddress sums credited amounts per address on a network.
// Sums are read as strings since UInt256 exceeds every native Go integer.
func (s *SettlementEventStore) TotalsByAddress(ctx context.Context, network domain.Network) ([]*domain.AddressTotal, error) {
	query := `
		SELECT address, toString(sum(amount)) AS total
		FROM (
			SELECT platform_address AS address, platform_amount AS amount
			FROM settlement_events FINAL
			WHERE network = ? AND platform_amount > 0
			UNION ALL
			SELECT custom_fee_address AS address, custom_fee_amount AS amount
			FROM settlement_events FINAL
			WHERE network = ? AND custom_fee_amount > 0
			UNION ALL
			SELECT to_address AS address, creator_amount AS amount
			FROM settlement_events FINAL
			WHERE network = ? AND creator_amount > 0
		)
		GROUP BY address
		ORDER BY address ASC
	`

	n := string(network)
	rows, err := s.conn.Query(ctx, query, n, n, n)
	if err != nil {
		return nil, fmt.Errorf("query totals by address: %w", err)
	}
	defer rows.Close()

	var totals []*domain.AddressTotal
	for rows.Next() {
		var addr, sum string
		if err := rows.Scan(&addr, &sum); err != nil {
			return nil, fmt.Errorf("scan total row: %w", err)
		}
		v, err := uint256.FromDecimal(sum)
		if err != nil {
			return nil, fmt.Errorf("decode total %q for %s: %w", sum, addr, err)
		}
		totals = append(totals, &domain.AddressTotal{Network: network, Address: addr, Total: *v})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate total rows: %w", err)
	}
	return totals, nil
}

// CountByNetwork returns the number of distinct settled tips on a network.
func (s *SettlementEventStore) CountByNetwork(ctx context.Context, network domain.Network) (int64, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `
		SELECT count() FROM settlement_events FINAL WHERE network = ?
	`, string(network))
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count settlement events: %w", err)
	}
	return int64(count), nil
}
