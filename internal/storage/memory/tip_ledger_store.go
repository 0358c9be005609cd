package memory

import (
	"context"
	"sort"
	"sync"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/storage"
)

type balanceKey struct {
	network domain.Network
	address string
}

// TipLedgerStore is an in-memory implementation of storage.TipLedgerStore.
// A single lock covers records, postings and balances so a settlement is
// never partially observable.
type TipLedgerStore struct {
	mu       sync.RWMutex
	records  map[string]*domain.TipRecord
	postings map[string][]*domain.Posting
	balances map[balanceKey]*domain.Balance
	byTo     map[balanceKey][]string // tip ids in insertion order
}

// NewTipLedgerStore creates a new in-memory tip ledger store.
func NewTipLedgerStore() *TipLedgerStore {
	return &TipLedgerStore{
		records:  make(map[string]*domain.TipRecord),
		postings: make(map[string][]*domain.Posting),
		balances: make(map[balanceKey]*domain.Balance),
		byTo:     make(map[balanceKey][]string),
	}
}

// Settle atomically inserts a settled record, its postings and the balance credits.
func (s *TipLedgerStore) Settle(_ context.Context, rec *domain.TipRecord, postings []*domain.Posting) error {
	if rec == nil || rec.TipID == "" || rec.Status != domain.TipStatusSettled {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.TipID]; exists {
		return storage.ErrDuplicateKey
	}

	// Validate every credit before mutating anything.
	credited := make(map[balanceKey]*domain.Balance)
	for _, p := range postings {
		if p == nil || p.TipID != rec.TipID {
			return storage.ErrInvalidInput
		}
		key := balanceKey{network: p.Network, address: p.Address}
		next, ok := credited[key]
		if !ok {
			next = &domain.Balance{Network: p.Network, Address: p.Address}
			if cur, exists := s.balances[key]; exists {
				*next = *cur
			}
			credited[key] = next
		}
		if _, overflow := next.Credited.AddOverflow(&next.Credited, &p.Amount); overflow {
			return domain.ErrAmountOverflow
		}
		next.PostingCount++
		next.UpdatedAt = p.CreatedAt
	}

	recCopy := *rec
	s.records[rec.TipID] = &recCopy
	s.indexTo(&recCopy)

	stored := make([]*domain.Posting, len(postings))
	for i, p := range postings {
		pCopy := *p
		stored[i] = &pCopy
	}
	s.postings[rec.TipID] = stored

	for key, b := range credited {
		s.balances[key] = b
	}
	return nil
}

// Reject inserts a rejected record without touching balances.
func (s *TipLedgerStore) Reject(_ context.Context, rec *domain.TipRecord) error {
	if rec == nil || rec.TipID == "" || rec.Status != domain.TipStatusRejected {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.TipID]; exists {
		return storage.ErrDuplicateKey
	}

	recCopy := *rec
	s.records[rec.TipID] = &recCopy
	s.indexTo(&recCopy)
	return nil
}

func (s *TipLedgerStore) indexTo(rec *domain.TipRecord) {
	key := balanceKey{network: rec.Network, address: rec.To}
	s.byTo[key] = append(s.byTo[key], rec.TipID)
}

// GetByID retrieves a record by tip_id.
func (s *TipLedgerStore) GetByID(_ context.Context, tipID string) (*domain.TipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[tipID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	recCopy := *rec
	return &recCopy, nil
}

// GetPostings retrieves the postings of a tip, ordered by kind.
func (s *TipLedgerStore) GetPostings(_ context.Context, tipID string) ([]*domain.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.postings[tipID]
	result := make([]*domain.Posting, len(stored))
	for i, p := range stored {
		pCopy := *p
		result[i] = &pCopy
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Kind < result[j].Kind
	})
	return result, nil
}

// GetByToAddress retrieves records paid to an address, newest first.
func (s *TipLedgerStore) GetByToAddress(_ context.Context, network domain.Network, address string, limit int) ([]*domain.TipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byTo[balanceKey{network: network, address: address}]
	var result []*domain.TipRecord
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		recCopy := *s.records[ids[i]]
		result = append(result, &recCopy)
	}
	return result, nil
}

// GetBalance retrieves the credited balance of an address.
func (s *TipLedgerStore) GetBalance(_ context.Context, network domain.Network, address string) (*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[balanceKey{network: network, address: address}]
	if !ok {
		return nil, storage.ErrNotFound
	}

	bCopy := *b
	return &bCopy, nil
}

// ListBalances retrieves all balances on a network, ordered by address.
func (s *TipLedgerStore) ListBalances(_ context.Context, network domain.Network) ([]*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Balance
	for key, b := range s.balances {
		if key.network != network {
			continue
		}
		bCopy := *b
		result = append(result, &bCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})
	return result, nil
}

var _ storage.TipLedgerStore = (*TipLedgerStore)(nil)
