package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/storage"
)

// SettlementEventStore is an in-memory implementation of storage.SettlementEventStore.
// Re-inserted tip ids replace the earlier event, like ReplacingMergeTree after FINAL.
type SettlementEventStore struct {
	mu     sync.RWMutex
	events map[string]*domain.SettlementEvent
}

// NewSettlementEventStore creates a new in-memory settlement event store.
func NewSettlementEventStore() *SettlementEventStore {
	return &SettlementEventStore{
		events: make(map[string]*domain.SettlementEvent),
	}
}

// InsertBulk appends events.
func (s *SettlementEventStore) InsertBulk(_ context.Context, events []*domain.SettlementEvent) error {
	for _, e := range events {
		if e == nil || e.TipID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		eCopy := *e
		s.events[e.TipID] = &eCopy
	}
	return nil
}

// TotalsByAddress sums credited amounts per address on a network.
func (s *SettlementEventStore) TotalsByAddress(_ context.Context, network domain.Network) ([]*domain.AddressTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]*uint256.Int)
	add := func(addr string, amt *uint256.Int) {
		if addr == "" || amt.IsZero() {
			return
		}
		t, ok := totals[addr]
		if !ok {
			t = new(uint256.Int)
			totals[addr] = t
		}
		t.Add(t, amt)
	}

	for _, e := range s.events {
		if e.Network != network {
			continue
		}
		add(e.PlatformAddress, &e.PlatformAmount)
		add(e.CustomFeeAddress, &e.CustomFeeAmount)
		add(e.ToAddress, &e.CreatorAmount)
	}

	result := make([]*domain.AddressTotal, 0, len(totals))
	for addr, t := range totals {
		result = append(result, &domain.AddressTotal{Network: network, Address: addr, Total: *t})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})
	return result, nil
}

// CountByNetwork returns the number of distinct settled tips on a network.
func (s *SettlementEventStore) CountByNetwork(_ context.Context, network domain.Network) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.events {
		if e.Network == network {
			n++
		}
	}
	return n, nil
}

var _ storage.SettlementEventStore = (*SettlementEventStore)(nil)
