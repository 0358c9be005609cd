package memory

import (
	"context"
	"sort"
	"sync"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/storage"
)

type feeKey struct {
	recipientID string
	contentID   string
}

// FeeSettingStore is an in-memory implementation of storage.FeeSettingStore.
type FeeSettingStore struct {
	mu   sync.RWMutex
	data map[feeKey]*domain.FeeSetting
}

// NewFeeSettingStore creates a new in-memory fee setting store.
func NewFeeSettingStore() *FeeSettingStore {
	return &FeeSettingStore{
		data: make(map[feeKey]*domain.FeeSetting),
	}
}

// Put stores fs unless a newer setting exists. Returns the setting in effect.
func (s *FeeSettingStore) Put(_ context.Context, fs *domain.FeeSetting) (*domain.FeeSetting, error) {
	if fs == nil || fs.RecipientID == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := feeKey{recipientID: fs.RecipientID, contentID: fs.ContentID}
	cur, exists := s.data[key]
	if exists && cur.UpdatedAt > fs.UpdatedAt {
		curCopy := *cur
		return &curCopy, nil
	}

	next := *fs
	next.Version = 1
	if exists {
		next.Version = cur.Version + 1
	}
	s.data[key] = &next

	result := next
	return &result, nil
}

// Get retrieves a setting.
func (s *FeeSettingStore) Get(_ context.Context, recipientID, contentID string) (*domain.FeeSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fs, ok := s.data[feeKey{recipientID: recipientID, contentID: contentID}]
	if !ok {
		return nil, storage.ErrNotFound
	}

	fsCopy := *fs
	return &fsCopy, nil
}

// ListByRecipient retrieves all settings of a recipient, ordered by content_id.
func (s *FeeSettingStore) ListByRecipient(_ context.Context, recipientID string) ([]*domain.FeeSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FeeSetting
	for key, fs := range s.data {
		if key.recipientID != recipientID {
			continue
		}
		fsCopy := *fs
		result = append(result, &fsCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ContentID < result[j].ContentID
	})
	return result, nil
}

var _ storage.FeeSettingStore = (*FeeSettingStore)(nil)
