package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"krx-collector/internal/domain"
	"krx-collector/internal/storage"
)

// InstrumentStore is an in-memory implementation of storage.InstrumentStore.
type InstrumentStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Instrument // keyed by code
}

// NewInstrumentStore creates a new in-memory instrument store.
func NewInstrumentStore() *InstrumentStore {
	return &InstrumentStore{
		data: make(map[string]*domain.Instrument),
	}
}

// Compile-time interface check.
var _ storage.InstrumentStore = (*InstrumentStore)(nil)

// UpsertBulk writes one batch of instruments keyed by code.
func (s *InstrumentStore) UpsertBulk(_ context.Context, instruments []*domain.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, in := range instruments {
		if in == nil || in.Code == "" {
			return storage.ErrInvalidInput
		}
		copied := *in
		if existing, ok := s.data[in.Code]; ok {
			copied.CreatedAt = existing.CreatedAt
		} else {
			copied.CreatedAt = now
		}
		copied.UpdatedAt = now
		s.data[in.Code] = &copied
	}

	return nil
}

// GetAll retrieves every instrument, ordered by code ASC.
func (s *InstrumentStore) GetAll(_ context.Context) ([]*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Instrument, 0, len(s.data))
	for _, in := range s.data {
		copied := *in
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Code < result[j].Code
	})

	return result, nil
}

// GetByName retrieves an instrument by exact name. Returns ErrNotFound if not exists.
func (s *InstrumentStore) GetByName(_ context.Context, name string) (*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, in := range s.data {
		if in.Name == name {
			copied := *in
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

// CountByMarket returns per-market instrument counts.
func (s *InstrumentStore) CountByMarket(_ context.Context) (map[domain.MarketType]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.MarketType]int64)
	for _, in := range s.data {
		counts[in.MarketType]++
	}
	return counts, nil
}
