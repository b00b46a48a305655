package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"krx-collector/internal/domain"
	"krx-collector/internal/storage"
)

// PriceBarStore is an in-memory implementation of storage.PriceBarStore.
type PriceBarStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceBar // keyed by (code, date)
}

// NewPriceBarStore creates a new in-memory price bar store.
func NewPriceBarStore() *PriceBarStore {
	return &PriceBarStore{
		data: make(map[string]*domain.PriceBar),
	}
}

// Compile-time interface check.
var _ storage.PriceBarStore = (*PriceBarStore)(nil)

// barKey generates a unique key for a bar.
func barKey(code string, date time.Time) string {
	return fmt.Sprintf("%s|%s", code, domain.FormatCompact(date))
}

// UpsertBulk writes one batch of bars keyed by (code, date). Re-writing an
// existing key refreshes the row.
func (s *PriceBarStore) UpsertBulk(_ context.Context, bars []*domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bars {
		if b == nil || b.Code == "" {
			return storage.ErrInvalidInput
		}
		copied := *b
		copied.Date = domain.Day(b.Date)
		s.data[barKey(copied.Code, copied.Date)] = &copied
	}

	return nil
}

// LatestDate returns the most recent stored bar date for a code.
// Returns ErrNotFound when the code has no bars.
func (s *PriceBarStore) LatestDate(_ context.Context, code string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	found := false
	for _, b := range s.data {
		if b.Code == code && (!found || b.Date.After(latest)) {
			latest = b.Date
			found = true
		}
	}
	if !found {
		return time.Time{}, storage.ErrNotFound
	}
	return latest, nil
}

// GetByCode retrieves all bars for a code, ordered by date ASC.
func (s *PriceBarStore) GetByCode(_ context.Context, code string) ([]*domain.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceBar
	for _, b := range s.data {
		if b.Code == code {
			copied := *b
			result = append(result, &copied)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result, nil
}

// Count returns the total number of stored bars.
func (s *PriceBarStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

// snapshotByCode returns all bars grouped by code, each slice ordered by
// date ASC. Used by the memory feature store.
func (s *PriceBarStore) snapshotByCode() map[string][]*domain.PriceBar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grouped := make(map[string][]*domain.PriceBar)
	for _, b := range s.data {
		copied := *b
		grouped[b.Code] = append(grouped[b.Code], &copied)
	}
	for _, bars := range grouped {
		sort.Slice(bars, func(i, j int) bool {
			return bars[i].Date.Before(bars[j].Date)
		})
	}
	return grouped
}
