package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"krx-collector/internal/domain"
	"krx-collector/internal/storage"
)

// FeatureStore is an in-memory implementation of storage.FeatureStore.
// It recomputes change rates in Go over the bars held by a memory
// PriceBarStore, mirroring what the Postgres implementation does in SQL.
type FeatureStore struct {
	bars *PriceBarStore

	mu   sync.RWMutex
	data map[string]*domain.FeatureRow // keyed by (code, date)
}

// NewFeatureStore creates a new in-memory feature store reading bars from
// the given store.
func NewFeatureStore(bars *PriceBarStore) *FeatureStore {
	return &FeatureStore{
		bars: bars,
		data: make(map[string]*domain.FeatureRow),
	}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

// changeRate returns (cur-prev)/prev*100, or nil when prev is zero.
func changeRate(cur, prev float64) *float64 {
	if prev == 0 {
		return nil
	}
	r := (cur - prev) / prev * 100
	return &r
}

// deriveRow builds the feature row for cur versus its predecessor.
func deriveRow(cur, prev *domain.PriceBar) *domain.FeatureRow {
	return &domain.FeatureRow{
		Code:             cur.Code,
		Date:             cur.Date,
		OpenChangeRate:   changeRate(cur.Open, prev.Open),
		CloseChangeRate:  changeRate(cur.Close, prev.Close),
		HighChangeRate:   changeRate(cur.High, prev.High),
		LowChangeRate:    changeRate(cur.Low, prev.Low),
		VolumeChangeRate: changeRate(float64(cur.Volume), float64(prev.Volume)),
	}
}

// RecomputeAllHistory rebuilds feature rows for the whole price history.
func (s *FeatureStore) RecomputeAllHistory(_ context.Context) (int64, error) {
	grouped := s.bars.snapshotByCode()

	s.mu.Lock()
	defer s.mu.Unlock()

	var written int64
	for _, bars := range grouped {
		for i := 1; i < len(bars); i++ {
			row := deriveRow(bars[i], bars[i-1])
			s.data[barKey(row.Code, row.Date)] = row
			written++
		}
	}
	return written, nil
}

// RecomputeToday derives feature rows only for bars dated today.
func (s *FeatureStore) RecomputeToday(_ context.Context, today time.Time) (int64, error) {
	day := domain.Day(today)
	grouped := s.bars.snapshotByCode()

	s.mu.Lock()
	defer s.mu.Unlock()

	var written int64
	for _, bars := range grouped {
		for i, b := range bars {
			if !b.Date.Equal(day) {
				continue
			}
			if i == 0 {
				break // no strictly earlier bar, no row
			}
			row := deriveRow(b, bars[i-1])
			s.data[barKey(row.Code, row.Date)] = row
			written++
			break
		}
	}
	return written, nil
}

// GetByCode retrieves all feature rows for a code, ordered by date ASC.
func (s *FeatureStore) GetByCode(_ context.Context, code string) ([]*domain.FeatureRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FeatureRow
	for _, f := range s.data {
		if f.Code == code {
			copied := *f
			result = append(result, &copied)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result, nil
}
