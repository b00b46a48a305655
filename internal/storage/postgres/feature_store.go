package postgres

import (
	"context"
	"fmt"
	"time"

	"krx-collector/internal/domain"
	"krx-collector/internal/storage"
)

// FeatureStore implements storage.FeatureStore using PostgreSQL.
// Both recompute paths are single INSERT ... SELECT statements so the lag
// pairing runs where the data lives instead of round-tripping bars.
type FeatureStore struct {
	pool *Pool
}

// NewFeatureStore creates a new FeatureStore.
func NewFeatureStore(pool *Pool) *FeatureStore {
	return &FeatureStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

// RecomputeAllHistory rebuilds feature rows for the whole price history.
// Each bar is paired with the previous stored bar of the same code (LAG over
// date order); bars with no predecessor produce no row. A zero previous
// value yields a NULL rate via NULLIF.
func (s *FeatureStore) RecomputeAllHistory(ctx context.Context) (int64, error) {
	query := `
		INSERT INTO feature_rows (
			code, date,
			open_change_rate, close_change_rate, high_change_rate,
			low_change_rate, volume_change_rate
		)
		SELECT
			src.code,
			src.date,
			(src.open - src.prev_open) / NULLIF(src.prev_open, 0) * 100,
			(src.close - src.prev_close) / NULLIF(src.prev_close, 0) * 100,
			(src.high - src.prev_high) / NULLIF(src.prev_high, 0) * 100,
			(src.low - src.prev_low) / NULLIF(src.prev_low, 0) * 100,
			(src.volume - src.prev_volume)::double precision / NULLIF(src.prev_volume, 0) * 100
		FROM (
			SELECT
				code, date, open, close, high, low, volume,
				LAG(open) OVER w AS prev_open,
				LAG(close) OVER w AS prev_close,
				LAG(high) OVER w AS prev_high,
				LAG(low) OVER w AS prev_low,
				LAG(volume) OVER w AS prev_volume
			FROM price_bars
			WINDOW w AS (PARTITION BY code ORDER BY date)
		) AS src
		WHERE src.prev_close IS NOT NULL
		ON CONFLICT (code, date) DO UPDATE SET
			open_change_rate = EXCLUDED.open_change_rate,
			close_change_rate = EXCLUDED.close_change_rate,
			high_change_rate = EXCLUDED.high_change_rate,
			low_change_rate = EXCLUDED.low_change_rate,
			volume_change_rate = EXCLUDED.volume_change_rate
	`

	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("recompute all feature rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecomputeToday derives feature rows only for bars dated today, joined
// against each code's latest strictly-earlier bar.
func (s *FeatureStore) RecomputeToday(ctx context.Context, today time.Time) (int64, error) {
	query := `
		INSERT INTO feature_rows (
			code, date,
			open_change_rate, close_change_rate, high_change_rate,
			low_change_rate, volume_change_rate
		)
		SELECT
			t1.code,
			t1.date,
			(t1.open - t2.open) / NULLIF(t2.open, 0) * 100,
			(t1.close - t2.close) / NULLIF(t2.close, 0) * 100,
			(t1.high - t2.high) / NULLIF(t2.high, 0) * 100,
			(t1.low - t2.low) / NULLIF(t2.low, 0) * 100,
			(t1.volume - t2.volume)::double precision / NULLIF(t2.volume, 0) * 100
		FROM price_bars t1
		JOIN price_bars t2
			ON t2.code = t1.code
			AND t2.date = (
				SELECT MAX(date)
				FROM price_bars
				WHERE code = t1.code AND date < t1.date
			)
		WHERE t1.date = $1
		ON CONFLICT (code, date) DO UPDATE SET
			open_change_rate = EXCLUDED.open_change_rate,
			close_change_rate = EXCLUDED.close_change_rate,
			high_change_rate = EXCLUDED.high_change_rate,
			low_change_rate = EXCLUDED.low_change_rate,
			volume_change_rate = EXCLUDED.volume_change_rate
	`

	tag, err := s.pool.Exec(ctx, query, domain.Day(today))
	if err != nil {
		return 0, fmt.Errorf("recompute today's feature rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByCode retrieves all feature rows for a code, ordered by date ASC.
func (s *FeatureStore) GetByCode(ctx context.Context, code string) ([]*domain.FeatureRow, error) {
	query := `
		SELECT code, date,
			open_change_rate, close_change_rate, high_change_rate,
			low_change_rate, volume_change_rate
		FROM feature_rows
		WHERE code = $1
		ORDER BY date ASC
	`

	rows, err := s.pool.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("get feature rows by code: %w", err)
	}
	defer rows.Close()

	var features []*domain.FeatureRow
	for rows.Next() {
		var f domain.FeatureRow
		err := rows.Scan(
			&f.Code, &f.Date,
			&f.OpenChangeRate, &f.CloseChangeRate, &f.HighChangeRate,
			&f.LowChangeRate, &f.VolumeChangeRate,
		)
		if err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		f.Date = domain.Day(f.Date)
		features = append(features, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", err)
	}

	return features, nil
}
