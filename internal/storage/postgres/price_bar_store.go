package postgres

import (
	"context"
	"fmt"
	"time"

	"krx-collector/internal/domain"
	"krx-collector/internal/storage"
)

// PriceBarStore implements storage.PriceBarStore using PostgreSQL.
type PriceBarStore struct {
	pool *Pool
}

// NewPriceBarStore creates a new PriceBarStore.
func NewPriceBarStore(pool *Pool) *PriceBarStore {
	return &PriceBarStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceBarStore = (*PriceBarStore)(nil)

// UpsertBulk writes one batch of bars keyed by (code, date) in a single
// transaction. Re-writing an existing (code, date) refreshes the row.
func (s *PriceBarStore) UpsertBulk(ctx context.Context, bars []*domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO price_bars (code, date, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`

	for _, b := range bars {
		if b == nil || b.Code == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			b.Code, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume,
		)
		if err != nil {
			return fmt.Errorf("upsert price bar %s/%s: %w", b.Code, domain.FormatCompact(b.Date), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// LatestDate returns the most recent stored bar date for a code.
// Returns ErrNotFound when the code has no bars.
func (s *PriceBarStore) LatestDate(ctx context.Context, code string) (time.Time, error) {
	query := `
		SELECT date
		FROM price_bars
		WHERE code = $1
		ORDER BY date DESC
		LIMIT 1
	`

	var date time.Time
	if err := s.pool.QueryRow(ctx, query, code).Scan(&date); err != nil {
		if isNotFoundError(err) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("get latest bar date: %w", err)
	}
	return domain.Day(date), nil
}

// GetByCode retrieves all bars for a code, ordered by date ASC.
func (s *PriceBarStore) GetByCode(ctx context.Context, code string) ([]*domain.PriceBar, error) {
	query := `
		SELECT code, date, open, high, low, close, volume
		FROM price_bars
		WHERE code = $1
		ORDER BY date ASC
	`

	rows, err := s.pool.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("get price bars by code: %w", err)
	}
	defer rows.Close()

	var bars []*domain.PriceBar
	for rows.Next() {
		var b domain.PriceBar
		if err := rows.Scan(&b.Code, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan price bar row: %w", err)
		}
		b.Date = domain.Day(b.Date)
		bars = append(bars, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price bar rows: %w", err)
	}

	return bars, nil
}

// Count returns the total number of stored bars.
func (s *PriceBarStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM price_bars`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count price bars: %w", err)
	}
	return count, nil
}
