package postgres

import (
	"context"
	"fmt"

	"krx-collector/internal/domain"
	"krx-collector/internal/storage"
)

// InstrumentStore implements storage.InstrumentStore using PostgreSQL.
type InstrumentStore struct {
	pool *Pool
}

// NewInstrumentStore creates a new InstrumentStore.
func NewInstrumentStore(pool *Pool) *InstrumentStore {
	return &InstrumentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.InstrumentStore = (*InstrumentStore)(nil)

// UpsertBulk writes one batch of instruments keyed by code in a single
// transaction. Existing codes have name and market type refreshed.
func (s *InstrumentStore) UpsertBulk(ctx context.Context, instruments []*domain.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO instruments (code, name, market_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			market_type = EXCLUDED.market_type,
			updated_at = now()
	`

	for _, in := range instruments {
		if in == nil || in.Code == "" {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, query, in.Code, in.Name, string(in.MarketType)); err != nil {
			return fmt.Errorf("upsert instrument %s: %w", in.Code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetAll retrieves every instrument, ordered by code ASC.
func (s *InstrumentStore) GetAll(ctx context.Context) ([]*domain.Instrument, error) {
	query := `
		SELECT code, name, market_type, created_at, updated_at
		FROM instruments
		ORDER BY code ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all instruments: %w", err)
	}
	defer rows.Close()

	var instruments []*domain.Instrument
	for rows.Next() {
		var in domain.Instrument
		var marketType string
		if err := rows.Scan(&in.Code, &in.Name, &marketType, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan instrument row: %w", err)
		}
		in.MarketType = domain.MarketType(marketType)
		instruments = append(instruments, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instrument rows: %w", err)
	}

	return instruments, nil
}

// GetByName retrieves an instrument by exact name. Returns ErrNotFound if not exists.
func (s *InstrumentStore) GetByName(ctx context.Context, name string) (*domain.Instrument, error) {
	query := `
		SELECT code, name, market_type, created_at, updated_at
		FROM instruments
		WHERE name = $1
		LIMIT 1
	`

	var in domain.Instrument
	var marketType string
	err := s.pool.QueryRow(ctx, query, name).Scan(
		&in.Code, &in.Name, &marketType, &in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get instrument by name: %w", err)
	}
	in.MarketType = domain.MarketType(marketType)
	return &in, nil
}

// CountByMarket returns per-market instrument counts.
func (s *InstrumentStore) CountByMarket(ctx context.Context) (map[domain.MarketType]int64, error) {
	query := `
		SELECT market_type, COUNT(*)
		FROM instruments
		GROUP BY market_type
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count instruments by market: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.MarketType]int64)
	for rows.Next() {
		var marketType string
		var count int64
		if err := rows.Scan(&marketType, &count); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[domain.MarketType(marketType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate count rows: %w", err)
	}

	return counts, nil
}
