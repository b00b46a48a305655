package storage

import (
	"context"
	"time"

	"krx-collector/internal/domain"
)

// InstrumentStore provides access to the instruments reference table.
type InstrumentStore interface {
	// UpsertBulk writes one batch of instruments keyed by code. Existing
	// codes have their name and market type refreshed. The batch is applied
	// in a single transaction.
	UpsertBulk(ctx context.Context, instruments []*domain.Instrument) error

	// GetAll retrieves every instrument, ordered by code ASC.
	GetAll(ctx context.Context) ([]*domain.Instrument, error)

	// GetByName retrieves an instrument by exact name. Returns ErrNotFound
	// if not exists.
	GetByName(ctx context.Context, name string) (*domain.Instrument, error)

	// CountByMarket returns per-market instrument counts.
	CountByMarket(ctx context.Context) (map[domain.MarketType]int64, error)
}

// PriceBarStore provides access to the price_bars table.
type PriceBarStore interface {
	// UpsertBulk writes one batch of bars keyed by (code, date) in a single
	// transaction. Re-writing an existing (code, date) refreshes the row.
	UpsertBulk(ctx context.Context, bars []*domain.PriceBar) error

	// LatestDate returns the most recent stored bar date for a code.
	// Returns ErrNotFound when the code has no bars. This is the pipeline's
	// only resume point; there is no separate checkpoint.
	LatestDate(ctx context.Context, code string) (time.Time, error)

	// GetByCode retrieves all bars for a code, ordered by date ASC.
	GetByCode(ctx context.Context, code string) ([]*domain.PriceBar, error)

	// Count returns the total number of stored bars.
	Count(ctx context.Context) (int64, error)
}

// FeatureStore derives and reads day-over-day change-rate rows.
type FeatureStore interface {
	// RecomputeAllHistory rebuilds feature rows for the whole price history,
	// pairing each bar with the previous stored bar of the same code.
	// Returns the number of rows written.
	RecomputeAllHistory(ctx context.Context) (int64, error)

	// RecomputeToday derives feature rows only for bars dated today, joined
	// against each code's latest strictly-earlier bar.
	RecomputeToday(ctx context.Context, today time.Time) (int64, error)

	// GetByCode retrieves all feature rows for a code, ordered by date ASC.
	GetByCode(ctx context.Context, code string) ([]*domain.FeatureRow, error)
}

// RunLock serializes pipeline runs. Overlapping scheduled and manual runs
// would only waste provider quota, not corrupt data, but the lock keeps them
// mutually exclusive anyway.
type RunLock interface {
	// TryAcquire attempts to take the named lock without blocking.
	TryAcquire(ctx context.Context, name string) (bool, error)

	// Release releases the named lock.
	Release(ctx context.Context, name string) error
}
