// Package sync implements the daily-bar synchronization pipeline: window
// planning, segmented provider fetches, normalization, batched persistence
// and run orchestration across the instrument universe.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"krx-collector/internal/domain"
	"krx-collector/internal/storage"
)

// persistBatchSize caps one upsert transaction.
const persistBatchSize = 100

// runLockName keys the advisory lock shared by scheduled and manual runs.
const runLockName = "krx-collector:price-sync"

// QuoteClient is the provider boundary the orchestrator drives. Satisfied
// by kis.Client.
type QuoteClient interface {
	// IssueToken performs the credential exchange. Failure is fatal for the
	// whole run.
	IssueToken(ctx context.Context) (string, error)

	// FetchDailyBars queries daily bars for one instrument over a window of
	// at most MaxSegmentDays calendar days.
	FetchDailyBars(ctx context.Context, code string, from, to time.Time, token string) ([]*domain.PriceBar, error)
}

// Orchestrator drives the pipeline sequentially across all instruments.
// Sequencing is deliberate: provider admission is paced by the client's
// rate limiter, and parallel fan-out would defeat it.
type Orchestrator struct {
	instruments storage.InstrumentStore
	bars        storage.PriceBarStore
	features    storage.FeatureStore
	lock        storage.RunLock
	client      QuoteClient
	logger      *zap.Logger
	now         func() time.Time
}

// Options for creating an Orchestrator.
type Options struct {
	InstrumentStore storage.InstrumentStore
	PriceBarStore   storage.PriceBarStore
	FeatureStore    storage.FeatureStore
	RunLock         storage.RunLock
	Client          QuoteClient
	Logger          *zap.Logger

	// Now overrides the clock; defaults to time.Now. Tests pin it.
	Now func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		instruments: opts.InstrumentStore,
		bars:        opts.PriceBarStore,
		features:    opts.FeatureStore,
		lock:        opts.RunLock,
		client:      opts.Client,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// RunIncrementalAll extends every instrument's bar series up to today,
// backfilling new instruments automatically. Returns ErrRunInProgress when
// another run holds the lock; token or listing failures abort the run.
// Today's feature rows are recomputed after collection.
func (o *Orchestrator) RunIncrementalAll(ctx context.Context) (*RunSummary, error) {
	return o.run(ctx, "incremental collection", func(ctx context.Context, code, token string, today time.Time) Outcome {
		return o.syncIncremental(ctx, code, token, today)
	}, true)
}

// RunFullBackfillAll force-refetches the requested day span for every
// instrument, ignoring stored state. days is clamped to [1, MaxBackfillDays].
func (o *Orchestrator) RunFullBackfillAll(ctx context.Context, days int) (*RunSummary, error) {
	if days < 1 {
		days = 1
	}
	if days > MaxBackfillDays {
		days = MaxBackfillDays
	}

	return o.run(ctx, fmt.Sprintf("full backfill (%d days)", days), func(ctx context.Context, code, token string, today time.Time) Outcome {
		from := today.AddDate(0, 0, -(days - 1))
		bars, err := o.collectWindow(ctx, code, from, today, token)
		if err != nil {
			return Outcome{Code: code, Status: StatusFailed, Err: err}
		}
		return Outcome{Code: code, Status: StatusSuccess, Bars: bars}
	}, false)
}

// run is the shared loop: lock, token, instrument listing, sequential
// per-instrument processing with failure isolation.
func (o *Orchestrator) run(ctx context.Context, label string, sync func(context.Context, string, string, time.Time) Outcome, recomputeFeatures bool) (*RunSummary, error) {
	acquired, err := o.lock.TryAcquire(ctx, runLockName)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := o.lock.Release(context.WithoutCancel(ctx), runLockName); err != nil {
			o.logger.Warn("release run lock failed", zap.Error(err))
		}
	}()

	token, err := o.client.IssueToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("issue provider token: %w", err)
	}

	instruments, err := o.instruments.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}

	today := domain.Day(o.now())
	o.logger.Info("run starting", zap.String("label", label), zap.Int("instruments", len(instruments)))

	summary := &RunSummary{}
	for _, in := range instruments {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		outcome := sync(ctx, in.Code, token, today)
		summary.add(outcome)

		switch outcome.Status {
		case StatusFailed:
			o.logger.Error("instrument sync failed",
				zap.String("code", in.Code), zap.String("name", in.Name), zap.Error(outcome.Err))
		case StatusSuccess:
			o.logger.Debug("instrument synced",
				zap.String("code", in.Code), zap.Int("bars", outcome.Bars))
		}
	}

	if recomputeFeatures {
		written, err := o.features.RecomputeToday(ctx, today)
		if err != nil {
			o.logger.Error("recompute today's features failed", zap.Error(err))
		} else {
			o.logger.Info("today's features recomputed", zap.Int64("rows", written))
		}
	}

	summary.finish(label)
	o.logger.Info("run completed",
		zap.String("label", label),
		zap.Int("success", summary.Success),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// syncIncremental plans and collects one instrument's window.
func (o *Orchestrator) syncIncremental(ctx context.Context, code, token string, today time.Time) Outcome {
	latest, err := o.bars.LatestDate(ctx, code)
	var latestPtr *time.Time
	switch {
	case err == nil:
		latestPtr = &latest
	case errors.Is(err, storage.ErrNotFound):
		// new instrument, initial backfill
	default:
		return Outcome{Code: code, Status: StatusFailed, Err: fmt.Errorf("latest date: %w", err)}
	}

	plan := PlanWindow(latestPtr, today)
	if plan.Mode == ModeSkip {
		return Outcome{Code: code, Status: StatusSkipped}
	}
	if plan.Mode == ModeInitial {
		o.logger.Info("new instrument, starting initial backfill", zap.String("code", code))
	}

	bars, err := o.collectWindow(ctx, code, plan.From, plan.To, token)
	if err != nil {
		return Outcome{Code: code, Status: StatusFailed, Err: err}
	}
	return Outcome{Code: code, Status: StatusSuccess, Bars: bars}
}

// collectWindow fetches all segments of [from, to], normalizes and persists.
// A failed segment is logged and simply absent from the merged result, but
// when every segment fails the instrument fails; context cancellation aborts
// the instrument.
func (o *Orchestrator) collectWindow(ctx context.Context, code string, from, to time.Time, token string) (int, error) {
	var segments [][]*domain.PriceBar
	var lastErr error
	for _, seg := range Segments(from, to) {
		bars, err := o.client.FetchDailyBars(ctx, code, seg.From, seg.To, token)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			o.logger.Warn("segment fetch failed",
				zap.String("code", code),
				zap.String("from", domain.FormatCompact(seg.From)),
				zap.String("to", domain.FormatCompact(seg.To)),
				zap.Error(err))
			lastErr = err
			continue
		}
		segments = append(segments, bars)
	}
	if len(segments) == 0 && lastErr != nil {
		return 0, fmt.Errorf("all segments failed: %w", lastErr)
	}

	merged := Normalize(segments)
	if len(merged) == 0 {
		o.logger.Debug("no bars collected", zap.String("code", code))
		return 0, nil
	}

	for start := 0; start < len(merged); start += persistBatchSize {
		end := start + persistBatchSize
		if end > len(merged) {
			end = len(merged)
		}
		if err := o.bars.UpsertBulk(ctx, merged[start:end]); err != nil {
			return 0, fmt.Errorf("persist bars: %w", err)
		}
	}

	o.logger.Info("bars persisted",
		zap.String("code", code),
		zap.String("first", domain.FormatCompact(merged[0].Date)),
		zap.String("last", domain.FormatCompact(merged[len(merged)-1].Date)),
		zap.Int("count", len(merged)))
	return len(merged), nil
}
