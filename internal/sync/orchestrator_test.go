package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"krx-collector/internal/domain"
	"krx-collector/internal/storage/memory"
)

// stubClient fabricates one bar per calendar day of the requested window.
// The orchestrator is sequential, so no locking is needed.
type stubClient struct {
	tokenErr  error
	failCodes map[string]bool
	lastToken string
	fetches   int
}

func (c *stubClient) IssueToken(_ context.Context) (string, error) {
	if c.tokenErr != nil {
		return "", c.tokenErr
	}
	return "test-token", nil
}

func (c *stubClient) FetchDailyBars(_ context.Context, code string, from, to time.Time, token string) ([]*domain.PriceBar, error) {
	c.fetches++
	c.lastToken = token
	if c.failCodes[code] {
		return nil, fmt.Errorf("provider unavailable for %s", code)
	}

	var bars []*domain.PriceBar
	for d := domain.Day(from); !d.After(domain.Day(to)); d = d.AddDate(0, 0, 1) {
		bars = append(bars, &domain.PriceBar{
			Code: code, Date: d,
			Open: 10, High: 11, Low: 9, Close: 10, Volume: 100,
		})
	}
	return bars, nil
}

type fixture struct {
	instruments *memory.InstrumentStore
	bars        *memory.PriceBarStore
	features    *memory.FeatureStore
	lock        *memory.RunLock
	client      *stubClient
	orch        *Orchestrator
}

func newFixture(t *testing.T, today time.Time, codes ...string) *fixture {
	t.Helper()

	f := &fixture{
		instruments: memory.NewInstrumentStore(),
		bars:        memory.NewPriceBarStore(),
		lock:        memory.NewRunLock(),
		client:      &stubClient{failCodes: make(map[string]bool)},
	}
	f.features = memory.NewFeatureStore(f.bars)

	var listed []*domain.Instrument
	for _, code := range codes {
		listed = append(listed, &domain.Instrument{
			Code: code, Name: "name-" + code, MarketType: domain.MarketKOSPI,
		})
	}
	if err := f.instruments.UpsertBulk(context.Background(), listed); err != nil {
		t.Fatalf("seed instruments: %v", err)
	}

	f.orch = New(Options{
		InstrumentStore: f.instruments,
		PriceBarStore:   f.bars,
		FeatureStore:    f.features,
		RunLock:         f.lock,
		Client:          f.client,
		Now:             func() time.Time { return today },
	})
	return f
}

func TestOrchestrator_InitialBackfill(t *testing.T) {
	today := day(2026, 9, 1)
	f := newFixture(t, today, "005930")
	ctx := context.Background()

	summary, err := f.orch.RunIncrementalAll(ctx)
	if err != nil {
		t.Fatalf("RunIncrementalAll failed: %v", err)
	}

	if summary.Total != 1 || summary.Success != 1 {
		t.Errorf("summary mismatch: %+v", summary)
	}

	count, _ := f.bars.Count(ctx)
	if count != int64(InitialBackfillDays) {
		t.Errorf("Expected %d bars, got %d", InitialBackfillDays, count)
	}

	latest, err := f.bars.LatestDate(ctx, "005930")
	if err != nil {
		t.Fatalf("LatestDate failed: %v", err)
	}
	if !latest.Equal(today) {
		t.Errorf("latest date mismatch: got %v", latest)
	}

	if f.client.lastToken != "test-token" {
		t.Errorf("token not threaded through fetches: %q", f.client.lastToken)
	}

	// Today's feature row was derived after collection.
	rows, err := f.features.GetByCode(ctx, "005930")
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 feature row, got %d", len(rows))
	}
	if !rows[0].Date.Equal(today) {
		t.Errorf("feature row date mismatch: %v", rows[0].Date)
	}
}

func TestOrchestrator_SecondRunSkips(t *testing.T) {
	today := day(2026, 9, 1)
	f := newFixture(t, today, "005930", "000660")
	ctx := context.Background()

	if _, err := f.orch.RunIncrementalAll(ctx); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	countBefore, _ := f.bars.Count(ctx)
	fetchesBefore := f.client.fetches

	summary, err := f.orch.RunIncrementalAll(ctx)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if summary.Skipped != 2 || summary.Success != 0 {
		t.Errorf("Expected all skipped, got %+v", summary)
	}
	if f.client.fetches != fetchesBefore {
		t.Errorf("second run should not hit the provider, got %d extra fetches",
			f.client.fetches-fetchesBefore)
	}
	countAfter, _ := f.bars.Count(ctx)
	if countAfter != countBefore {
		t.Errorf("bar count changed: %d -> %d", countBefore, countAfter)
	}
}

func TestOrchestrator_ResumesFromLatestBar(t *testing.T) {
	today := day(2026, 9, 10)
	f := newFixture(t, today, "005930")
	ctx := context.Background()

	// Bars already stored up to five days before today.
	seed, _ := f.client.FetchDailyBars(ctx, "005930", day(2026, 9, 1), day(2026, 9, 5), "t")
	if err := f.bars.UpsertBulk(ctx, seed); err != nil {
		t.Fatalf("seed bars: %v", err)
	}

	summary, err := f.orch.RunIncrementalAll(ctx)
	if err != nil {
		t.Fatalf("RunIncrementalAll failed: %v", err)
	}
	if summary.Success != 1 {
		t.Errorf("summary mismatch: %+v", summary)
	}

	// 5 seeded + 5 new days.
	count, _ := f.bars.Count(ctx)
	if count != 10 {
		t.Errorf("Expected 10 bars, got %d", count)
	}
}

func TestOrchestrator_FailureIsolation(t *testing.T) {
	today := day(2026, 9, 1)
	f := newFixture(t, today, "A00001", "B00002", "C00003")
	f.client.failCodes["B00002"] = true
	ctx := context.Background()

	summary, err := f.orch.RunIncrementalAll(ctx)
	if err != nil {
		t.Fatalf("RunIncrementalAll failed: %v", err)
	}

	if summary.Success != 2 || summary.Failed != 1 {
		t.Errorf("summary mismatch: %+v", summary)
	}

	// The healthy instruments were fully collected.
	count, _ := f.bars.Count(ctx)
	if count != int64(2*InitialBackfillDays) {
		t.Errorf("Expected %d bars, got %d", 2*InitialBackfillDays, count)
	}
	if _, err := f.bars.LatestDate(ctx, "B00002"); err == nil {
		t.Error("expected no bars for the failed instrument")
	}
}

func TestOrchestrator_TokenFailureAborts(t *testing.T) {
	f := newFixture(t, day(2026, 9, 1), "005930")
	f.client.tokenErr = errors.New("invalid credentials")
	ctx := context.Background()

	if _, err := f.orch.RunIncrementalAll(ctx); err == nil {
		t.Fatal("expected error on token failure")
	}

	count, _ := f.bars.Count(ctx)
	if count != 0 {
		t.Errorf("Expected no bars, got %d", count)
	}

	// The lock was released on abort.
	acquired, err := f.lock.TryAcquire(ctx, runLockName)
	if err != nil || !acquired {
		t.Errorf("lock not released: acquired=%v err=%v", acquired, err)
	}
}

func TestOrchestrator_LockHeld(t *testing.T) {
	f := newFixture(t, day(2026, 9, 1), "005930")
	ctx := context.Background()

	if _, err := f.lock.TryAcquire(ctx, runLockName); err != nil {
		t.Fatalf("pre-acquire failed: %v", err)
	}

	_, err := f.orch.RunIncrementalAll(ctx)
	if !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Expected ErrRunInProgress, got %v", err)
	}

	_, err = f.orch.RunFullBackfillAll(ctx, 10)
	if !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Expected ErrRunInProgress for backfill, got %v", err)
	}
}

func TestOrchestrator_FullBackfill(t *testing.T) {
	today := day(2026, 9, 1)
	f := newFixture(t, today, "005930")
	ctx := context.Background()

	// Already up to date; a forced backfill still refetches.
	if _, err := f.orch.RunIncrementalAll(ctx); err != nil {
		t.Fatalf("incremental run failed: %v", err)
	}

	summary, err := f.orch.RunFullBackfillAll(ctx, 10)
	if err != nil {
		t.Fatalf("RunFullBackfillAll failed: %v", err)
	}
	if summary.Success != 1 || summary.Skipped != 0 {
		t.Errorf("summary mismatch: %+v", summary)
	}
}

func TestOrchestrator_FullBackfillClampsDays(t *testing.T) {
	today := day(2026, 9, 1)
	f := newFixture(t, today, "005930")
	ctx := context.Background()

	if _, err := f.orch.RunFullBackfillAll(ctx, -5); err != nil {
		t.Fatalf("RunFullBackfillAll failed: %v", err)
	}

	// Clamped to a single day.
	count, _ := f.bars.Count(ctx)
	if count != 1 {
		t.Errorf("Expected 1 bar, got %d", count)
	}
	latest, _ := f.bars.LatestDate(ctx, "005930")
	if !latest.Equal(today) {
		t.Errorf("latest mismatch: %v", latest)
	}
}

func TestOrchestrator_ContextCancellation(t *testing.T) {
	f := newFixture(t, day(2026, 9, 1), "005930", "000660")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.RunIncrementalAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
