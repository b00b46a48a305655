// Package scheduler triggers pipeline runs at fixed wall-clock times in a
// fixed calendar timezone.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/anyongjin/cron"
	"go.uber.org/zap"
)

// Job is one schedulable pipeline entry point. Jobs receive a background
// context; cancellation happens only at process shutdown.
type Job func(ctx context.Context) error

// Scheduler wraps a seconds-resolution cron runner.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// New creates a scheduler anchored to the named timezone.
func New(timezone string, logger *zap.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		logger: logger,
	}, nil
}

// AddJob registers a named job on a six-field cron spec. Job errors are
// logged, never propagated; the next trigger still fires.
func (s *Scheduler) AddJob(spec, name string, job Job) error {
	_, err := s.cron.Add(spec, func() {
		s.logger.Info("scheduled job starting", zap.String("job", name))
		if err := job(context.Background()); err != nil {
			s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.logger.Info("scheduled job completed", zap.String("job", name))
	})
	if err != nil {
		return fmt.Errorf("add cron job %s (%q): %w", name, spec, err)
	}
	return nil
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
