package sync

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when another pipeline run holds the run lock.
var ErrRunInProgress = errors.New("sync run already in progress")

// Status classifies one instrument's outcome within a run.
type Status string

// Instrument outcomes.
const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome is the typed per-instrument result. Failures carry their cause so
// the orchestrator can aggregate without re-raising.
type Outcome struct {
	Code   string
	Status Status
	Bars   int // bars persisted
	Err    error
}

// RunSummary aggregates one orchestrator run across all instruments.
type RunSummary struct {
	Total   int
	Success int
	Skipped int
	Failed  int
	Message string
}

// add folds one outcome into the counters.
func (s *RunSummary) add(o Outcome) {
	s.Total++
	switch o.Status {
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	default:
		s.Success++
	}
}

// finish sets the human-readable message.
func (s *RunSummary) finish(label string) {
	s.Message = fmt.Sprintf("%s completed: %d success, %d skipped, %d failed of %d",
		label, s.Success, s.Skipped, s.Failed, s.Total)
}
