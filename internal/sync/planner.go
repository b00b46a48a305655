package sync

import (
	"time"

	"krx-collector/internal/domain"
)

// Mode selects the collection policy for one instrument.
type Mode string

// Collection modes.
const (
	ModeInitial     Mode = "initial"     // no stored bars: full backfill
	ModeIncremental Mode = "incremental" // extend from the latest stored bar
	ModeSkip        Mode = "skip"        // latest stored bar is already today
)

// Window tuning. The provider caps one daily-bar request at 100 calendar
// days, so wider windows are split into segments.
const (
	InitialBackfillDays = 500
	MaxSegmentDays      = 100
	MaxBackfillDays     = 2000
)

// Plan is the date window decision for one instrument.
type Plan struct {
	Mode Mode
	From time.Time
	To   time.Time
}

// Segment is one bounded sub-window of a fetch request.
type Segment struct {
	From time.Time
	To   time.Time
}

// PlanWindow decides backfill versus incremental for one instrument given
// its latest stored bar date (nil when the instrument has no bars). The
// resume point is always derived from stored data; there is no checkpoint.
func PlanWindow(latest *time.Time, today time.Time) Plan {
	day := domain.Day(today)

	if latest == nil {
		return Plan{
			Mode: ModeInitial,
			From: day.AddDate(0, 0, -(InitialBackfillDays - 1)),
			To:   day,
		}
	}

	last := domain.Day(*latest)
	if !last.Before(day) {
		return Plan{Mode: ModeSkip}
	}

	return Plan{
		Mode: ModeIncremental,
		From: last.AddDate(0, 0, 1),
		To:   day,
	}
}

// Segments splits [from, to] into chunks of at most MaxSegmentDays calendar
// days, walking backward from to; the oldest chunk is clamped so it never
// starts before from. Segments come back newest-first, which is also the
// fetch order. A 500-day initial window yields exactly 5 segments.
func Segments(from, to time.Time) []Segment {
	from = domain.Day(from)
	end := domain.Day(to)

	var segments []Segment
	for !end.Before(from) {
		start := end.AddDate(0, 0, -(MaxSegmentDays - 1))
		if start.Before(from) {
			start = from
		}
		segments = append(segments, Segment{From: start, To: end})
		end = start.AddDate(0, 0, -1)
	}
	return segments
}
