package sync

import (
	"testing"
	"time"

	"krx-collector/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPlanWindow_Initial(t *testing.T) {
	today := day(2026, 9, 1)

	plan := PlanWindow(nil, today)

	if plan.Mode != ModeInitial {
		t.Fatalf("Expected initial mode, got %q", plan.Mode)
	}
	if !plan.To.Equal(today) {
		t.Errorf("To mismatch: got %v", plan.To)
	}
	want := today.AddDate(0, 0, -(InitialBackfillDays - 1))
	if !plan.From.Equal(want) {
		t.Errorf("From mismatch: got %v, want %v", plan.From, want)
	}
	// Inclusive window spans exactly the backfill day count.
	days := int(plan.To.Sub(plan.From).Hours()/24) + 1
	if days != InitialBackfillDays {
		t.Errorf("window spans %d days, want %d", days, InitialBackfillDays)
	}
}

func TestPlanWindow_Skip(t *testing.T) {
	today := day(2026, 9, 1)

	for _, latest := range []time.Time{today, day(2026, 9, 2)} {
		plan := PlanWindow(&latest, today)
		if plan.Mode != ModeSkip {
			t.Errorf("latest %v: expected skip, got %q", latest, plan.Mode)
		}
	}
}

func TestPlanWindow_Incremental(t *testing.T) {
	today := day(2026, 9, 1)
	latest := day(2026, 8, 20)

	plan := PlanWindow(&latest, today)

	if plan.Mode != ModeIncremental {
		t.Fatalf("Expected incremental mode, got %q", plan.Mode)
	}
	if !plan.From.Equal(day(2026, 8, 21)) {
		t.Errorf("From mismatch: got %v", plan.From)
	}
	if !plan.To.Equal(today) {
		t.Errorf("To mismatch: got %v", plan.To)
	}
}

func TestPlanWindow_IgnoresTimeOfDay(t *testing.T) {
	latest := time.Date(2026, 9, 1, 15, 30, 0, 0, time.UTC)
	now := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)

	plan := PlanWindow(&latest, now)
	if plan.Mode != ModeSkip {
		t.Errorf("Expected skip for same calendar day, got %q", plan.Mode)
	}
}

func TestSegments_SingleDay(t *testing.T) {
	d := day(2026, 9, 1)
	segments := Segments(d, d)

	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segments))
	}
	if !segments[0].From.Equal(d) || !segments[0].To.Equal(d) {
		t.Errorf("segment mismatch: %+v", segments[0])
	}
}

func TestSegments_InitialWindow(t *testing.T) {
	to := day(2026, 9, 1)
	from := to.AddDate(0, 0, -(InitialBackfillDays - 1))

	segments := Segments(from, to)

	if len(segments) != 5 {
		t.Fatalf("Expected 5 segments for a %d-day window, got %d", InitialBackfillDays, len(segments))
	}
	// Newest first, contiguous, no gaps or overlaps.
	if !segments[0].To.Equal(to) {
		t.Errorf("first segment To mismatch: %v", segments[0].To)
	}
	if !segments[len(segments)-1].From.Equal(from) {
		t.Errorf("last segment From mismatch: %v", segments[len(segments)-1].From)
	}
	for i := 1; i < len(segments); i++ {
		want := segments[i-1].From.AddDate(0, 0, -1)
		if !segments[i].To.Equal(want) {
			t.Errorf("segment %d not contiguous: To %v, want %v", i, segments[i].To, want)
		}
	}
	for i, seg := range segments {
		span := int(seg.To.Sub(seg.From).Hours()/24) + 1
		if span != MaxSegmentDays {
			t.Errorf("segment %d spans %d days, want %d", i, span, MaxSegmentDays)
		}
	}
}

func TestSegments_ClampsOldest(t *testing.T) {
	to := day(2026, 9, 1)
	from := to.AddDate(0, 0, -249) // 250-day window

	segments := Segments(from, to)

	if len(segments) != 3 {
		t.Fatalf("Expected 3 segments, got %d", len(segments))
	}
	oldest := segments[len(segments)-1]
	if !oldest.From.Equal(from) {
		t.Errorf("oldest segment not clamped: From %v, want %v", oldest.From, from)
	}
	span := int(oldest.To.Sub(oldest.From).Hours()/24) + 1
	if span != 50 {
		t.Errorf("oldest segment spans %d days, want 50", span)
	}
}

func TestSegments_TruncatesTimeOfDay(t *testing.T) {
	from := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)

	segments := Segments(from, to)

	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segments))
	}
	if !segments[0].From.Equal(domain.Day(from)) || !segments[0].To.Equal(domain.Day(to)) {
		t.Errorf("segment not truncated to days: %+v", segments[0])
	}
}
