package domain

import (
	"fmt"
	"time"
)

// compactDateLayout is the provider's 8-digit date encoding.
const compactDateLayout = "20060102"

// Day truncates t to midnight UTC. All bar and feature dates are stored in
// this form so (code, date) comparisons are exact.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatCompact renders a date as YYYYMMDD.
func FormatCompact(t time.Time) string {
	return t.Format(compactDateLayout)
}

// ParseCompact parses an 8-digit YYYYMMDD date into midnight UTC.
func ParseCompact(s string) (time.Time, error) {
	t, err := time.Parse(compactDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse compact date %q: %w", s, err)
	}
	return t, nil
}
