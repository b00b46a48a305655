package domain

import "time"

// PriceBar is one day's OHLCV for an instrument.
// At most one bar exists per (Code, Date); the date carries no time-of-day
// component and is always midnight UTC.
type PriceBar struct {
	Code   string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// FeatureRow holds day-over-day percentage change rates versus the
// immediately preceding stored bar of the same instrument. A nil rate means
// the previous value was zero and the change is undefined.
type FeatureRow struct {
	Code             string
	Date             time.Time
	OpenChangeRate   *float64
	CloseChangeRate  *float64
	HighChangeRate   *float64
	LowChangeRate    *float64
	VolumeChangeRate *float64
}
