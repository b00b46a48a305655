package domain

import "time"

// MarketType identifies the exchange board an instrument trades on.
type MarketType string

// Supported market boards.
const (
	MarketKOSPI  MarketType = "KOSPI"
	MarketKOSDAQ MarketType = "KOSDAQ"
)

// AllMarkets lists every market the master fetcher synchronizes.
var AllMarkets = []MarketType{MarketKOSPI, MarketKOSDAQ}

// Valid reports whether m is a known market board.
func (m MarketType) Valid() bool {
	return m == MarketKOSPI || m == MarketKOSDAQ
}

// Instrument is one tradable security from the exchange master file.
// Rows are created and refreshed only by master sync upserts keyed by Code.
type Instrument struct {
	Code       string     // short code, e.g. "005930"
	Name       string     // listed name (Korean)
	MarketType MarketType // KOSPI or KOSDAQ
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
