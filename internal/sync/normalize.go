package sync

import (
	"sort"

	"krx-collector/internal/domain"
)

// Normalize merges per-segment fetch results into a clean series: one bar
// per calendar date, sorted ascending. When two segments carry the same
// date the later segment wins. Ascending order is required by the feature
// transform's lag pairing and by first/last date reporting.
func Normalize(segments [][]*domain.PriceBar) []*domain.PriceBar {
	merged := make(map[string]*domain.PriceBar)
	for _, segment := range segments {
		for _, bar := range segment {
			if bar == nil {
				continue
			}
			copied := *bar
			copied.Date = domain.Day(bar.Date)
			merged[domain.FormatCompact(copied.Date)] = &copied
		}
	}

	result := make([]*domain.PriceBar, 0, len(merged))
	for _, bar := range merged {
		result = append(result, bar)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result
}
