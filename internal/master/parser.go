package master

import (
	"strings"

	"krx-collector/internal/domain"
)

// Fixed-width layout of the exchange master file. Offsets are in characters
// of the decoded text, not bytes: the name field is Korean and multi-byte in
// the source encoding.
const (
	minLineLen    = 228 // lines shorter than this are malformed
	codeWidth     = 9   // short code, left-aligned
	nameStart     = 21  // listed name begins here
	trailingWidth = 228 // fixed-width tail after the name field
)

// parseLine extracts one instrument from a master-file line. Returns nil
// for malformed or empty rows.
func parseLine(line string, market domain.MarketType) *domain.Instrument {
	runes := []rune(line)
	if len(runes) < minLineLen {
		return nil
	}

	code := strings.TrimSpace(string(runes[:codeWidth]))

	nameEnd := len(runes) - trailingWidth
	if nameEnd <= nameStart {
		return nil
	}
	name := strings.TrimSpace(string(runes[nameStart:nameEnd]))

	if code == "" || name == "" {
		return nil
	}

	return &domain.Instrument{
		Code:       code,
		Name:       name,
		MarketType: market,
	}
}

// parseMaster extracts all instruments from the decoded master-file text.
// Malformed lines are silently dropped; they are a data-quality skip, not an
// error.
func parseMaster(content string, market domain.MarketType) []*domain.Instrument {
	var instruments []*domain.Instrument
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if in := parseLine(line, market); in != nil {
			instruments = append(instruments, in)
		}
	}
	return instruments
}
