package dispatch

import (
	"strings"
	"time"
)

// Target is a phone number + scam category candidate for outbound
// engagement.
type Target struct {
	PhoneNumber     string  `json:"phoneNumber"`
	ScamCategory    string  `json:"scamCategory"`
	ConfidenceScore float64 `json:"confidenceScore"`
	OriginSource    string  `json:"originSource"`
	LocationHint    string  `json:"locationHint,omitempty"`
}

// NormalizePhone maps raw numbers to E.164: 10 digits get the +1 country
// code, 11 digits with a leading 1 get a +, anything else passes through
// with formatting characters stripped.
func NormalizePhone(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if allDigits(cleaned) {
		switch {
		case len(cleaned) == 10:
			return "+1" + cleaned
		case len(cleaned) == 11 && cleaned[0] == '1':
			return "+" + cleaned
		}
	}
	return cleaned
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// categoryTable maps free-text report labels into the fixed taxonomy.
// Matched by substring, first hit wins.
var categoryTable = []struct {
	substr   string
	category string
}{
	{"irs", "tax"},
	{"tax", "tax"},
	{"tech", "tech_support"},
	{"microsoft", "tech_support"},
	{"computer", "tech_support"},
	{"virus", "tech_support"},
	{"bank", "bank"},
	{"account suspend", "bank"},
	{"warranty", "warranty"},
	{"vehicle", "warranty"},
	{"insurance", "insurance"},
	{"medicare", "insurance"},
	{"bitcoin", "crypto"},
	{"crypto", "crypto"},
	{"invest", "crypto"},
	{"romance", "romance"},
	{"lottery", "lottery"},
	{"prize", "lottery"},
	{"charity", "charity"},
}

func NormalizeCategory(raw string) string {
	lower := strings.ToLower(raw)
	for _, entry := range categoryTable {
		if strings.Contains(lower, entry.substr) {
			return entry.category
		}
	}
	return "unknown"
}

// Dedupe keeps the first target per normalized phone number and rewrites
// each kept target to its normalized form.
func Dedupe(targets []Target) []Target {
	seen := make(map[string]bool, len(targets))
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		num := NormalizePhone(t.PhoneNumber)
		if num == "" || seen[num] {
			continue
		}
		seen[num] = true
		t.PhoneNumber = num
		t.ScamCategory = NormalizeCategory(t.ScamCategory)
		out = append(out, t)
	}
	return out
}

// timezoneTable maps location-hint substrings to IANA zones; unmatched
// hints fall back to the configured default zone.
var timezoneTable = []struct {
	substr string
	zone   string
}{
	{"los angeles", "America/Los_Angeles"},
	{"california", "America/Los_Angeles"},
	{"seattle", "America/Los_Angeles"},
	{"washington", "America/Los_Angeles"},
	{"portland", "America/Los_Angeles"},
	{"denver", "America/Denver"},
	{"colorado", "America/Denver"},
	{"utah", "America/Denver"},
	{"phoenix", "America/Phoenix"},
	{"arizona", "America/Phoenix"},
	{"chicago", "America/Chicago"},
	{"texas", "America/Chicago"},
	{"houston", "America/Chicago"},
	{"dallas", "America/Chicago"},
	{"illinois", "America/Chicago"},
	{"new york", "America/New_York"},
	{"florida", "America/New_York"},
	{"miami", "America/New_York"},
	{"boston", "America/New_York"},
	{"atlanta", "America/New_York"},
}

// TimezoneFor infers a zone from a free-text location hint.
func TimezoneFor(hint, defaultZone string) *time.Location {
	lower := strings.ToLower(hint)
	for _, entry := range timezoneTable {
		if strings.Contains(lower, entry.substr) {
			if loc, err := time.LoadLocation(entry.zone); err == nil {
				return loc
			}
		}
	}
	if loc, err := time.LoadLocation(defaultZone); err == nil {
		return loc
	}
	return time.UTC
}
