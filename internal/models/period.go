package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CandlePeriods is the fixed set of supported candle granularities, ordered
// from finest to coarsest.
var CandlePeriods = []string{
	"1S", "5S", "10S", "15S", "30S",
	"1M", "5M", "10M", "15M", "30M",
	"1H", "3H", "6H", "12H",
	"1D", "1W", "1MO",
}

var periodDurations = map[string]time.Duration{
	"1S":  time.Second,
	"5S":  5 * time.Second,
	"10S": 10 * time.Second,
	"15S": 15 * time.Second,
	"30S": 30 * time.Second,
	"1M":  time.Minute,
	"5M":  5 * time.Minute,
	"10M": 10 * time.Minute,
	"15M": 15 * time.Minute,
	"30M": 30 * time.Minute,
	"1H":  time.Hour,
	"3H":  3 * time.Hour,
	"6H":  6 * time.Hour,
	"12H": 12 * time.Hour,
	"1D":  24 * time.Hour,
	"1W":  7 * 24 * time.Hour,
	"1MO": 30 * 24 * time.Hour,
}

// ValidPeriod reports whether p is one of the supported candle periods.
func ValidPeriod(p string) bool {
	_, ok := periodDurations[p]
	return ok
}

// PeriodDuration returns the bar width for a candle period.
func PeriodDuration(p string) (time.Duration, error) {
	d, ok := periodDurations[p]
	if !ok {
		return 0, fmt.Errorf("unsupported candle period %q", p)
	}
	return d, nil
}

// ParseLookback parses a lookback window string such as "30S", "1M", "30D" or
// "2W" into a duration. The unit grammar matches the candle period enum:
// S, M (minute), H, D, W and MO (30 days).
func ParseLookback(s string) (time.Duration, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty lookback window")
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) {
		return 0, fmt.Errorf("invalid lookback window %q", s)
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid lookback window %q", s)
	}

	var unit time.Duration
	switch s[i:] {
	case "S":
		unit = time.Second
	case "M":
		unit = time.Minute
	case "H":
		unit = time.Hour
	case "D":
		unit = 24 * time.Hour
	case "W":
		unit = 7 * 24 * time.Hour
	case "MO":
		unit = 30 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid lookback unit in %q", s)
	}
	return time.Duration(n) * unit, nil
}

// RetrievalSpec returns the cron spec used to schedule price retrieval for a
// candle period. Finer periods poll at bar width; coarse periods are capped at
// an hourly poll so a late-arriving daily bar is not a day late.
func RetrievalSpec(p string) (string, error) {
	d, err := PeriodDuration(p)
	if err != nil {
		return "", err
	}
	if d > time.Hour {
		d = time.Hour
	}
	return "@every " + d.String(), nil
}
