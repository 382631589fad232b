package utils

import (
	"fmt"
	"strings"
	"time"

	"pushlytics/api/models"
)

// presetRanges are the accepted timeRange shorthands.
var presetRanges = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
	"1y":  365 * 24 * time.Hour,
}

// ParseDateRange resolves startDate/endDate/timeRange request parameters.
// Explicit dates win over the preset; a missing end is now, truncated to the
// minute. A date-only end covers that whole day. When nothing is given the zero
// range is returned and the engine applies its default.
func ParseDateRange(startDate, endDate, timeRange string, now time.Time) (models.TimeRange, error) {
	var r models.TimeRange
	var err error

	if endDate != "" {
		if r.End, err = parseDate(endDate, true); err != nil {
			return r, fmt.Errorf("invalid endDate: %w", err)
		}
	}
	if startDate != "" {
		if r.Start, err = parseDate(startDate, false); err != nil {
			return r, fmt.Errorf("invalid startDate: %w", err)
		}
	}

	if timeRange != "" && r.Start.IsZero() {
		d, ok := presetRanges[strings.ToLower(timeRange)]
		if !ok {
			return r, fmt.Errorf("invalid timeRange %q", timeRange)
		}
		if r.End.IsZero() {
			r.End = now.UTC().Truncate(time.Minute)
		}
		r.Start = r.End.Add(-d)
	}

	if !r.Start.IsZero() && r.End.IsZero() {
		r.End = now.UTC().Truncate(time.Minute)
	}
	if !r.Start.IsZero() && r.End.Before(r.Start) {
		return r, fmt.Errorf("endDate is before startDate")
	}
	return r, nil
}

func parseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor YYYY-MM-DD", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
