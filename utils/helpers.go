package utils

import (
	"strconv"
	"strings"

	"pushlytics/api/models"
)

// ParsePeriod accepts a period name in any case ("Day", "week", ...).
// An empty string yields the zero Period so callers can apply their default.
func ParsePeriod(s string) (models.Period, bool) {
	if s == "" {
		return "", true
	}
	p := models.Period(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

// ParseOffsets parses a comma-separated offset list such as "0,1,7,30".
func ParseOffsets(s string) ([]int, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, true
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}
