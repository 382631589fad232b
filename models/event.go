// api/models/event.go
package models

import (
	"time"
)

// Event is a single persisted, append-only user event scoped to an organization.
type Event struct {
	EventID    string         `json:"eventId"`
	OrgID      string         `json:"orgId"`
	SiteID     string         `json:"siteId,omitempty"`
	EventType  string         `json:"eventType"`
	EventName  string         `json:"eventName"`
	UserID     string         `json:"userId,omitempty"`
	SessionID  string         `json:"sessionId,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// TimeRange is inclusive on both ends, matching `timestamp >= ? AND timestamp <= ?`.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// UTC returns the range with both bounds converted to UTC.
func (r TimeRange) UTC() TimeRange {
	return TimeRange{Start: r.Start.UTC(), End: r.End.UTC()}
}
