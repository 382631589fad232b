package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pushlytics/api/models"
)

// ErrFunnelNotFound is returned by funnel lookups for unknown or foreign ids.
var ErrFunnelNotFound = errors.New("funnel not found")

// Scope restricts a scan to one organization, an optional site and a time range.
type Scope struct {
	OrgID  string
	SiteID string
	Range  models.TimeRange
}

// StepScan selects events matching any of Steps; each row reports the index of
// the step it satisfied. An event satisfying several steps yields several rows.
type StepScan struct {
	Scope
	Steps []models.EventMatcher
}

// EntryScan selects the first qualifying event per user.
type EntryScan struct {
	Scope
	Matcher models.EventMatcher
}

// ActivityScan selects every qualifying event, optionally extracting a property
// as raw text.
type ActivityScan struct {
	Scope
	Matcher       models.EventMatcher
	ValueProperty string
}

type StepRow struct {
	UserID    string
	Step      int
	Timestamp time.Time
}

type FirstSeen struct {
	UserID    string
	Timestamp time.Time
}

type ActivityRow struct {
	UserID    string
	Timestamp time.Time
	// Value is the raw property text; nil when the property is absent or no
	// property was requested.
	Value *string
}

// EventStore is the read interface over a persisted event log.
type EventStore interface {
	// Name identifies the backend in logs, metrics and results.
	Name() string
	ScanSteps(ctx context.Context, scan StepScan) ([]StepRow, error)
	FirstEntries(ctx context.Context, scan EntryScan) ([]FirstSeen, error)
	ScanActivity(ctx context.Context, scan ActivityScan) ([]ActivityRow, error)
}

// rows is the iteration surface shared by database/sql and the ClickHouse driver.
type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

func collectStepRows(r rows) ([]StepRow, error) {
	defer r.Close()

	var out []StepRow
	for r.Next() {
		var (
			row  StepRow
			step int32
		)
		if err := r.Scan(&row.UserID, &step, &row.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		row.Step = int(step)
		row.Timestamp = row.Timestamp.UTC()
		out = append(out, row)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("row error during step scan: %w", err)
	}
	return out, nil
}

func collectFirstSeen(r rows) ([]FirstSeen, error) {
	defer r.Close()

	var out []FirstSeen
	for r.Next() {
		var row FirstSeen
		if err := r.Scan(&row.UserID, &row.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan first-seen row: %w", err)
		}
		row.Timestamp = row.Timestamp.UTC()
		out = append(out, row)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("row error during entry scan: %w", err)
	}
	return out, nil
}
