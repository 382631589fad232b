package models

import (
	"fmt"
	"sort"
	"time"
)

// WindowPolicy decides what the conversion window is measured from.
type WindowPolicy string

const (
	// WindowFromPreviousStep bounds the gap between consecutive steps.
	WindowFromPreviousStep WindowPolicy = "previous_step"
	// WindowFromFirstStep bounds the time from the first step to every later one.
	WindowFromFirstStep WindowPolicy = "first_step"
)

func (p WindowPolicy) Valid() bool {
	return p == WindowFromPreviousStep || p == WindowFromFirstStep
}

// FunnelStep is one ordered step of a funnel.
type FunnelStep struct {
	Order int    `json:"order"`
	Name  string `json:"name,omitempty"`
	EventMatcher
}

func (s FunnelStep) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.EventMatcher.Label()
}

// FunnelDefinition is owned by an organization and read, never written, by the engine.
type FunnelDefinition struct {
	ID           string       `json:"id"`
	OrgID        string       `json:"org_id"`
	Name         string       `json:"name"`
	Steps        []FunnelStep `json:"steps"`
	WindowHours  int          `json:"window_hours"`
	WindowPolicy WindowPolicy `json:"window_policy"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Normalize sorts steps by order and checks that orders are unique and start
// at 0 or 1, and that every filter is well formed.
func (d *FunnelDefinition) Normalize() error {
	sort.SliceStable(d.Steps, func(i, j int) bool { return d.Steps[i].Order < d.Steps[j].Order })
	for i, step := range d.Steps {
		if i == 0 && step.Order != 0 && step.Order != 1 {
			return fmt.Errorf("funnel %s: first step order must be 0 or 1, got %d", d.ID, step.Order)
		}
		if i > 0 && step.Order == d.Steps[i-1].Order {
			return fmt.Errorf("funnel %s: duplicate step order %d", d.ID, step.Order)
		}
		if err := step.EventMatcher.Validate(); err != nil {
			return fmt.Errorf("funnel %s step %d: %w", d.ID, step.Order, err)
		}
	}
	if d.WindowPolicy == "" {
		d.WindowPolicy = WindowFromPreviousStep
	}
	if !d.WindowPolicy.Valid() {
		return fmt.Errorf("funnel %s: unknown window policy %q", d.ID, d.WindowPolicy)
	}
	if d.WindowHours < 0 {
		return fmt.Errorf("funnel %s: window hours cannot be negative", d.ID)
	}
	return nil
}

// Matchers returns the step matchers in step order.
func (d *FunnelDefinition) Matchers() []EventMatcher {
	out := make([]EventMatcher, len(d.Steps))
	for i, s := range d.Steps {
		out[i] = s.EventMatcher
	}
	return out
}

type FunnelStepResult struct {
	Step           string  `json:"step"`
	StepNumber     int     `json:"step_number"`
	Users          int64   `json:"users"`
	ConversionRate float64 `json:"conversion_rate"`
	DropOffRate    float64 `json:"drop_off_rate"`
	// AvgSecondsFromPrevious is the mean time converting users took from the previous step.
	AvgSecondsFromPrevious float64 `json:"avg_seconds_from_previous,omitempty"`
}

type FunnelAnalysisResult struct {
	FunnelID       string             `json:"funnel_id"`
	FunnelName     string             `json:"funnel_name"`
	Steps          []FunnelStepResult `json:"steps"`
	ConversionRate float64            `json:"conversion_rate"`
	TotalUsers     int64              `json:"total_users"`
	WindowHours    int                `json:"window_hours"`
	WindowPolicy   WindowPolicy       `json:"window_policy"`
	Backend        string             `json:"backend"`
	Degraded       bool               `json:"degraded"`
	Metadata       QueryMetadata      `json:"metadata"`
}

// QueryMetadata carries provenance for an analysis result.
type QueryMetadata struct {
	QueryHash   string    `json:"query_hash"`
	RangeStart  time.Time `json:"range_start"`
	RangeEnd    time.Time `json:"range_end"`
	GeneratedAt time.Time `json:"generated_at"`
	QueryTimeMs int64     `json:"query_time_ms"`
	Cached      bool      `json:"cached"`
}

// PathAnalysisResult is the shape reserved for path analysis, which is not
// implemented.
type PathAnalysisResult struct {
	StartEvent string     `json:"start_event"`
	Paths      [][]string `json:"paths"`
}
