package models

import (
	"fmt"
	"time"
)

// Period is a calendar granularity. Weeks start on Monday, all in UTC.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return true
	}
	return false
}

// Truncate returns the start of the period containing t, in UTC.
func (p Period) Truncate(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodWeek:
		// time.Weekday has Sunday == 0; shift so Monday is day 0.
		back := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -back)
	case PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Add moves t forward by n periods.
func (p Period) Add(t time.Time, n int) time.Time {
	switch p {
	case PeriodWeek:
		return t.AddDate(0, 0, 7*n)
	case PeriodMonth:
		return t.AddDate(0, n, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

// CohortKind selects what the aggregator computes per period.
type CohortKind string

const (
	// CohortAcquisition retains on any activity after the first-seen event.
	CohortAcquisition CohortKind = "acquisition"
	// CohortBehavioral retains on a specific return event after a trigger event.
	CohortBehavioral CohortKind = "behavioral"
	// CohortRevenue sums a monetary property of revenue events.
	CohortRevenue CohortKind = "revenue"
)

func (k CohortKind) Valid() bool {
	switch k {
	case CohortAcquisition, CohortBehavioral, CohortRevenue:
		return true
	}
	return false
}

const DefaultValueProperty = "value"

type CohortDefinition struct {
	Kind   CohortKind   `json:"kind"`
	Entry  EventMatcher `json:"entry"`
	Return EventMatcher `json:"return"`
	// Period is the cohort bucket granularity.
	Period Period `json:"period"`
	// Offsets are the period offsets to compute, measured in OffsetUnit from the cohort start.
	Offsets    []int  `json:"offsets"`
	OffsetUnit Period `json:"offset_unit"`
	// ValueProperty names the monetary property of revenue events.
	ValueProperty string    `json:"value_property,omitempty"`
	Range         TimeRange `json:"range"`
	SiteID        string    `json:"site_id,omitempty"`
}

// Normalize applies defaults and rejects definitions that cannot be computed.
func (d *CohortDefinition) Normalize() error {
	if d.Kind == "" {
		d.Kind = CohortBehavioral
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("unknown cohort kind %q", d.Kind)
	}
	if d.Period == "" {
		d.Period = PeriodWeek
	}
	if !d.Period.Valid() {
		return fmt.Errorf("unknown cohort period %q", d.Period)
	}
	if d.OffsetUnit == "" {
		d.OffsetUnit = PeriodDay
	}
	if !d.OffsetUnit.Valid() {
		return fmt.Errorf("unknown offset unit %q", d.OffsetUnit)
	}
	if d.Kind == CohortRevenue && d.ValueProperty == "" {
		d.ValueProperty = DefaultValueProperty
	}
	if d.Kind == CohortAcquisition {
		d.Return = EventMatcher{}
	}

	seen := make(map[int]bool, len(d.Offsets))
	offsets := make([]int, 0, len(d.Offsets))
	for _, o := range d.Offsets {
		if o < 0 {
			return fmt.Errorf("period offset cannot be negative, got %d", o)
		}
		if !seen[o] {
			seen[o] = true
			offsets = append(offsets, o)
		}
	}
	d.Offsets = offsets

	if err := d.Entry.Validate(); err != nil {
		return fmt.Errorf("entry event: %w", err)
	}
	if err := d.Return.Validate(); err != nil {
		return fmt.Errorf("return event: %w", err)
	}
	if !d.Range.IsZero() && d.Range.End.Before(d.Range.Start) {
		return fmt.Errorf("range end %s is before start %s", d.Range.End.Format(time.RFC3339), d.Range.Start.Format(time.RFC3339))
	}
	return nil
}

// PeriodKey names an offset in result maps, e.g. "day_7".
func PeriodKey(unit Period, offset int) string {
	return fmt.Sprintf("%s_%d", unit, offset)
}

type RetentionStats struct {
	Retained      int64   `json:"retained"`
	RetentionRate float64 `json:"retention_rate"`
}

type RevenueStats struct {
	Revenue        float64 `json:"revenue"`
	Buyers         int64   `json:"buyers"`
	ConversionRate float64 `json:"conversion_rate"`
	RevenuePerUser float64 `json:"revenue_per_user"`
	AvgOrderValue  float64 `json:"avg_order_value"`
}

// PeriodStats holds exactly one of the retention or revenue views.
type PeriodStats struct {
	Offset      int       `json:"offset"`
	PeriodStart time.Time `json:"period_start"`
	*RetentionStats
	*RevenueStats
}

type CohortBucket struct {
	CohortDate  string                 `json:"cohort_date,omitempty"`
	CohortWeek  string                 `json:"cohort_week,omitempty"`
	CohortStart time.Time              `json:"cohort_start"`
	CohortSize  int64                  `json:"cohort_size"`
	Periods     map[string]PeriodStats `json:"periods"`
}

type CohortSummary struct {
	TotalCohorts int    `json:"total_cohorts"`
	TotalUsers   int64  `json:"total_users"`
	BestCohort   string `json:"best_cohort,omitempty"`
	WorstCohort  string `json:"worst_cohort,omitempty"`
	// Trend compares the later half of cohorts to the earlier half:
	// "improving", "declining", "stable" or "insufficient_data".
	Trend string `json:"trend"`
}

type CohortAnalysisResult struct {
	Kind           CohortKind              `json:"kind"`
	Period         Period                  `json:"period"`
	OffsetUnit     Period                  `json:"offset_unit"`
	Cohorts        []CohortBucket          `json:"cohorts"`
	Summary        CohortSummary           `json:"summary"`
	RetentionRates map[string]float64      `json:"retentionRates,omitempty"`
	RevenueMetrics map[string]RevenueStats `json:"revenueMetrics,omitempty"`
	Backend        string                  `json:"backend"`
	Degraded       bool                    `json:"degraded"`
	Metadata       QueryMetadata           `json:"metadata"`
}
