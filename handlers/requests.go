package handlers

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"pushlytics/api/models"
	"pushlytics/api/utils"
)

// maxRetentionPeriods bounds a count-style retentionPeriods value.
const maxRetentionPeriods = 366

// cohortRequestBody is the POST /api/analytics/cohorts payload.
type cohortRequestBody struct {
	Kind             models.CohortKind `json:"kind"`
	CohortPeriod     string            `json:"cohortPeriod"`
	StartDate        string            `json:"startDate"`
	EndDate          string            `json:"endDate"`
	TimeRange        string            `json:"timeRange"`
	RetentionPeriods offsetList        `json:"retentionPeriods"`
	OffsetUnit       string            `json:"offsetUnit"`
	TriggerEvent     *eventRef         `json:"triggerEvent"`
	ReturnEvent      *eventRef         `json:"returnEvent"`
	RevenueEvent     *eventRef         `json:"revenueEvent"`
	ValueProperty    string            `json:"valueProperty"`
	SiteID           string            `json:"siteId"`
}

// offsetList accepts retentionPeriods as a count N (offsets 0..N), an explicit
// list of offsets, or a comma-separated string of offsets.
type offsetList []int

func (o *offsetList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}

	switch data[0] {
	case '[':
		var list []int
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("retentionPeriods: %w", err)
		}
		*o = list
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		list, ok := utils.ParseOffsets(s)
		if !ok {
			return fmt.Errorf("retentionPeriods: %q is not a list of non-negative offsets", s)
		}
		*o = list
	default:
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("retentionPeriods: %w", err)
		}
		if n < 0 || n > maxRetentionPeriods {
			return fmt.Errorf("retentionPeriods must be between 0 and %d, got %d", maxRetentionPeriods, n)
		}
		list := make([]int, n+1)
		for i := range list {
			list[i] = i
		}
		*o = list
	}
	return nil
}

// eventRef accepts either a bare event name or a full matcher object.
type eventRef models.EventMatcher

func (e *eventRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*e = eventRef{EventName: name}
		return nil
	}
	var m models.EventMatcher
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*e = eventRef(m)
	return nil
}

func (e *eventRef) matcher() models.EventMatcher {
	if e == nil {
		return models.EventMatcher{}
	}
	return models.EventMatcher(*e)
}

// definition converts the payload into a cohort definition. A revenueEvent
// implies a revenue cohort when no kind is given.
func (b cohortRequestBody) definition(r models.TimeRange) (models.CohortDefinition, error) {
	period, ok := utils.ParsePeriod(b.CohortPeriod)
	if !ok {
		return models.CohortDefinition{}, fmt.Errorf("invalid cohortPeriod %q", b.CohortPeriod)
	}
	unit, ok := utils.ParsePeriod(b.OffsetUnit)
	if !ok {
		return models.CohortDefinition{}, fmt.Errorf("invalid offsetUnit %q", b.OffsetUnit)
	}

	kind := b.Kind
	if kind == "" && b.RevenueEvent != nil {
		kind = models.CohortRevenue
	}

	ret := b.ReturnEvent.matcher()
	if kind == models.CohortRevenue {
		ret = b.RevenueEvent.matcher()
	}

	return models.CohortDefinition{
		Kind:          kind,
		Entry:         b.TriggerEvent.matcher(),
		Return:        ret,
		Period:        period,
		Offsets:       []int(b.RetentionPeriods),
		OffsetUnit:    unit,
		ValueProperty: b.ValueProperty,
		Range:         r,
		SiteID:        b.SiteID,
	}, nil
}
