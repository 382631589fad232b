package analytics

import (
	"github.com/shopspring/decimal"

	"pushlytics/api/models"
	"pushlytics/api/store"
)

// forEachWindow calls fn for every requested offset whose half-open window
// [start + d, start + d + 1) contains the row.
func forEachWindow(a CohortAssignment, def models.CohortDefinition, row store.ActivityRow, fn func(cohort, offsetIdx int)) {
	c, ok := a.CohortOf(row.UserID)
	if !ok {
		return
	}
	start := a.Groups[c].Start
	for i, d := range def.Offsets {
		from := def.OffsetUnit.Add(start, d)
		to := def.OffsetUnit.Add(start, d+1)
		if !row.Timestamp.Before(from) && row.Timestamp.Before(to) {
			fn(c, i)
		}
	}
}

// AggregateRetention counts, per cohort and offset, the distinct cohort users
// with a return event inside the offset window.
func AggregateRetention(a CohortAssignment, rows []store.ActivityRow, def models.CohortDefinition) []models.CohortBucket {
	retained := make([][]map[string]struct{}, len(a.Groups))
	for c := range retained {
		retained[c] = make([]map[string]struct{}, len(def.Offsets))
		for i := range retained[c] {
			retained[c][i] = make(map[string]struct{})
		}
	}
	for _, row := range rows {
		forEachWindow(a, def, row, func(c, i int) {
			retained[c][i][row.UserID] = struct{}{}
		})
	}

	buckets := make([]models.CohortBucket, len(a.Groups))
	for c, g := range a.Groups {
		b := newBucket(a.Period, g)
		for i, d := range def.Offsets {
			n := int64(len(retained[c][i]))
			b.Periods[models.PeriodKey(def.OffsetUnit, d)] = models.PeriodStats{
				Offset:      d,
				PeriodStart: def.OffsetUnit.Add(g.Start, d),
				RetentionStats: &models.RetentionStats{
					Retained:      n,
					RetentionRate: percent(n, b.CohortSize),
				},
			}
		}
		buckets[c] = b
	}
	return buckets
}

type revenueCell struct {
	revenue decimal.Decimal
	buyers  map[string]struct{}
}

// revenueValue parses a raw property value. Missing and non-numeric values are
// not revenue and must not count a buyer.
func revenueValue(raw *string) (decimal.Decimal, bool) {
	if raw == nil {
		return decimal.Zero, false
	}
	if _, ok := models.ParseNumeric(*raw); !ok {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

// AggregateRevenue sums the value property of revenue events per cohort and
// offset window, and counts distinct buyers.
func AggregateRevenue(a CohortAssignment, rows []store.ActivityRow, def models.CohortDefinition) []models.CohortBucket {
	cells := make([][]revenueCell, len(a.Groups))
	for c := range cells {
		cells[c] = make([]revenueCell, len(def.Offsets))
		for i := range cells[c] {
			cells[c][i].buyers = make(map[string]struct{})
		}
	}
	for _, row := range rows {
		value, ok := revenueValue(row.Value)
		if !ok {
			continue
		}
		forEachWindow(a, def, row, func(c, i int) {
			cells[c][i].revenue = cells[c][i].revenue.Add(value)
			cells[c][i].buyers[row.UserID] = struct{}{}
		})
	}

	buckets := make([]models.CohortBucket, len(a.Groups))
	for c, g := range a.Groups {
		b := newBucket(a.Period, g)
		for i, d := range def.Offsets {
			cell := cells[c][i]
			stats := revenueStats(cell.revenue, int64(len(cell.buyers)), b.CohortSize)
			b.Periods[models.PeriodKey(def.OffsetUnit, d)] = models.PeriodStats{
				Offset:       d,
				PeriodStart:  def.OffsetUnit.Add(g.Start, d),
				RevenueStats: &stats,
			}
		}
		buckets[c] = b
	}
	return buckets
}

func revenueStats(revenue decimal.Decimal, buyers, size int64) models.RevenueStats {
	return models.RevenueStats{
		Revenue:        round2(revenue),
		Buyers:         buyers,
		ConversionRate: percent(buyers, size),
		RevenuePerUser: ratio(revenue, size),
		AvgOrderValue:  ratio(revenue, buyers),
	}
}
