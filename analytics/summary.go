package analytics

import (
	"github.com/shopspring/decimal"

	"pushlytics/api/models"
)

// Trend labels comparing the later half of cohorts to the earlier half.
const (
	TrendImproving    = "improving"
	TrendDeclining    = "declining"
	TrendStable       = "stable"
	TrendInsufficient = "insufficient_data"
)

// trendThreshold is the headline-rate difference, in points, that counts as a change.
const trendThreshold = 5

// headlineOffset is the offset used to rank cohorts: the first requested offset
// after the entry period, or the only one there is.
func headlineOffset(offsets []int) (int, bool) {
	if len(offsets) == 0 {
		return 0, false
	}
	for _, o := range offsets {
		if o > 0 {
			return o, true
		}
	}
	return offsets[0], true
}

func headlineRate(kind models.CohortKind, stats models.PeriodStats) float64 {
	if kind == models.CohortRevenue {
		if stats.RevenueStats != nil {
			return stats.RevenueStats.ConversionRate
		}
		return 0
	}
	if stats.RetentionStats != nil {
		return stats.RetentionStats.RetentionRate
	}
	return 0
}

// SummarizeCohorts builds the summary block and the cross-cohort averages per
// offset. Averages are weighted by cohort size.
func SummarizeCohorts(def models.CohortDefinition, buckets []models.CohortBucket) (models.CohortSummary, map[string]float64, map[string]models.RevenueStats) {
	summary := models.CohortSummary{TotalCohorts: len(buckets), Trend: TrendInsufficient}
	for _, b := range buckets {
		summary.TotalUsers += b.CohortSize
	}

	var (
		retention map[string]float64
		revenue   map[string]models.RevenueStats
	)
	if def.Kind == models.CohortRevenue {
		revenue = revenueAverages(def, buckets, summary.TotalUsers)
	} else {
		retention = retentionAverages(def, buckets, summary.TotalUsers)
	}

	offset, ok := headlineOffset(def.Offsets)
	if !ok || len(buckets) == 0 {
		return summary, retention, revenue
	}
	key := models.PeriodKey(def.OffsetUnit, offset)

	rates := make([]float64, len(buckets))
	best, worst := 0, 0
	for i, b := range buckets {
		rates[i] = headlineRate(def.Kind, b.Periods[key])
		if rates[i] > rates[best] {
			best = i
		}
		if rates[i] < rates[worst] {
			worst = i
		}
	}
	summary.BestCohort = CohortLabel(def.Period, buckets[best].CohortStart)
	summary.WorstCohort = CohortLabel(def.Period, buckets[worst].CohortStart)
	summary.Trend = cohortTrend(rates)
	return summary, retention, revenue
}

func retentionAverages(def models.CohortDefinition, buckets []models.CohortBucket, totalUsers int64) map[string]float64 {
	out := make(map[string]float64, len(def.Offsets))
	for _, d := range def.Offsets {
		key := models.PeriodKey(def.OffsetUnit, d)
		var retained int64
		for _, b := range buckets {
			if s := b.Periods[key].RetentionStats; s != nil {
				retained += s.Retained
			}
		}
		out[key] = percent(retained, totalUsers)
	}
	return out
}

func revenueAverages(def models.CohortDefinition, buckets []models.CohortBucket, totalUsers int64) map[string]models.RevenueStats {
	out := make(map[string]models.RevenueStats, len(def.Offsets))
	for _, d := range def.Offsets {
		key := models.PeriodKey(def.OffsetUnit, d)
		var (
			sum    decimal.Decimal
			buyers int64
		)
		for _, b := range buckets {
			if s := b.Periods[key].RevenueStats; s != nil {
				sum = sum.Add(decimal.NewFromFloat(s.Revenue))
				buyers += s.Buyers
			}
		}
		out[key] = revenueStats(sum, buyers, totalUsers)
	}
	return out
}

// cohortTrend compares the mean headline rate of the later half of cohorts with
// the earlier half. Fewer than four cohorts is not enough to call a trend.
func cohortTrend(rates []float64) string {
	if len(rates) < 4 {
		return TrendInsufficient
	}
	mid := len(rates) / 2
	var early, late float64
	for i, r := range rates {
		if i < mid {
			early += r
		} else {
			late += r
		}
	}
	early /= float64(mid)
	late /= float64(len(rates) - mid)

	switch diff := late - early; {
	case diff > trendThreshold:
		return TrendImproving
	case diff < -trendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}
