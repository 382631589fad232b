package analytics

import (
	"github.com/shopspring/decimal"

	"pushlytics/api/models"
)

// AggregateFunnel turns per-step counts into step results, the overall
// conversion rate and the total user count.
//
// Step 0 converts at 100 when anyone entered the funnel. Later steps convert
// relative to the previous step, and any rate with a zero denominator is 0.
func AggregateFunnel(steps []models.FunnelStep, match FunnelMatch) ([]models.FunnelStepResult, float64, int64) {
	results := make([]models.FunnelStepResult, 0, len(steps))
	if len(steps) == 0 {
		return results, 0, 0
	}

	for i, step := range steps {
		users := countAt(match.Counts, i)
		var rate float64
		if i == 0 {
			if users > 0 {
				rate = 100
			}
		} else {
			rate = percent(users, countAt(match.Counts, i-1))
		}
		results = append(results, models.FunnelStepResult{
			Step:                   step.DisplayName(),
			StepNumber:             i + 1,
			Users:                  users,
			ConversionRate:         rate,
			DropOffRate:            complement(rate),
			AvgSecondsFromPrevious: avgSecondsFromPrevious(match, i),
		})
	}

	total := countAt(match.Counts, 0)
	overall := percent(countAt(match.Counts, len(steps)-1), total)
	return results, overall, total
}

func countAt(counts []int64, i int) int64 {
	if i < 0 || i >= len(counts) {
		return 0
	}
	return counts[i]
}

// avgSecondsFromPrevious is the mean gap between step i-1 and step i over users
// reaching step i.
func avgSecondsFromPrevious(match FunnelMatch, i int) float64 {
	if i == 0 {
		return 0
	}
	var (
		sum   decimal.Decimal
		users int64
	)
	for _, chosen := range match.Progress {
		if len(chosen) <= i {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(chosen[i].Sub(chosen[i-1]).Seconds()))
		users++
	}
	return ratio(sum, users)
}
