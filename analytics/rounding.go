package analytics

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// round2 rounds half away from zero to two decimal places.
func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// percent returns round2(num / den * 100), or 0 when den is not positive.
func percent(num, den int64) float64 {
	if den <= 0 {
		return 0
	}
	return round2(decimal.NewFromInt(num).Mul(hundred).Div(decimal.NewFromInt(den)))
}

// complement returns round2(100 - rate).
func complement(rate float64) float64 {
	return round2(hundred.Sub(decimal.NewFromFloat(rate)))
}

// ratio returns round2(num / den), or 0 when den is not positive.
func ratio(num decimal.Decimal, den int64) float64 {
	if den <= 0 {
		return 0
	}
	return round2(num.Div(decimal.NewFromInt(den)))
}
