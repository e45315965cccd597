package materialize

import "cashflow/internal/core"

var periodsPerYear = map[core.FrequencyType]float64{
	core.Daily:   365,
	core.Weekly:  52,
	core.Monthly: 12,
	core.Yearly:  1,
}

// PeriodsPerYear returns how many compounding periods a year holds for freq,
// or 0 for an unknown frequency.
func PeriodsPerYear(freq core.FrequencyType) float64 {
	return periodsPerYear[freq]
}

// CalculateInterest returns the interest accrued on principal over one period
// of freq at the given annual rate. Unknown frequencies accrue nothing.
func CalculateInterest(principal, annualRate float64, freq core.FrequencyType) float64 {
	n := PeriodsPerYear(freq)
	if n == 0 {
		return 0
	}
	return principal * (annualRate / n)
}
