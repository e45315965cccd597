// Package recurrence expands frequency rules into concrete occurrence dates.
//
// Each frequency type has its own Stepper that encapsulates how the anchor
// advances from one occurrence to the next. Steppers are looked up through a
// registry so new frequency types can be added without touching the generator.
package recurrence

import (
	"fmt"
	"time"

	"cashflow/internal/core"
)

// Stepper is the strategy interface for advancing a recurrence anchor.
type Stepper interface {
	// Next returns the occurrence following prev. periods is the total number
	// of periods added to begin so far, including this step.
	Next(begin, prev time.Time, periods int, rule core.FrequencyRule) time.Time
}

// DailyStepper advances by Interval days from the previous occurrence.
type DailyStepper struct{}

func (DailyStepper) Next(_, prev time.Time, _ int, rule core.FrequencyRule) time.Time {
	return prev.AddDate(0, 0, rule.Step())
}

// WeeklyStepper advances by Interval weeks from the previous occurrence.
type WeeklyStepper struct{}

func (WeeklyStepper) Next(_, prev time.Time, _ int, rule core.FrequencyRule) time.Time {
	return prev.AddDate(0, 0, 7*rule.Step())
}

// MonthlyStepper re-derives every occurrence from begin so that weekday
// snapping never drifts.
type MonthlyStepper struct{}

func (MonthlyStepper) Next(begin, _ time.Time, periods int, rule core.FrequencyRule) time.Time {
	return Snap(AddMonths(begin, periods), rule)
}

// YearlyStepper re-derives every occurrence from begin, one year per period.
type YearlyStepper struct{}

func (YearlyStepper) Next(begin, _ time.Time, periods int, rule core.FrequencyRule) time.Time {
	return Snap(AddMonths(begin, 12*periods), rule)
}

// steppers maps frequency types to their strategies.
var steppers = map[core.FrequencyType]Stepper{
	core.Daily:   DailyStepper{},
	core.Weekly:  WeeklyStepper{},
	core.Monthly: MonthlyStepper{},
	core.Yearly:  YearlyStepper{},
}

// GetStepper returns the stepper for a frequency type.
func GetStepper(frequency core.FrequencyType) (Stepper, error) {
	s, ok := steppers[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency type: %s", frequency)
	}
	return s, nil
}

// RegisterStepper registers a stepper for a new frequency type.
func RegisterStepper(frequency core.FrequencyType, s Stepper) {
	steppers[frequency] = s
}

// AddMonths adds n months to t, clamping the day to the target month's last
// day (Jan 31 + 1 month = Feb 28/29). Time of day is preserved.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// Snap applies the rule's month-of-year, day-of-week and week-of-month
// refinements to t. Daily rules are returned unchanged.
func Snap(t time.Time, rule core.FrequencyRule) time.Time {
	if rule.Type == core.Daily {
		return t
	}
	if rule.Type == core.Yearly && rule.MonthOfYear != nil {
		t = withMonth(t, time.Month(*rule.MonthOfYear+1))
	}
	if rule.DayOfWeek == nil {
		return t
	}

	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	offset := (int(*rule.DayOfWeek) - int(first.Weekday()) + 7) % 7
	t = first.AddDate(0, 0, offset)

	if rule.WeekOfMonth == nil || rule.Type == core.Weekly {
		return t
	}
	week := *rule.WeekOfMonth
	shifted := t.AddDate(0, 0, 7*week)
	// "last" stays inside the month even when it only has four matches
	if week >= core.WeekOfMonthLast && shifted.Month() != t.Month() {
		shifted = shifted.AddDate(0, 0, -7)
	}
	return shifted
}

func withMonth(t time.Time, m time.Month) time.Time {
	first := time.Date(t.Year(), m, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	d := t.Day()
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(first time.Time) int {
	return time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
