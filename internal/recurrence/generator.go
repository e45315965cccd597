package recurrence

import (
	"iter"
	"slices"
	"time"

	"cashflow/internal/core"
)

// Generate yields the occurrences of rule starting at begin, in order, for as
// long as they fall on or before until. The sequence is lazy: a consumer may
// stop early (the loan fold does) without computing later dates.
//
// An unknown frequency type yields nothing.
func Generate(begin time.Time, rule core.FrequencyRule, until time.Time) iter.Seq[time.Time] {
	stepper, err := GetStepper(rule.Type)
	return func(yield func(time.Time) bool) {
		if err != nil {
			return
		}
		anchor := Snap(begin, rule)
		periods := 0
		for !anchor.After(until) {
			if !yield(anchor) {
				return
			}
			periods += rule.Step()
			anchor = stepper.Next(begin, anchor, periods, rule)
		}
	}
}

// Occurrences collects Generate into a slice.
func Occurrences(begin time.Time, rule core.FrequencyRule, until time.Time) []time.Time {
	return slices.Collect(Generate(begin, rule, until))
}

// Until returns the effective upper bound for an item: the window end, or the
// item's end date when that comes first.
func Until(window core.Window, end *time.Time) time.Time {
	if end != nil && end.Before(window.To) {
		return *end
	}
	return window.To
}
