package materialize

import (
	"iter"
	"time"

	"cashflow/internal/core"
	"cashflow/internal/recurrence"
)

// commuteDates yields the purchase times of a weekly pass: the first time on
// or after begin that falls on the pass weekday at its start time, then every
// seven days.
func commuteDates(c core.CommutePass, until time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		next := c.StartOn(c.BeginDate)
		next = next.AddDate(0, 0, (int(c.DayOfWeek)-int(next.Weekday())+7)%7)
		if next.Before(c.BeginDate) {
			next = next.AddDate(0, 0, 7)
		}
		for ; !next.After(until); next = next.AddDate(0, 0, 7) {
			if !yield(next) {
				return
			}
		}
	}
}

// CommutePass materializes weekly pass purchases. Arithmetic is the same as
// an expense.
func CommutePass(c core.CommutePass, window core.Window) []core.GeneratedTransaction {
	amount, total := taxedOutflow(c.Amount, c.SubsidyRate, c.TaxRate)
	var out []core.GeneratedTransaction
	seq := 0
	for date := range commuteDates(c, recurrence.Until(window, c.EndDate)) {
		out = append(out, newTransaction(c.ID, core.KindCommutePass, c.Title, c.Description, seq, date, amount, c.TaxRate, total))
		seq++
	}
	return out
}
