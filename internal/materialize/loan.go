package materialize

import (
	"time"

	"cashflow/internal/core"
	"cashflow/internal/recurrence"
)

// LoanSchedule is the materialized repayment plan of one loan.
type LoanSchedule struct {
	Transactions []core.GeneratedTransaction
	// PaidBackDate is the date of the payment that cleared the loan, or nil
	// when the loan is still open at the end of the window.
	PaidBackDate *time.Time
}

// amortization is the fold state carried from one payment to the next.
type amortization struct {
	remaining float64
}

// step accrues one period of interest and pays it down by at most plan.
// It returns the next state and the gross amount paid.
func (a amortization) step(l core.Loan) (amortization, float64) {
	accrued := a.remaining + CalculateInterest(a.remaining, l.InterestRate, l.InterestFrequency)
	paid := min(l.PlanAmount, accrued)
	return amortization{remaining: accrued - paid}, paid
}

func (a amortization) settled() bool {
	return a.remaining <= 0
}

// Loan materializes loan repayments until the principal is cleared or the
// window ends, whichever comes first. Subsidy reduces the cash paid, never
// the amortization.
func Loan(l core.Loan, window core.Window) LoanSchedule {
	var sched LoanSchedule
	state := amortization{remaining: l.Principal}
	seq := 0
	for date := range recurrence.Generate(l.BeginDate, l.Frequency, recurrence.Until(window, l.EndDate)) {
		var paid float64
		state, paid = state.step(l)
		cash := -(paid * (1 - l.SubsidyRate))
		sched.Transactions = append(sched.Transactions,
			newTransaction(l.ID, core.KindLoan, l.Title, l.Description, seq, date, cash, 0, cash))
		seq++
		if state.settled() {
			paidBack := date
			sched.PaidBackDate = &paidBack
			break
		}
	}
	return sched
}
