// Package materialize turns recurring records into dated, signed transactions.
//
// Every recurring entity shares the recurrence generator; only the per
// occurrence arithmetic differs. Materializers never look at "now" or at the
// window start: that is the classifier's job.
package materialize

import (
	"time"

	"cashflow/internal/core"
	"cashflow/internal/recurrence"
)

// amountsFunc returns the signed pre-tax amount and the signed total for one
// occurrence of an entity.
type amountsFunc func(date time.Time) (amount, total float64)

// recurring expands item over window and applies fn to every occurrence.
func recurring(item core.RecurringItem, kind core.TransactionKind, taxRate float64, window core.Window, fn amountsFunc) []core.GeneratedTransaction {
	var out []core.GeneratedTransaction
	seq := 0
	for date := range recurrence.Generate(item.BeginDate, item.Frequency, recurrence.Until(window, item.EndDate)) {
		amount, total := fn(date)
		out = append(out, newTransaction(item.ID, kind, item.Title, item.Description, seq, date, amount, taxRate, total))
		seq++
	}
	return out
}

func newTransaction(sourceID string, kind core.TransactionKind, title, description string, seq int, date time.Time, amount, taxRate, total float64) core.GeneratedTransaction {
	return core.GeneratedTransaction{
		ID:             TransactionID(sourceID, kind, seq, date),
		SourceEntityID: sourceID,
		Kind:           kind,
		Title:          title,
		Description:    description,
		Date:           date,
		Amount:         amount,
		TaxRate:        taxRate,
		TotalAmount:    total,
	}
}

// Expense materializes an expense. Subsidy is applied before tax.
func Expense(e core.Expense, window core.Window) []core.GeneratedTransaction {
	return recurring(e.RecurringItem, core.KindExpense, e.TaxRate, window, func(time.Time) (float64, float64) {
		return taxedOutflow(e.Amount, e.SubsidyRate, e.TaxRate)
	})
}

// Income materializes an income. Amounts are positive.
func Income(i core.Income, window core.Window) []core.GeneratedTransaction {
	return recurring(i.RecurringItem, core.KindIncome, i.TaxRate, window, func(time.Time) (float64, float64) {
		return i.Amount, i.Amount * (1 + i.TaxRate)
	})
}

// Transfer materializes a transfer as seen from accountID: money arriving in
// the destination account is positive, everything else is negative.
func Transfer(t core.Transfer, accountID string, window core.Window) []core.GeneratedTransaction {
	amount := -t.Amount
	if t.DestinationAccountID == accountID {
		amount = t.Amount
	}
	return recurring(t.RecurringItem, core.KindTransfer, 0, window, func(time.Time) (float64, float64) {
		return amount, amount
	})
}

// Payroll passes an already computed pay slip through as one transaction.
func Payroll(p core.Payroll) core.GeneratedTransaction {
	return newTransaction(p.ID, core.KindPayroll, p.Title, p.Description, 0, p.Date, p.Amount, p.TaxRate, p.Amount)
}

// taxedOutflow returns the negative amount after subsidy and the negative
// total after subsidy and tax.
func taxedOutflow(amount, subsidyRate, taxRate float64) (float64, float64) {
	afterSubsidy := amount * (1 - subsidyRate)
	return -afterSubsidy, -(afterSubsidy * (1 + taxRate))
}
