package core

import (
	"errors"
	"fmt"
	"time"
)

const (
	KindExpense     TransactionKind = "expense"
	KindIncome      TransactionKind = "income"
	KindLoan        TransactionKind = "loan"
	KindTransfer    TransactionKind = "transfer"
	KindCommutePass TransactionKind = "commute_pass"
	KindPayroll     TransactionKind = "payroll"
	KindWishlist    TransactionKind = "wishlist"
)

type (
	TransactionKind string

	// GeneratedTransaction is one materialized occurrence of a recurring
	// item. Only Balance is assigned after creation.
	GeneratedTransaction struct {
		ID             string
		SourceEntityID string
		Kind           TransactionKind
		Title          string
		Description    string
		Date           time.Time
		Amount         float64 // signed, before tax/interest
		TaxRate        float64
		TotalAmount    float64 // signed, after tax/subsidy/interest
		Balance        *float64
	}

	// Window bounds a generation request. To is inclusive.
	Window struct {
		From time.Time
		To   time.Time
	}

	AccountSnapshot struct {
		AccountID string
		Name      string
		Balance   float64
	}

	// Ledger holds every record that contributes to one account's projection.
	Ledger struct {
		Account       AccountSnapshot
		Expenses      []Expense
		Incomes       []Income
		Loans         []Loan
		Transfers     []Transfer
		CommutePasses []CommutePass
		Payrolls      []Payroll
		Wishlist      []WishlistItem
	}
)

// WithBalance returns a copy of t carrying balance b.
func (t GeneratedTransaction) WithBalance(b float64) GeneratedTransaction {
	t.Balance = &b
	return t
}

func (w Window) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return ErrZeroDate
	}
	if w.To.Before(w.From) {
		return errors.New("window end must not be before window start")
	}
	return nil
}

// Validate checks every record in the ledger and returns the first failure.
// Item IDs must be unique across the whole ledger: schedules and stored
// records are keyed by ID alone.
func (l Ledger) Validate() error {
	seen := make(map[string]string)
	check := func(label, id string, err error) error {
		if err != nil {
			return fmt.Errorf("%s %s: %w", label, id, err)
		}
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("%s %s: %w (already used by %s)", label, id, ErrDuplicateID, prev)
		}
		seen[id] = label
		return nil
	}

	for _, e := range l.Expenses {
		if err := check("expense", e.ID, e.Validate()); err != nil {
			return err
		}
	}
	for _, i := range l.Incomes {
		if err := check("income", i.ID, i.Validate()); err != nil {
			return err
		}
	}
	for _, lo := range l.Loans {
		if err := check("loan", lo.ID, lo.Validate()); err != nil {
			return err
		}
	}
	for _, t := range l.Transfers {
		if err := check("transfer", t.ID, t.Validate()); err != nil {
			return err
		}
	}
	for _, c := range l.CommutePasses {
		if err := check("commute pass", c.ID, c.Validate()); err != nil {
			return err
		}
	}
	for _, p := range l.Payrolls {
		if err := check("payroll", p.ID, p.Validate()); err != nil {
			return err
		}
	}
	for _, w := range l.Wishlist {
		if err := check("wishlist item", w.ID, w.Validate()); err != nil {
			return err
		}
	}
	return nil
}
