package projection

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"cashflow/internal/core"
	"cashflow/internal/materialize"
)

// Request is one account's projection input.
type Request struct {
	Ledger core.Ledger
	Window core.Window
	Now    time.Time
}

// Result is one account's projection.
type Result struct {
	AccountID string
	// Transactions holds every included and skipped occurrence sorted by
	// date, each with its projected balance.
	Transactions []core.GeneratedTransaction
	// Included and Skipped partition Transactions and keep its date order,
	// so each entity's occurrences stay in generation order. Scheduled
	// purchases are appended after the balanced entries.
	Included []core.GeneratedTransaction
	Skipped  []core.GeneratedTransaction
	// LoanPayoffs maps loan IDs to the date they are cleared, or nil when
	// still open at the end of the window.
	LoanPayoffs map[string]*time.Time
	// Purchases are the scheduled wishlist items. They carry no balance and
	// also appear in Included or Skipped.
	Purchases []core.GeneratedTransaction
}

// Engine runs projections. Entities are materialized in parallel; the zero
// value runs them without a concurrency limit.
type Engine struct {
	concurrency int
}

// NewEngine returns an engine materializing at most concurrency entities at
// a time. Values below one disable the limit.
func NewEngine(concurrency int) *Engine {
	return &Engine{concurrency: concurrency}
}

// entityOutput is the slot one entity writes into.
type entityOutput struct {
	txns   []core.GeneratedTransaction
	loanID string
	payoff *time.Time
}

// Project materializes every entity in the ledger, classifies the
// occurrences against the window, projects balances and schedules wishlist
// purchases. The only error it returns is context cancellation.
func (e *Engine) Project(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tasks := buildTasks(req)
	outputs := make([]entityOutput, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outputs[i] = task()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("materialize entities: %w", err)
	}

	res := &Result{
		AccountID:   req.Ledger.Account.AccountID,
		LoanPayoffs: make(map[string]*time.Time),
	}
	var included, skipped []core.GeneratedTransaction
	for _, out := range outputs {
		inc, skp := materialize.Classify(out.txns, req.Window, req.Now)
		included = append(included, inc...)
		skipped = append(skipped, skp...)
		if out.loanID != "" {
			res.LoanPayoffs[out.loanID] = out.payoff
		}
	}

	skippedIDs := make(map[string]struct{}, len(skipped))
	for _, tx := range skipped {
		skippedIDs[tx.ID] = struct{}{}
	}
	all := make([]core.GeneratedTransaction, 0, len(included)+len(skipped))
	all = append(all, included...)
	all = append(all, skipped...)
	res.Transactions = ProjectBalances(all, req.Now, req.Ledger.Account.Balance)
	for _, tx := range res.Transactions {
		if _, ok := skippedIDs[tx.ID]; ok {
			res.Skipped = append(res.Skipped, tx)
		} else {
			res.Included = append(res.Included, tx)
		}
	}

	for _, item := range req.Ledger.Wishlist {
		tx, beforeWindow, ok := Purchase(res.Transactions, item, req.Window)
		if !ok {
			continue
		}
		res.Purchases = append(res.Purchases, tx)
		if beforeWindow {
			res.Skipped = append(res.Skipped, tx)
		} else {
			res.Included = append(res.Included, tx)
		}
	}
	return res, nil
}

// buildTasks builds one materialization closure per entity, in ledger order.
func buildTasks(req Request) []func() entityOutput {
	l, w := req.Ledger, req.Window
	var tasks []func() entityOutput
	for _, x := range l.Expenses {
		tasks = append(tasks, func() entityOutput { return entityOutput{txns: materialize.Expense(x, w)} })
	}
	for _, x := range l.Incomes {
		tasks = append(tasks, func() entityOutput { return entityOutput{txns: materialize.Income(x, w)} })
	}
	for _, x := range l.Loans {
		tasks = append(tasks, func() entityOutput {
			sched := materialize.Loan(x, w)
			return entityOutput{txns: sched.Transactions, loanID: x.ID, payoff: sched.PaidBackDate}
		})
	}
	for _, x := range l.Transfers {
		tasks = append(tasks, func() entityOutput {
			return entityOutput{txns: materialize.Transfer(x, l.Account.AccountID, w)}
		})
	}
	for _, x := range l.CommutePasses {
		tasks = append(tasks, func() entityOutput { return entityOutput{txns: materialize.CommutePass(x, w)} })
	}
	for _, x := range l.Payrolls {
		if x.Date.After(w.To) {
			continue
		}
		tasks = append(tasks, func() entityOutput {
			return entityOutput{txns: []core.GeneratedTransaction{materialize.Payroll(x)}}
		})
	}
	return tasks
}
