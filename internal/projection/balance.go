// Package projection merges materialized transactions for one account into a
// dated balance projection and decides when wishlist purchases become
// affordable.
package projection

import (
	"slices"
	"time"

	"cashflow/internal/core"
)

// ProjectBalances sorts a copy of txns by date and attaches a running balance
// to each one, anchored at current.
//
// Transactions strictly before now are walked backwards and receive the
// balance that held before they happened. The rest are walked forwards and
// receive the balance after they happen. The two walks never share a running
// total.
func ProjectBalances(txns []core.GeneratedTransaction, now time.Time, current float64) []core.GeneratedTransaction {
	sorted := slices.Clone(txns)
	slices.SortStableFunc(sorted, func(a, b core.GeneratedTransaction) int {
		return a.Date.Compare(b.Date)
	})

	// first index dated at or after now
	split, _ := slices.BinarySearchFunc(sorted, now, func(tx core.GeneratedTransaction, t time.Time) int {
		return tx.Date.Compare(t)
	})

	running := current
	for i := split - 1; i >= 0; i-- {
		sorted[i] = sorted[i].WithBalance(running)
		running -= sorted[i].TotalAmount
	}

	running = current
	for i := split; i < len(sorted); i++ {
		running += sorted[i].TotalAmount
		sorted[i] = sorted[i].WithBalance(running)
	}
	return sorted
}
