package projection

import (
	"time"

	"cashflow/internal/core"
	"cashflow/internal/materialize"
)

// AffordableFrom returns the earliest transaction date d such that every
// transaction dated on or after d carries a balance of at least amount.
// sorted must be ascending by date; entries without a balance are ignored.
//
// A single backward pass over date groups is enough: once a group dips below
// amount, no earlier date can sustain it.
func AffordableFrom(sorted []core.GeneratedTransaction, amount float64) (time.Time, bool) {
	var (
		found bool
		best  time.Time
	)
	for end := len(sorted); end > 0; {
		date := sorted[end-1].Date
		start := end - 1
		for start > 0 && sorted[start-1].Date.Equal(date) {
			start--
		}
		for _, tx := range sorted[start:end] {
			if tx.Balance != nil && *tx.Balance < amount {
				return best, found
			}
		}
		best, found = date, true
		end = start
	}
	return best, found
}

// Purchase schedules a wishlist item on the first sustainably affordable date,
// never before the item becomes available. It reports whether the purchase
// falls before the window and so belongs with the skipped transactions.
// The bool ok is false when the item never becomes affordable.
func Purchase(sorted []core.GeneratedTransaction, item core.WishlistItem, window core.Window) (tx core.GeneratedTransaction, skipped, ok bool) {
	date, ok := AffordableFrom(sorted, item.Amount)
	if !ok {
		return core.GeneratedTransaction{}, false, false
	}
	if item.AvailableDate != nil && item.AvailableDate.After(date) {
		date = *item.AvailableDate
	}
	tx = core.GeneratedTransaction{
		ID:             materialize.TransactionID(item.ID, core.KindWishlist, 0, date),
		SourceEntityID: item.ID,
		Kind:           core.KindWishlist,
		Title:          item.Title,
		Description:    item.Description,
		Date:           date,
		Amount:         -item.Amount,
		TaxRate:        item.TaxRate,
		TotalAmount:    -(item.Amount * (1 + item.TaxRate)),
	}
	return tx, date.Before(window.From), true
}
