package materialize

import (
	"time"

	"cashflow/internal/core"
)

// Classify partitions txns relative to now and the window start. Anything at
// or before now is dropped; the rest goes to skipped when it precedes
// window.From and to included otherwise. Input order is preserved.
func Classify(txns []core.GeneratedTransaction, window core.Window, now time.Time) (included, skipped []core.GeneratedTransaction) {
	for _, tx := range txns {
		switch {
		case !tx.Date.After(now):
			// already history
		case tx.Date.Before(window.From):
			skipped = append(skipped, tx)
		default:
			included = append(included, tx)
		}
	}
	return included, skipped
}
