package projection

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashflow/internal/core"
)

func ptr[T any](v T) *T { return &v }

// withBalances builds a sorted list of one transaction per day starting on
// start, with the given balances.
func withBalances(start time.Time, bs ...float64) []core.GeneratedTransaction {
	out := make([]core.GeneratedTransaction, len(bs))
	for i, b := range bs {
		out[i] = tx("t", start.AddDate(0, 0, i), 0).WithBalance(b)
	}
	return out
}

func TestAffordableFrom(t *testing.T) {
	start := day(2024, 1, 1)
	tests := []struct {
		name     string
		balances []float64
		amount   float64
		want     time.Time
		wantOK   bool
	}{
		{"always affordable", []float64{600, 700, 800}, 500, start, true},
		{"later dip invalidates earlier date", []float64{600, 400, 700, 800}, 500, start.AddDate(0, 0, 2), true},
		{"never affordable at the end", []float64{600, 700, 300}, 500, time.Time{}, false},
		{"exact threshold counts", []float64{100, 500, 500}, 500, start.AddDate(0, 0, 1), true},
		{"empty", nil, 500, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AffordableFrom(withBalances(start, tt.balances...), tt.amount)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAffordableFrom_SameDateGroup(t *testing.T) {
	d := day(2024, 1, 5)
	sorted := []core.GeneratedTransaction{
		tx("a", day(2024, 1, 1), 0).WithBalance(900),
		tx("b", d, 0).WithBalance(400),
		tx("c", d, 0).WithBalance(900),
		tx("d", day(2024, 1, 9), 0).WithBalance(900),
	}
	got, ok := AffordableFrom(sorted, 500)
	require.True(t, ok)
	assert.Equal(t, day(2024, 1, 9), got, "a dip anywhere on a date disqualifies that date")
}

func TestAffordableFrom_SustainsAfterResult(t *testing.T) {
	sorted := withBalances(day(2024, 1, 1), 900, 200, 800, 100, 650, 700, 520, 990)
	got, ok := AffordableFrom(sorted, 500)
	require.True(t, ok)
	for _, tx := range sorted {
		if !tx.Date.Before(got) {
			assert.GreaterOrEqual(t, *tx.Balance, 500.0, "balance on %s", tx.Date.Format("2006-01-02"))
		}
	}
}

func TestPurchase(t *testing.T) {
	sorted := withBalances(day(2024, 1, 1), 300, 800, 900)
	w := core.Window{From: day(2024, 1, 1), To: day(2024, 3, 31)}
	item := core.WishlistItem{ID: "bike", AccountID: "checking", Title: "Bike", Amount: 500, TaxRate: 0.2}

	t.Run("earliest sustainable date", func(t *testing.T) {
		p, skipped, ok := Purchase(sorted, item, w)
		require.True(t, ok)
		assert.False(t, skipped)
		assert.Equal(t, day(2024, 1, 2), p.Date)
		assert.Equal(t, core.KindWishlist, p.Kind)
		assert.Equal(t, -500.0, p.Amount)
		assert.InDelta(t, -600, p.TotalAmount, 1e-9)
		assert.Nil(t, p.Balance)
	})

	t.Run("clamped to available date", func(t *testing.T) {
		it := item
		it.AvailableDate = ptr(day(2024, 2, 14))
		p, _, ok := Purchase(sorted, it, w)
		require.True(t, ok)
		assert.Equal(t, day(2024, 2, 14), p.Date)
	})

	t.Run("before window is skipped", func(t *testing.T) {
		_, skipped, ok := Purchase(sorted, item, core.Window{From: day(2024, 1, 10), To: day(2024, 3, 31)})
		require.True(t, ok)
		assert.True(t, skipped)
	})

	t.Run("never affordable", func(t *testing.T) {
		it := item
		it.Amount = 5000
		_, _, ok := Purchase(sorted, it, w)
		assert.False(t, ok)
	})
}

func TestPurchase_Idempotent(t *testing.T) {
	sorted := withBalances(day(2024, 1, 1), 300, 800, 450, 900, 950)
	w := core.Window{From: day(2024, 1, 1), To: day(2024, 3, 31)}
	item := core.WishlistItem{ID: "tv", AccountID: "checking", Title: "TV", Amount: 500}

	first, _, ok := Purchase(sorted, item, w)
	require.True(t, ok)

	require.Equal(t, day(2024, 1, 4), first.Date)

	// feed the scanner its own output, purchase included
	again, _, ok := Purchase(slices.Insert(slices.Clone(sorted), 3, first), item, w)
	require.True(t, ok)
	assert.Equal(t, first, again)
}
