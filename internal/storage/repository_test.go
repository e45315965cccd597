package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashflow/internal/core"
)

func ptr[T any](v T) *T { return &v }

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleLedger() core.Ledger {
	monthly := core.FrequencyRule{Type: core.Monthly, Interval: 1}
	return core.Ledger{
		Account: core.AccountSnapshot{AccountID: "checking", Name: "Checking", Balance: 1200.5},
		Expenses: []core.Expense{{
			RecurringItem: core.RecurringItem{
				ID: "rent", AccountID: "checking", Title: "Rent", Amount: 900,
				BeginDate: day(2024, 1, 1), EndDate: ptr(day(2025, 1, 1)),
				Frequency: core.FrequencyRule{Type: core.Monthly, Interval: 1, DayOfWeek: ptr(time.Monday), WeekOfMonth: ptr(core.WeekOfMonthLast)},
			},
			TaxRate:     0.1,
			SubsidyRate: 0.2,
		}},
		Incomes: []core.Income{{
			RecurringItem: core.RecurringItem{ID: "salary", AccountID: "checking", Title: "Salary", Amount: 2500, BeginDate: day(2024, 1, 27), Frequency: monthly},
			TaxRate:       0.05,
		}},
		Loans: []core.Loan{{
			RecurringItem:     core.RecurringItem{ID: "car", AccountID: "checking", Title: "Car", BeginDate: day(2024, 2, 15), Frequency: monthly},
			PlanAmount:        250,
			Principal:         8000,
			InterestRate:      0.049,
			InterestFrequency: core.Monthly,
		}},
		Transfers: []core.Transfer{{
			RecurringItem:        core.RecurringItem{ID: "to-savings", AccountID: "checking", Title: "Savings", Amount: 200, BeginDate: day(2024, 1, 28), Frequency: monthly},
			SourceAccountID:      "checking",
			DestinationAccountID: "savings",
		}},
		CommutePasses: []core.CommutePass{{
			ID: "metro", AccountID: "checking", Title: "Metro", Amount: 22, SubsidyRate: 0.5,
			BeginDate: day(2024, 1, 1), DayOfWeek: time.Monday, StartTime: 7*time.Hour + 30*time.Minute,
		}},
		Payrolls: []core.Payroll{{ID: "bonus", AccountID: "checking", Title: "Bonus", Date: day(2024, 6, 30), Amount: 1000, TaxRate: 0.23}},
		Wishlist: []core.WishlistItem{{ID: "bike", AccountID: "checking", Title: "Bike", Amount: 700, AvailableDate: ptr(day(2024, 4, 1))}},
	}
}

func TestSQLiteRepository_ImportAndLoadLedger(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	want := sampleLedger()

	require.NoError(t, repo.ImportLedger(ctx, want))

	got, err := repo.LoadLedger(ctx, "checking")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSQLiteRepository_ImportIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	l := sampleLedger()

	require.NoError(t, repo.ImportLedger(ctx, l))
	l.Expenses[0].Amount = 950
	require.NoError(t, repo.ImportLedger(ctx, l))

	got, err := repo.LoadLedger(ctx, "checking")
	require.NoError(t, err)
	require.Len(t, got.Expenses, 1)
	assert.Equal(t, 950.0, got.Expenses[0].Amount)
}

func TestSQLiteRepository_ImportRejectsInvalidLedger(t *testing.T) {
	repo := newTestRepo(t)
	l := sampleLedger()
	l.Incomes[0].TaxRate = 3

	err := repo.ImportLedger(context.Background(), l)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidRate)

	_, err = repo.GetAccount(context.Background(), "checking")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteRepository_ImportRejectsSharedItemIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	monthly := core.FrequencyRule{Type: core.Monthly, Interval: 1}
	item := func(account string) core.RecurringItem {
		return core.RecurringItem{ID: "x", AccountID: account, Title: "X", Amount: 10, BeginDate: day(2024, 1, 1), Frequency: monthly}
	}

	// Same ID for two kinds inside one ledger never reaches the database.
	mixed := core.Ledger{
		Account:  core.AccountSnapshot{AccountID: "a", Name: "A"},
		Expenses: []core.Expense{{RecurringItem: item("a")}},
		Incomes:  []core.Income{{RecurringItem: item("a")}},
	}
	err := repo.ImportLedger(ctx, mixed)
	require.ErrorIs(t, err, core.ErrDuplicateID)
	_, err = repo.GetAccount(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	mixed.Incomes = nil
	require.NoError(t, repo.ImportLedger(ctx, mixed))

	t.Run("another account", func(t *testing.T) {
		other := core.Ledger{
			Account:  core.AccountSnapshot{AccountID: "b", Name: "B"},
			Expenses: []core.Expense{{RecurringItem: item("b")}},
		}
		err := repo.ImportLedger(ctx, other)
		require.ErrorIs(t, err, ErrIDConflict)
		assert.Contains(t, err.Error(), "stored as expense of account a")

		_, err = repo.GetAccount(ctx, "b")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("another kind", func(t *testing.T) {
		err := repo.SaveIncome(ctx, core.Income{RecurringItem: item("a")})
		assert.ErrorIs(t, err, ErrIDConflict)

		err = repo.SavePayroll(ctx, core.Payroll{ID: "x", AccountID: "a", Date: day(2024, 2, 1), Amount: 5})
		assert.ErrorIs(t, err, ErrIDConflict)
	})

	got, err := repo.LoadLedger(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got.Expenses, 1)
	assert.Equal(t, "x", got.Expenses[0].ID)
	assert.Empty(t, got.Incomes)
	assert.Empty(t, got.Payrolls)
}

func TestSQLiteRepository_TransfersVisibleToDestination(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.ImportLedger(ctx, sampleLedger()))
	require.NoError(t, repo.UpsertAccount(ctx, core.AccountSnapshot{AccountID: "savings", Name: "Savings", Balance: 5000}))

	savings, err := repo.LoadLedger(ctx, "savings")
	require.NoError(t, err)
	require.Len(t, savings.Transfers, 1)
	assert.Equal(t, "to-savings", savings.Transfers[0].ID)
	assert.Empty(t, savings.Expenses)
	assert.Equal(t, 5000.0, savings.Account.Balance)
}

func TestSQLiteRepository_Accounts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertAccount(ctx, core.AccountSnapshot{AccountID: "b", Name: "B", Balance: 1}))
	require.NoError(t, repo.UpsertAccount(ctx, core.AccountSnapshot{AccountID: "a", Name: "A", Balance: 2}))
	require.NoError(t, repo.UpsertAccount(ctx, core.AccountSnapshot{AccountID: "a", Name: "A2", Balance: 3}))

	accounts, err := repo.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.AccountSnapshot{
		{AccountID: "a", Name: "A2", Balance: 3},
		{AccountID: "b", Name: "B", Balance: 1},
	}, accounts)

	_, err = repo.LoadLedger(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteRepository_ReplaceProjection(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	included := []core.GeneratedTransaction{
		{ID: "t2", SourceEntityID: "rent", Kind: core.KindExpense, Title: "Rent", Date: day(2024, 2, 1), Amount: -900, TotalAmount: -990, Balance: ptr(10.0)},
		{ID: "w1", SourceEntityID: "bike", Kind: core.KindWishlist, Title: "Bike", Date: day(2024, 3, 1), Amount: -700, TotalAmount: -700},
	}
	skipped := []core.GeneratedTransaction{
		{ID: "t1", SourceEntityID: "rent", Kind: core.KindExpense, Title: "Rent", Date: day(2024, 1, 1), Amount: -900, TotalAmount: -990, Balance: ptr(1000.0)},
	}

	require.NoError(t, repo.ReplaceProjection(ctx, "checking", included, skipped))
	require.NoError(t, repo.ReplaceProjection(ctx, "savings", included[:1], nil))

	got, err := repo.ListProjection(ctx, "checking")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "t1", got[0].ID)
	assert.True(t, got[0].Skipped)
	assert.Equal(t, 1000.0, *got[0].Balance)
	assert.Equal(t, "t2", got[1].ID)
	assert.False(t, got[1].Skipped)
	assert.Nil(t, got[2].Balance)
	assert.Equal(t, core.KindWishlist, got[2].Kind)

	require.NoError(t, repo.ReplaceProjection(ctx, "checking", included[:1], nil))
	got, err = repo.ListProjection(ctx, "checking")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	other, err := repo.ListProjection(ctx, "savings")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestSQLiteRepository_Schedules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertSchedule(ctx, Schedule{AccountID: "checking", ItemID: "rent", Kind: core.KindExpense, Expression: "0 0 1 */1 *"}))
	require.NoError(t, repo.UpsertSchedule(ctx, Schedule{AccountID: "checking", ItemID: "gym", Kind: core.KindExpense, Expression: "0 7 * * 1"}))
	require.NoError(t, repo.UpsertSchedule(ctx, Schedule{AccountID: "checking", ItemID: "rent", Kind: core.KindExpense, Expression: "0 0 2 */1 *"}))

	got, err := repo.ListSchedules(ctx, "checking")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "gym", got[0].ItemID)
	assert.Equal(t, "0 0 2 */1 *", got[1].Expression)
}

func TestSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	v, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}
