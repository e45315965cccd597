package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"cashflow/internal/core"
)

// recurringRow is the shared shape of the recurring_items table. Kind
// specific columns stay nil for the other kinds.
type recurringRow struct {
	item                 core.RecurringItem
	kind                 core.TransactionKind
	taxRate              float64
	subsidyRate          float64
	planAmount           *float64
	principal            *float64
	interestRate         *float64
	interestFrequency    *string
	sourceAccountID      *string
	destinationAccountID *string
}

const upsertRecurringSQL = `
	INSERT INTO recurring_items (
		id, account_id, kind, title, description, amount, begin_date, end_date,
		frequency_type, interval_count, day_of_month, day_of_week, week_of_month, month_of_year,
		tax_rate, subsidy_rate, plan_amount, principal, interest_rate, interest_frequency,
		source_account_id, destination_account_id, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
		account_id = excluded.account_id, kind = excluded.kind, title = excluded.title,
		description = excluded.description, amount = excluded.amount,
		begin_date = excluded.begin_date, end_date = excluded.end_date,
		frequency_type = excluded.frequency_type, interval_count = excluded.interval_count,
		day_of_month = excluded.day_of_month, day_of_week = excluded.day_of_week,
		week_of_month = excluded.week_of_month, month_of_year = excluded.month_of_year,
		tax_rate = excluded.tax_rate, subsidy_rate = excluded.subsidy_rate,
		plan_amount = excluded.plan_amount, principal = excluded.principal,
		interest_rate = excluded.interest_rate, interest_frequency = excluded.interest_frequency,
		source_account_id = excluded.source_account_id,
		destination_account_id = excluded.destination_account_id,
		updated_at = CURRENT_TIMESTAMP`

func saveRecurring(ctx context.Context, db execer, row recurringRow) error {
	it, f := row.item, row.item.Frequency
	var dow *int
	if f.DayOfWeek != nil {
		d := int(*f.DayOfWeek)
		dow = &d
	}
	_, err := db.ExecContext(ctx, upsertRecurringSQL,
		it.ID, it.AccountID, string(row.kind), it.Title, it.Description, it.Amount,
		formatTime(it.BeginDate), nullTime(it.EndDate),
		string(f.Type), f.Step(), nullInt(f.DayOfMonth), nullInt(dow), nullInt(f.WeekOfMonth), nullInt(f.MonthOfYear),
		row.taxRate, row.subsidyRate, nullFloat(row.planAmount), nullFloat(row.principal),
		nullFloat(row.interestRate), row.interestFrequency,
		row.sourceAccountID, row.destinationAccountID)
	if err != nil {
		return fmt.Errorf("save %s %s: %w", row.kind, it.ID, err)
	}
	return nil
}

// SaveExpense creates or replaces an expense.
func (r *SQLiteRepository) SaveExpense(ctx context.Context, e core.Expense) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := claimID(ctx, tx, e.ID, e.AccountID, core.KindExpense); err != nil {
			return err
		}
		return saveExpense(ctx, tx, e)
	})
}

func saveExpense(ctx context.Context, db execer, e core.Expense) error {
	return saveRecurring(ctx, db, recurringRow{item: e.RecurringItem, kind: core.KindExpense, taxRate: e.TaxRate, subsidyRate: e.SubsidyRate})
}

// SaveIncome creates or replaces an income.
func (r *SQLiteRepository) SaveIncome(ctx context.Context, i core.Income) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := claimID(ctx, tx, i.ID, i.AccountID, core.KindIncome); err != nil {
			return err
		}
		return saveIncome(ctx, tx, i)
	})
}

func saveIncome(ctx context.Context, db execer, i core.Income) error {
	return saveRecurring(ctx, db, recurringRow{item: i.RecurringItem, kind: core.KindIncome, taxRate: i.TaxRate})
}

// SaveLoan creates or replaces a loan.
func (r *SQLiteRepository) SaveLoan(ctx context.Context, l core.Loan) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := claimID(ctx, tx, l.ID, l.AccountID, core.KindLoan); err != nil {
			return err
		}
		return saveLoan(ctx, tx, l)
	})
}

func saveLoan(ctx context.Context, db execer, l core.Loan) error {
	freq := string(l.InterestFrequency)
	return saveRecurring(ctx, db, recurringRow{
		item:              l.RecurringItem,
		kind:              core.KindLoan,
		subsidyRate:       l.SubsidyRate,
		planAmount:        &l.PlanAmount,
		principal:         &l.Principal,
		interestRate:      &l.InterestRate,
		interestFrequency: &freq,
	})
}

// SaveTransfer creates or replaces a transfer. The owning account is the
// source account.
func (r *SQLiteRepository) SaveTransfer(ctx context.Context, t core.Transfer) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := claimID(ctx, tx, t.ID, t.SourceAccountID, core.KindTransfer); err != nil {
			return err
		}
		return saveTransfer(ctx, tx, t)
	})
}

func saveTransfer(ctx context.Context, db execer, t core.Transfer) error {
	item := t.RecurringItem
	item.AccountID = t.SourceAccountID
	return saveRecurring(ctx, db, recurringRow{
		item:                 item,
		kind:                 core.KindTransfer,
		sourceAccountID:      &t.SourceAccountID,
		destinationAccountID: &t.DestinationAccountID,
	})
}

// SaveCommutePass creates or replaces a commute pass.
func (r *SQLiteRepository) SaveCommutePass(ctx context.Context, c core.CommutePass) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := claimID(ctx, tx, c.ID, c.AccountID, core.KindCommutePass); err != nil {
			return err
		}
		return saveCommutePass(ctx, tx, c)
	})
}

func saveCommutePass(ctx context.Context, db execer, c core.CommutePass) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO commute_passes (id, account_id, title, description, amount, tax_rate, subsidy_rate, begin_date, end_date, day_of_week, start_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id, title = excluded.title, description = excluded.description,
			amount = excluded.amount, tax_rate = excluded.tax_rate, subsidy_rate = excluded.subsidy_rate,
			begin_date = excluded.begin_date, end_date = excluded.end_date,
			day_of_week = excluded.day_of_week, start_minutes = excluded.start_minutes`,
		c.ID, c.AccountID, c.Title, c.Description, c.Amount, c.TaxRate, c.SubsidyRate,
		formatTime(c.BeginDate), nullTime(c.EndDate), int(c.DayOfWeek), int(c.StartTime/time.Minute))
	if err != nil {
		return fmt.Errorf("save commute pass %s: %w", c.ID, err)
	}
	return nil
}

// SavePayroll creates or replaces a payroll record.
func (r *SQLiteRepository) SavePayroll(ctx context.Context, p core.Payroll) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := claimID(ctx, tx, p.ID, p.AccountID, core.KindPayroll); err != nil {
			return err
		}
		return savePayroll(ctx, tx, p)
	})
}

func savePayroll(ctx context.Context, db execer, p core.Payroll) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payrolls (id, account_id, title, description, date, amount, tax_rate) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id, title = excluded.title, description = excluded.description,
			date = excluded.date, amount = excluded.amount, tax_rate = excluded.tax_rate`,
		p.ID, p.AccountID, p.Title, p.Description, formatTime(p.Date), p.Amount, p.TaxRate)
	if err != nil {
		return fmt.Errorf("save payroll %s: %w", p.ID, err)
	}
	return nil
}

// SaveWishlistItem creates or replaces a wishlist item.
func (r *SQLiteRepository) SaveWishlistItem(ctx context.Context, w core.WishlistItem) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := claimID(ctx, tx, w.ID, w.AccountID, core.KindWishlist); err != nil {
			return err
		}
		return saveWishlistItem(ctx, tx, w)
	})
}

func saveWishlistItem(ctx context.Context, db execer, w core.WishlistItem) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO wishlist_items (id, account_id, title, description, amount, tax_rate, available_date) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id, title = excluded.title, description = excluded.description,
			amount = excluded.amount, tax_rate = excluded.tax_rate, available_date = excluded.available_date`,
		w.ID, w.AccountID, w.Title, w.Description, w.Amount, w.TaxRate, nullTime(w.AvailableDate))
	if err != nil {
		return fmt.Errorf("save wishlist item %s: %w", w.ID, err)
	}
	return nil
}

const ownerSQL = `
	SELECT account_id, kind FROM recurring_items WHERE id = ?
	UNION ALL SELECT account_id, 'commute_pass' FROM commute_passes WHERE id = ?
	UNION ALL SELECT account_id, 'payroll' FROM payrolls WHERE id = ?
	UNION ALL SELECT account_id, 'wishlist' FROM wishlist_items WHERE id = ?`

// claimID fails when id is already stored under a different account or kind.
// Re-importing a record under its own account and kind is allowed.
func claimID(ctx context.Context, tx *sql.Tx, id, accountID string, kind core.TransactionKind) error {
	rows, err := tx.QueryContext(ctx, ownerSQL, id, id, id, id)
	if err != nil {
		return fmt.Errorf("look up owner of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var owner, ownerKind string
		if err := rows.Scan(&owner, &ownerKind); err != nil {
			return fmt.Errorf("scan owner of %s: %w", id, err)
		}
		if owner != accountID || ownerKind != string(kind) {
			return fmt.Errorf("%s %s for account %s: %w (stored as %s of account %s)",
				kind, id, accountID, ErrIDConflict, ownerKind, owner)
		}
	}
	return rows.Err()
}

type itemClaim struct {
	id, accountID string
	kind          core.TransactionKind
}

func ledgerClaims(l core.Ledger) []itemClaim {
	var claims []itemClaim
	for _, e := range l.Expenses {
		claims = append(claims, itemClaim{e.ID, e.AccountID, core.KindExpense})
	}
	for _, i := range l.Incomes {
		claims = append(claims, itemClaim{i.ID, i.AccountID, core.KindIncome})
	}
	for _, lo := range l.Loans {
		claims = append(claims, itemClaim{lo.ID, lo.AccountID, core.KindLoan})
	}
	for _, t := range l.Transfers {
		claims = append(claims, itemClaim{t.ID, t.SourceAccountID, core.KindTransfer})
	}
	for _, c := range l.CommutePasses {
		claims = append(claims, itemClaim{c.ID, c.AccountID, core.KindCommutePass})
	}
	for _, p := range l.Payrolls {
		claims = append(claims, itemClaim{p.ID, p.AccountID, core.KindPayroll})
	}
	for _, w := range l.Wishlist {
		claims = append(claims, itemClaim{w.ID, w.AccountID, core.KindWishlist})
	}
	return claims
}

// ImportLedger validates and stores a whole ledger in one transaction.
// Item IDs already stored under another account or kind are rejected and
// nothing is written.
func (r *SQLiteRepository) ImportLedger(ctx context.Context, l core.Ledger) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("validate ledger %s: %w", l.Account.AccountID, err)
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range ledgerClaims(l) {
			if err := claimID(ctx, tx, c.id, c.accountID, c.kind); err != nil {
				return err
			}
		}
		if err := upsertAccount(ctx, tx, l.Account); err != nil {
			return err
		}
		for _, e := range l.Expenses {
			if err := saveExpense(ctx, tx, e); err != nil {
				return err
			}
		}
		for _, i := range l.Incomes {
			if err := saveIncome(ctx, tx, i); err != nil {
				return err
			}
		}
		for _, lo := range l.Loans {
			if err := saveLoan(ctx, tx, lo); err != nil {
				return err
			}
		}
		for _, t := range l.Transfers {
			if err := saveTransfer(ctx, tx, t); err != nil {
				return err
			}
		}
		for _, c := range l.CommutePasses {
			if err := saveCommutePass(ctx, tx, c); err != nil {
				return err
			}
		}
		for _, p := range l.Payrolls {
			if err := savePayroll(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, w := range l.Wishlist {
			if err := saveWishlistItem(ctx, tx, w); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Ledger imported",
		"account_id", l.Account.AccountID,
		"expenses", len(l.Expenses),
		"incomes", len(l.Incomes),
		"loans", len(l.Loans),
		"transfers", len(l.Transfers),
		"commute_passes", len(l.CommutePasses),
		"payrolls", len(l.Payrolls),
		"wishlist", len(l.Wishlist))
	return nil
}

// LoadLedger reads every record that affects an account's projection,
// including transfers into it from other accounts.
func (r *SQLiteRepository) LoadLedger(ctx context.Context, accountID string) (core.Ledger, error) {
	var l core.Ledger
	account, err := r.GetAccount(ctx, accountID)
	if err != nil {
		return l, err
	}
	l.Account = account

	if err := r.loadRecurring(ctx, accountID, &l); err != nil {
		return l, err
	}
	if l.CommutePasses, err = r.loadCommutePasses(ctx, accountID); err != nil {
		return l, err
	}
	if l.Payrolls, err = r.loadPayrolls(ctx, accountID); err != nil {
		return l, err
	}
	if l.Wishlist, err = r.loadWishlist(ctx, accountID); err != nil {
		return l, err
	}
	return l, nil
}

func (r *SQLiteRepository) loadRecurring(ctx context.Context, accountID string, l *core.Ledger) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, kind, title, description, amount, begin_date, end_date,
			frequency_type, interval_count, day_of_month, day_of_week, week_of_month, month_of_year,
			tax_rate, subsidy_rate, plan_amount, principal, interest_rate, interest_frequency,
			source_account_id, destination_account_id
		FROM recurring_items
		WHERE account_id = ? OR (kind = 'transfer' AND destination_account_id = ?)
		ORDER BY begin_date, id`, accountID, accountID)
	if err != nil {
		return fmt.Errorf("load recurring items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it                                  core.RecurringItem
			kind, begin, freqType               string
			end, interestFreq, source, dest     sql.NullString
			dom, dow, wom, moy                  sql.NullInt64
			taxRate, subsidyRate                float64
			planAmount, principal, interestRate sql.NullFloat64
		)
		if err := rows.Scan(&it.ID, &it.AccountID, &kind, &it.Title, &it.Description, &it.Amount, &begin, &end,
			&freqType, &it.Frequency.Interval, &dom, &dow, &wom, &moy,
			&taxRate, &subsidyRate, &planAmount, &principal, &interestRate, &interestFreq,
			&source, &dest); err != nil {
			return fmt.Errorf("scan recurring item: %w", err)
		}
		if it.BeginDate, err = parseTime(begin); err != nil {
			return err
		}
		if it.EndDate, err = parseNullTime(end); err != nil {
			return err
		}
		it.Frequency.Type = core.FrequencyType(freqType)
		it.Frequency.DayOfMonth = intPtr(dom)
		it.Frequency.WeekOfMonth = intPtr(wom)
		it.Frequency.MonthOfYear = intPtr(moy)
		if dow.Valid {
			d := time.Weekday(dow.Int64)
			it.Frequency.DayOfWeek = &d
		}

		switch core.TransactionKind(kind) {
		case core.KindExpense:
			l.Expenses = append(l.Expenses, core.Expense{RecurringItem: it, TaxRate: taxRate, SubsidyRate: subsidyRate})
		case core.KindIncome:
			l.Incomes = append(l.Incomes, core.Income{RecurringItem: it, TaxRate: taxRate})
		case core.KindLoan:
			l.Loans = append(l.Loans, core.Loan{
				RecurringItem:     it,
				PlanAmount:        planAmount.Float64,
				Principal:         principal.Float64,
				InterestRate:      interestRate.Float64,
				InterestFrequency: core.FrequencyType(interestFreq.String),
				SubsidyRate:       subsidyRate,
			})
		case core.KindTransfer:
			l.Transfers = append(l.Transfers, core.Transfer{
				RecurringItem:        it,
				SourceAccountID:      source.String,
				DestinationAccountID: dest.String,
			})
		default:
			slog.WarnContext(ctx, "Skipping recurring item with unknown kind", "item_id", it.ID, "kind", kind)
		}
	}
	return rows.Err()
}

func (r *SQLiteRepository) loadCommutePasses(ctx context.Context, accountID string) ([]core.CommutePass, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, title, description, amount, tax_rate, subsidy_rate, begin_date, end_date, day_of_week, start_minutes
		FROM commute_passes WHERE account_id = ? ORDER BY begin_date, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("load commute passes: %w", err)
	}
	defer rows.Close()

	var out []core.CommutePass
	for rows.Next() {
		var (
			c            core.CommutePass
			begin        string
			end          sql.NullString
			dow, minutes int
		)
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Title, &c.Description, &c.Amount, &c.TaxRate, &c.SubsidyRate,
			&begin, &end, &dow, &minutes); err != nil {
			return nil, fmt.Errorf("scan commute pass: %w", err)
		}
		if c.BeginDate, err = parseTime(begin); err != nil {
			return nil, err
		}
		if c.EndDate, err = parseNullTime(end); err != nil {
			return nil, err
		}
		c.DayOfWeek = time.Weekday(dow)
		c.StartTime = time.Duration(minutes) * time.Minute
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) loadPayrolls(ctx context.Context, accountID string) ([]core.Payroll, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, title, description, date, amount, tax_rate
		FROM payrolls WHERE account_id = ? ORDER BY date, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("load payrolls: %w", err)
	}
	defer rows.Close()

	var out []core.Payroll
	for rows.Next() {
		var (
			p    core.Payroll
			date string
		)
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Title, &p.Description, &date, &p.Amount, &p.TaxRate); err != nil {
			return nil, fmt.Errorf("scan payroll: %w", err)
		}
		if p.Date, err = parseTime(date); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) loadWishlist(ctx context.Context, accountID string) ([]core.WishlistItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, title, description, amount, tax_rate, available_date
		FROM wishlist_items WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("load wishlist: %w", err)
	}
	defer rows.Close()

	var out []core.WishlistItem
	for rows.Next() {
		var (
			w         core.WishlistItem
			available sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.AccountID, &w.Title, &w.Description, &w.Amount, &w.TaxRate, &available); err != nil {
			return nil, fmt.Errorf("scan wishlist item: %w", err)
		}
		if w.AvailableDate, err = parseNullTime(available); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
