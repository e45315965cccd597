// Package storage persists ledger records, materialized projections and
// cron schedules in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cashflow/internal/core"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrIDConflict is returned when an import reuses an item ID that is
	// already stored for another account or another kind of record.
	ErrIDConflict = errors.New("item id owned by another record")
)

// timeLayout is how every date column is stored.
const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UpsertAccount creates or updates an account and its current balance.
func (r *SQLiteRepository) UpsertAccount(ctx context.Context, a core.AccountSnapshot) error {
	return upsertAccount(ctx, r.db, a)
}

func upsertAccount(ctx context.Context, db execer, a core.AccountSnapshot) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, balance, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, balance = excluded.balance, updated_at = CURRENT_TIMESTAMP`,
		a.AccountID, a.Name, a.Balance)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", a.AccountID, err)
	}
	return nil
}

// GetAccount returns one account or ErrNotFound.
func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.AccountSnapshot, error) {
	var a core.AccountSnapshot
	err := r.db.QueryRowContext(ctx, `SELECT id, name, balance FROM accounts WHERE id = ?`, id).
		Scan(&a.AccountID, &a.Name, &a.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return a, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

// ListAccounts returns every account ordered by ID.
func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.AccountSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, balance FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.AccountSnapshot
	for rows.Next() {
		var a core.AccountSnapshot
		if err := rows.Scan(&a.AccountID, &a.Name, &a.Balance); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ProjectedTransaction is a stored projection row.
type ProjectedTransaction struct {
	core.GeneratedTransaction
	Skipped bool
}

// ReplaceProjection swaps the stored projection of an account for a new one.
func (r *SQLiteRepository) ReplaceProjection(ctx context.Context, accountID string, included, skipped []core.GeneratedTransaction) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM projected_transactions WHERE account_id = ?`, accountID); err != nil {
			return fmt.Errorf("clear projection: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO projected_transactions
				(account_id, id, source_entity_id, kind, title, description, date, amount, tax_rate, total_amount, balance, skipped)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare projection insert: %w", err)
		}
		defer stmt.Close()

		insert := func(t core.GeneratedTransaction, isSkipped bool) error {
			_, err := stmt.ExecContext(ctx, accountID, t.ID, t.SourceEntityID, string(t.Kind), t.Title, t.Description,
				formatTime(t.Date), t.Amount, t.TaxRate, t.TotalAmount, nullFloat(t.Balance), isSkipped)
			if err != nil {
				return fmt.Errorf("insert projected transaction %s: %w", t.ID, err)
			}
			return nil
		}
		for _, t := range included {
			if err := insert(t, false); err != nil {
				return err
			}
		}
		for _, t := range skipped {
			if err := insert(t, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Projection stored",
		"account_id", accountID,
		"included", len(included),
		"skipped", len(skipped))
	return nil
}

// ListProjection returns the stored projection of an account by date.
func (r *SQLiteRepository) ListProjection(ctx context.Context, accountID string) ([]ProjectedTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_entity_id, kind, title, description, date, amount, tax_rate, total_amount, balance, skipped
		FROM projected_transactions WHERE account_id = ? ORDER BY date, rowid`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list projection: %w", err)
	}
	defer rows.Close()

	var out []ProjectedTransaction
	for rows.Next() {
		var (
			p       ProjectedTransaction
			kind    string
			date    string
			balance sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &p.SourceEntityID, &kind, &p.Title, &p.Description, &date,
			&p.Amount, &p.TaxRate, &p.TotalAmount, &balance, &p.Skipped); err != nil {
			return nil, fmt.Errorf("scan projected transaction: %w", err)
		}
		p.Kind = core.TransactionKind(kind)
		if p.Date, err = parseTime(date); err != nil {
			return nil, err
		}
		if balance.Valid {
			b := balance.Float64
			p.Balance = &b
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Schedule is the cron expression that re-triggers one item.
type Schedule struct {
	AccountID  string
	ItemID     string
	Kind       core.TransactionKind
	Expression string
	UpdatedAt  time.Time
}

// UpsertSchedule stores the cron expression of one item.
func (r *SQLiteRepository) UpsertSchedule(ctx context.Context, s Schedule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedules (account_id, item_id, kind, cron_expression, updated_at) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account_id, item_id) DO UPDATE SET
			kind = excluded.kind, cron_expression = excluded.cron_expression, updated_at = CURRENT_TIMESTAMP`,
		s.AccountID, s.ItemID, string(s.Kind), s.Expression)
	if err != nil {
		return fmt.Errorf("upsert schedule %s: %w", s.ItemID, err)
	}
	return nil
}

// ListSchedules returns the schedules of an account ordered by item ID.
func (r *SQLiteRepository) ListSchedules(ctx context.Context, accountID string) ([]Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, item_id, kind, cron_expression, updated_at
		FROM schedules WHERE account_id = ? ORDER BY item_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		var (
			s         Schedule
			kind      string
			updatedAt sql.NullString
		)
		if err := rows.Scan(&s.AccountID, &s.ItemID, &kind, &s.Expression, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		s.Kind = core.TransactionKind(kind)
		s.UpdatedAt = parseTimestamp(updatedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

// parseTimestamp reads a CURRENT_TIMESTAMP column, which the driver may hand
// back either as SQLite text or already converted.
func parseTimestamp(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	for _, layout := range []string{timeLayout, time.DateTime} {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
