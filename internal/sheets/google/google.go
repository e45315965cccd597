// Package google writes projections to a Google Sheets spreadsheet using
// service account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"cashflow/internal/core"
	ports "cashflow/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// header is the first row of every projection sheet.
var header = []any{"Date", "Kind", "Title", "Description", "Amount", "Tax", "Total", "Balance"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// base name; each account gets "<base> <account>"
	sheetBase string
}

var _ ports.ProjectionWriter = (*Client)(nil)

type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SHEET_NAME (default "Projection").
func NewFromEnv(ctx context.Context) (*Client, error) {
	opts := Options{
		SpreadsheetID:   strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		SheetName:       strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME")),
		CredentialsJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		CredentialsFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
	}
	if opts.CredentialsJSON == "" && opts.CredentialsFile == "" {
		opts.CredentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return New(ctx, opts)
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if opts.SheetName == "" {
		opts.SheetName = "Projection"
	}

	credentials, err := readCredentials(opts)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets client ready",
		"spreadsheet_id", opts.SpreadsheetID,
		"sheet", opts.SheetName)

	return &Client{svc: svc, spreadsheetID: opts.SpreadsheetID, sheetBase: opts.SheetName}, nil
}

func readCredentials(opts Options) ([]byte, error) {
	switch {
	case opts.CredentialsJSON != "":
		return []byte(opts.CredentialsJSON), nil
	case opts.CredentialsFile != "":
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// WriteProjection clears the account's sheet and rewrites it with a header
// row followed by one row per transaction. The sheet is created on first use.
func (c *Client) WriteProjection(ctx context.Context, accountID string, txns []core.GeneratedTransaction) (string, error) {
	if accountID == "" {
		return "", errors.New("account id is required")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := sheetTitle(c.sheetBase, accountID)
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return "", err
	}

	rng := fmt.Sprintf("%s!A:H", quoteSheet(sheet))
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("clear %s: %w", rng, err)
	}

	values := buildRows(txns)
	vr := &gsheet.ValueRange{Values: values}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	ref := fmt.Sprintf("%s!A1:H%d", quoteSheet(sheet), len(values))
	slog.InfoContext(ctx, "Wrote projection to sheet",
		"account_id", accountID,
		"range", ref,
		"rows", len(txns))
	return ref, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	if slices.Contains(sheetTitles(ss), title) {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", title, err)
	}
	slog.InfoContext(ctx, "Created projection sheet", "sheet", title)
	return nil
}

func sheetTitles(ss *gsheet.Spreadsheet) []string {
	out := make([]string, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			out = append(out, s.Properties.Title)
		}
	}
	return out
}

// sheetTitle returns "<base> <account>".
func sheetTitle(base, accountID string) string {
	return strings.TrimSpace(base) + " " + strings.TrimSpace(accountID)
}

// quoteSheet wraps a sheet title in single quotes for A1 notation, doubling
// embedded quotes.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func buildRows(txns []core.GeneratedTransaction) [][]any {
	rows := make([][]any, 0, len(txns)+1)
	rows = append(rows, header)
	for _, t := range txns {
		rows = append(rows, []any{
			t.Date.Format(time.DateOnly),
			string(t.Kind),
			t.Title,
			t.Description,
			core.FormatAmount(t.Amount),
			core.FormatAmount(t.TaxRate),
			core.FormatAmount(t.TotalAmount),
			core.FormatBalance(t.Balance),
		})
	}
	return rows
}
