package commands

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cashflow/internal/core"
	"cashflow/internal/projection"
)

type projectOptions struct {
	rules       string
	account     string
	from        string
	to          string
	now         string
	balance     float64
	concurrency int
}

func newProjectCommand() *cobra.Command {
	var opts projectOptions

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Print an account's projected transactions and balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := loadLedger(opts.rules, opts.account)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("balance") {
				ledger.Account.Balance = opts.balance
			}

			req, err := opts.request(ledger)
			if err != nil {
				return err
			}
			res, err := projection.NewEngine(opts.concurrency).Project(cmd.Context(), req)
			if err != nil {
				return err
			}

			commandLogger(cmd.ErrOrStderr()).Debug("Projection computed",
				"account_id", res.AccountID,
				"included", len(res.Included),
				"skipped", len(res.Skipped))
			return printProjection(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&opts.rules, "rules", "", "rule-book YAML file (required)")
	cmd.Flags().StringVar(&opts.account, "account", "", "account to project (required)")
	cmd.Flags().StringVar(&opts.from, "from", "", "window start, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&opts.to, "to", "", "window end, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&opts.now, "now", "", "current instant (default: current time)")
	cmd.Flags().Float64Var(&opts.balance, "balance", 0, "override the account's current balance")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 4, "entities materialized in parallel")
	for _, name := range []string{"rules", "account", "from", "to"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func (o projectOptions) request(ledger core.Ledger) (projection.Request, error) {
	from, err := parseDate(o.from)
	if err != nil {
		return projection.Request{}, err
	}
	to, err := parseDate(o.to)
	if err != nil {
		return projection.Request{}, err
	}
	window := core.Window{From: from, To: to}
	if err := window.Validate(); err != nil {
		return projection.Request{}, fmt.Errorf("invalid window: %w", err)
	}

	now := time.Now()
	if o.now != "" {
		if now, err = parseDate(o.now); err != nil {
			return projection.Request{}, err
		}
	}
	return projection.Request{Ledger: ledger, Window: window, Now: now}, nil
}

func printProjection(w io.Writer, res *projection.Result) error {
	skipped := make(map[string]bool, len(res.Skipped))
	for _, tx := range res.Skipped {
		skipped[tx.ID] = true
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tKIND\tTITLE\tAMOUNT\tTOTAL\tBALANCE\tSKIPPED")
	for _, tx := range res.Transactions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			tx.Date.Format(time.DateOnly), tx.Kind, tx.Title,
			core.FormatAmount(tx.Amount), core.FormatAmount(tx.TotalAmount),
			core.FormatBalance(tx.Balance), skipped[tx.ID])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(res.LoanPayoffs) > 0 {
		fmt.Fprintln(w, "\nLoan payoffs:")
		ids := make([]string, 0, len(res.LoanPayoffs))
		for id := range res.LoanPayoffs {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			date := "not within window"
			if d := res.LoanPayoffs[id]; d != nil {
				date = d.Format(time.DateOnly)
			}
			fmt.Fprintf(w, "  %s: %s\n", id, date)
		}
	}

	if len(res.Purchases) > 0 {
		fmt.Fprintln(w, "\nPurchases:")
		for _, tx := range res.Purchases {
			fmt.Fprintf(w, "  %s %s %s\n", tx.Date.Format(time.DateOnly), tx.Title, core.FormatAmount(tx.TotalAmount))
		}
	}
	return nil
}
