package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"cashflow/internal/cli"
	"cashflow/internal/config"
	"cashflow/internal/core"
	"cashflow/internal/log"
	"cashflow/internal/rulebook"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cashflow",
		Short: "Project recurring cash flows into future balances",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cli.LoadEnvFile()
		},
	}

	rootCmd.AddCommand(newProjectCommand())
	rootCmd.AddCommand(newCronCommand())
	rootCmd.AddCommand(newImportCommand())

	return rootCmd
}

// commandLogger logs to w so tables on stdout stay clean.
func commandLogger(w io.Writer) *log.Logger {
	cfg := config.Load()
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(cfg.LogLevel)
	lc.Format = cfg.LogFormat
	lc.Output = w
	lc.Component = log.ComponentCLI
	return log.New(lc)
}

func loadLedger(path, accountID string) (core.Ledger, error) {
	ledgers, err := rulebook.Load(path)
	if err != nil {
		return core.Ledger{}, err
	}
	for _, l := range ledgers {
		if l.Account.AccountID == accountID {
			return l, nil
		}
	}
	return core.Ledger{}, fmt.Errorf("account %q not found in %s", accountID, path)
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}
