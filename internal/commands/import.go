package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"cashflow/internal/amqp"
	"cashflow/internal/cli"
	"cashflow/internal/config"
	"cashflow/internal/log"
	"cashflow/internal/rulebook"
	"cashflow/internal/storage"
)

func newImportCommand() *cobra.Command {
	var rules, dbPath string
	var notify bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate a rule-book and store it in the SQLite database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if dbPath == "" {
				dbPath = cfg.SQLiteDBPath
			}
			logger := commandLogger(cmd.ErrOrStderr())

			var publisher materializePublisher
			if notify {
				if client := cli.InitAMQP(logger, cfg); client != nil {
					defer client.Close()
					publisher = client
				}
			}
			return runImport(cmd.Context(), logger, rules, dbPath, publisher, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&rules, "rules", "", "rule-book YAML file (required)")
	_ = cmd.MarkFlagRequired("rules")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default: $SQLITE_DB_PATH)")
	cmd.Flags().BoolVar(&notify, "notify", true, "ask the materialize worker to rebuild imported accounts when AMQP_URL is set")

	return cmd
}

type materializePublisher interface {
	PublishMaterialize(ctx context.Context, msg *amqp.MaterializeMessage) error
}

func runImport(ctx context.Context, logger *log.Logger, rules, dbPath string, publisher materializePublisher, out io.Writer) error {
	ledgers, err := rulebook.Load(rules)
	if err != nil {
		return err
	}

	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	for _, l := range ledgers {
		if err := repo.ImportLedger(ctx, l); err != nil {
			return fmt.Errorf("import account %s: %w", l.Account.AccountID, err)
		}
		fmt.Fprintf(out, "imported %s\n", l.Account.AccountID)

		if publisher == nil {
			continue
		}
		msg := amqp.NewMaterializeMessage(l.Account.AccountID, "", amqp.ReasonRecordChanged)
		if err := publisher.PublishMaterialize(ctx, msg); err != nil {
			// the import already succeeded; the periodic pass will pick it up
			logger.WarnContext(ctx, "Failed to request materialization",
				log.FieldAccountID, l.Account.AccountID,
				log.FieldError, err)
		}
	}
	return nil
}
