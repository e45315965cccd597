package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cashflow/internal/rulebook"
	"cashflow/internal/services"
)

func newCronCommand() *cobra.Command {
	var rules string

	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Print the crontab schedule of every item in a rule-book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledgers, err := rulebook.Load(rules)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ACCOUNT\tITEM\tKIND\tSCHEDULE")
			for _, l := range ledgers {
				for _, s := range services.Schedules(l) {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.AccountID, s.ItemID, s.Kind, s.Expression)
				}
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&rules, "rules", "", "rule-book YAML file (required)")
	_ = cmd.MarkFlagRequired("rules")

	return cmd
}
