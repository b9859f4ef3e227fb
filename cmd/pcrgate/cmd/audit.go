package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/verdantia/pcrgate/pkg/store"
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditListCmd.Flags().String("principal", "", "Filter by principal")
	auditListCmd.Flags().String("outcome", "", "Filter by outcome: MATCH, MISMATCH, UNREADABLE")
	auditListCmd.Flags().Duration("since", 0, "Only records newer than this (e.g. 24h)")
	auditListCmd.Flags().Int("limit", 50, "Maximum records to show")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the verdict audit log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded verdicts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		principal, _ := cmd.Flags().GetString("principal")
		outcome, _ := cmd.Flags().GetString("outcome")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.AuditFilter{
			PrincipalID: principal,
			Outcome:     outcome,
			Limit:       limit,
		}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		records, err := selectorStore.QueryAuditRecords(filter)
		if err != nil {
			return err
		}

		if done, err := formatOutput(records); done || err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No audit records")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tTIME\tPRINCIPAL\tOUTCOME\tMISMATCHES")
		for _, rec := range records {
			out := rec.Outcome
			switch out {
			case "MATCH":
				out = color.GreenString(out)
			case "MISMATCH":
				out = color.RedString(out)
			default:
				out = color.YellowString(out)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n",
				rec.Seq,
				rec.EvaluatedAt.Format(time.RFC3339),
				rec.PrincipalID,
				out,
				len(rec.Mismatches))
		}
		return w.Flush()
	},
}
