package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/verdantia/pcrgate/pkg/measure"
)

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Duration("timeout", 10*time.Second, "TPM read timeout")
}

var validateCmd = &cobra.Command{
	Use:   "validate <principal>",
	Short: "Compare live PCR values against registered selectors, row by row",
	Long: `Diagnostic view: reads every registered PCR for the principal and
prints expected next to actual, including the indexes that match.

No verdict is recorded in the audit log; use "pcrgate evaluate" for the
gating decision.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		principal := args[0]
		timeout, _ := cmd.Flags().GetDuration("timeout")

		selectors, err := selectorStore.Lookup(principal)
		if err != nil {
			return err
		}
		if len(selectors) == 0 {
			fmt.Printf("No selectors registered for %s — no platform-state policy applies\n", principal)
			return nil
		}

		reader, err := measure.OpenTPM(cfg.TPMDevice)
		if err != nil {
			return err
		}
		defer reader.Close()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		type row struct {
			Index     int    `json:"index" yaml:"index"`
			Algorithm string `json:"algorithm" yaml:"algorithm"`
			Expected  string `json:"expected" yaml:"expected"`
			Actual    string `json:"actual" yaml:"actual"`
			Match     bool   `json:"match" yaml:"match"`
		}
		var rows []row
		mismatched := 0

		for _, sel := range selectors {
			m, err := reader.Read(ctx, sel.Index, sel.Algorithm)
			if err != nil {
				return fmt.Errorf("reading PCR %d: %w", sel.Index, err)
			}
			r := row{
				Index:     sel.Index,
				Algorithm: string(sel.Algorithm),
				Expected:  fmt.Sprintf("%x", sel.Digest),
				Actual:    m.DigestHex(),
			}
			r.Match = r.Expected == r.Actual
			if !r.Match {
				mismatched++
			}
			rows = append(rows, r)
		}

		if done, err := formatOutput(rows); done || err != nil {
			if mismatched > 0 {
				exitCode = 1
			}
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PCR\tALGORITHM\tEXPECTED\tACTUAL\tSTATUS")
		for _, r := range rows {
			status := color.GreenString("match")
			if !r.Match {
				status = color.RedString("MISMATCH")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.Index, r.Algorithm, r.Expected, r.Actual, status)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if mismatched > 0 {
			fmt.Printf("\n%d of %d PCRs differ. Re-register with the new digest if the change is expected.\n",
				mismatched, len(rows))
			exitCode = 1
		}
		return nil
	},
}
