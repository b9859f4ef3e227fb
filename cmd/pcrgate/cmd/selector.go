package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(selectorCmd)
	selectorCmd.AddCommand(selectorListCmd)
	selectorCmd.AddCommand(selectorRemoveCmd)
	selectorRemoveCmd.Flags().Int("index", -1, "Remove only this PCR index (default: all)")
}

var selectorCmd = &cobra.Command{
	Use:   "selector",
	Short: "Manage registered PCR selectors",
}

// selectorView is the serializable form for -o json|yaml.
type selectorView struct {
	PrincipalID string `json:"principal_id" yaml:"principal_id"`
	Index       int    `json:"index" yaml:"index"`
	Algorithm   string `json:"algorithm" yaml:"algorithm"`
	Digest      string `json:"digest" yaml:"digest"`
}

var selectorListCmd = &cobra.Command{
	Use:   "list [principal]",
	Short: "List registered selectors",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var principals []string
		if len(args) == 1 {
			principals = []string{args[0]}
		} else {
			var err error
			principals, err = selectorStore.ListPrincipals()
			if err != nil {
				return err
			}
		}

		var views []selectorView
		for _, p := range principals {
			selectors, err := selectorStore.Lookup(p)
			if err != nil {
				return err
			}
			for _, sel := range selectors {
				views = append(views, selectorView{
					PrincipalID: sel.PrincipalID,
					Index:       sel.Index,
					Algorithm:   string(sel.Algorithm),
					Digest:      hex.EncodeToString(sel.Digest),
				})
			}
		}

		if done, err := formatOutput(views); done || err != nil {
			return err
		}

		if len(views) == 0 {
			fmt.Println("No selectors registered")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PRINCIPAL\tPCR\tALGORITHM\tDIGEST")
		for _, v := range views {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", v.PrincipalID, v.Index, v.Algorithm, v.Digest)
		}
		return w.Flush()
	},
}

var selectorRemoveCmd = &cobra.Command{
	Use:   "remove <principal>",
	Short: "Remove selectors for a principal",
	Long: `Remove one selector (--index) or all selectors for a principal.
Removing a non-existent selector is not an error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		principal := args[0]
		index, _ := cmd.Flags().GetInt("index")

		if cmd.Flags().Changed("index") {
			if err := selectorStore.Remove(principal, index); err != nil {
				return err
			}
			fmt.Printf("Removed PCR %d selector for %s\n", index, principal)
			return nil
		}

		if err := selectorStore.RemoveAll(principal); err != nil {
			return err
		}
		fmt.Printf("Removed all selectors for %s\n", principal)
		return nil
	},
}
