package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/verdantia/pcrgate/pkg/attest"
	"github.com/verdantia/pcrgate/pkg/measure"
)

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().Int("index", -1, "PCR index [0-23] (required)")
	registerCmd.Flags().String("alg", "", "PCR bank: sha1, sha256, sha384, sha512 (default from config)")
	registerCmd.Flags().String("digest", "", "Expected digest, hex (required)")
	registerCmd.MarkFlagRequired("index")
	registerCmd.MarkFlagRequired("digest")
}

var registerCmd = &cobra.Command{
	Use:   "register <principal>",
	Short: "Register an expected PCR value for a principal",
	Long: `Register the expected digest of one PCR for a principal.

Re-registering the same (principal, index) replaces the previous value.
Hex digests are accepted in either case.

Examples:
  pcrgate register node-1 --index 0 --digest aaaa...aaaa
  pcrgate register node-1 --index 7 --alg sha384 --digest bbbb...bbbb`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		principal := args[0]
		index, _ := cmd.Flags().GetInt("index")
		algStr, _ := cmd.Flags().GetString("alg")
		digestHex, _ := cmd.Flags().GetString("digest")

		if algStr == "" {
			algStr = cfg.Algorithm
		}
		alg, err := measure.ParseAlgorithm(algStr)
		if err != nil {
			return err
		}

		digest, err := measure.ParseDigest(alg, digestHex)
		if err != nil {
			return err
		}

		sel := attest.Selector{
			PrincipalID: principal,
			Index:       index,
			Algorithm:   alg,
			Digest:      digest,
		}
		if err := selectorStore.Register(sel); err != nil {
			return err
		}

		fmt.Printf("%s registered PCR %d (%s) for %s\n",
			color.GreenString("✓"), index, alg, principal)
		return nil
	},
}
