// Package cmd implements the pcrgate CLI commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/verdantia/pcrgate/internal/config"
	"github.com/verdantia/pcrgate/internal/version"
	"github.com/verdantia/pcrgate/pkg/attest"
	"github.com/verdantia/pcrgate/pkg/store"
)

var (
	// Global flags
	outputFormat string
	dbPath       string
	configPath   string

	// Shared state opened in PersistentPreRunE
	cfg           *config.Config
	selectorStore *store.Store

	// exitCode distinguishes denial (1) from success (0); infrastructure
	// errors surface as command errors and exit 2 via main.
	exitCode int
)

// ExitCode returns the exit code set by the last command.
func ExitCode() int { return exitCode }

var rootCmd = &cobra.Command{
	Use:   "pcrgate",
	Short: "Platform-state-gated attestation verifier",
	Long: `pcrgate decides whether a node's measured boot state is trusted
before a cryptographic identity is issued to it.

Expected PCR values are registered per principal; evaluation compares
live TPM measurements against them and records every verdict in an
append-only audit log.`,
	Version:      version.String(),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "help" {
			return nil
		}

		var err error
		if configPath != "" {
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Default()
		}

		path := dbPath
		if path == "" {
			path = cfg.DBPath
		}
		if path == "" {
			path = store.DefaultPath()
		}

		selectorStore, err = store.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if selectorStore != nil {
			selectorStore.Close()
		}
	},
}

var completionCmd = &cobra.Command{
	Use:                   "completion [bash|zsh|fish|powershell]",
	Short:                 "Generate shell completion scripts",
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		default:
			return fmt.Errorf("unknown shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.local/share/pcrgate/pcrgate.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML)")
	rootCmd.AddCommand(completionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// gatePolicy builds the comparator policy from config.
func gatePolicy() attest.Policy {
	p := attest.DefaultPolicy()
	if cfg.PolicyMode == "subset" {
		p.Mode = attest.ModeSubset
	}
	p.FreshnessWindow = time.Duration(cfg.FreshnessWindow)
	return p
}

// formatOutput handles output formatting based on the --output flag.
// Returns true if the data was consumed (json/yaml); table rendering is
// handled by each command.
func formatOutput(data interface{}) (bool, error) {
	switch outputFormat {
	case "json":
		return true, outputJSON(data)
	case "yaml":
		return true, outputYAML(data)
	default:
		return false, nil
	}
}

func outputJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func outputYAML(data interface{}) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}
