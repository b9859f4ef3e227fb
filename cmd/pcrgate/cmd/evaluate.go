package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/verdantia/pcrgate/pkg/attest"
	"github.com/verdantia/pcrgate/pkg/audit"
	"github.com/verdantia/pcrgate/pkg/measure"
	"github.com/verdantia/pcrgate/pkg/report"
)

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().String("from-file", "", "Evaluate evidence from a YAML file instead of the local TPM")
	evaluateCmd.Flags().Duration("timeout", 10*time.Second, "TPM read timeout")
}

// evidenceFile is the YAML schema for --from-file.
type evidenceFile struct {
	Measurements []evidenceEntry `yaml:"measurements"`
}

type evidenceEntry struct {
	Index     int    `yaml:"index"`
	Algorithm string `yaml:"algorithm"`
	Digest    string `yaml:"digest"`
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <principal>",
	Short: "Evaluate a principal's platform state against its registered selectors",
	Long: `Read the principal's registered PCR indexes and compare them against
the expected values.

Exit codes: 0 granted, 1 denied, 2 infrastructure failure (device or
registry unavailable) — a denial is a security event, an infrastructure
failure is not.

Examples:
  pcrgate evaluate node-1
  pcrgate evaluate node-1 --from-file evidence.yaml
  pcrgate evaluate node-1 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		principal := args[0]
		fromFile, _ := cmd.Flags().GetString("from-file")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		sink, closeSink, err := buildSink()
		if err != nil {
			return err
		}
		defer closeSink()

		var decision *attest.Decision
		if fromFile != "" {
			measurements, err := loadEvidence(fromFile)
			if err != nil {
				return err
			}
			gate := attest.NewGate(selectorStore,
				attest.WithSink(sink),
				attest.WithPolicy(gatePolicy()))
			decision, err = gate.Evaluate(principal, measurements)
			if err != nil {
				return err
			}
		} else {
			reader, err := measure.OpenTPM(cfg.TPMDevice)
			if err != nil {
				return err
			}
			defer reader.Close()

			gate := attest.NewGate(selectorStore,
				attest.WithReader(reader),
				attest.WithSink(sink),
				attest.WithPolicy(gatePolicy()))

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			decision, err = gate.Collect(ctx, principal)
			if err != nil {
				return err
			}
		}

		rep := report.Build(decision.Verdict)
		if done, err := formatOutput(rep); done || err != nil {
			if !decision.Allowed {
				exitCode = 1
			}
			return err
		}

		if err := rep.RenderText(os.Stdout); err != nil {
			return err
		}
		if !decision.Allowed {
			exitCode = 1
		}
		return nil
	},
}

// buildSink composes the store-backed audit sink with the optional syslog
// backend. The store sink is primary: its failure blocks issuance.
func buildSink() (audit.Sink, func(), error) {
	if !cfg.Syslog.Enabled {
		return selectorStore, func() {}, nil
	}

	sys, err := audit.NewSyslogSink(audit.SyslogConfig{
		SocketPath: cfg.Syslog.SocketPath,
		AppName:    cfg.Syslog.AppName,
	})
	if err != nil {
		// Syslog is best-effort; database-only audit is acceptable.
		fmt.Fprintf(os.Stderr, "warning: syslog audit unavailable: %v\n", err)
		return selectorStore, func() {}, nil
	}
	return audit.NewMultiSink(nil, selectorStore, sys), func() { sys.Close() }, nil
}

// loadEvidence parses a measurement evidence file.
func loadEvidence(path string) ([]measure.Measurement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading evidence %s: %w", path, err)
	}

	var ev evidenceFile
	if err := yaml.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("parsing evidence %s: %w", path, err)
	}

	measurements := make([]measure.Measurement, 0, len(ev.Measurements))
	for _, e := range ev.Measurements {
		alg, err := measure.ParseAlgorithm(e.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("evidence entry for PCR %d: %w", e.Index, err)
		}
		digest, err := measure.ParseDigest(alg, e.Digest)
		if err != nil {
			return nil, fmt.Errorf("evidence entry for PCR %d: %w", e.Index, err)
		}
		measurements = append(measurements, measure.Measurement{
			Index:     e.Index,
			Algorithm: alg,
			Digest:    digest,
			ReadAt:    time.Now(),
		})
	}
	return measurements, nil
}
