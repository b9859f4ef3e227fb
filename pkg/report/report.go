// Package report renders attestation verdicts for operators and front ends.
package report

import (
	"encoding/hex"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/verdantia/pcrgate/pkg/attest"
)

// MismatchRow is the display view of one failing PCR. Digests are hex;
// Actual is empty when the value was never read.
type MismatchRow struct {
	Index     int    `json:"index" yaml:"index"`
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Expected  string `json:"expected" yaml:"expected"`
	Actual    string `json:"actual,omitempty" yaml:"actual,omitempty"`
	Reason    string `json:"reason" yaml:"reason"`
}

// RemediationStep carries the parameters to re-register one failing
// selector. Structured metadata rather than prose, so a CLI, web UI, or
// JSON consumer can each render it appropriately.
type RemediationStep struct {
	Action      string `json:"action" yaml:"action"` // always "re-register"
	PrincipalID string `json:"principal_id" yaml:"principal_id"`
	Index       int    `json:"index" yaml:"index"`
	Algorithm   string `json:"algorithm" yaml:"algorithm"`
	NewDigest   string `json:"new_digest,omitempty" yaml:"new_digest,omitempty"`
}

// Report is the operator-facing form of a verdict.
type Report struct {
	PrincipalID string            `json:"principal_id" yaml:"principal_id"`
	VerdictID   string            `json:"verdict_id" yaml:"verdict_id"`
	Outcome     string            `json:"outcome" yaml:"outcome"`
	EvaluatedAt time.Time         `json:"evaluated_at" yaml:"evaluated_at"`
	Mismatches  []MismatchRow     `json:"mismatches,omitempty" yaml:"mismatches,omitempty"`
	Remediation []RemediationStep `json:"remediation,omitempty" yaml:"remediation,omitempty"`
}

// Build converts a verdict to its report form. Every mismatch yields one
// row and, when a live digest was read, one remediation step proposing
// re-registration with that digest.
func Build(v *attest.Verdict) *Report {
	r := &Report{
		PrincipalID: v.PrincipalID,
		VerdictID:   v.ID,
		Outcome:     string(v.Outcome),
		EvaluatedAt: v.Timestamp,
	}
	for _, mm := range v.Mismatches {
		row := MismatchRow{
			Index:     mm.Index,
			Algorithm: string(mm.Algorithm),
			Expected:  hex.EncodeToString(mm.Expected),
			Reason:    string(mm.Reason),
		}
		if mm.Actual != nil {
			row.Actual = hex.EncodeToString(mm.Actual)
		}
		r.Mismatches = append(r.Mismatches, row)

		step := RemediationStep{
			Action:      "re-register",
			PrincipalID: v.PrincipalID,
			Index:       mm.Index,
			Algorithm:   string(mm.Algorithm),
		}
		if mm.Reason == attest.ReasonDigest {
			step.NewDigest = row.Actual
		}
		r.Remediation = append(r.Remediation, step)
	}
	return r
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

// RenderText writes the report as a colored table.
func (r *Report) RenderText(w io.Writer) error {
	var outcome string
	switch attest.Outcome(r.Outcome) {
	case attest.OutcomeMatch:
		outcome = green(r.Outcome)
	case attest.OutcomeUnreadable:
		outcome = yellow(r.Outcome)
	default:
		outcome = red(r.Outcome)
	}

	fmt.Fprintf(w, "Principal:  %s\n", r.PrincipalID)
	fmt.Fprintf(w, "Outcome:    %s\n", outcome)
	fmt.Fprintf(w, "Evaluated:  %s\n", r.EvaluatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Verdict ID: %s\n", r.VerdictID)

	if len(r.Mismatches) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PCR\tALGORITHM\tEXPECTED\tACTUAL\tREASON")
	for _, row := range r.Mismatches {
		actual := row.Actual
		if actual == "" {
			actual = "(not read)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			row.Index, row.Algorithm, row.Expected, actual, row.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Remediation:")
	for _, step := range r.Remediation {
		if step.NewDigest != "" {
			fmt.Fprintf(w, "  pcrgate register %s --index %d --alg %s --digest %s\n",
				step.PrincipalID, step.Index, step.Algorithm, step.NewDigest)
		} else {
			fmt.Fprintf(w, "  read PCR %d (%s) on the node, then: pcrgate register %s --index %d --alg %s --digest <hex>\n",
				step.Index, step.Algorithm, step.PrincipalID, step.Index, step.Algorithm)
		}
	}
	return nil
}
