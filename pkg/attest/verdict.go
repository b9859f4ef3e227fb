package attest

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/verdantia/pcrgate/pkg/audit"
	"github.com/verdantia/pcrgate/pkg/measure"
)

// Outcome classifies an evaluation result.
type Outcome string

const (
	// OutcomeMatch means every registered selector was satisfied, or no
	// selectors were registered at all.
	OutcomeMatch Outcome = "MATCH"

	// OutcomeMismatch means at least one registered selector failed.
	OutcomeMismatch Outcome = "MISMATCH"

	// OutcomeUnreadable means the platform state could not be read.
	// Distinct from a content mismatch; never carries mismatch entries.
	OutcomeUnreadable Outcome = "UNREADABLE"
)

// MismatchReason names why a single selector failed.
type MismatchReason string

const (
	ReasonDigest    MismatchReason = "digest"    // read and differs
	ReasonAlgorithm MismatchReason = "algorithm" // bank differs from expectation
	ReasonMissing   MismatchReason = "missing"   // no live measurement supplied
	ReasonStale     MismatchReason = "stale"     // measurement older than the freshness window
)

// Mismatch is one failing PCR in a verdict. Actual == nil is the
// null-sentinel for "never read", distinguishing it from "read and
// differs".
type Mismatch struct {
	Index     int
	Algorithm measure.Algorithm
	Expected  []byte
	Actual    []byte
	Reason    MismatchReason
}

// Verdict is the immutable result of one evaluation. The audit trail
// depends on verdicts never being mutated after creation.
type Verdict struct {
	ID          string
	PrincipalID string
	Timestamp   time.Time
	Outcome     Outcome
	Mismatches  []Mismatch
}

func newVerdict(principalID string, outcome Outcome, mismatches []Mismatch) *Verdict {
	return &Verdict{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		Timestamp:   time.Now(),
		Outcome:     outcome,
		Mismatches:  mismatches,
	}
}

// UnreadableVerdict records that platform state could not be read for the
// principal. It carries no mismatches by construction.
func UnreadableVerdict(principalID string) *Verdict {
	return newVerdict(principalID, OutcomeUnreadable, nil)
}

// Allowed reports whether the verdict permits issuance.
func (v *Verdict) Allowed() bool {
	return v.Outcome == OutcomeMatch
}

// AuditRecord snapshots the verdict for the append-only audit trail.
// Digests cross to hex strings at this boundary.
func (v *Verdict) AuditRecord() audit.Record {
	rec := audit.Record{
		VerdictID:   v.ID,
		PrincipalID: v.PrincipalID,
		Outcome:     string(v.Outcome),
		EvaluatedAt: v.Timestamp,
	}
	for _, mm := range v.Mismatches {
		rec.Mismatches = append(rec.Mismatches, audit.Mismatch{
			Index:     mm.Index,
			Algorithm: string(mm.Algorithm),
			Expected:  hex.EncodeToString(mm.Expected),
			Actual:    hex.EncodeToString(mm.Actual),
			Reason:    string(mm.Reason),
		})
	}
	return rec
}
