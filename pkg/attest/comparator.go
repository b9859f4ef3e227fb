package attest

import (
	"bytes"
	"fmt"
	"time"

	"github.com/verdantia/pcrgate/pkg/measure"
)

// PolicyMode selects how registered selectors without live counterparts
// are treated.
type PolicyMode string

const (
	// ModeExact requires a live measurement for every registered selector.
	ModeExact PolicyMode = "exact"

	// ModeSubset evaluates only the selectors that have live counterparts.
	ModeSubset PolicyMode = "subset"
)

// Policy configures the comparator.
type Policy struct {
	Mode PolicyMode

	// FreshnessWindow, when positive, rejects measurements whose ReadAt
	// is older than the window. Zero disables the check.
	FreshnessWindow time.Duration
}

// DefaultPolicy is exact matching with no freshness requirement.
func DefaultPolicy() Policy {
	return Policy{Mode: ModeExact}
}

// Comparator evaluates live measurements against registered selectors.
type Comparator struct {
	registry SelectorRegistry
	policy   Policy
}

// NewComparator creates a Comparator. A zero-value policy Mode falls back
// to ModeExact.
func NewComparator(registry SelectorRegistry, policy Policy) *Comparator {
	if policy.Mode == "" {
		policy.Mode = ModeExact
	}
	return &Comparator{registry: registry, policy: policy}
}

// Evaluate compares the supplied measurements against the principal's
// registered selectors and returns a verdict.
//
// Evaluation itself never fails: every content outcome is structured in
// the verdict. The only error path is registry unavailability, which is
// reported as a typed failure so callers can apply explicit fail-closed
// policy instead of mistaking an outage for a clean result.
func (c *Comparator) Evaluate(principalID string, current []measure.Measurement) (*Verdict, error) {
	selectors, err := c.registry.Lookup(principalID)
	if err != nil {
		return nil, fmt.Errorf("lookup for %q: %w", principalID, err)
	}

	// No selectors: no platform-state policy applies to this principal.
	if len(selectors) == 0 {
		return newVerdict(principalID, OutcomeMatch, nil), nil
	}

	liveByIndex := make(map[int]measure.Measurement, len(current))
	for _, m := range current {
		liveByIndex[m.Index] = m
	}

	// Aggregate every failing index; operators need the complete
	// diagnostic, not just the first failure.
	var mismatches []Mismatch
	for _, sel := range selectors {
		live, ok := liveByIndex[sel.Index]
		if !ok {
			if c.policy.Mode == ModeSubset {
				continue
			}
			mismatches = append(mismatches, Mismatch{
				Index:     sel.Index,
				Algorithm: sel.Algorithm,
				Expected:  sel.Digest,
				Actual:    nil,
				Reason:    ReasonMissing,
			})
			continue
		}

		if c.policy.FreshnessWindow > 0 && !live.ReadAt.IsZero() &&
			time.Since(live.ReadAt) > c.policy.FreshnessWindow {
			mismatches = append(mismatches, Mismatch{
				Index:     sel.Index,
				Algorithm: sel.Algorithm,
				Expected:  sel.Digest,
				Actual:    live.Digest,
				Reason:    ReasonStale,
			})
			continue
		}

		if live.Algorithm != sel.Algorithm {
			mismatches = append(mismatches, Mismatch{
				Index:     sel.Index,
				Algorithm: sel.Algorithm,
				Expected:  sel.Digest,
				Actual:    live.Digest,
				Reason:    ReasonAlgorithm,
			})
			continue
		}

		if !bytes.Equal(live.Digest, sel.Digest) {
			mismatches = append(mismatches, Mismatch{
				Index:     sel.Index,
				Algorithm: sel.Algorithm,
				Expected:  sel.Digest,
				Actual:    live.Digest,
				Reason:    ReasonDigest,
			})
		}
	}

	outcome := OutcomeMatch
	if len(mismatches) > 0 {
		outcome = OutcomeMismatch
	}
	return newVerdict(principalID, outcome, mismatches), nil
}
