// Package attest decides whether a principal's measured platform state is
// trusted before a credential is issued to it.
//
// Attestation compares live PCR measurements against expected values
// registered per principal and produces a structured verdict with the
// complete per-index diagnostic.
//
// # Components
//
//   - SelectorRegistry: expected measurements per principal
//   - Comparator: evaluates live measurements under a policy
//   - Gate: composes reader, comparator, and audit sink; fail-closed
//
// # Evaluation Flow
//
//  1. Live measurements arrive from the caller or are read via measure.Reader
//  2. Comparator fetches the principal's registered selectors
//  3. Digests are compared byte-for-byte; all mismatches are aggregated
//  4. The verdict is audited, then returned to the issuance decision point
//
// Absence of registered selectors is permissive: no selectors means no
// platform-state policy applies to the principal.
package attest
