package attest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/verdantia/pcrgate/pkg/audit"
	"github.com/verdantia/pcrgate/pkg/measure"
)

// State tracks a single evaluation request through the gate.
// Granted and Denied are terminal; a new request starts fresh.
type State string

const (
	StateAwaitingMeasurement State = "awaiting_measurement"
	StateEvaluating          State = "evaluating"
	StateGranted             State = "granted"
	StateDenied              State = "denied"
)

// Decision is the result of one gate evaluation.
type Decision struct {
	Allowed bool
	State   State
	Reason  string
	Verdict *Verdict
}

// Gate composes reader, comparator, and audit sink into the issuance
// decision point. Fail-secure: registry outages and audit failures deny
// with a typed error, and a read failure produces an UNREADABLE verdict.
//
// The gate holds no retry loop; retries are an external policy layered on
// top so each attempt stays auditable.
type Gate struct {
	registry   SelectorRegistry
	comparator *Comparator
	policy     Policy
	reader     measure.Reader
	sink       audit.Sink
	logger     *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithReader installs the measurement reader used by Collect.
func WithReader(r measure.Reader) GateOption {
	return func(g *Gate) { g.reader = r }
}

// WithSink installs the audit sink. Defaults to audit.NopSink.
func WithSink(s audit.Sink) GateOption {
	return func(g *Gate) { g.sink = s }
}

// WithPolicy installs the comparator policy. Defaults to DefaultPolicy.
func WithPolicy(p Policy) GateOption {
	return func(g *Gate) { g.policy = p }
}

// WithLogger installs the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// NewGate creates a Gate over the given registry.
func NewGate(registry SelectorRegistry, opts ...GateOption) *Gate {
	g := &Gate{
		registry: registry,
		sink:     audit.NopSink{},
		policy:   DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.comparator = NewComparator(registry, g.policy)
	return g
}

// Evaluate runs one gate request with caller-supplied measurements.
//
// The audit record is appended before the decision is returned, so no
// credential is ever issued without a corresponding audit entry. An
// append failure therefore denies with an error.
func (g *Gate) Evaluate(principalID string, measurements []measure.Measurement) (*Decision, error) {
	// Receipt of measurements moves the request from awaiting_measurement
	// to evaluating; the terminal state comes out of finish.
	verdict, err := g.comparator.Evaluate(principalID, measurements)
	if err != nil {
		// Registry outage. Surface as a typed failure rather than a
		// verdict, so operators do not mistake an infrastructure
		// problem for a security event.
		return nil, err
	}
	return g.finish(verdict)
}

// Collect reads the principal's registered PCR indexes through the gate's
// reader and evaluates the result. A hardware read failure yields an
// UNREADABLE verdict and a denied decision; the verdict is still audited.
func (g *Gate) Collect(ctx context.Context, principalID string) (*Decision, error) {
	if g.reader == nil {
		return nil, fmt.Errorf("gate has no measurement reader configured")
	}

	selectors, err := g.registry.Lookup(principalID)
	if err != nil {
		return nil, fmt.Errorf("lookup for %q: %w", principalID, err)
	}

	measurements := make([]measure.Measurement, 0, len(selectors))
	for _, sel := range selectors {
		m, err := g.reader.Read(ctx, sel.Index, sel.Algorithm)
		if errors.Is(err, measure.ErrUnsupportedIndex) {
			// Registered state is corrupt; this is not a platform problem.
			return nil, err
		}
		if err != nil {
			g.logger.Warn("measurement read failed",
				"principal", principalID,
				"pcr", sel.Index,
				"error", err)
			return g.finish(UnreadableVerdict(principalID))
		}
		measurements = append(measurements, m)
	}

	return g.Evaluate(principalID, measurements)
}

// finish audits the verdict and resolves the terminal state.
func (g *Gate) finish(verdict *Verdict) (*Decision, error) {
	if err := g.sink.Append(verdict.AuditRecord()); err != nil {
		// Ordering invariant: without an audit entry there is no grant.
		return nil, fmt.Errorf("audit append for %q: %w", verdict.PrincipalID, err)
	}

	d := &Decision{Verdict: verdict}
	switch verdict.Outcome {
	case OutcomeMatch:
		d.Allowed = true
		d.State = StateGranted
	case OutcomeUnreadable:
		d.State = StateDenied
		d.Reason = "platform state unreadable"
	default:
		d.State = StateDenied
		d.Reason = fmt.Sprintf("%d PCR mismatch(es)", len(verdict.Mismatches))
	}

	g.logger.Info("attestation gate decision",
		"principal", verdict.PrincipalID,
		"verdict_id", verdict.ID,
		"outcome", string(verdict.Outcome),
		"allowed", d.Allowed)

	return d, nil
}
