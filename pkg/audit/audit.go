// Package audit provides the append-only verdict trail.
//
// Records are self-contained snapshots: digests arrive as hex strings so
// the package carries no dependency on the evaluation domain. Sinks are
// append-only by contract; nothing in this package updates or deletes.
package audit

import (
	"log/slog"
	"sync"
	"time"
)

// Mismatch is one failing PCR inside a record. Digests are lowercase hex;
// an empty Actual means the value was never read.
type Mismatch struct {
	Index     int    `json:"index"`
	Algorithm string `json:"algorithm"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual,omitempty"`
	Reason    string `json:"reason"`
}

// Record is one audited verdict. Seq is assigned by the sink on append
// and is strictly monotonic within a sink.
type Record struct {
	Seq         uint64     `json:"seq,omitempty"`
	VerdictID   string     `json:"verdict_id"`
	PrincipalID string     `json:"principal_id"`
	Outcome     string     `json:"outcome"`
	EvaluatedAt time.Time  `json:"evaluated_at"`
	Mismatches  []Mismatch `json:"mismatches,omitempty"`
}

// Sink receives verdict records. Append must complete before the caller
// acts on the verdict; a failed append blocks issuance.
type Sink interface {
	Append(rec Record) error
}

// NopSink discards every record. Used when auditing is not configured.
type NopSink struct{}

// Append implements Sink.
func (NopSink) Append(Record) error { return nil }

// MemorySink retains records in memory with sink-assigned sequence
// numbers. Intended for tests and short-lived tooling.
type MemorySink struct {
	mu      sync.Mutex
	nextSeq uint64
	records []Record
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{nextSeq: 1}
}

// Append implements Sink.
func (s *MemorySink) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Seq = s.nextSeq
	s.nextSeq++
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of the appended records in order.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// MultiSink fans a record out to a primary sink plus best-effort
// secondaries. A primary failure propagates so the caller can refuse to
// act on an unaudited verdict; secondary failures are logged and
// swallowed.
type MultiSink struct {
	primary     Sink
	secondaries []Sink
	logger      *slog.Logger
}

// NewMultiSink composes sinks. A nil logger falls back to slog.Default.
func NewMultiSink(logger *slog.Logger, primary Sink, secondaries ...Sink) *MultiSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiSink{primary: primary, secondaries: secondaries, logger: logger}
}

// Append implements Sink.
func (s *MultiSink) Append(rec Record) error {
	if err := s.primary.Append(rec); err != nil {
		return err
	}
	for _, sec := range s.secondaries {
		if err := sec.Append(rec); err != nil {
			s.logger.Warn("secondary audit sink append failed",
				"verdict_id", rec.VerdictID,
				"error", err)
		}
	}
	return nil
}
