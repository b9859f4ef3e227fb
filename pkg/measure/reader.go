package measure

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Reader reads platform measurements. Implementations perform no retries;
// retry and backoff policy belongs to the caller. The context carries the
// caller-supplied timeout for the underlying hardware access.
type Reader interface {
	// Read returns the current value of a single PCR.
	// Fails with ErrUnsupportedIndex before any hardware access when the
	// index is out of range, and with ErrDeviceUnavailable when the
	// device is absent or not responding.
	Read(ctx context.Context, index int, alg Algorithm) (Measurement, error)
}

// StaticReader serves measurements from a fixed in-memory set. It backs
// tests and the evidence-file evaluation path, where measurements were
// collected out of band.
type StaticReader struct {
	mu     sync.RWMutex
	values map[staticKey][]byte
}

type staticKey struct {
	index int
	alg   Algorithm
}

// NewStaticReader creates an empty StaticReader.
func NewStaticReader() *StaticReader {
	return &StaticReader{values: make(map[staticKey][]byte)}
}

// Set installs a digest for (index, alg). The digest is copied.
func (s *StaticReader) Set(index int, alg Algorithm, digest []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := make([]byte, len(digest))
	copy(d, digest)
	s.values[staticKey{index, alg}] = d
}

// Read implements Reader. Unset (index, alg) pairs report the device as
// unavailable so the comparator never mistakes absence for a match.
func (s *StaticReader) Read(ctx context.Context, index int, alg Algorithm) (Measurement, error) {
	if !ValidIndex(index) {
		return Measurement{}, fmt.Errorf("%w: %d", ErrUnsupportedIndex, index)
	}
	if err := ctx.Err(); err != nil {
		return Measurement{}, err
	}
	s.mu.RLock()
	digest, ok := s.values[staticKey{index, alg}]
	s.mu.RUnlock()
	if !ok {
		return Measurement{}, fmt.Errorf("%w: no value for PCR %d (%s)", ErrDeviceUnavailable, index, alg)
	}
	d := make([]byte, len(digest))
	copy(d, digest)
	return Measurement{
		Index:     index,
		Algorithm: alg,
		Digest:    d,
		ReadAt:    time.Now(),
	}, nil
}
