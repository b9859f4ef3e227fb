package attest

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/verdantia/pcrgate/pkg/measure"
)

// ErrRegistryUnavailable indicates the selector storage backend is down.
// It is distinct from "no selectors registered", which is an empty (and
// permissive) lookup result, never an error.
var ErrRegistryUnavailable = errors.New("selector registry unavailable")

// Selector is an expected measurement registered for a principal.
// (PrincipalID, Index) is the unique key: re-registration replaces.
type Selector struct {
	PrincipalID string
	Index       int
	Algorithm   measure.Algorithm
	Digest      []byte
}

// Validate checks the selector fields before registration.
func (s Selector) Validate() error {
	if s.PrincipalID == "" {
		return fmt.Errorf("selector: empty principal id")
	}
	if !measure.ValidIndex(s.Index) {
		return fmt.Errorf("selector: %w: %d", measure.ErrUnsupportedIndex, s.Index)
	}
	if !s.Algorithm.Valid() {
		return fmt.Errorf("selector: unknown algorithm %q", s.Algorithm)
	}
	if len(s.Digest) != s.Algorithm.DigestSize() {
		return fmt.Errorf("selector: digest length %d does not match %s (want %d bytes)",
			len(s.Digest), s.Algorithm, s.Algorithm.DigestSize())
	}
	return nil
}

// SelectorRegistry stores expected measurements per principal.
//
// Lookups for different principals must not block one another; writes to
// the same principal are last-writer-wins with no torn updates.
type SelectorRegistry interface {
	// Register upserts a selector, replacing any existing entry for the
	// same (principal, index).
	Register(sel Selector) error

	// Lookup returns all selectors for the principal ordered by index.
	// An empty result means no platform-state policy applies; storage
	// failures wrap ErrRegistryUnavailable instead.
	Lookup(principalID string) ([]Selector, error)

	// Remove deletes one selector. Idempotent.
	Remove(principalID string, index int) error

	// RemoveAll deletes every selector for the principal. Idempotent.
	RemoveAll(principalID string) error
}

// MemoryRegistry is an in-memory SelectorRegistry. Reads take a shared
// lock so concurrent lookups never contend; each write copies the digest
// so callers cannot mutate stored state.
type MemoryRegistry struct {
	mu        sync.RWMutex
	selectors map[selectorKey]Selector
}

type selectorKey struct {
	principal string
	index     int
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{selectors: make(map[selectorKey]Selector)}
}

// Register implements SelectorRegistry.
func (r *MemoryRegistry) Register(sel Selector) error {
	if err := sel.Validate(); err != nil {
		return err
	}
	digest := make([]byte, len(sel.Digest))
	copy(digest, sel.Digest)
	sel.Digest = digest

	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectors[selectorKey{sel.PrincipalID, sel.Index}] = sel
	return nil
}

// Lookup implements SelectorRegistry.
func (r *MemoryRegistry) Lookup(principalID string) ([]Selector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Selector
	for key, sel := range r.selectors {
		if key.principal != principalID {
			continue
		}
		digest := make([]byte, len(sel.Digest))
		copy(digest, sel.Digest)
		sel.Digest = digest
		out = append(out, sel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Remove implements SelectorRegistry.
func (r *MemoryRegistry) Remove(principalID string, index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.selectors, selectorKey{principalID, index})
	return nil
}

// RemoveAll implements SelectorRegistry.
func (r *MemoryRegistry) RemoveAll(principalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.selectors {
		if key.principal == principalID {
			delete(r.selectors, key)
		}
	}
	return nil
}
