package attest

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantia/pcrgate/pkg/measure"
)

func TestSelectorValidate(t *testing.T) {
	valid := Selector{
		PrincipalID: "node-1",
		Index:       0,
		Algorithm:   measure.AlgSHA256,
		Digest:      digest(0xaa, measure.AlgSHA256),
	}

	tests := []struct {
		name    string
		mutate  func(*Selector)
		wantErr bool
	}{
		{"valid", func(*Selector) {}, false},
		{"empty principal", func(s *Selector) { s.PrincipalID = "" }, true},
		{"negative index", func(s *Selector) { s.Index = -1 }, true},
		{"index above range", func(s *Selector) { s.Index = 24 }, true},
		{"unknown algorithm", func(s *Selector) { s.Algorithm = "md5" }, true},
		{"short digest", func(s *Selector) { s.Digest = s.Digest[:16] }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := valid
			tt.mutate(&sel)
			err := sel.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMemoryRegistry_RegisterReplaces(t *testing.T) {
	reg := NewMemoryRegistry()
	mustRegister(t, reg, "node-1", 0, measure.AlgSHA256, digest(0xaa, measure.AlgSHA256))
	mustRegister(t, reg, "node-1", 0, measure.AlgSHA256, digest(0xbb, measure.AlgSHA256))

	selectors, err := reg.Lookup("node-1")
	require.NoError(t, err)
	require.Len(t, selectors, 1)
	assert.Equal(t, digest(0xbb, measure.AlgSHA256), selectors[0].Digest)
}

func TestMemoryRegistry_LookupOrderedByIndex(t *testing.T) {
	reg := NewMemoryRegistry()
	for _, idx := range []int{14, 0, 7, 4} {
		mustRegister(t, reg, "node-1", idx, measure.AlgSHA256, digest(byte(idx), measure.AlgSHA256))
	}

	selectors, err := reg.Lookup("node-1")
	require.NoError(t, err)
	require.Len(t, selectors, 4)
	for i := 1; i < len(selectors); i++ {
		assert.Less(t, selectors[i-1].Index, selectors[i].Index)
	}
}

func TestMemoryRegistry_LookupIsolatesPrincipals(t *testing.T) {
	reg := NewMemoryRegistry()
	mustRegister(t, reg, "node-1", 0, measure.AlgSHA256, digest(0xaa, measure.AlgSHA256))
	mustRegister(t, reg, "node-2", 0, measure.AlgSHA256, digest(0xbb, measure.AlgSHA256))

	selectors, err := reg.Lookup("node-1")
	require.NoError(t, err)
	require.Len(t, selectors, 1)
	assert.Equal(t, "node-1", selectors[0].PrincipalID)
}

func TestMemoryRegistry_EmptyLookupIsNotAnError(t *testing.T) {
	reg := NewMemoryRegistry()
	selectors, err := reg.Lookup("nobody")
	require.NoError(t, err)
	assert.Empty(t, selectors)
}

func TestMemoryRegistry_RemoveIdempotent(t *testing.T) {
	reg := NewMemoryRegistry()
	mustRegister(t, reg, "node-1", 0, measure.AlgSHA256, digest(0xaa, measure.AlgSHA256))

	require.NoError(t, reg.Remove("node-1", 0))
	require.NoError(t, reg.Remove("node-1", 0))
	require.NoError(t, reg.Remove("node-1", 13))

	selectors, err := reg.Lookup("node-1")
	require.NoError(t, err)
	assert.Empty(t, selectors)
}

func TestMemoryRegistry_RemoveAll(t *testing.T) {
	reg := NewMemoryRegistry()
	mustRegister(t, reg, "node-1", 0, measure.AlgSHA256, digest(0xaa, measure.AlgSHA256))
	mustRegister(t, reg, "node-1", 7, measure.AlgSHA256, digest(0xbb, measure.AlgSHA256))
	mustRegister(t, reg, "node-2", 0, measure.AlgSHA256, digest(0xcc, measure.AlgSHA256))

	require.NoError(t, reg.RemoveAll("node-1"))
	require.NoError(t, reg.RemoveAll("node-1"))

	selectors, err := reg.Lookup("node-1")
	require.NoError(t, err)
	assert.Empty(t, selectors)

	selectors, err = reg.Lookup("node-2")
	require.NoError(t, err)
	assert.Len(t, selectors, 1)
}

func TestMemoryRegistry_DigestCopies(t *testing.T) {
	reg := NewMemoryRegistry()
	d := digest(0xaa, measure.AlgSHA256)
	mustRegister(t, reg, "node-1", 0, measure.AlgSHA256, d)

	// Mutating the caller's slice must not change stored state.
	d[0] = 0xff

	selectors, err := reg.Lookup("node-1")
	require.NoError(t, err)
	require.Len(t, selectors, 1)
	assert.Equal(t, byte(0xaa), selectors[0].Digest[0])

	// Mutating the lookup result must not change stored state either.
	selectors[0].Digest[0] = 0xff
	again, err := reg.Lookup("node-1")
	require.NoError(t, err)
	assert.Equal(t, byte(0xaa), again[0].Digest[0])
}

func TestMemoryRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewMemoryRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		principal := fmt.Sprintf("node-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 24; j++ {
				d := bytes.Repeat([]byte{byte(j)}, 32)
				_ = reg.Register(Selector{
					PrincipalID: principal,
					Index:       j,
					Algorithm:   measure.AlgSHA256,
					Digest:      d,
				})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 24; j++ {
				_, _ = reg.Lookup(principal)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		selectors, err := reg.Lookup(fmt.Sprintf("node-%d", i))
		require.NoError(t, err)
		assert.Len(t, selectors, 24)
	}
}
