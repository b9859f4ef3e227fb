// Package measure abstracts platform measurement reads (TPM PCRs) into
// typed values.
package measure

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PCR index bounds per the TPM 2.0 PC Client platform profile.
const (
	MinIndex = 0
	MaxIndex = 23
)

// ErrUnsupportedIndex is returned for PCR indexes outside [0,23].
// This is a caller programming error and is reported before any
// hardware access is attempted.
var ErrUnsupportedIndex = errors.New("unsupported PCR index")

// ErrDeviceUnavailable is returned when the measurement device is not
// present or not responding. Callers must never treat it as a match.
var ErrDeviceUnavailable = errors.New("measurement device unavailable")

// Algorithm identifies the hash algorithm of a PCR bank.
type Algorithm string

const (
	AlgSHA1   Algorithm = "sha1"
	AlgSHA256 Algorithm = "sha256"
	AlgSHA384 Algorithm = "sha384"
	AlgSHA512 Algorithm = "sha512"
)

// DigestSize returns the digest length in bytes, or 0 for an unknown algorithm.
func (a Algorithm) DigestSize() int {
	switch a {
	case AlgSHA1:
		return 20
	case AlgSHA256:
		return 32
	case AlgSHA384:
		return 48
	case AlgSHA512:
		return 64
	default:
		return 0
	}
}

// Valid reports whether the algorithm is one of the supported banks.
func (a Algorithm) Valid() bool {
	return a.DigestSize() != 0
}

// String returns the lowercase bank name.
func (a Algorithm) String() string {
	return string(a)
}

// ParseAlgorithm normalizes a user-supplied algorithm name.
// Accepts common spellings such as "SHA256" and "sha-256".
func ParseAlgorithm(s string) (Algorithm, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "")
	a := Algorithm(norm)
	if !a.Valid() {
		return "", fmt.Errorf("unknown algorithm %q", s)
	}
	return a, nil
}

// Measurement is a single PCR value read from the platform.
// It is immutable once created; a new read produces a new value.
type Measurement struct {
	Index     int
	Algorithm Algorithm
	Digest    []byte
	ReadAt    time.Time
}

// DigestHex returns the lowercase hex encoding of the digest.
func (m Measurement) DigestHex() string {
	return hex.EncodeToString(m.Digest)
}

// ParseDigest decodes a hex digest string for the given algorithm.
// Case and surrounding whitespace are normalized here, at the boundary;
// everything downstream compares raw bytes.
func ParseDigest(alg Algorithm, s string) ([]byte, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("unknown algorithm %q", alg)
	}
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.TrimPrefix(norm, "0x")
	digest, err := hex.DecodeString(norm)
	if err != nil {
		return nil, fmt.Errorf("invalid hex digest: %w", err)
	}
	if len(digest) != alg.DigestSize() {
		return nil, fmt.Errorf("digest length %d does not match %s (want %d bytes)",
			len(digest), alg, alg.DigestSize())
	}
	return digest, nil
}

// ValidIndex reports whether idx is a readable PCR index.
func ValidIndex(idx int) bool {
	return idx >= MinIndex && idx <= MaxIndex
}
