package measure

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
	"github.com/google/go-tpm/tpm2/transport/linuxtpm"
)

// tpmAlgIDs maps bank names to TPM 2.0 algorithm identifiers.
var tpmAlgIDs = map[Algorithm]tpm2.TPMAlgID{
	AlgSHA1:   tpm2.TPMAlgSHA1,
	AlgSHA256: tpm2.TPMAlgSHA256,
	AlgSHA384: tpm2.TPMAlgSHA384,
	AlgSHA512: tpm2.TPMAlgSHA512,
}

// TPMReader reads PCR values from a TPM 2.0 device through the kernel
// resource manager. Commands are serialized on a single connection; the
// resource manager serializes device access below us in any case.
type TPMReader struct {
	mu  sync.Mutex
	tpm transport.TPMCloser
}

// ResolveTPMDevice returns the explicit path if given, otherwise the first
// present of /dev/tpmrm0 and /dev/tpm0.
func ResolveTPMDevice(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	candidates := []string{"/dev/tpmrm0", "/dev/tpm0"}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no TPM device found (tried /dev/tpmrm0, /dev/tpm0)", ErrDeviceUnavailable)
}

// OpenTPM opens a TPMReader on the given device path. An empty path
// triggers device resolution.
func OpenTPM(devicePath string) (*TPMReader, error) {
	path, err := ResolveTPMDevice(devicePath)
	if err != nil {
		return nil, err
	}
	tpm, err := linuxtpm.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrDeviceUnavailable, path, err)
	}
	return &TPMReader{tpm: tpm}, nil
}

// Read implements Reader via TPM2_PCR_Read. The go-tpm transport has no
// native cancellation, so the context is checked before the command is
// issued; a command already on the wire runs to completion.
func (r *TPMReader) Read(ctx context.Context, index int, alg Algorithm) (Measurement, error) {
	if !ValidIndex(index) {
		return Measurement{}, fmt.Errorf("%w: %d", ErrUnsupportedIndex, index)
	}
	algID, ok := tpmAlgIDs[alg]
	if !ok {
		return Measurement{}, fmt.Errorf("unknown algorithm %q", alg)
	}
	if err := ctx.Err(); err != nil {
		return Measurement{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rsp, err := tpm2.PCRRead{
		PCRSelectionIn: tpm2.TPMLPCRSelection{
			PCRSelections: []tpm2.TPMSPCRSelection{{
				Hash:      algID,
				PCRSelect: tpm2.PCClientCompatible.PCRs(uint(index)),
			}},
		},
	}.Execute(r.tpm)
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: PCR read failed: %v", ErrDeviceUnavailable, err)
	}
	if len(rsp.PCRValues.Digests) == 0 {
		return Measurement{}, fmt.Errorf("%w: PCR %d missing from response", ErrDeviceUnavailable, index)
	}

	digest := rsp.PCRValues.Digests[0].Buffer
	if len(digest) != alg.DigestSize() {
		return Measurement{}, fmt.Errorf("TPM returned %d-byte digest for %s bank", len(digest), alg)
	}

	return Measurement{
		Index:     index,
		Algorithm: alg,
		Digest:    digest,
		ReadAt:    time.Now(),
	}, nil
}

// Close releases the TPM connection.
func (r *TPMReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tpm.Close()
}
