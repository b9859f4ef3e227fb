package store

import (
	"fmt"

	"github.com/verdantia/pcrgate/pkg/attest"
	"github.com/verdantia/pcrgate/pkg/measure"
)

// Register upserts a selector by (principal_id, pcr_index). Implements
// attest.SelectorRegistry.
func (s *Store) Register(sel attest.Selector) error {
	if err := sel.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO selectors (principal_id, pcr_index, algorithm, digest)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(principal_id, pcr_index) DO UPDATE SET
			algorithm = excluded.algorithm,
			digest = excluded.digest,
			updated_at = strftime('%s', 'now')
	`, sel.PrincipalID, sel.Index, string(sel.Algorithm), sel.Digest)
	if err != nil {
		return fmt.Errorf("%w: register selector: %v", attest.ErrRegistryUnavailable, err)
	}
	return nil
}

// Lookup returns all selectors for a principal ordered by PCR index.
// A principal with no registrations yields an empty slice, not an error.
func (s *Store) Lookup(principalID string) ([]attest.Selector, error) {
	rows, err := s.db.Query(`
		SELECT principal_id, pcr_index, algorithm, digest
		FROM selectors WHERE principal_id = ? ORDER BY pcr_index
	`, principalID)
	if err != nil {
		return nil, fmt.Errorf("%w: query selectors: %v", attest.ErrRegistryUnavailable, err)
	}
	defer rows.Close()

	var selectors []attest.Selector
	for rows.Next() {
		var sel attest.Selector
		var alg string
		if err := rows.Scan(&sel.PrincipalID, &sel.Index, &alg, &sel.Digest); err != nil {
			return nil, fmt.Errorf("%w: scan selector: %v", attest.ErrRegistryUnavailable, err)
		}
		sel.Algorithm = measure.Algorithm(alg)
		selectors = append(selectors, sel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate selectors: %v", attest.ErrRegistryUnavailable, err)
	}
	return selectors, nil
}

// Remove deletes one selector. Removing a non-existent selector is not an
// error.
func (s *Store) Remove(principalID string, index int) error {
	_, err := s.db.Exec(
		`DELETE FROM selectors WHERE principal_id = ? AND pcr_index = ?`,
		principalID, index,
	)
	if err != nil {
		return fmt.Errorf("%w: remove selector: %v", attest.ErrRegistryUnavailable, err)
	}
	return nil
}

// RemoveAll deletes every selector for the principal. Idempotent.
func (s *Store) RemoveAll(principalID string) error {
	_, err := s.db.Exec(`DELETE FROM selectors WHERE principal_id = ?`, principalID)
	if err != nil {
		return fmt.Errorf("%w: remove selectors: %v", attest.ErrRegistryUnavailable, err)
	}
	return nil
}

// ListPrincipals returns all principals with at least one selector.
func (s *Store) ListPrincipals() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT principal_id FROM selectors ORDER BY principal_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list principals: %v", attest.ErrRegistryUnavailable, err)
	}
	defer rows.Close()

	var principals []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("%w: scan principal: %v", attest.ErrRegistryUnavailable, err)
		}
		principals = append(principals, p)
	}
	return principals, rows.Err()
}
