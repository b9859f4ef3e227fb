package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/verdantia/pcrgate/pkg/audit"
)

// Append inserts one audit record. Implements audit.Sink. The AUTOINCREMENT
// primary key provides the monotonic sequence number; each insert is a
// single statement, so concurrent appends never interleave.
func (s *Store) Append(rec audit.Record) error {
	var mismatchesJSON sql.NullString
	if len(rec.Mismatches) > 0 {
		data, err := json.Marshal(rec.Mismatches)
		if err != nil {
			return fmt.Errorf("failed to marshal mismatches: %w", err)
		}
		mismatchesJSON.String = string(data)
		mismatchesJSON.Valid = true
	}

	_, err := s.db.Exec(`
		INSERT INTO audit_log (verdict_id, principal_id, outcome, evaluated_at, mismatches)
		VALUES (?, ?, ?, ?, ?)
	`, rec.VerdictID, rec.PrincipalID, rec.Outcome, rec.EvaluatedAt.Unix(), mismatchesJSON)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// AuditFilter specifies criteria for querying the audit log.
type AuditFilter struct {
	PrincipalID string
	Outcome     string
	Since       time.Time
	Limit       int
}

// QueryAuditRecords retrieves audit records matching the filter, newest
// first.
func (s *Store) QueryAuditRecords(filter AuditFilter) ([]audit.Record, error) {
	var conditions []string
	var args []interface{}

	if filter.PrincipalID != "" {
		conditions = append(conditions, "principal_id = ?")
		args = append(args, filter.PrincipalID)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "evaluated_at >= ?")
		args = append(args, filter.Since.Unix())
	}

	query := `SELECT seq, verdict_id, principal_id, outcome, evaluated_at, mismatches FROM audit_log`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanAuditRecord(rows *sql.Rows) (audit.Record, error) {
	var rec audit.Record
	var evaluatedAt int64
	var mismatchesJSON sql.NullString

	err := rows.Scan(&rec.Seq, &rec.VerdictID, &rec.PrincipalID, &rec.Outcome, &evaluatedAt, &mismatchesJSON)
	if err != nil {
		return rec, fmt.Errorf("failed to scan audit record: %w", err)
	}

	rec.EvaluatedAt = time.Unix(evaluatedAt, 0)
	if mismatchesJSON.Valid && mismatchesJSON.String != "" {
		if err := json.Unmarshal([]byte(mismatchesJSON.String), &rec.Mismatches); err != nil {
			return rec, fmt.Errorf("failed to unmarshal mismatches: %w", err)
		}
	}
	return rec, nil
}
