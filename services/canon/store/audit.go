// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
)

// AppendAudit appends one entry to the audit ledger. Entries are append-only:
// no code path updates or deletes audit_entries rows, and the table carries
// no mutator beyond this insert.
func (s *Store) AppendAudit(ctx context.Context, entry *datatypes.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	var before, after, mergeOp any
	if len(entry.BeforeSnapshot) > 0 {
		before = string(entry.BeforeSnapshot)
	}
	if len(entry.AfterSnapshot) > 0 {
		after = string(entry.AfterSnapshot)
	}
	if entry.MergeOperationID != "" {
		mergeOp = entry.MergeOperationID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (entry_id, project_id, subject_label_id, operation,
		     before_snapshot, after_snapshot, actor, merge_operation_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ProjectID, entry.SubjectLabelID, entry.Operation,
		before, after, entry.Actor, mergeOp, formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// AuditEntries returns the audit history of one label, oldest first.
func (s *Store) AuditEntries(ctx context.Context, projectID, labelID string) ([]datatypes.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, project_id, subject_label_id, operation, before_snapshot,
		    after_snapshot, actor, merge_operation_id, created_at
		 FROM audit_entries WHERE project_id = ? AND subject_label_id = ?
		 ORDER BY created_at, entry_id`,
		projectID, labelID)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []datatypes.AuditEntry
	for rows.Next() {
		var e datatypes.AuditEntry
		var before, after, mergeOp sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.SubjectLabelID, &e.Operation,
			&before, &after, &e.Actor, &mergeOp, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if before.Valid {
			e.BeforeSnapshot = []byte(before.String)
		}
		if after.Valid {
			e.AfterSnapshot = []byte(after.String)
		}
		e.MergeOperationID = mergeOp.String
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
