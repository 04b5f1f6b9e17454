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

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertMergeOperation writes one merge_operations row. Runs either on the
// plain connection (aborted attempts) or inside the ApplyMerge transaction
// (committed attempts, so the row commits with the mutation it describes).
func insertMergeOperation(ctx context.Context, db execContexter, op *datatypes.MergeOperation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.ExecutedAt.IsZero() {
		op.ExecutedAt = time.Now()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO merge_operations (operation_id, project_id, source_label_id, target_label_id,
		     actor, executed_at, result, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.ProjectID, op.SourceLabelID, op.TargetLabelID,
		op.Actor, formatTime(op.ExecutedAt), op.Result, op.Reason)
	if err != nil {
		return fmt.Errorf("recording merge operation: %w", err)
	}
	return nil
}

// RecordMergeOperation appends the forensic record of one aborted merge
// attempt. Rows are write-once and nothing ever updates them afterward.
// Committed attempts are written by ApplyMerge inside its transaction.
func (s *Store) RecordMergeOperation(ctx context.Context, op *datatypes.MergeOperation) error {
	return insertMergeOperation(ctx, s.db, op)
}

// ListMergeOperations returns a project's merge attempts, newest first.
func (s *Store) ListMergeOperations(ctx context.Context, projectID string) ([]datatypes.MergeOperation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT operation_id, project_id, source_label_id, target_label_id, actor,
		    executed_at, result, COALESCE(reason, '')
		 FROM merge_operations WHERE project_id = ? ORDER BY executed_at DESC, operation_id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("listing merge operations: %w", err)
	}
	defer rows.Close()

	var ops []datatypes.MergeOperation
	for rows.Next() {
		var op datatypes.MergeOperation
		var executedAt string
		if err := rows.Scan(&op.ID, &op.ProjectID, &op.SourceLabelID, &op.TargetLabelID,
			&op.Actor, &executedAt, &op.Result, &op.Reason); err != nil {
			return nil, fmt.Errorf("scanning merge operation: %w", err)
		}
		op.ExecutedAt = parseTime(executedAt)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// ProjectsWithMerges lists every project that has recorded merge attempts.
// Startup recovery iterates this to reconcile the audit log per project.
func (s *Store) ProjectsWithMerges(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT project_id FROM merge_operations ORDER BY project_id`)
	if err != nil {
		return nil, fmt.Errorf("listing projects with merges: %w", err)
	}
	defer rows.Close()

	var projects []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning project id: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CommittedMergesWithoutAudit finds committed merge operations that have no
// corresponding audit entry. The audit append happens strictly after the
// ledger mutation commits, so after a crash the audit log may lag; recovery
// replays from this list.
func (s *Store) CommittedMergesWithoutAudit(ctx context.Context, projectID string) ([]datatypes.MergeOperation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.operation_id, m.project_id, m.source_label_id, m.target_label_id, m.actor,
		    m.executed_at, m.result, COALESCE(m.reason, '')
		 FROM merge_operations m
		 LEFT JOIN audit_entries a ON a.merge_operation_id = m.operation_id
		 WHERE m.project_id = ? AND m.result = ? AND a.entry_id IS NULL
		 ORDER BY m.executed_at`,
		projectID, datatypes.MergeCommitted)
	if err != nil {
		return nil, fmt.Errorf("finding unreconciled merges: %w", err)
	}
	defer rows.Close()

	var ops []datatypes.MergeOperation
	for rows.Next() {
		var op datatypes.MergeOperation
		var executedAt string
		if err := rows.Scan(&op.ID, &op.ProjectID, &op.SourceLabelID, &op.TargetLabelID,
			&op.Actor, &executedAt, &op.Result, &op.Reason); err != nil {
			return nil, fmt.Errorf("scanning merge operation: %w", err)
		}
		op.ExecutedAt = parseTime(executedAt)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
