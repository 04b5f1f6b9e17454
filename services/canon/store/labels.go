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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
)

const labelColumns = `project_id, label_id, text, status, canonical_id,
    canonical_text_snapshot, created_at, updated_at`

func scanLabel(row interface{ Scan(...any) error }) (*datatypes.Label, error) {
	var l datatypes.Label
	var canonicalID, snapshot sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&l.ProjectID, &l.ID, &l.Text, &l.Status,
		&canonicalID, &snapshot, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	l.CanonicalID = canonicalID.String
	l.CanonicalTextSnapshot = snapshot.String
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

// CreateLabel inserts a new active label.
//
// # Description
//
// labelID may be empty, in which case a fresh UUID is assigned. Promotion
// passes the candidate's id here so pre-promotion evidence links carry over
// unchanged.
//
// # Outputs
//
//   - *datatypes.Label: The created row.
//   - error: ErrAlreadyActive if an active label with the same normalized
//     text already exists in the project.
func (s *Store) CreateLabel(ctx context.Context, projectID, labelID, text string) (*datatypes.Label, error) {
	if labelID == "" {
		labelID = uuid.NewString()
	}
	now := time.Now()
	l := &datatypes.Label{
		ProjectID: projectID,
		ID:        labelID,
		Text:      text,
		Status:    datatypes.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO labels (project_id, label_id, text, normalized_text, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, labelID, text, datatypes.NormalizeLabelText(text),
		l.Status, formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("creating label %q: %w", text, datatypes.ErrAlreadyActive)
		}
		return nil, fmt.Errorf("creating label %q: %w", text, err)
	}
	return l, nil
}

// GetLabel fetches one label row. Returns ErrLabelNotFound when the id does
// not exist in the project.
func (s *Store) GetLabel(ctx context.Context, projectID, labelID string) (*datatypes.Label, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+labelColumns+` FROM labels WHERE project_id = ? AND label_id = ?`,
		projectID, labelID)
	l, err := scanLabel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("label %s in project %s: %w", labelID, projectID, datatypes.ErrLabelNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching label %s: %w", labelID, err)
	}
	return l, nil
}

// ActiveLabels returns every active label of a project. This is the
// detector's input and is intentionally unpaginated: duplicate detection
// over a subset is a correctness bug, not a performance shortcut.
func (s *Store) ActiveLabels(ctx context.Context, projectID string) ([]datatypes.Label, error) {
	return s.labelsWhere(ctx,
		`SELECT `+labelColumns+` FROM labels WHERE project_id = ? AND status = ? ORDER BY label_id`,
		projectID, datatypes.StatusActive)
}

// AllLabels returns every label of a project regardless of status.
func (s *Store) AllLabels(ctx context.Context, projectID string) ([]datatypes.Label, error) {
	return s.labelsWhere(ctx,
		`SELECT `+labelColumns+` FROM labels WHERE project_id = ? ORDER BY label_id`, projectID)
}

func (s *Store) labelsWhere(ctx context.Context, query string, args ...any) ([]datatypes.Label, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing labels: %w", err)
	}
	defer rows.Close()

	var labels []datatypes.Label
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning label row: %w", err)
		}
		labels = append(labels, *l)
	}
	return labels, rows.Err()
}

// CountLabels counts all label rows of a project. Merges never change this
// number; tests lean on that.
func (s *Store) CountLabels(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM labels WHERE project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting labels: %w", err)
	}
	return n, nil
}

// ActiveLabelByText looks up the active label holding a normalized text, if
// any. Used by the promotion gate's already_active check. The comparison
// goes through datatypes.NormalizeLabelText on both sides, matching the
// unique index exactly.
func (s *Store) ActiveLabelByText(ctx context.Context, projectID, text string) (*datatypes.Label, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+labelColumns+` FROM labels
		 WHERE project_id = ? AND status = ? AND normalized_text = ?`,
		projectID, datatypes.StatusActive, datatypes.NormalizeLabelText(text))
	l, err := scanLabel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up active label by text: %w", err)
	}
	return l, nil
}

// MergeMutation reports what a committed merge changed on the ledger side.
type MergeMutation struct {
	// Before and After are snapshots of the source label around the
	// transition, for the audit entry.
	Before *datatypes.Label
	After  *datatypes.Label

	// MovedEvidence is the number of evidence links reassigned to the
	// target canonical.
	MovedEvidence int

	// RepointedLabels is the number of other non-active labels whose
	// canonical pointer was re-normalized from source to target, keeping
	// pointer chains at length one.
	RepointedLabels int
}

// ApplyMerge executes the ledger side of a merge inside one transaction.
//
// # Description
//
// In order: reassigns every evidence link owned by source to target, invokes
// replay (the graph projection) while the transaction is still open, flips
// source to merged with its canonical pointer set, re-points any label that
// previously pointed at source, and inserts the committed merge_operations
// row. Committing the forensic row with the mutation means a committed merge
// can never lack its operation record; audit recovery keys off that row. If
// replay fails the transaction rolls back and no ledger change is visible;
// replay must be idempotent so a crash between replay and commit heals on
// retry.
//
// # Inputs
//
//   - sourceID: Active label being merged away. Callers resolve to the
//     canonical form first; ApplyMerge verifies the status.
//   - targetID: Active label surviving the merge.
//   - op: The merge attempt record, committed with the mutation. A missing
//     ID or timestamp is filled in. May be nil in store-level tests.
//   - replay: Graph projection hook run inside the unit of work. May be nil.
//
// # Outputs
//
//   - *MergeMutation: Snapshots and counts for audit and reporting.
//   - error: ErrLabelNotFound, ErrNotActive, or the replay error verbatim.
func (s *Store) ApplyMerge(ctx context.Context, projectID, sourceID, targetID string,
	op *datatypes.MergeOperation, replay func(context.Context) error) (*MergeMutation, error) {

	var mut MergeMutation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		source, err := getLabelTx(ctx, tx, projectID, sourceID)
		if err != nil {
			return err
		}
		target, err := getLabelTx(ctx, tx, projectID, targetID)
		if err != nil {
			return err
		}
		if source.Status != datatypes.StatusActive {
			return fmt.Errorf("merge source %s has status %s: %w",
				sourceID, source.Status, datatypes.ErrNotActive)
		}
		if target.Status != datatypes.StatusActive {
			return fmt.Errorf("merge target %s has status %s: %w",
				targetID, target.Status, datatypes.ErrNotActive)
		}
		mut.Before = source

		now := time.Now()

		res, err := tx.ExecContext(ctx,
			`UPDATE evidence_links SET label_id = ? WHERE project_id = ? AND label_id = ?`,
			targetID, projectID, sourceID)
		if err != nil {
			return fmt.Errorf("reassigning evidence links: %w", err)
		}
		moved, _ := res.RowsAffected()
		mut.MovedEvidence = int(moved)

		if replay != nil {
			if err := replay(ctx); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE labels SET status = ?, canonical_id = ?, canonical_text_snapshot = ?, updated_at = ?
			 WHERE project_id = ? AND label_id = ?`,
			datatypes.StatusMerged, targetID, target.Text, formatTime(now), projectID, sourceID)
		if err != nil {
			return fmt.Errorf("transitioning source label: %w", err)
		}

		// Arena-style normalization: anything that pointed at source now
		// points directly at target, so resolution stays a single hop.
		res, err = tx.ExecContext(ctx,
			`UPDATE labels SET canonical_id = ?, canonical_text_snapshot = ?, updated_at = ?
			 WHERE project_id = ? AND canonical_id = ? AND label_id != ?`,
			targetID, target.Text, formatTime(now), projectID, sourceID, sourceID)
		if err != nil {
			return fmt.Errorf("re-pointing dependent labels: %w", err)
		}
		repointed, _ := res.RowsAffected()
		mut.RepointedLabels = int(repointed)

		if op != nil {
			if err := insertMergeOperation(ctx, tx, op); err != nil {
				return err
			}
		}

		after := *source
		after.Status = datatypes.StatusMerged
		after.CanonicalID = targetID
		after.CanonicalTextSnapshot = target.Text
		after.UpdatedAt = now
		mut.After = &after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &mut, nil
}

func getLabelTx(ctx context.Context, tx *sql.Tx, projectID, labelID string) (*datatypes.Label, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+labelColumns+` FROM labels WHERE project_id = ? AND label_id = ?`,
		projectID, labelID)
	l, err := scanLabel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("label %s in project %s: %w", labelID, projectID, datatypes.ErrLabelNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching label %s: %w", labelID, err)
	}
	return l, nil
}
