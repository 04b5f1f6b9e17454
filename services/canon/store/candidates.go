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

// =============================================================================
// Candidate pairs (duplicate suggestions)
// =============================================================================

// ReplaceProposedPairs swaps the project's proposed pairs for a fresh
// detection run. Validated and rejected pairs are review history and stay
// untouched; only still-proposed suggestions are superseded.
func (s *Store) ReplaceProposedPairs(ctx context.Context, projectID string, pairs []datatypes.CandidatePair) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM candidate_pairs WHERE project_id = ? AND state = ?`,
			projectID, datatypes.PairProposed)
		if err != nil {
			return fmt.Errorf("clearing proposed pairs: %w", err)
		}
		for i := range pairs {
			p := &pairs[i]
			if p.ID == "" {
				p.ID = uuid.NewString()
			}
			var semantic any
			if p.SemanticScore != nil {
				semantic = *p.SemanticScore
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO candidate_pairs (pair_id, project_id, source_label_id, target_label_id,
				     source_text, target_text, lexical_score, semantic_score, state, detected_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID, projectID, p.SourceLabelID, p.TargetLabelID,
				p.SourceText, p.TargetText, p.LexicalScore, semantic,
				datatypes.PairProposed, formatTime(p.DetectedAt))
			if err != nil {
				return fmt.Errorf("inserting candidate pair: %w", err)
			}
		}
		return nil
	})
}

// ListPairs returns a project's candidate pairs, optionally filtered by
// state, ordered by lexical score descending then pair id for determinism.
func (s *Store) ListPairs(ctx context.Context, projectID string, state datatypes.PairState) ([]datatypes.CandidatePair, error) {
	query := `SELECT pair_id, project_id, source_label_id, target_label_id, source_text,
	    target_text, lexical_score, semantic_score, state, detected_at
	    FROM candidate_pairs WHERE project_id = ?`
	args := []any{projectID}
	if state != "" {
		query += ` AND state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY lexical_score DESC, pair_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing candidate pairs: %w", err)
	}
	defer rows.Close()

	var pairs []datatypes.CandidatePair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, *p)
	}
	return pairs, rows.Err()
}

// GetPair fetches one candidate pair.
func (s *Store) GetPair(ctx context.Context, projectID, pairID string) (*datatypes.CandidatePair, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT pair_id, project_id, source_label_id, target_label_id, source_text,
		    target_text, lexical_score, semantic_score, state, detected_at
		 FROM candidate_pairs WHERE project_id = ? AND pair_id = ?`,
		projectID, pairID)
	p, err := scanPair(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pair %s: %w", pairID, datatypes.ErrCandidateNotFound)
	}
	return p, err
}

// SetPairState records the reviewer's verdict on a pair. Validation is the
// human-in-the-loop boundary: the ledger never sequences it internally.
func (s *Store) SetPairState(ctx context.Context, projectID, pairID string, state datatypes.PairState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidate_pairs SET state = ? WHERE project_id = ? AND pair_id = ?`,
		state, projectID, pairID)
	if err != nil {
		return fmt.Errorf("updating pair state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pair %s: %w", pairID, datatypes.ErrCandidateNotFound)
	}
	return nil
}

func scanPair(row interface{ Scan(...any) error }) (*datatypes.CandidatePair, error) {
	var p datatypes.CandidatePair
	var semantic sql.NullFloat64
	var detectedAt string
	err := row.Scan(&p.ID, &p.ProjectID, &p.SourceLabelID, &p.TargetLabelID,
		&p.SourceText, &p.TargetText, &p.LexicalScore, &semantic, &p.State, &detectedAt)
	if err != nil {
		return nil, err
	}
	if semantic.Valid {
		v := semantic.Float64
		p.SemanticScore = &v
	}
	p.DetectedAt = parseTime(detectedAt)
	return &p, nil
}

// =============================================================================
// Candidate labels (discovered code proposals)
// =============================================================================

// CreateCandidate records a discovered candidate label awaiting validation.
func (s *Store) CreateCandidate(ctx context.Context, projectID, text string) (*datatypes.CandidateLabel, error) {
	c := &datatypes.CandidateLabel{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Text:      text,
		State:     datatypes.CandidateProposed,
		CreatedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO candidate_labels (candidate_id, project_id, text, state, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, projectID, text, c.State, formatTime(c.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("creating candidate label: %w", err)
	}
	return c, nil
}

// GetCandidate fetches one candidate label.
func (s *Store) GetCandidate(ctx context.Context, projectID, candidateID string) (*datatypes.CandidateLabel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT candidate_id, project_id, text, state, created_at, validated_at
		 FROM candidate_labels WHERE project_id = ? AND candidate_id = ?`,
		projectID, candidateID)

	var c datatypes.CandidateLabel
	var createdAt string
	var validatedAt sql.NullString
	err := row.Scan(&c.ID, &c.ProjectID, &c.Text, &c.State, &createdAt, &validatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("candidate %s: %w", candidateID, datatypes.ErrCandidateNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching candidate %s: %w", candidateID, err)
	}
	c.CreatedAt = parseTime(createdAt)
	if validatedAt.Valid {
		t := parseTime(validatedAt.String)
		c.ValidatedAt = &t
	}
	return &c, nil
}

// PromoteCandidate turns a validated candidate into an active label.
//
// # Description
//
// The candidate's state flip to promoted and the label insert run in one
// transaction: a promoted candidate always has its label, and a failed
// insert (text collision with an active label, typically a concurrent
// creation) rolls the flip back so the candidate stays validated and can be
// retried or merged. The label reuses the candidate's id so evidence links
// attached before promotion carry over unchanged.
//
// # Outputs
//
//   - *datatypes.Label: The created active label.
//   - error: ErrCandidateNotFound if no validated candidate matches,
//     ErrAlreadyActive on a normalized-text collision.
func (s *Store) PromoteCandidate(ctx context.Context, projectID, candidateID, text string) (*datatypes.Label, error) {
	now := time.Now()
	l := &datatypes.Label{
		ProjectID: projectID,
		ID:        candidateID,
		Text:      text,
		Status:    datatypes.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE candidate_labels SET state = ?
			 WHERE project_id = ? AND candidate_id = ? AND state = ?`,
			datatypes.CandidatePromoted, projectID, candidateID, datatypes.CandidateValidated)
		if err != nil {
			return fmt.Errorf("promoting candidate %s: %w", candidateID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("validated candidate %s: %w", candidateID, datatypes.ErrCandidateNotFound)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO labels (project_id, label_id, text, normalized_text, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			projectID, candidateID, text, datatypes.NormalizeLabelText(text),
			datatypes.StatusActive, formatTime(now), formatTime(now))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("promoting candidate %q: %w", text, datatypes.ErrAlreadyActive)
			}
			return fmt.Errorf("creating promoted label %q: %w", text, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// SetCandidateState moves a candidate through its review lifecycle.
func (s *Store) SetCandidateState(ctx context.Context, projectID, candidateID string, state datatypes.CandidateState) error {
	var validatedAt any
	if state == datatypes.CandidateValidated {
		validatedAt = formatTime(time.Now())
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidate_labels SET state = ?, validated_at = COALESCE(?, validated_at)
		 WHERE project_id = ? AND candidate_id = ?`,
		state, validatedAt, projectID, candidateID)
	if err != nil {
		return fmt.Errorf("updating candidate state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("candidate %s: %w", candidateID, datatypes.ErrCandidateNotFound)
	}
	return nil
}
