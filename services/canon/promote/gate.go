// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package promote gates the entry of discovered candidate labels into the
// active registry.
//
// # Description
//
// Candidate labels come from the coding pipeline and are not registry members
// until they pass this gate: the candidate must be reviewer-validated, must
// carry at least one evidence link, and must not collide with an existing
// active label's text. Promotion is the only code path that turns a candidate
// into a label; validation alone never does.
package promote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
	"github.com/jinterlante1206/AleutianCodex/services/canon/graph"
	"github.com/jinterlante1206/AleutianCodex/services/canon/store"
)

// Skip reasons reported per candidate.
const (
	SkipNotFound            = "not_found"
	SkipNotValidated        = "not_validated"
	SkipMissingEvidenceLink = "missing_evidence_link"
	SkipAlreadyActive       = "already_active"
)

// Result reports one candidate's promotion attempt.
type Result struct {
	CandidateID string           `json:"candidate_id"`
	Promoted    bool             `json:"promoted"`
	SkipReason  string           `json:"skip_reason,omitempty"`
	Label       *datatypes.Label `json:"label,omitempty"`
}

// Gate promotes validated candidate labels into the active registry.
type Gate struct {
	store     *store.Store
	projector *graph.Projector
}

// NewGate wires a promotion gate over the ledger store and graph projector.
func NewGate(st *store.Store, projector *graph.Projector) *Gate {
	return &Gate{store: st, projector: projector}
}

// Promote runs the gate over a batch of candidate ids.
//
// # Description
//
// Each candidate is checked independently: one skip never aborts the batch.
// A promoted candidate becomes an active label under the candidate's own id,
// so evidence links that referenced the candidate before promotion now count
// for the label with no rewrite. The new label is also seeded as a graph
// node so later merges find it.
//
// # Outputs
//
//   - []Result: One entry per requested candidate, in request order.
//   - error: Store failures only. Per-candidate rejections are Results, not
//     errors.
func (g *Gate) Promote(ctx context.Context, projectID string, candidateIDs []string, actor string) ([]Result, error) {
	results := make([]Result, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		res, err := g.promoteOne(ctx, projectID, id, actor)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

func (g *Gate) promoteOne(ctx context.Context, projectID, candidateID, actor string) (*Result, error) {
	res := &Result{CandidateID: candidateID}

	cand, err := g.store.GetCandidate(ctx, projectID, candidateID)
	if errors.Is(err, datatypes.ErrCandidateNotFound) {
		res.SkipReason = SkipNotFound
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	if cand.State != datatypes.CandidateValidated {
		res.SkipReason = SkipNotValidated
		return res, nil
	}

	// Evidence links may be attached under the candidate's id before
	// promotion; that is exactly what the gate requires.
	evidence, err := g.store.EvidenceCount(ctx, projectID, candidateID)
	if err != nil {
		return nil, err
	}
	if evidence == 0 {
		res.SkipReason = SkipMissingEvidenceLink
		return res, nil
	}

	existing, err := g.store.ActiveLabelByText(ctx, projectID, cand.Text)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// Same text already has a canonical; the right move is a merge
		// workflow, not a second active label.
		res.SkipReason = SkipAlreadyActive
		return res, nil
	}

	// State flip and label insert commit together; a collision rolls the
	// flip back and the candidate stays validated.
	label, err := g.store.PromoteCandidate(ctx, projectID, cand.ID, cand.Text)
	if errors.Is(err, datatypes.ErrAlreadyActive) {
		// Raced with a concurrent creation; the partial unique index
		// holds the invariant even when the pre-check passed.
		res.SkipReason = SkipAlreadyActive
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	if err := g.projector.Backend().EnsureNode(ctx, projectID, label.ID, label.Text); err != nil {
		slog.Warn("Promoted label not seeded in graph store",
			"project_id", projectID, "label_id", label.ID, "error", err)
	}

	if err := g.store.AppendAudit(ctx, &datatypes.AuditEntry{
		ProjectID:      projectID,
		SubjectLabelID: label.ID,
		Operation:      datatypes.AuditOpPromote,
		AfterSnapshot:  label.Snapshot(),
		Actor:          actor,
	}); err != nil {
		return nil, fmt.Errorf("recording promotion audit: %w", err)
	}

	slog.Info("Candidate promoted",
		"project_id", projectID, "label_id", label.ID, "text", label.Text, "actor", actor)

	res.Promoted = true
	res.Label = label
	return res, nil
}
