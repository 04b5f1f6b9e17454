// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package merge orchestrates label merges across the relational ledger and
// the graph projection.
//
// # Description
//
// A merge is one unit of work: evidence reassignment, graph edge replay, the
// source label's status transition, pointer re-normalization, and the
// committed merge_operations record all commit together or not at all. The
// graph replay runs inside the ledger transaction, so a graph store failure
// rolls the whole merge back. The audit entry is written strictly after
// commit; crash recovery reconciles the audit log from the operation records
// (see recovery.go).
//
// # Thread Safety
//
// Merges are serialized per project by an in-process lock. Calls for
// different projects proceed concurrently.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
	"github.com/jinterlante1206/AleutianCodex/services/canon/graph"
	"github.com/jinterlante1206/AleutianCodex/services/canon/resolve"
	"github.com/jinterlante1206/AleutianCodex/services/canon/store"
)

// Abort reasons recorded on merge_operations rows.
const (
	reasonSourceUnresolvable = "source_unresolvable"
	reasonTargetUnresolvable = "target_unresolvable"
	reasonAlreadyMerged      = "already_merged"
	reasonCycleDetected      = "cycle_detected"
	reasonApplyFailed        = "apply_failed"
)

// Outcome reports one committed merge.
type Outcome struct {
	Operation       *datatypes.MergeOperation `json:"operation"`
	MovedEvidence   int                       `json:"moved_evidence"`
	RepointedLabels int                       `json:"repointed_labels"`
}

// Orchestrator coordinates the ledger store, the resolver and the graph
// projector for merge execution.
type Orchestrator struct {
	store     *store.Store
	resolver  *resolve.Resolver
	projector *graph.Projector
	locks     *projectLocks
}

// NewOrchestrator wires a merge orchestrator over its three collaborators.
func NewOrchestrator(st *store.Store, resolver *resolve.Resolver, projector *graph.Projector) *Orchestrator {
	return &Orchestrator{
		store:     st,
		resolver:  resolver,
		projector: projector,
		locks:     newProjectLocks(),
	}
}

// Merge consolidates sourceID into targetID.
//
// # Description
//
// Both ids are resolved to their canonical forms first, so a request naming
// an already-merged label operates on its surviving canonical. If both sides
// resolve to the same label the merge is a no-op and fails with
// ErrAlreadyMerged, leaving all state untouched. Every attempt, aborted ones
// included, leaves a merge_operations row.
//
// # Outputs
//
//   - *Outcome: The committed operation with its mutation counts.
//   - error: ErrAlreadyMerged, ErrCycleDetected, ErrLabelNotFound,
//     ErrNotActive, ErrBrokenPointer, or a store failure. On error nothing
//     beyond the aborted-operation record was written.
func (o *Orchestrator) Merge(ctx context.Context, projectID, sourceID, targetID, actor string) (*Outcome, error) {
	release := o.locks.acquire(projectID)
	defer release()
	return o.mergeLocked(ctx, projectID, sourceID, targetID, actor)
}

func (o *Orchestrator) mergeLocked(ctx context.Context, projectID, sourceID, targetID, actor string) (*Outcome, error) {
	src, err := o.resolver.Resolve(ctx, projectID, sourceID)
	if err != nil {
		o.recordAborted(ctx, projectID, sourceID, targetID, actor, reasonSourceUnresolvable, err)
		return nil, fmt.Errorf("resolving merge source %s: %w", sourceID, err)
	}
	tgt, err := o.resolver.Resolve(ctx, projectID, targetID)
	if err != nil {
		o.recordAborted(ctx, projectID, sourceID, targetID, actor, reasonTargetUnresolvable, err)
		return nil, fmt.Errorf("resolving merge target %s: %w", targetID, err)
	}

	if src == tgt {
		o.recordAborted(ctx, projectID, src, tgt, actor, reasonAlreadyMerged, datatypes.ErrAlreadyMerged)
		return nil, fmt.Errorf("merging %s into %s: %w", sourceID, targetID, datatypes.ErrAlreadyMerged)
	}

	// With pointers normalized to one hop, a cycle reduces to the case
	// above; the guard still runs on every merge as a consistency check.
	cyclic, err := o.resolver.WouldCreateCycle(ctx, projectID, src, tgt)
	if err != nil {
		o.recordAborted(ctx, projectID, src, tgt, actor, reasonCycleDetected, err)
		return nil, err
	}
	if cyclic {
		o.recordAborted(ctx, projectID, src, tgt, actor, reasonCycleDetected, datatypes.ErrCycleDetected)
		return nil, fmt.Errorf("merging %s into %s: %w", src, tgt, datatypes.ErrCycleDetected)
	}

	// The operation record is the recovery anchor for the audit append
	// below; ApplyMerge commits it with the mutation it describes, so a
	// committed merge always has its row.
	op := &datatypes.MergeOperation{
		ProjectID:     projectID,
		SourceLabelID: src,
		TargetLabelID: tgt,
		Actor:         actor,
		Result:        datatypes.MergeCommitted,
	}
	mut, err := o.store.ApplyMerge(ctx, projectID, src, tgt, op, func(ctx context.Context) error {
		return o.projector.Replay(ctx, projectID, src, tgt)
	})
	if err != nil {
		o.recordAborted(ctx, projectID, src, tgt, actor, reasonApplyFailed, err)
		return nil, fmt.Errorf("applying merge %s -> %s: %w", src, tgt, err)
	}

	if err := o.store.AppendAudit(ctx, &datatypes.AuditEntry{
		ProjectID:        projectID,
		SubjectLabelID:   src,
		Operation:        datatypes.AuditOpMerge,
		BeforeSnapshot:   mut.Before.Snapshot(),
		AfterSnapshot:    mut.After.Snapshot(),
		Actor:            actor,
		MergeOperationID: op.ID,
	}); err != nil {
		slog.Error("Merge committed but audit append failed, recovery will reconcile",
			"project_id", projectID, "operation_id", op.ID, "error", err)
	}

	slog.Info("Merge committed",
		"project_id", projectID,
		"source", src,
		"target", tgt,
		"moved_evidence", mut.MovedEvidence,
		"repointed_labels", mut.RepointedLabels,
		"actor", actor)

	return &Outcome{
		Operation:       op,
		MovedEvidence:   mut.MovedEvidence,
		RepointedLabels: mut.RepointedLabels,
	}, nil
}

func (o *Orchestrator) recordAborted(ctx context.Context, projectID, sourceID, targetID, actor, reason string, cause error) {
	op := &datatypes.MergeOperation{
		ProjectID:     projectID,
		SourceLabelID: sourceID,
		TargetLabelID: targetID,
		Actor:         actor,
		Result:        datatypes.MergeAborted,
		Reason:        fmt.Sprintf("%s: %v", reason, cause),
	}
	if err := o.store.RecordMergeOperation(ctx, op); err != nil {
		slog.Error("Failed to record aborted merge",
			"project_id", projectID, "source", sourceID, "target", targetID, "error", err)
	}
}

// PairSpec names one source/target pair of an explicit auto-merge request.
type PairSpec struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// PairOutcome is the per-pair result of an auto-merge batch.
type PairOutcome struct {
	PairID      string `json:"pair_id,omitempty"`
	Source      string `json:"source_label_id"`
	Target      string `json:"target_label_id"`
	Result      string `json:"result"` // committed, skipped, failed
	Reason      string `json:"reason,omitempty"`
	OperationID string `json:"operation_id,omitempty"`
}

// AutoMerge executes a batch of merges.
//
// # Description
//
// When requested pairs are given they run sequentially in request order.
// Otherwise the batch covers every validated candidate pair of the project
// in stored order (lexical score descending); those outcomes carry the
// originating pair id. Each pair's labels are re-resolved at execution time,
// so an earlier merge in the batch redirecting a later pair is handled
// naturally: the later pair either merges into the new canonical or is
// skipped as already merged. Skips are not failures; the batch continues. A
// canceled context stops the batch between pairs and returns the results so
// far with ctx.Err().
func (o *Orchestrator) AutoMerge(ctx context.Context, projectID, actor string, requested []PairSpec) ([]PairOutcome, error) {
	var queue []PairOutcome
	if len(requested) > 0 {
		queue = make([]PairOutcome, 0, len(requested))
		for _, p := range requested {
			queue = append(queue, PairOutcome{Source: p.Source, Target: p.Target})
		}
	} else {
		pairs, err := o.store.ListPairs(ctx, projectID, datatypes.PairValidated)
		if err != nil {
			return nil, err
		}
		queue = make([]PairOutcome, 0, len(pairs))
		for _, pair := range pairs {
			queue = append(queue, PairOutcome{
				PairID: pair.ID,
				Source: pair.SourceLabelID,
				Target: pair.TargetLabelID,
			})
		}
	}

	results := make([]PairOutcome, 0, len(queue))
	for _, res := range queue {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		outcome, err := o.Merge(ctx, projectID, res.Source, res.Target, actor)
		switch {
		case err == nil:
			res.Result = "committed"
			res.OperationID = outcome.Operation.ID
		case errors.Is(err, datatypes.ErrAlreadyMerged):
			res.Result = "skipped"
			res.Reason = reasonAlreadyMerged
		default:
			res.Result = "failed"
			res.Reason = err.Error()
		}
		results = append(results, res)
	}

	slog.Info("Auto-merge batch complete",
		"project_id", projectID, "pairs", len(queue), "actor", actor)
	return results, nil
}
