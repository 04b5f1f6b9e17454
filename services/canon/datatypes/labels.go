// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the core entities of the code canonicalization
// ledger: labels, duplicate-candidate pairs, merge operations, and audit
// entries, together with the error taxonomy shared by all canon components.
//
// # Invariants
//
// The ledger maintains four invariants, scoped per project:
//
//   - A label is active if and only if its canonical pointer is empty.
//   - A merged or superseded label points directly at an active label in
//     the same project. Pointer chains never exist; they are normalized away
//     at merge time.
//   - No label row is ever physically deleted. Only status and pointer
//     fields mutate.
//   - Within a project, at most one active label exists per case-insensitive
//     text value.
//
// These invariants are enforced by the store layer and verified by the
// resolver's invariant sweep.
package datatypes

import (
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// Labels
// =============================================================================

// LabelStatus is the lifecycle state of a code label.
type LabelStatus string

const (
	// StatusActive marks a canonical label: it is the authoritative
	// representative of a concept and its canonical pointer is empty.
	StatusActive LabelStatus = "active"

	// StatusMerged marks a label consolidated into another label.
	// Its canonical pointer references the surviving active label.
	StatusMerged LabelStatus = "merged"

	// StatusDeprecated marks a label retired without a successor.
	StatusDeprecated LabelStatus = "deprecated"

	// StatusSuperseded marks a label replaced by a renamed successor.
	// Like merged labels, it points at the current canonical.
	StatusSuperseded LabelStatus = "superseded"
)

// Label is one row of the relational ledger.
//
// # Description
//
// A label is a qualitative code applied to evidence in a project. Labels are
// never deleted; a merge flips the status to merged and sets the canonical
// pointer. CanonicalTextSnapshot keeps the last-known text of the canonical
// target for legacy/audit display, even after the target is renamed or the
// pointer is re-normalized by a later merge.
type Label struct {
	ProjectID             string      `json:"project_id"`
	ID                    string      `json:"label_id"`
	Text                  string      `json:"text"`
	Status                LabelStatus `json:"status"`
	CanonicalID           string      `json:"canonical_id,omitempty"`
	CanonicalTextSnapshot string      `json:"canonical_text_snapshot,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// IsCanonical reports whether the label is its own canonical representative.
func (l *Label) IsCanonical() bool {
	return l.Status == StatusActive && l.CanonicalID == ""
}

// Snapshot returns the JSON encoding of the label for audit before/after
// capture. Marshaling a Label never fails; the error path exists only to
// satisfy linters on the json call.
func (l *Label) Snapshot() json.RawMessage {
	data, err := json.Marshal(l)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// NormalizeLabelText folds a label text into the form used for the
// case-insensitive uniqueness check: fold-cased, whitespace-collapsed.
func NormalizeLabelText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// =============================================================================
// Candidate pairs and candidate labels
// =============================================================================

// PairState is the lifecycle state of a duplicate-candidate pair.
type PairState string

const (
	// PairProposed is a detector-produced pair awaiting human review.
	PairProposed PairState = "proposed"

	// PairValidated is a pair a reviewer confirmed as a duplicate.
	// Validated pairs are the input of auto-merge.
	PairValidated PairState = "validated"

	// PairRejected is a pair a reviewer dismissed.
	PairRejected PairState = "rejected"
)

// CandidatePair is a detector-proposed pair of probably-duplicate labels.
//
// SourceLabelID is the label suggested to be merged away; TargetLabelID is
// the suggested surviving canonical. The direction follows the detector's
// deterministic tie-break (reference count, then text length, then
// lexicographic order). SemanticScore is present only when an external
// embedding comparator was configured at detection time.
type CandidatePair struct {
	ID            string    `json:"pair_id"`
	ProjectID     string    `json:"project_id"`
	SourceLabelID string    `json:"source_label_id"`
	TargetLabelID string    `json:"target_label_id"`
	SourceText    string    `json:"source_text"`
	TargetText    string    `json:"target_text"`
	LexicalScore  float64   `json:"lexical_score"`
	SemanticScore *float64  `json:"semantic_score,omitempty"`
	State         PairState `json:"state"`
	DetectedAt    time.Time `json:"detected_at"`
}

// CandidateState is the lifecycle state of a discovered candidate label.
type CandidateState string

const (
	CandidateProposed  CandidateState = "proposed"
	CandidateValidated CandidateState = "validated"
	CandidateRejected  CandidateState = "rejected"
	CandidatePromoted  CandidateState = "promoted"
)

// CandidateLabel is a code proposal discovered outside the active registry
// (typically by the LLM coding pipeline). Membership in the registry is only
// granted by the promotion gate, never implicitly by validation or merge.
//
// Evidence links may reference a candidate's ID before promotion; promotion
// reuses the candidate ID as the new label ID so the links carry over.
type CandidateLabel struct {
	ID          string         `json:"candidate_id"`
	ProjectID   string         `json:"project_id"`
	Text        string         `json:"text"`
	State       CandidateState `json:"state"`
	CreatedAt   time.Time      `json:"created_at"`
	ValidatedAt *time.Time     `json:"validated_at,omitempty"`
}

// =============================================================================
// Merge operations
// =============================================================================

// MergeResult is the terminal outcome of a merge attempt.
type MergeResult string

const (
	// MergeCommitted means the full unit of work (reference transfer, graph
	// replay, status transition) became visible atomically.
	MergeCommitted MergeResult = "committed"

	// MergeAborted means no part of the merge became visible. The reason
	// field records why.
	MergeAborted MergeResult = "aborted"
)

// MergeOperation is the forensic record of one merge attempt. One row is
// written per attempt, aborted attempts included, and rows are never updated
// afterward.
type MergeOperation struct {
	ID            string      `json:"operation_id"`
	ProjectID     string      `json:"project_id"`
	SourceLabelID string      `json:"source_label_id"`
	TargetLabelID string      `json:"target_label_id"`
	Actor         string      `json:"actor"`
	ExecutedAt    time.Time   `json:"executed_at"`
	Result        MergeResult `json:"result"`
	Reason        string      `json:"reason,omitempty"`
}

// =============================================================================
// Audit entries
// =============================================================================

// Audit operation names recorded by the ledger.
const (
	AuditOpMerge           = "merge"
	AuditOpMergeReconciled = "merge.reconciled"
	AuditOpPromote         = "promote"
	AuditOpLabelCreated    = "label.created"
)

// AuditEntry is one append-only record of a label state transition.
//
// Entries are owned exclusively by the audit ledger and are never mutated or
// deleted. MergeOperationID links merge audits back to their MergeOperation
// row so crash recovery can find committed merges whose audit append was
// lost.
type AuditEntry struct {
	ID               string          `json:"entry_id"`
	ProjectID        string          `json:"project_id"`
	SubjectLabelID   string          `json:"subject_label_id"`
	Operation        string          `json:"operation"`
	BeforeSnapshot   json.RawMessage `json:"before_snapshot,omitempty"`
	AfterSnapshot    json.RawMessage `json:"after_snapshot,omitempty"`
	Actor            string          `json:"actor"`
	MergeOperationID string          `json:"merge_operation_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// =============================================================================
// Evidence links
// =============================================================================

// EvidenceLink ties a label (or a pre-promotion candidate label) to a piece
// of source evidence. Merges reassign the label side; the document side is
// owned by the ingestion pipeline and never touched here.
type EvidenceLink struct {
	ID         string    `json:"link_id"`
	ProjectID  string    `json:"project_id"`
	LabelID    string    `json:"label_id"`
	DocumentID string    `json:"document_id"`
	Snippet    string    `json:"snippet,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
