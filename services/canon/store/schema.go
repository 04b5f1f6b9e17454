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

// Schema DDL for the canonicalization ledger.
//
// labels carries the partial unique index enforcing text uniqueness: at most
// one active label per normalized text per project. normalized_text is
// computed in Go by datatypes.NormalizeLabelText; SQLite's lower() folds
// ASCII only and would let two spellings of a non-ASCII text coexist.
// Non-active rows are exempt so a merged label's old text can be re-coined
// later.
const (
	createLabels = `CREATE TABLE IF NOT EXISTS labels (
    project_id TEXT NOT NULL,
    label_id TEXT NOT NULL,
    text TEXT NOT NULL,
    normalized_text TEXT NOT NULL,
    status TEXT NOT NULL,
    canonical_id TEXT,
    canonical_text_snapshot TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (project_id, label_id)
);`

	createLabelsActiveTextIdx = `CREATE UNIQUE INDEX IF NOT EXISTS idx_labels_active_text
    ON labels(project_id, normalized_text) WHERE status = 'active';`

	createLabelsStatusIdx = `CREATE INDEX IF NOT EXISTS idx_labels_status
    ON labels(project_id, status);`

	createLabelsCanonicalIdx = `CREATE INDEX IF NOT EXISTS idx_labels_canonical
    ON labels(project_id, canonical_id);`

	createEvidenceLinks = `CREATE TABLE IF NOT EXISTS evidence_links (
    link_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    label_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    snippet TEXT,
    created_at TEXT NOT NULL
);`

	createEvidenceLabelIdx = `CREATE INDEX IF NOT EXISTS idx_evidence_label
    ON evidence_links(project_id, label_id);`

	createCandidatePairs = `CREATE TABLE IF NOT EXISTS candidate_pairs (
    pair_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    source_label_id TEXT NOT NULL,
    target_label_id TEXT NOT NULL,
    source_text TEXT NOT NULL,
    target_text TEXT NOT NULL,
    lexical_score REAL NOT NULL,
    semantic_score REAL,
    state TEXT NOT NULL,
    detected_at TEXT NOT NULL
);`

	createPairsProjectIdx = `CREATE INDEX IF NOT EXISTS idx_pairs_project
    ON candidate_pairs(project_id, state);`

	createCandidateLabels = `CREATE TABLE IF NOT EXISTS candidate_labels (
    candidate_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    text TEXT NOT NULL,
    state TEXT NOT NULL,
    created_at TEXT NOT NULL,
    validated_at TEXT
);`

	createCandidatesProjectIdx = `CREATE INDEX IF NOT EXISTS idx_candidates_project
    ON candidate_labels(project_id, state);`

	createMergeOperations = `CREATE TABLE IF NOT EXISTS merge_operations (
    operation_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    source_label_id TEXT NOT NULL,
    target_label_id TEXT NOT NULL,
    actor TEXT NOT NULL,
    executed_at TEXT NOT NULL,
    result TEXT NOT NULL,
    reason TEXT
);`

	createMergeOpsProjectIdx = `CREATE INDEX IF NOT EXISTS idx_merge_ops_project
    ON merge_operations(project_id, result);`

	createAuditEntries = `CREATE TABLE IF NOT EXISTS audit_entries (
    entry_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    subject_label_id TEXT NOT NULL,
    operation TEXT NOT NULL,
    before_snapshot TEXT,
    after_snapshot TEXT,
    actor TEXT NOT NULL,
    merge_operation_id TEXT,
    created_at TEXT NOT NULL
);`

	createAuditSubjectIdx = `CREATE INDEX IF NOT EXISTS idx_audit_subject
    ON audit_entries(project_id, subject_label_id);`

	createAuditMergeOpIdx = `CREATE INDEX IF NOT EXISTS idx_audit_merge_op
    ON audit_entries(merge_operation_id);`
)

// allDDL lists every statement run by migrate, in dependency order.
var allDDL = []string{
	createLabels,
	createLabelsActiveTextIdx,
	createLabelsStatusIdx,
	createLabelsCanonicalIdx,
	createEvidenceLinks,
	createEvidenceLabelIdx,
	createCandidatePairs,
	createPairsProjectIdx,
	createCandidateLabels,
	createCandidatesProjectIdx,
	createMergeOperations,
	createMergeOpsProjectIdx,
	createAuditEntries,
	createAuditSubjectIdx,
	createAuditMergeOpIdx,
}
