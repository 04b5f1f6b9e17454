// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "errors"

// Sentinel errors for ledger operations.
var (
	// ErrAlreadyMerged is returned when both sides of a merge already
	// resolve to the same canonical label. The state is left unchanged.
	ErrAlreadyMerged = errors.New("labels already share a canonical")

	// ErrCycleDetected is returned when a merge would make a label's
	// canonical chain point back at itself.
	ErrCycleDetected = errors.New("merge would create a canonical cycle")

	// ErrBrokenPointer is returned when a non-active label's canonical
	// pointer does not resolve to an active label in the same project.
	// This is a data-consistency violation: a prior bug or a manual data
	// edit broke the pointer normalization. It must surface loudly and is
	// never silently repaired.
	ErrBrokenPointer = errors.New("canonical pointer does not resolve to an active label")

	// ErrStoreUnavailable is returned when a backing store (relational
	// ledger or graph projection) cannot be reached. The enclosing
	// operation aborts cleanly with no partial effect and may be retried
	// by the caller.
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// ErrLabelNotFound is returned when a referenced label id does not
	// exist in the project.
	ErrLabelNotFound = errors.New("label not found")

	// ErrCandidateNotFound is returned when a referenced candidate id does
	// not exist in the project.
	ErrCandidateNotFound = errors.New("candidate not found")

	// ErrNotActive is returned when a merge target is a deprecated label,
	// which has no canonical successor to merge into.
	ErrNotActive = errors.New("label has no active canonical")

	// ErrMissingEvidenceLink is a per-item promotion skip: the candidate
	// has no associated evidence reference.
	ErrMissingEvidenceLink = errors.New("candidate has no evidence link")

	// ErrAlreadyActive is a per-item promotion skip: an active label with
	// the same normalized text already exists. The candidate should be
	// routed through merge instead.
	ErrAlreadyActive = errors.New("active label with same text already exists")

	// ErrProjectMismatch is returned when an operation references labels
	// from different projects. All invariants are scoped per project.
	ErrProjectMismatch = errors.New("labels belong to different projects")
)
