// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve implements canonical pointer resolution over the ledger.
//
// # Description
//
// Because merges normalize pointers at write time, resolution
// is a single pointer hop, never a graph walk. A pointer that does not land
// on an active label in the same project is a consistency violation
// (ErrBrokenPointer) and is surfaced, never repaired here.
//
// # Thread Safety
//
// Resolver holds no state beyond the injected reader and is safe for
// concurrent use.
package resolve

import (
	"context"
	"fmt"

	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
)

// LabelReader is the slice of the store the resolver needs.
type LabelReader interface {
	GetLabel(ctx context.Context, projectID, labelID string) (*datatypes.Label, error)
	AllLabels(ctx context.Context, projectID string) ([]datatypes.Label, error)
}

// Resolver resolves labels to their canonical representatives.
type Resolver struct {
	labels LabelReader
}

// NewResolver creates a resolver over the given ledger reader.
func NewResolver(labels LabelReader) *Resolver {
	return &Resolver{labels: labels}
}

// Resolve returns the canonical label id for labelID.
//
// # Description
//
// An active label resolves to itself. A merged or superseded label resolves
// through exactly one pointer hop. Returns ErrBrokenPointer if the pointer
// is empty, crosses projects, or lands on a non-active label.
//
// # Outputs
//
//   - string: The canonical label id.
//   - error: ErrLabelNotFound, ErrBrokenPointer, or ErrNotActive for
//     deprecated labels, which have no canonical successor.
func (r *Resolver) Resolve(ctx context.Context, projectID, labelID string) (string, error) {
	label, err := r.labels.GetLabel(ctx, projectID, labelID)
	if err != nil {
		return "", err
	}

	switch label.Status {
	case datatypes.StatusActive:
		if label.CanonicalID != "" {
			return "", fmt.Errorf("active label %s carries canonical pointer %s: %w",
				labelID, label.CanonicalID, datatypes.ErrBrokenPointer)
		}
		return label.ID, nil

	case datatypes.StatusMerged, datatypes.StatusSuperseded:
		if label.CanonicalID == "" {
			return "", fmt.Errorf("%s label %s has no canonical pointer: %w",
				label.Status, labelID, datatypes.ErrBrokenPointer)
		}
		canonical, err := r.labels.GetLabel(ctx, projectID, label.CanonicalID)
		if err != nil {
			return "", fmt.Errorf("label %s points at missing canonical %s: %w",
				labelID, label.CanonicalID, datatypes.ErrBrokenPointer)
		}
		if canonical.Status != datatypes.StatusActive {
			return "", fmt.Errorf("label %s points at %s canonical %s: %w",
				labelID, canonical.Status, canonical.ID, datatypes.ErrBrokenPointer)
		}
		return canonical.ID, nil

	case datatypes.StatusDeprecated:
		return "", fmt.Errorf("label %s is deprecated: %w", labelID, datatypes.ErrNotActive)

	default:
		return "", fmt.Errorf("label %s has unknown status %q: %w",
			labelID, label.Status, datatypes.ErrBrokenPointer)
	}
}

// WouldCreateCycle reports whether merging source into target would make
// source's canonical chain point back at itself. With pointers normalized to
// one hop this reduces to resolve(target) == source, but the guard runs
// before every merge regardless.
func (r *Resolver) WouldCreateCycle(ctx context.Context, projectID, sourceID, targetID string) (bool, error) {
	if sourceID == targetID {
		return true, nil
	}
	resolved, err := r.Resolve(ctx, projectID, targetID)
	if err != nil {
		return false, err
	}
	return resolved == sourceID, nil
}

// Invariant identifiers reported by CheckInvariants.
const (
	// InvariantStatusPointer: a label is active iff its canonical pointer
	// is empty.
	InvariantStatusPointer = "status_pointer_coupling"

	// InvariantPointerTarget: merged and superseded labels point at an
	// active label in the same project, one hop, no chains.
	InvariantPointerTarget = "pointer_target_active"

	// InvariantUniqueText: at most one active label per case-insensitive
	// text value within a project.
	InvariantUniqueText = "active_text_unique"
)

// InvariantViolation describes one failed invariant found by a sweep.
type InvariantViolation struct {
	LabelID   string `json:"label_id"`
	Invariant string `json:"invariant"`
	Detail    string `json:"detail"`
}

// CheckInvariants sweeps a whole project and reports every violation of the
// ledger invariants above. An empty slice means the project is sound.
func (r *Resolver) CheckInvariants(ctx context.Context, projectID string) ([]InvariantViolation, error) {
	labels, err := r.labels.AllLabels(ctx, projectID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*datatypes.Label, len(labels))
	for i := range labels {
		byID[labels[i].ID] = &labels[i]
	}

	var violations []InvariantViolation
	activeTexts := make(map[string]string)

	for i := range labels {
		l := &labels[i]

		active := l.Status == datatypes.StatusActive
		hasPointer := l.CanonicalID != ""
		if active == hasPointer {
			violations = append(violations, InvariantViolation{
				LabelID:   l.ID,
				Invariant: InvariantStatusPointer,
				Detail:    fmt.Sprintf("status %s with canonical_id %q", l.Status, l.CanonicalID),
			})
		}

		if l.Status == datatypes.StatusMerged || l.Status == datatypes.StatusSuperseded {
			canonical, ok := byID[l.CanonicalID]
			switch {
			case !ok:
				violations = append(violations, InvariantViolation{
					LabelID:   l.ID,
					Invariant: InvariantPointerTarget,
					Detail:    fmt.Sprintf("canonical %q not found in project", l.CanonicalID),
				})
			case canonical.Status != datatypes.StatusActive:
				violations = append(violations, InvariantViolation{
					LabelID:   l.ID,
					Invariant: InvariantPointerTarget,
					Detail:    fmt.Sprintf("canonical %s has status %s", canonical.ID, canonical.Status),
				})
			}
		}

		if active {
			norm := datatypes.NormalizeLabelText(l.Text)
			if other, dup := activeTexts[norm]; dup {
				violations = append(violations, InvariantViolation{
					LabelID:   l.ID,
					Invariant: InvariantUniqueText,
					Detail:    fmt.Sprintf("duplicate active text with label %s", other),
				})
			} else {
				activeTexts[norm] = l.ID
			}
		}
	}

	return violations, nil
}
