// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
)

// fakeLedger is an in-memory LabelReader for resolver tests.
type fakeLedger struct {
	labels map[string]*datatypes.Label
}

func (f *fakeLedger) GetLabel(_ context.Context, projectID, labelID string) (*datatypes.Label, error) {
	l, ok := f.labels[labelID]
	if !ok || l.ProjectID != projectID {
		return nil, fmt.Errorf("label %s: %w", labelID, datatypes.ErrLabelNotFound)
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLedger) AllLabels(_ context.Context, projectID string) ([]datatypes.Label, error) {
	var out []datatypes.Label
	for _, l := range f.labels {
		if l.ProjectID == projectID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func label(id string, status datatypes.LabelStatus, canonicalID, text string) *datatypes.Label {
	return &datatypes.Label{
		ProjectID:   "p1",
		ID:          id,
		Text:        text,
		Status:      status,
		CanonicalID: canonicalID,
	}
}

func newFake(labels ...*datatypes.Label) *fakeLedger {
	f := &fakeLedger{labels: make(map[string]*datatypes.Label)}
	for _, l := range labels {
		f.labels[l.ID] = l
	}
	return f
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("active label resolves to itself", func(t *testing.T) {
		r := NewResolver(newFake(label("a", datatypes.StatusActive, "", "alpha")))
		got, err := r.Resolve(ctx, "p1", "a")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != "a" {
			t.Errorf("got %q, want a", got)
		}
	})

	t.Run("merged label resolves in one hop", func(t *testing.T) {
		r := NewResolver(newFake(
			label("a", datatypes.StatusMerged, "b", "alpha"),
			label("b", datatypes.StatusActive, "", "beta"),
		))
		got, err := r.Resolve(ctx, "p1", "a")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != "b" {
			t.Errorf("got %q, want b", got)
		}
	})

	t.Run("superseded label resolves like merged", func(t *testing.T) {
		r := NewResolver(newFake(
			label("a", datatypes.StatusSuperseded, "b", "alpha"),
			label("b", datatypes.StatusActive, "", "beta"),
		))
		got, err := r.Resolve(ctx, "p1", "a")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != "b" {
			t.Errorf("got %q, want b", got)
		}
	})

	t.Run("deprecated label has no canonical", func(t *testing.T) {
		r := NewResolver(newFake(label("a", datatypes.StatusDeprecated, "", "alpha")))
		if _, err := r.Resolve(ctx, "p1", "a"); !errors.Is(err, datatypes.ErrNotActive) {
			t.Errorf("want ErrNotActive, got %v", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		r := NewResolver(newFake())
		if _, err := r.Resolve(ctx, "p1", "ghost"); !errors.Is(err, datatypes.ErrLabelNotFound) {
			t.Errorf("want ErrLabelNotFound, got %v", err)
		}
	})
}

func TestResolve_BrokenPointers(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		ledger *fakeLedger
		id     string
	}{
		{
			name:   "active label with a pointer",
			ledger: newFake(label("a", datatypes.StatusActive, "b", "alpha")),
			id:     "a",
		},
		{
			name:   "merged label without a pointer",
			ledger: newFake(label("a", datatypes.StatusMerged, "", "alpha")),
			id:     "a",
		},
		{
			name:   "pointer to a missing label",
			ledger: newFake(label("a", datatypes.StatusMerged, "ghost", "alpha")),
			id:     "a",
		},
		{
			name: "pointer to a non-active label",
			ledger: newFake(
				label("a", datatypes.StatusMerged, "b", "alpha"),
				label("b", datatypes.StatusDeprecated, "", "beta"),
			),
			id: "a",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(tc.ledger)
			if _, err := r.Resolve(ctx, "p1", tc.id); !errors.Is(err, datatypes.ErrBrokenPointer) {
				t.Errorf("want ErrBrokenPointer, got %v", err)
			}
		})
	}
}

func TestWouldCreateCycle(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(newFake(
		label("a", datatypes.StatusActive, "", "alpha"),
		label("b", datatypes.StatusActive, "", "beta"),
		label("c", datatypes.StatusMerged, "a", "gamma"),
	))

	t.Run("self merge", func(t *testing.T) {
		cyclic, err := r.WouldCreateCycle(ctx, "p1", "a", "a")
		if err != nil || !cyclic {
			t.Errorf("got (%v, %v), want (true, nil)", cyclic, err)
		}
	})

	t.Run("target resolving to source", func(t *testing.T) {
		cyclic, err := r.WouldCreateCycle(ctx, "p1", "a", "c")
		if err != nil || !cyclic {
			t.Errorf("got (%v, %v), want (true, nil)", cyclic, err)
		}
	})

	t.Run("independent labels", func(t *testing.T) {
		cyclic, err := r.WouldCreateCycle(ctx, "p1", "a", "b")
		if err != nil || cyclic {
			t.Errorf("got (%v, %v), want (false, nil)", cyclic, err)
		}
	})
}

func TestCheckInvariants(t *testing.T) {
	ctx := context.Background()

	t.Run("sound project reports nothing", func(t *testing.T) {
		r := NewResolver(newFake(
			label("a", datatypes.StatusActive, "", "alpha"),
			label("b", datatypes.StatusMerged, "a", "beta"),
		))
		violations, err := r.CheckInvariants(ctx, "p1")
		if err != nil {
			t.Fatalf("CheckInvariants: %v", err)
		}
		if len(violations) != 0 {
			t.Errorf("expected no violations, got %v", violations)
		}
	})

	t.Run("detects each violation class", func(t *testing.T) {
		r := NewResolver(newFake(
			label("a", datatypes.StatusActive, "b", "alpha"),     // active with pointer
			label("c", datatypes.StatusMerged, "ghost", "gamma"), // pointer to nowhere
			label("d", datatypes.StatusActive, "", "Same Text"),  // duplicate text pair
			label("e", datatypes.StatusActive, "", "same text"),
		))
		violations, err := r.CheckInvariants(ctx, "p1")
		if err != nil {
			t.Fatalf("CheckInvariants: %v", err)
		}

		found := map[string]bool{}
		for _, v := range violations {
			found[v.Invariant] = true
		}
		for _, want := range []string{InvariantStatusPointer, InvariantPointerTarget, InvariantUniqueText} {
			if !found[want] {
				t.Errorf("missing %s violation in %v", want, violations)
			}
		}
	})
}
