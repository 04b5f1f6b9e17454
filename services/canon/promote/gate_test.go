// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package promote

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
	"github.com/jinterlante1206/AleutianCodex/services/canon/graph"
	"github.com/jinterlante1206/AleutianCodex/services/canon/store"
)

func newTestGate(t *testing.T) (*Gate, *store.Store, *graph.MemoryStore) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mem := graph.NewMemoryStore()
	return NewGate(st, graph.NewProjector(mem)), st, mem
}

// newCandidate creates a candidate in the given state, optionally with
// evidence attached under the candidate's id.
func newCandidate(t *testing.T, st *store.Store, projectID, text string, state datatypes.CandidateState, evidence int) *datatypes.CandidateLabel {
	t.Helper()
	ctx := context.Background()
	cand, err := st.CreateCandidate(ctx, projectID, text)
	require.NoError(t, err)
	if state != datatypes.CandidateProposed {
		require.NoError(t, st.SetCandidateState(ctx, projectID, cand.ID, state))
	}
	for i := 0; i < evidence; i++ {
		_, err := st.AddEvidence(ctx, projectID, cand.ID, "doc-1", "snippet")
		require.NoError(t, err)
	}
	return cand
}

func TestPromote_ValidatedCandidateBecomesActiveLabel(t *testing.T) {
	gate, st, mem := newTestGate(t)
	ctx := context.Background()
	cand := newCandidate(t, st, "p1", "food insecurity", datatypes.CandidateValidated, 2)

	results, err := gate.Promote(ctx, "p1", []string{cand.ID}, "dr-chen")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Promoted)
	assert.Empty(t, results[0].SkipReason)
	require.NotNil(t, results[0].Label)

	// The label reuses the candidate id, so pre-promotion evidence counts
	// for it with no rewrite.
	assert.Equal(t, cand.ID, results[0].Label.ID)
	n, err := st.EvidenceCount(ctx, "p1", results[0].Label.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	label, err := st.GetLabel(ctx, "p1", cand.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusActive, label.Status)

	got, err := st.GetCandidate(ctx, "p1", cand.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.CandidatePromoted, got.State)

	// Seeded in the graph and on the audit trail.
	assert.True(t, mem.NodeActive("p1", cand.ID))
	entries, err := st.AuditEntries(ctx, "p1", cand.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, datatypes.AuditOpPromote, entries[0].Operation)
}

func TestPromote_SkipReasons(t *testing.T) {
	gate, st, _ := newTestGate(t)
	ctx := context.Background()

	t.Run("unknown candidate", func(t *testing.T) {
		results, err := gate.Promote(ctx, "p1", []string{"ghost"}, "dr-chen")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.False(t, results[0].Promoted)
		assert.Equal(t, SkipNotFound, results[0].SkipReason)
	})

	t.Run("proposed candidate is not promotable", func(t *testing.T) {
		cand := newCandidate(t, st, "p1", "proposed only", datatypes.CandidateProposed, 1)
		results, err := gate.Promote(ctx, "p1", []string{cand.ID}, "dr-chen")
		require.NoError(t, err)
		assert.Equal(t, SkipNotValidated, results[0].SkipReason)
	})

	t.Run("validated without evidence", func(t *testing.T) {
		cand := newCandidate(t, st, "p1", "no evidence", datatypes.CandidateValidated, 0)
		results, err := gate.Promote(ctx, "p1", []string{cand.ID}, "dr-chen")
		require.NoError(t, err)
		assert.Equal(t, SkipMissingEvidenceLink, results[0].SkipReason)
	})

	t.Run("text collides with an active label", func(t *testing.T) {
		_, err := st.CreateLabel(ctx, "p1", "", "Water Scarcity")
		require.NoError(t, err)
		// Case differs; the uniqueness rule is case-insensitive.
		cand := newCandidate(t, st, "p1", "water scarcity", datatypes.CandidateValidated, 1)
		results, err := gate.Promote(ctx, "p1", []string{cand.ID}, "dr-chen")
		require.NoError(t, err)
		assert.Equal(t, SkipAlreadyActive, results[0].SkipReason)

		got, err := st.GetCandidate(ctx, "p1", cand.ID)
		require.NoError(t, err)
		assert.Equal(t, datatypes.CandidateValidated, got.State, "skipped candidates stay validated")
	})
}

func TestPromote_BatchContinuesPastSkips(t *testing.T) {
	gate, st, _ := newTestGate(t)
	ctx := context.Background()

	good := newCandidate(t, st, "p1", "drought coping", datatypes.CandidateValidated, 1)
	bad := newCandidate(t, st, "p1", "unvalidated", datatypes.CandidateProposed, 1)

	results, err := gate.Promote(ctx, "p1", []string{bad.ID, good.ID}, "dr-chen")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, SkipNotValidated, results[0].SkipReason)
	assert.True(t, results[1].Promoted)
}

func TestPromote_RejectedCandidateStaysOut(t *testing.T) {
	gate, st, _ := newTestGate(t)
	ctx := context.Background()
	cand := newCandidate(t, st, "p1", "rejected idea", datatypes.CandidateRejected, 1)

	results, err := gate.Promote(ctx, "p1", []string{cand.ID}, "dr-chen")
	require.NoError(t, err)
	assert.Equal(t, SkipNotValidated, results[0].SkipReason)

	_, err = st.GetLabel(ctx, "p1", cand.ID)
	assert.ErrorIs(t, err, datatypes.ErrLabelNotFound)
}
