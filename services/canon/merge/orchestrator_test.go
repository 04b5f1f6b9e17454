// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package merge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
	"github.com/jinterlante1206/AleutianCodex/services/canon/graph"
	"github.com/jinterlante1206/AleutianCodex/services/canon/resolve"
	"github.com/jinterlante1206/AleutianCodex/services/canon/store"
)

type harness struct {
	store        *store.Store
	graph        *graph.MemoryStore
	resolver     *resolve.Resolver
	orchestrator *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mem := graph.NewMemoryStore()
	resolver := resolve.NewResolver(st)
	return &harness{
		store:        st,
		graph:        mem,
		resolver:     resolver,
		orchestrator: NewOrchestrator(st, resolver, graph.NewProjector(mem)),
	}
}

// seedLabel creates an active label with n evidence links and a graph node.
func (h *harness) seedLabel(t *testing.T, projectID, id, text string, evidence int) {
	t.Helper()
	ctx := context.Background()
	_, err := h.store.CreateLabel(ctx, projectID, id, text)
	require.NoError(t, err)
	require.NoError(t, h.graph.EnsureNode(ctx, projectID, id, text))
	for i := 0; i < evidence; i++ {
		_, err := h.store.AddEvidence(ctx, projectID, id,
			fmt.Sprintf("doc-%s-%d", id, i), "snippet")
		require.NoError(t, err)
	}
}

func TestMerge_Commits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLabel(t, "p1", "a", "escasez agua", 5)
	h.seedLabel(t, "p1", "b", "escasez de agua", 8)
	h.seedLabel(t, "p1", "c", "sequia", 0)
	require.NoError(t, h.graph.UpsertEdge(ctx, "p1", graph.Edge{From: "a", To: "c", Type: "co_occurs", Weight: 2}))
	require.NoError(t, h.graph.UpsertEdge(ctx, "p1", graph.Edge{From: "b", To: "c", Type: "co_occurs", Weight: 1}))

	outcome, err := h.orchestrator.Merge(ctx, "p1", "a", "b", "dr-chen")
	require.NoError(t, err)
	assert.Equal(t, 5, outcome.MovedEvidence)
	require.NotNil(t, outcome.Operation)
	assert.Equal(t, datatypes.MergeCommitted, outcome.Operation.Result)

	// Source carries a one-hop pointer; target holds all evidence.
	a, err := h.store.GetLabel(ctx, "p1", "a")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusMerged, a.Status)
	assert.Equal(t, "b", a.CanonicalID)

	n, err := h.store.EvidenceCount(ctx, "p1", "b")
	require.NoError(t, err)
	assert.Equal(t, 13, n)

	// Graph edges re-homed and densified onto the survivor.
	assert.Equal(t, []graph.Edge{
		{From: "b", To: "c", Type: "co_occurs", Weight: 3},
	}, h.graph.AllEdges("p1"))
	assert.False(t, h.graph.NodeActive("p1", "a"))

	// Forensic record and audit entry reference each other.
	ops, err := h.store.ListMergeOperations(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, datatypes.MergeCommitted, ops[0].Result)

	entries, err := h.store.AuditEntries(ctx, "p1", "a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, datatypes.AuditOpMerge, entries[0].Operation)
	assert.Equal(t, ops[0].ID, entries[0].MergeOperationID)
	assert.Equal(t, "dr-chen", entries[0].Actor)
}

func TestMerge_AlreadyMerged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLabel(t, "p1", "a", "escasez agua", 1)
	h.seedLabel(t, "p1", "b", "escasez de agua", 1)

	_, err := h.orchestrator.Merge(ctx, "p1", "a", "b", "dr-chen")
	require.NoError(t, err)

	// The reverse request resolves both sides to b and aborts.
	_, err = h.orchestrator.Merge(ctx, "p1", "b", "a", "dr-chen")
	require.ErrorIs(t, err, datatypes.ErrAlreadyMerged)

	ops, err := h.store.ListMergeOperations(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, ops, 2)
	var aborted *datatypes.MergeOperation
	for i := range ops {
		if ops[i].Result == datatypes.MergeAborted {
			aborted = &ops[i]
		}
	}
	require.NotNil(t, aborted)
	assert.Contains(t, aborted.Reason, reasonAlreadyMerged)
}

func TestMerge_ChainedMergesStayOneHop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLabel(t, "p1", "a", "alpha", 1)
	h.seedLabel(t, "p1", "b", "beta", 1)
	h.seedLabel(t, "p1", "c", "gamma", 1)

	_, err := h.orchestrator.Merge(ctx, "p1", "a", "b", "dr-chen")
	require.NoError(t, err)
	outcome, err := h.orchestrator.Merge(ctx, "p1", "b", "c", "dr-chen")
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.RepointedLabels)

	// a must point directly at c, never through b.
	a, err := h.store.GetLabel(ctx, "p1", "a")
	require.NoError(t, err)
	assert.Equal(t, "c", a.CanonicalID)

	got, err := h.resolver.Resolve(ctx, "p1", "a")
	require.NoError(t, err)
	assert.Equal(t, "c", got)
}

func TestMerge_ResolvesInputsBeforeMerging(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLabel(t, "p1", "a", "alpha", 2)
	h.seedLabel(t, "p1", "b", "beta", 0)
	h.seedLabel(t, "p1", "c", "gamma", 0)

	_, err := h.orchestrator.Merge(ctx, "p1", "a", "b", "dr-chen")
	require.NoError(t, err)

	// Naming the merged-away a targets its canonical b.
	outcome, err := h.orchestrator.Merge(ctx, "p1", "a", "c", "dr-chen")
	require.NoError(t, err)
	assert.Equal(t, "b", outcome.Operation.SourceLabelID)
	assert.Equal(t, "c", outcome.Operation.TargetLabelID)

	n, err := h.store.EvidenceCount(ctx, "p1", "c")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMerge_UnresolvableSource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLabel(t, "p1", "b", "beta", 0)

	_, err := h.orchestrator.Merge(ctx, "p1", "ghost", "b", "dr-chen")
	require.ErrorIs(t, err, datatypes.ErrLabelNotFound)

	ops, err := h.store.ListMergeOperations(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, datatypes.MergeAborted, ops[0].Result)
	assert.Contains(t, ops[0].Reason, reasonSourceUnresolvable)
}

func TestMerge_ConservesLabelCount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLabel(t, "p1", "a", "alpha", 3)
	h.seedLabel(t, "p1", "b", "beta", 1)

	before, err := h.store.CountLabels(ctx, "p1")
	require.NoError(t, err)

	_, err = h.orchestrator.Merge(ctx, "p1", "a", "b", "dr-chen")
	require.NoError(t, err)

	after, err := h.store.CountLabels(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, before, after, "merges must never delete label rows")
}

// brokenGraph fails every edge read so replay aborts inside the transaction.
type brokenGraph struct {
	*graph.MemoryStore
}

func (b *brokenGraph) IncidentEdges(ctx context.Context, projectID, labelID string) ([]graph.Edge, error) {
	return nil, errors.New("weaviate unreachable")
}

func TestMerge_GraphFailureRollsBackLedger(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	resolver := resolve.NewResolver(st)
	o := NewOrchestrator(st, resolver, graph.NewProjector(&brokenGraph{graph.NewMemoryStore()}))

	ctx := context.Background()
	_, err = st.CreateLabel(ctx, "p1", "a", "alpha")
	require.NoError(t, err)
	_, err = st.CreateLabel(ctx, "p1", "b", "beta")
	require.NoError(t, err)
	_, err = st.AddEvidence(ctx, "p1", "a", "doc-1", "snippet")
	require.NoError(t, err)

	_, err = o.Merge(ctx, "p1", "a", "b", "dr-chen")
	require.Error(t, err)

	// Nothing in the ledger moved.
	a, err := st.GetLabel(ctx, "p1", "a")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusActive, a.Status)
	assert.Empty(t, a.CanonicalID)

	n, err := st.EvidenceCount(ctx, "p1", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The aborted attempt is still on record.
	ops, err := st.ListMergeOperations(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, datatypes.MergeAborted, ops[0].Result)
	assert.Contains(t, ops[0].Reason, reasonApplyFailed)
}

func TestMerge_RandomSequenceKeepsInvariants(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ids := make([]string, 8)
	for i := range ids {
		ids[i] = fmt.Sprintf("l%d", i)
		h.seedLabel(t, "p1", ids[i], fmt.Sprintf("label %d", i), i%3)
	}

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 20; i++ {
		src := ids[rng.Intn(len(ids))]
		tgt := ids[rng.Intn(len(ids))]
		_, err := h.orchestrator.Merge(ctx, "p1", src, tgt, "dr-chen")
		if err != nil && !errors.Is(err, datatypes.ErrAlreadyMerged) {
			t.Fatalf("merge %s -> %s: %v", src, tgt, err)
		}

		violations, err := h.resolver.CheckInvariants(ctx, "p1")
		require.NoError(t, err)
		assert.Empty(t, violations, "after merge %s -> %s", src, tgt)
	}

	// Every pointer stays one hop regardless of merge order.
	labels, err := h.store.AllLabels(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, labels, len(ids))
	for _, l := range labels {
		if l.CanonicalID == "" {
			continue
		}
		canonical, err := h.store.GetLabel(ctx, "p1", l.CanonicalID)
		require.NoError(t, err)
		assert.Equal(t, datatypes.StatusActive, canonical.Status,
			"label %s points at non-active %s", l.ID, l.CanonicalID)
	}
}

func TestMerge_ProjectsIsolated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLabel(t, "p1", "a", "alpha", 1)
	h.seedLabel(t, "p2", "a2", "alpha", 1)
	h.seedLabel(t, "p2", "b2", "beta", 0)

	_, err := h.orchestrator.Merge(ctx, "p2", "a2", "b2", "dr-chen")
	require.NoError(t, err)

	// p1's identically named label is untouched.
	a, err := h.store.GetLabel(ctx, "p1", "a")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusActive, a.Status)
}

func TestAutoMerge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLabel(t, "p1", "a", "escasez agua", 1)
	h.seedLabel(t, "p1", "b", "escasez de agua", 4)
	h.seedLabel(t, "p1", "c", "escasez del agua", 2)

	pairs := []datatypes.CandidatePair{
		{SourceLabelID: "a", TargetLabelID: "b", SourceText: "escasez agua", TargetText: "escasez de agua", LexicalScore: 0.9, DetectedAt: time.Now()},
		{SourceLabelID: "b", TargetLabelID: "a", SourceText: "escasez de agua", TargetText: "escasez agua", LexicalScore: 0.85, DetectedAt: time.Now()},
		{SourceLabelID: "a", TargetLabelID: "c", SourceText: "escasez agua", TargetText: "escasez del agua", LexicalScore: 0.8, DetectedAt: time.Now()},
	}
	require.NoError(t, h.store.ReplaceProposedPairs(ctx, "p1", pairs))
	for _, p := range pairs {
		require.NoError(t, h.store.SetPairState(ctx, "p1", p.ID, datatypes.PairValidated))
	}

	results, err := h.orchestrator.AutoMerge(ctx, "p1", "batch", nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Stored order is score descending: commit, then the reverse pair is a
	// skip, then the chained pair re-resolves a to b and merges b into c.
	assert.Equal(t, "committed", results[0].Result)
	assert.NotEmpty(t, results[0].OperationID)
	assert.Equal(t, "skipped", results[1].Result)
	assert.Equal(t, reasonAlreadyMerged, results[1].Reason)
	assert.Equal(t, "committed", results[2].Result)

	got, err := h.resolver.Resolve(ctx, "p1", "a")
	require.NoError(t, err)
	assert.Equal(t, "c", got)

	n, err := h.store.EvidenceCount(ctx, "p1", "c")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestAutoMerge_CanceledContextReturnsPartialResults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLabel(t, "p1", "a", "alpha", 0)
	h.seedLabel(t, "p1", "b", "beta", 0)

	pairs := []datatypes.CandidatePair{
		{SourceLabelID: "a", TargetLabelID: "b", SourceText: "alpha", TargetText: "beta", LexicalScore: 0.9, DetectedAt: time.Now()},
	}
	require.NoError(t, h.store.ReplaceProposedPairs(ctx, "p1", pairs))
	require.NoError(t, h.store.SetPairState(ctx, "p1", pairs[0].ID, datatypes.PairValidated))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	results, err := h.orchestrator.AutoMerge(canceled, "p1", "batch", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestAutoMerge_ExplicitPairs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLabel(t, "p1", "a", "escasez agua", 2)
	h.seedLabel(t, "p1", "b", "escasez de agua", 1)

	// Pairs named in the request run directly; no stored pair is involved.
	results, err := h.orchestrator.AutoMerge(ctx, "p1", "reviewer", []PairSpec{
		{Source: "a", Target: "b"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "committed", results[0].Result)
	assert.Empty(t, results[0].PairID)
	assert.NotEmpty(t, results[0].OperationID)

	got, err := h.resolver.Resolve(ctx, "p1", "a")
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	// Repeating the explicit pair skips, same as the stored-pair path.
	results, err = h.orchestrator.AutoMerge(ctx, "p1", "reviewer", []PairSpec{
		{Source: "a", Target: "b"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "skipped", results[0].Result)
}

// canonicalState maps every label id to its status and resolved canonical,
// for comparing end states across separate executions.
func (h *harness) canonicalState(t *testing.T, projectID string) map[string]string {
	t.Helper()
	ctx := context.Background()
	labels, err := h.store.AllLabels(ctx, projectID)
	require.NoError(t, err)
	state := make(map[string]string, len(labels))
	for _, l := range labels {
		canonical, err := h.resolver.Resolve(ctx, projectID, l.ID)
		require.NoError(t, err)
		state[l.ID] = fmt.Sprintf("%s:%s", l.Status, canonical)
	}
	return state
}

func TestAutoMerge_ConcurrentBatchesMatchSequentialOrder(t *testing.T) {
	batchA := []PairSpec{{Source: "a", Target: "b"}, {Source: "c", Target: "d"}}
	batchB := []PairSpec{{Source: "b", Target: "d"}}

	seed := func(t *testing.T) *harness {
		h := newHarness(t)
		for i, id := range []string{"a", "b", "c", "d"} {
			h.seedLabel(t, "p1", id, fmt.Sprintf("theme %d", i), 1)
		}
		return h
	}
	run := func(h *harness, batch []PairSpec) {
		_, err := h.orchestrator.AutoMerge(context.Background(), "p1", "race", batch)
		require.NoError(t, err)
	}

	// Both sequential orders land on the same end state.
	seqAB := seed(t)
	run(seqAB, batchA)
	run(seqAB, batchB)
	want := seqAB.canonicalState(t, "p1")

	seqBA := seed(t)
	run(seqBA, batchB)
	run(seqBA, batchA)
	require.Equal(t, want, seqBA.canonicalState(t, "p1"))

	// Interleaved batches must match it too, whatever interleaving the
	// per-project lock admits this round.
	for i := 0; i < 8; i++ {
		h := seed(t)
		start := make(chan struct{})
		var wg sync.WaitGroup
		outcomes := make([][]PairOutcome, 2)
		errs := make([]error, 2)
		for j, batch := range [][]PairSpec{batchA, batchB} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				outcomes[j], errs[j] = h.orchestrator.AutoMerge(
					context.Background(), "p1", "race", batch)
			}()
		}
		close(start)
		wg.Wait()

		for j, results := range outcomes {
			require.NoError(t, errs[j])
			for _, res := range results {
				assert.NotEqual(t, "failed", res.Result,
					"pair %s -> %s: %s", res.Source, res.Target, res.Reason)
			}
		}
		violations, err := h.resolver.CheckInvariants(context.Background(), "p1")
		require.NoError(t, err)
		assert.Empty(t, violations)
		assert.Equal(t, want, h.canonicalState(t, "p1"))
	}
}

func TestReconcileAudit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLabel(t, "p1", "a", "alpha", 1)
	h.seedLabel(t, "p1", "b", "beta", 0)

	// Simulate a crash between commit and audit append: apply the merge
	// (which commits its operation row) but never write the audit entry.
	op := &datatypes.MergeOperation{
		ProjectID:     "p1",
		SourceLabelID: "a",
		TargetLabelID: "b",
		Actor:         "dr-chen",
		Result:        datatypes.MergeCommitted,
	}
	_, err := h.store.ApplyMerge(ctx, "p1", "a", "b", op, nil)
	require.NoError(t, err)

	backfilled, err := h.orchestrator.ReconcileAudit(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, backfilled)

	entries, err := h.store.AuditEntries(ctx, "p1", "a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, datatypes.AuditOpMergeReconciled, entries[0].Operation)
	assert.Equal(t, op.ID, entries[0].MergeOperationID)
	assert.Nil(t, entries[0].BeforeSnapshot)
	assert.NotNil(t, entries[0].AfterSnapshot)

	// Reconciliation is idempotent.
	backfilled, err = h.orchestrator.ReconcileAudit(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, backfilled)
}
