// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph projects ledger merges onto the label graph store.
//
// # Ownership Model
//
// The relational ledger is authoritative over which label id is live; the
// graph is a derived view. The projector is the only writer of graph edges,
// the same way the ledger store is the only writer of label rows. If the
// graph store is ever lost, it can be rebuilt from the ledger plus the
// original edge history.
//
// # Thread Safety
//
// Projector methods are safe for concurrent use across projects. Within one
// project the merge orchestrator serializes calls; the projector itself does
// not lock.
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinterlante1206/AleutianCodex/services/canon/observability"
)

// Edge is a directed, typed edge between two labels. Weight is a provenance
// count: merges that would create a duplicate edge increment it instead.
type Edge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Type   string `json:"type"`
	Weight int    `json:"weight"`
}

// Store abstracts the graph backend. The Weaviate-backed implementation is
// used in deployments; the in-memory one serves tests and lightweight mode.
type Store interface {
	// EnsureNode creates the node for a label if it does not exist yet.
	EnsureNode(ctx context.Context, projectID, labelID, text string) error

	// IncidentEdges returns every edge touching labelID, in a stable order.
	IncidentEdges(ctx context.Context, projectID, labelID string) ([]Edge, error)

	// GetEdge returns the exact edge (from, to, type), or nil when absent.
	GetEdge(ctx context.Context, projectID, from, to, edgeType string) (*Edge, error)

	// UpsertEdge creates the edge or overwrites its weight.
	UpsertEdge(ctx context.Context, projectID string, edge Edge) error

	// DeleteEdge removes the exact edge (from, to, type) if present.
	DeleteEdge(ctx context.Context, projectID, from, to, edgeType string) error

	// MarkInactive flags a node as merged away. The node stays addressable
	// for historical queries; it is never deleted.
	MarkInactive(ctx context.Context, projectID, labelID string) error
}

// Projector replays ledger merges onto the graph store.
type Projector struct {
	store Store
}

// NewProjector creates a projector over the given backend.
func NewProjector(store Store) *Projector {
	return &Projector{store: store}
}

// Backend exposes the underlying store for callers that seed nodes directly
// (label creation, promotion).
func (p *Projector) Backend() Store {
	return p.store
}

// BackendName names the backend for metric labels.
func (p *Projector) BackendName() string {
	switch p.store.(type) {
	case *WeaviateStore:
		return "weaviate"
	case *MemoryStore:
		return "memory"
	default:
		return "custom"
	}
}

// Replay reassigns every edge incident to sourceID onto targetID.
//
// # Description
//
// For each edge touching source, the edge is re-homed onto target. If the
// re-homed edge already exists, its weight absorbs the moved edge's weight
// instead of duplicating topology; downstream centrality and community
// algorithms depend on that densification. Edges between source and target
// themselves would become self-loops and are dropped. After replay the
// source node keeps no edges and is marked inactive, but remains in the
// store.
//
// Replay is a fixed point: running it again finds no incident edges and
// changes nothing. A crash between the weight write and the old-edge delete
// can overcount one weight by one replayed edge on retry; the provenance
// counter is advisory, the edge set itself stays exact.
//
// # Outputs
//
//   - error: Any store failure, propagated so the enclosing merge aborts.
//     Partial edge transfer must never be committed.
func (p *Projector) Replay(ctx context.Context, projectID, sourceID, targetID string) error {
	err := p.replay(ctx, projectID, sourceID, targetID)
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.RecordGraphReplay(p.BackendName(), err == nil)
	}
	return err
}

func (p *Projector) replay(ctx context.Context, projectID, sourceID, targetID string) error {
	edges, err := p.store.IncidentEdges(ctx, projectID, sourceID)
	if err != nil {
		return fmt.Errorf("listing edges of %s: %w", sourceID, err)
	}

	moved, densified, dropped := 0, 0, 0
	for _, edge := range edges {
		rehomed := edge
		if rehomed.From == sourceID {
			rehomed.From = targetID
		}
		if rehomed.To == sourceID {
			rehomed.To = targetID
		}

		if rehomed.From == rehomed.To {
			if err := p.store.DeleteEdge(ctx, projectID, edge.From, edge.To, edge.Type); err != nil {
				return fmt.Errorf("dropping collapsed edge: %w", err)
			}
			dropped++
			continue
		}

		existing, err := p.store.GetEdge(ctx, projectID, rehomed.From, rehomed.To, rehomed.Type)
		if err != nil {
			return fmt.Errorf("checking edge (%s)-[%s]->(%s): %w",
				rehomed.From, rehomed.Type, rehomed.To, err)
		}
		if existing != nil {
			rehomed.Weight += existing.Weight
			densified++
		} else {
			moved++
		}
		if err := p.store.UpsertEdge(ctx, projectID, rehomed); err != nil {
			return fmt.Errorf("writing re-homed edge: %w", err)
		}
		if err := p.store.DeleteEdge(ctx, projectID, edge.From, edge.To, edge.Type); err != nil {
			return fmt.Errorf("removing old edge: %w", err)
		}
	}

	if err := p.store.MarkInactive(ctx, projectID, sourceID); err != nil {
		return fmt.Errorf("marking %s inactive: %w", sourceID, err)
	}

	slog.Debug("Graph replay complete",
		"project_id", projectID,
		"source", sourceID,
		"target", targetID,
		"moved", moved,
		"densified", densified,
		"dropped", dropped)
	return nil
}
