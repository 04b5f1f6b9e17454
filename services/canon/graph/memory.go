// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and by lightweight mode
// when no Weaviate instance is configured.
//
// # Thread Safety
//
// Safe for concurrent use; a single RWMutex guards all state.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]map[string]*memNode // project -> label -> node
	edges map[string]map[edgeKey]int     // project -> (from,to,type) -> weight
}

type memNode struct {
	text   string
	active bool
}

type edgeKey struct {
	from, to, edgeType string
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]map[string]*memNode),
		edges: make(map[string]map[edgeKey]int),
	}
}

func (m *MemoryStore) EnsureNode(_ context.Context, projectID, labelID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nodes[projectID] == nil {
		m.nodes[projectID] = make(map[string]*memNode)
	}
	if _, ok := m.nodes[projectID][labelID]; !ok {
		m.nodes[projectID][labelID] = &memNode{text: text, active: true}
	}
	return nil
}

func (m *MemoryStore) IncidentEdges(_ context.Context, projectID, labelID string) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Edge
	for k, w := range m.edges[projectID] {
		if k.from == labelID || k.to == labelID {
			out = append(out, Edge{From: k.from, To: k.to, Type: k.edgeType, Weight: w})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		if out[i].To != out[j].To {
			return out[i].To < out[j].To
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

func (m *MemoryStore) GetEdge(_ context.Context, projectID, from, to, edgeType string) (*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if w, ok := m.edges[projectID][edgeKey{from, to, edgeType}]; ok {
		return &Edge{From: from, To: to, Type: edgeType, Weight: w}, nil
	}
	return nil, nil
}

func (m *MemoryStore) UpsertEdge(_ context.Context, projectID string, edge Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.edges[projectID] == nil {
		m.edges[projectID] = make(map[edgeKey]int)
	}
	m.edges[projectID][edgeKey{edge.From, edge.To, edge.Type}] = edge.Weight
	return nil
}

func (m *MemoryStore) DeleteEdge(_ context.Context, projectID, from, to, edgeType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.edges[projectID], edgeKey{from, to, edgeType})
	return nil
}

func (m *MemoryStore) MarkInactive(_ context.Context, projectID, labelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[projectID][labelID]; ok {
		n.active = false
	}
	return nil
}

// NodeActive reports whether a node exists and is still active. Test helper.
func (m *MemoryStore) NodeActive(projectID, labelID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[projectID][labelID]
	return ok && n.active
}

// AllEdges returns every edge of a project in stable order. Test helper.
func (m *MemoryStore) AllEdges(projectID string) []Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Edge
	for k, w := range m.edges[projectID] {
		out = append(out, Edge{From: k.from, To: k.to, Type: k.edgeType, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		if out[i].To != out[j].To {
			return out[i].To < out[j].To
		}
		return out[i].Type < out[j].Type
	})
	return out
}
