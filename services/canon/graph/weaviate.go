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
	"fmt"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
)

const (
	codeLabelClass = "CodeLabel"
	labelEdgeClass = "LabelEdge"
)

// WeaviateStore implements Store on a Weaviate instance.
//
// Object ids are deterministic UUIDs derived from the ledger keys, so every
// node and every (from, to, type) edge maps to exactly one object. That
// makes upserts and existence checks plain id lookups and keeps replay
// retries from spawning duplicate objects.
type WeaviateStore struct {
	client *weaviate.Client
}

// NewWeaviateStore wraps a connected Weaviate client. The caller is
// responsible for having run datatypes.EnsureGraphSchema first.
func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	return &WeaviateStore{client: client}
}

func nodeUUID(projectID, labelID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID,
		[]byte("codelabel/"+projectID+"/"+labelID)).String()
}

func edgeUUID(projectID, from, to, edgeType string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID,
		[]byte("labeledge/"+projectID+"/"+from+"/"+to+"/"+edgeType)).String()
}

func (w *WeaviateStore) EnsureNode(ctx context.Context, projectID, labelID, text string) error {
	id := nodeUUID(projectID, labelID)
	exists, err := w.client.Data().Checker().
		WithClassName(codeLabelClass).
		WithID(id).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: checking node %s: %v", datatypes.ErrStoreUnavailable, labelID, err)
	}
	if exists {
		return nil
	}

	_, err = w.client.Data().Creator().
		WithClassName(codeLabelClass).
		WithID(id).
		WithProperties(map[string]interface{}{
			"labelId":   labelID,
			"projectId": projectID,
			"text":      text,
			"isActive":  true,
		}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: creating node %s: %v", datatypes.ErrStoreUnavailable, labelID, err)
	}
	return nil
}

// labelEdgeResponse mirrors the GraphQL query shape for edge listings.
type labelEdgeResponse struct {
	Get struct {
		LabelEdge []struct {
			FromLabel string  `json:"fromLabel"`
			ToLabel   string  `json:"toLabel"`
			EdgeType  string  `json:"edgeType"`
			Weight    float64 `json:"weight"`
		} `json:"LabelEdge"`
	} `json:"Get"`
}

func (w *WeaviateStore) IncidentEdges(ctx context.Context, projectID, labelID string) ([]Edge, error) {
	whereFilter := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"projectId"}).
				WithOperator(filters.Equal).
				WithValueString(projectID),
			filters.Where().
				WithOperator(filters.Or).
				WithOperands([]*filters.WhereBuilder{
					filters.Where().
						WithPath([]string{"fromLabel"}).
						WithOperator(filters.Equal).
						WithValueString(labelID),
					filters.Where().
						WithPath([]string{"toLabel"}).
						WithOperator(filters.Equal).
						WithValueString(labelID),
				}),
		})

	fields := []graphql.Field{
		{Name: "fromLabel"},
		{Name: "toLabel"},
		{Name: "edgeType"},
		{Name: "weight"},
	}

	resp, err := w.client.GraphQL().Get().
		WithClassName(labelEdgeClass).
		WithFields(fields...).
		WithWhere(whereFilter).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: querying edges of %s: %v", datatypes.ErrStoreUnavailable, labelID, err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[labelEdgeResponse](resp)
	if err != nil {
		return nil, fmt.Errorf("parsing edge query for %s: %w", labelID, err)
	}

	edges := make([]Edge, 0, len(parsed.Get.LabelEdge))
	for _, e := range parsed.Get.LabelEdge {
		edges = append(edges, Edge{
			From:   e.FromLabel,
			To:     e.ToLabel,
			Type:   e.EdgeType,
			Weight: int(e.Weight),
		})
	}
	return edges, nil
}

func (w *WeaviateStore) GetEdge(ctx context.Context, projectID, from, to, edgeType string) (*Edge, error) {
	id := edgeUUID(projectID, from, to, edgeType)
	exists, err := w.client.Data().Checker().
		WithClassName(labelEdgeClass).
		WithID(id).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: checking edge: %v", datatypes.ErrStoreUnavailable, err)
	}
	if !exists {
		return nil, nil
	}

	objects, err := w.client.Data().ObjectsGetter().
		WithClassName(labelEdgeClass).
		WithID(id).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching edge: %v", datatypes.ErrStoreUnavailable, err)
	}
	if len(objects) == 0 {
		return nil, nil
	}

	edge := &Edge{From: from, To: to, Type: edgeType, Weight: 1}
	if props, ok := objects[0].Properties.(map[string]interface{}); ok {
		if weight, ok := props["weight"].(float64); ok {
			edge.Weight = int(weight)
		}
	}
	return edge, nil
}

func (w *WeaviateStore) UpsertEdge(ctx context.Context, projectID string, edge Edge) error {
	id := edgeUUID(projectID, edge.From, edge.To, edge.Type)
	exists, err := w.client.Data().Checker().
		WithClassName(labelEdgeClass).
		WithID(id).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: checking edge: %v", datatypes.ErrStoreUnavailable, err)
	}

	if exists {
		err = w.client.Data().Updater().
			WithClassName(labelEdgeClass).
			WithID(id).
			WithProperties(map[string]interface{}{
				"weight": edge.Weight,
			}).
			WithMerge().
			Do(ctx)
		if err != nil {
			return fmt.Errorf("%w: updating edge weight: %v", datatypes.ErrStoreUnavailable, err)
		}
		return nil
	}

	_, err = w.client.Data().Creator().
		WithClassName(labelEdgeClass).
		WithID(id).
		WithProperties(map[string]interface{}{
			"projectId": projectID,
			"fromLabel": edge.From,
			"toLabel":   edge.To,
			"edgeType":  edge.Type,
			"weight":    edge.Weight,
		}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: creating edge: %v", datatypes.ErrStoreUnavailable, err)
	}
	return nil
}

func (w *WeaviateStore) DeleteEdge(ctx context.Context, projectID, from, to, edgeType string) error {
	id := edgeUUID(projectID, from, to, edgeType)
	exists, err := w.client.Data().Checker().
		WithClassName(labelEdgeClass).
		WithID(id).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: checking edge: %v", datatypes.ErrStoreUnavailable, err)
	}
	if !exists {
		return nil
	}

	err = w.client.Data().Deleter().
		WithClassName(labelEdgeClass).
		WithID(id).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: deleting edge: %v", datatypes.ErrStoreUnavailable, err)
	}
	return nil
}

func (w *WeaviateStore) MarkInactive(ctx context.Context, projectID, labelID string) error {
	id := nodeUUID(projectID, labelID)
	exists, err := w.client.Data().Checker().
		WithClassName(codeLabelClass).
		WithID(id).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: checking node %s: %v", datatypes.ErrStoreUnavailable, labelID, err)
	}
	if !exists {
		return nil
	}

	err = w.client.Data().Updater().
		WithClassName(codeLabelClass).
		WithID(id).
		WithProperties(map[string]interface{}{
			"isActive": false,
		}).
		WithMerge().
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: marking node %s inactive: %v", datatypes.ErrStoreUnavailable, labelID, err)
	}
	return nil
}
