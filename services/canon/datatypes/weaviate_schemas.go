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

import (
	"context"
	"log"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// GetCodeLabelSchema describes the graph-side projection of a ledger label.
//
// The relational ledger stays authoritative over which label is live; these
// objects are a derived view and may be rebuilt from the ledger plus edge
// history if the graph store is ever lost. Merged labels are marked inactive
// here, never deleted, so historical graph queries can still address them.
func GetCodeLabelSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "CodeLabel",
		Description: "Graph node for a qualitative code label.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "labelId",
				DataType:        []string{"text"},
				Description:     "Ledger label id this node mirrors.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "projectId",
				DataType:        []string{"text"},
				Description:     "Owning project. All graph operations are scoped to it.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "text",
				DataType:     []string{"text"},
				Description:  "Label text at projection time (display only; ledger is authoritative).",
				Tokenization: "word",
			},
			{
				Name:            "isActive",
				DataType:        []string{"boolean"},
				Description:     "False once the label has been merged away. Inactive nodes keep no edges.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// GetLabelEdgeSchema describes a co-occurrence edge between two labels.
//
// Edges carry a weight acting as a provenance count: when a merge would
// produce a duplicate edge, the surviving edge's weight is incremented
// instead, so the merge densifies rather than duplicates topology. That
// keeps downstream centrality and community algorithms sound.
func GetLabelEdgeSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "LabelEdge",
		Description: "Directed, typed edge between two CodeLabel nodes.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "projectId",
				DataType:        []string{"text"},
				Description:     "Owning project.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "fromLabel",
				DataType:        []string{"text"},
				Description:     "Ledger id of the edge source.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "toLabel",
				DataType:        []string{"text"},
				Description:     "Ledger id of the edge target.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "edgeType",
				DataType:        []string{"text"},
				Description:     "Relationship type (cooccurs, cites, ...).",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "weight",
				DataType:        []string{"int"},
				Description:     "Provenance count. Incremented when merges collapse parallel edges.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureGraphSchema creates the canon graph classes if they do not exist.
// Called once at service startup when a Weaviate client is configured.
func EnsureGraphSchema(client *weaviate.Client) {
	schemaGetters := []func() *models.Class{
		GetCodeLabelSchema,
		GetLabelEdgeSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(context.Background())
		if err != nil {
			slog.Info("Schema not found, creating it...", "class", class.Class)
			err := client.Schema().ClassCreator().WithClass(class).Do(context.Background())
			if err != nil {
				log.Fatalf("Failed to create schema for class %s: %v", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
}
