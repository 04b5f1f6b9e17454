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

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
)

// AddEvidence attaches one piece of evidence to a label or to a
// pre-promotion candidate label. The document side is opaque here; the
// ingestion pipeline owns it.
func (s *Store) AddEvidence(ctx context.Context, projectID, labelID, documentID, snippet string) (*datatypes.EvidenceLink, error) {
	link := &datatypes.EvidenceLink{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		LabelID:    labelID,
		DocumentID: documentID,
		Snippet:    snippet,
		CreatedAt:  time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evidence_links (link_id, project_id, label_id, document_id, snippet, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		link.ID, projectID, labelID, documentID, snippet, formatTime(link.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("adding evidence link: %w", err)
	}
	return link, nil
}

// EvidenceCount counts the evidence links currently attached to a label.
func (s *Store) EvidenceCount(ctx context.Context, projectID, labelID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM evidence_links WHERE project_id = ? AND label_id = ?`,
		projectID, labelID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting evidence links: %w", err)
	}
	return n, nil
}

// EvidenceCounts returns the per-label evidence counts for a whole project
// in one pass. The detector uses this for its tie-break ordering.
func (s *Store) EvidenceCounts(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label_id, COUNT(*) FROM evidence_links WHERE project_id = ? GROUP BY label_id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("counting evidence links: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scanning evidence count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
