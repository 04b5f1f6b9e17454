// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinterlante1206/AleutianCodex/services/canon/observability"
	"github.com/jinterlante1206/AleutianCodex/services/canon/promote"
)

type PromoteRequest struct {
	ProjectID    string   `json:"project_id" binding:"required"`
	CandidateIDs []string `json:"candidate_ids" binding:"required"`
	Actor        string   `json:"actor" binding:"required"`
}

type skippedCandidate struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// HandlePromote runs the promotion gate over a batch of candidate ids.
// Skips are reported per candidate and never fail the batch.
func HandlePromote(gate *promote.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PromoteRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		results, err := gate.Promote(c.Request.Context(), req.ProjectID, req.CandidateIDs, req.Actor)
		if err != nil {
			respondLedgerError(c, err)
			return
		}

		promoted := 0
		skipped := make([]skippedCandidate, 0)
		for _, r := range results {
			if r.Promoted {
				promoted++
				if observability.DefaultMetrics != nil {
					observability.DefaultMetrics.RecordPromotion("promoted")
				}
				continue
			}
			skipped = append(skipped, skippedCandidate{ID: r.CandidateID, Reason: r.SkipReason})
			if observability.DefaultMetrics != nil {
				observability.DefaultMetrics.RecordPromotion(r.SkipReason)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"promoted_count": promoted,
			"skipped":        skipped,
		})
	}
}
