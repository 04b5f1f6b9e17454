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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jinterlante1206/AleutianCodex/services/canon/merge"
	"github.com/jinterlante1206/AleutianCodex/services/canon/observability"
	"github.com/jinterlante1206/AleutianCodex/services/canon/store"
)

type MergeRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	SourceID  string `json:"source_id" binding:"required"`
	TargetID  string `json:"target_id" binding:"required"`
	Actor     string `json:"actor" binding:"required"`
}

// HandleMerge consolidates one label into another.
func HandleMerge(orchestrator *merge.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MergeRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		start := time.Now()
		outcome, err := orchestrator.Merge(c.Request.Context(),
			req.ProjectID, req.SourceID, req.TargetID, req.Actor)
		if err != nil {
			if observability.DefaultMetrics != nil {
				observability.DefaultMetrics.RecordMerge("aborted", time.Since(start).Seconds())
			}
			respondLedgerError(c, err)
			return
		}
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.RecordMerge("committed", time.Since(start).Seconds())
		}

		c.JSON(http.StatusOK, gin.H{
			"status":           "committed",
			"operation_id":     outcome.Operation.ID,
			"source_id":        outcome.Operation.SourceLabelID,
			"target_id":        outcome.Operation.TargetLabelID,
			"moved_evidence":   outcome.MovedEvidence,
			"repointed_labels": outcome.RepointedLabels,
		})
	}
}

type AutoMergeRequest struct {
	ProjectID string           `json:"project_id" binding:"required"`
	Actor     string           `json:"actor" binding:"required"`
	Pairs     []merge.PairSpec `json:"pairs"`
}

// HandleAutoMerge executes a batch of merges. Explicit pairs in the request
// body run as given; with no pairs the batch covers every validated
// candidate pair of the project. Per-pair failures come back in the results,
// not as an HTTP error.
func HandleAutoMerge(orchestrator *merge.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AutoMergeRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		for _, p := range req.Pairs {
			if p.Source == "" || p.Target == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "pairs entries need source and target"})
				return
			}
		}

		results, err := orchestrator.AutoMerge(c.Request.Context(), req.ProjectID, req.Actor, req.Pairs)
		if err != nil {
			respondLedgerError(c, err)
			return
		}

		committed := 0
		for _, r := range results {
			if r.Result == "committed" {
				committed++
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"committed": committed,
			"results":   results,
		})
	}
}

// HandleListOperations returns a project's merge attempt history.
func HandleListOperations(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Query("project_id")
		if projectID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "project_id is required"})
			return
		}
		ops, err := st.ListMergeOperations(c.Request.Context(), projectID)
		if err != nil {
			respondLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"operations": ops})
	}
}
