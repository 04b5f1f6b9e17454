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
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jinterlante1206/AleutianCodex/pkg/validation"
	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
	"github.com/jinterlante1206/AleutianCodex/services/canon/detect"
	"github.com/jinterlante1206/AleutianCodex/services/canon/observability"
	"github.com/jinterlante1206/AleutianCodex/services/canon/store"
)

// HandleListCandidates runs duplicate detection over the full active set of
// a project and returns the ranked pairs.
func HandleListCandidates(detector *detect.Detector) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Query("project_id")
		if projectID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "project_id is required"})
			return
		}

		var opts detect.Options
		if raw := c.Query("threshold"); raw != "" {
			threshold, err := strconv.ParseFloat(raw, 64)
			if err != nil || threshold <= 0 || threshold > 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be in (0, 1]"})
				return
			}
			opts.Threshold = threshold
		}
		if raw := c.Query("max_results"); raw != "" {
			maxResults, err := strconv.Atoi(raw)
			if err != nil || maxResults < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "max_results must be a non-negative integer"})
				return
			}
			opts.MaxResults = maxResults
		}

		pairs, err := detector.Detect(c.Request.Context(), projectID, opts)
		if err != nil {
			respondLedgerError(c, err)
			return
		}
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.RecordPairs(len(pairs))
		}

		c.JSON(http.StatusOK, gin.H{
			"project_id": projectID,
			"pairs":      pairs,
		})
	}
}

type ReviewPairRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	State     string `json:"state" binding:"required"`
}

// HandleReviewPair records the reviewer's verdict on a candidate pair.
// Only validated and rejected are acceptable verdicts; pairs return to
// proposed only through a fresh detection run.
func HandleReviewPair(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		pairID := c.Param("pairId")
		var req ReviewPairRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		state := datatypes.PairState(req.State)
		if state != datatypes.PairValidated && state != datatypes.PairRejected {
			c.JSON(http.StatusBadRequest, gin.H{"error": "state must be validated or rejected"})
			return
		}

		if err := st.SetPairState(c.Request.Context(), req.ProjectID, pairID, state); err != nil {
			respondLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"pair_id": pairID, "state": state})
	}
}

type CreateCandidateLabelRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	Text      string `json:"text" binding:"required"`
}

// HandleCreateCandidateLabel records a discovered code proposal. The
// candidate is not a registry member until it passes the promotion gate.
func HandleCreateCandidateLabel(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateCandidateLabelRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := validation.ValidateProjectID(req.ProjectID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		text, err := validation.SanitizeLabelText(req.Text)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		cand, err := st.CreateCandidate(c.Request.Context(), req.ProjectID, text)
		if err != nil {
			respondLedgerError(c, err)
			return
		}
		c.JSON(http.StatusCreated, cand)
	}
}

type ReviewCandidateLabelRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	State     string `json:"state" binding:"required"`
}

// HandleReviewCandidateLabel moves a candidate label through its review
// lifecycle. Promotion itself goes through the promotion gate endpoint.
func HandleReviewCandidateLabel(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		candidateID := c.Param("candidateId")
		var req ReviewCandidateLabelRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		state := datatypes.CandidateState(req.State)
		if state != datatypes.CandidateValidated && state != datatypes.CandidateRejected {
			c.JSON(http.StatusBadRequest, gin.H{"error": "state must be validated or rejected"})
			return
		}

		if err := st.SetCandidateState(c.Request.Context(), req.ProjectID, candidateID, state); err != nil {
			respondLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"candidate_id": candidateID, "state": state})
	}
}
