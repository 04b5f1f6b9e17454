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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinterlante1206/AleutianCodex/pkg/validation"
	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
	"github.com/jinterlante1206/AleutianCodex/services/canon/graph"
	"github.com/jinterlante1206/AleutianCodex/services/canon/resolve"
	"github.com/jinterlante1206/AleutianCodex/services/canon/store"
)

type CreateLabelRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	Text      string `json:"text" binding:"required"`
	Actor     string `json:"actor" binding:"required"`
}

// HandleCreateLabel seeds an active label directly into the registry,
// bypassing the candidate workflow. Text uniqueness among active labels is
// enforced by the store.
func HandleCreateLabel(st *store.Store, projector *graph.Projector) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateLabelRequest
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

		label, err := st.CreateLabel(c.Request.Context(), req.ProjectID, "", text)
		if err != nil {
			respondLedgerError(c, err)
			return
		}

		if err := projector.Backend().EnsureNode(c.Request.Context(),
			req.ProjectID, label.ID, label.Text); err != nil {
			slog.Warn("Created label not seeded in graph store",
				"project_id", req.ProjectID, "label_id", label.ID, "error", err)
		}

		if err := st.AppendAudit(c.Request.Context(), &datatypes.AuditEntry{
			ProjectID:      req.ProjectID,
			SubjectLabelID: label.ID,
			Operation:      datatypes.AuditOpLabelCreated,
			AfterSnapshot:  label.Snapshot(),
			Actor:          req.Actor,
		}); err != nil {
			respondLedgerError(c, err)
			return
		}

		c.JSON(http.StatusCreated, label)
	}
}

// HandleResolve returns the canonical label id for any label id.
func HandleResolve(resolver *resolve.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		labelID := c.Param("labelId")
		projectID := c.Query("project_id")
		if projectID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "project_id is required"})
			return
		}

		canonicalID, err := resolver.Resolve(c.Request.Context(), projectID, labelID)
		if err != nil {
			respondLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"label_id":     labelID,
			"canonical_id": canonicalID,
		})
	}
}

// HandleAuditHistory returns a label's audit trail, oldest first.
func HandleAuditHistory(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		labelID := c.Param("labelId")
		projectID := c.Query("project_id")
		if projectID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "project_id is required"})
			return
		}

		entries, err := st.AuditEntries(c.Request.Context(), projectID, labelID)
		if err != nil {
			respondLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"label_id": labelID,
			"entries":  entries,
		})
	}
}

type AddEvidenceRequest struct {
	ProjectID  string `json:"project_id" binding:"required"`
	LabelID    string `json:"label_id" binding:"required"`
	DocumentID string `json:"document_id" binding:"required"`
	Snippet    string `json:"snippet"`
}

// HandleAddEvidence attaches a piece of evidence to a label or to a
// pre-promotion candidate label.
func HandleAddEvidence(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddEvidenceRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		link, err := st.AddEvidence(c.Request.Context(),
			req.ProjectID, req.LabelID, req.DocumentID, req.Snippet)
		if err != nil {
			respondLedgerError(c, err)
			return
		}
		c.JSON(http.StatusCreated, link)
	}
}

// HandleCheckInvariants sweeps a whole project for invariant violations.
// An empty violation list means the project is sound.
func HandleCheckInvariants(resolver *resolve.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("projectId")

		violations, err := resolver.CheckInvariants(c.Request.Context(), projectID)
		if err != nil {
			respondLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"project_id": projectID,
			"sound":      len(violations) == 0,
			"violations": violations,
		})
	}
}
