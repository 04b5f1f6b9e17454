// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP surface of the canonicalization
// ledger. Handlers are closures over their injected collaborators and do no
// business logic themselves.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
	"github.com/jinterlante1206/AleutianCodex/services/canon/observability"
)

// respondLedgerError maps the ledger error taxonomy onto HTTP statuses.
//
// Broken pointers are the one case that must never look like a client
// mistake: they are consistency violations, logged at Error level, counted,
// and returned as 500 with an explicit flag.
func respondLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, datatypes.ErrBrokenPointer):
		slog.Error("Canonical pointer consistency violation", "error", err)
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.RecordBrokenPointer()
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":                 err.Error(),
			"consistency_violation": true,
		})

	case errors.Is(err, datatypes.ErrLabelNotFound),
		errors.Is(err, datatypes.ErrCandidateNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, datatypes.ErrAlreadyMerged),
		errors.Is(err, datatypes.ErrCycleDetected),
		errors.Is(err, datatypes.ErrAlreadyActive),
		errors.Is(err, datatypes.ErrNotActive),
		errors.Is(err, datatypes.ErrProjectMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, datatypes.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})

	default:
		slog.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
