// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jinterlante1206/AleutianCodex/services/canon/detect"
	"github.com/jinterlante1206/AleutianCodex/services/canon/graph"
	"github.com/jinterlante1206/AleutianCodex/services/canon/handlers"
	"github.com/jinterlante1206/AleutianCodex/services/canon/merge"
	"github.com/jinterlante1206/AleutianCodex/services/canon/promote"
	"github.com/jinterlante1206/AleutianCodex/services/canon/resolve"
	"github.com/jinterlante1206/AleutianCodex/services/canon/store"
)

func SetupRoutes(router *gin.Engine, st *store.Store, resolver *resolve.Resolver,
	detector *detect.Detector, orchestrator *merge.Orchestrator,
	gate *promote.Gate, projector *graph.Projector) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/merge", handlers.HandleMerge(orchestrator))
		v1.POST("/merge/auto", handlers.HandleAutoMerge(orchestrator))
		v1.GET("/merge/operations", handlers.HandleListOperations(st))

		v1.GET("/candidates", handlers.HandleListCandidates(detector))
		v1.POST("/candidates/:pairId/review", handlers.HandleReviewPair(st))

		v1.POST("/candidate-labels", handlers.HandleCreateCandidateLabel(st))
		v1.POST("/candidate-labels/:candidateId/review", handlers.HandleReviewCandidateLabel(st))
		v1.POST("/promote", handlers.HandlePromote(gate))

		v1.POST("/labels", handlers.HandleCreateLabel(st, projector))
		v1.GET("/labels/:labelId/resolve", handlers.HandleResolve(resolver))
		v1.GET("/labels/:labelId/audit", handlers.HandleAuditHistory(st))
		v1.POST("/evidence", handlers.HandleAddEvidence(st))

		v1.GET("/projects/:projectId/invariants", handlers.HandleCheckInvariants(resolver))
	}
}
