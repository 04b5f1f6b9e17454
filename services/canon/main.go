// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jinterlante1206/AleutianCodex/services/canon/config"
	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
	"github.com/jinterlante1206/AleutianCodex/services/canon/detect"
	"github.com/jinterlante1206/AleutianCodex/services/canon/graph"
	"github.com/jinterlante1206/AleutianCodex/services/canon/merge"
	"github.com/jinterlante1206/AleutianCodex/services/canon/observability"
	"github.com/jinterlante1206/AleutianCodex/services/canon/promote"
	"github.com/jinterlante1206/AleutianCodex/services/canon/resolve"
	"github.com/jinterlante1206/AleutianCodex/services/canon/routes"
	"github.com/jinterlante1206/AleutianCodex/services/canon/store"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	if endpoint == "" {
		endpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("canon-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// graphBackend picks the weaviate store when a valid URL is configured, or
// falls back to the in-memory backend (lightweight mode).
func graphBackend(weaviateURL string) graph.Store {
	// Sanitize: trim quotes and whitespace in case Podman passes them literally
	weaviateURL = strings.Trim(weaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running in lightweight mode (in-memory graph).")
		return graph.NewMemoryStore()
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running in lightweight mode.",
			"url", weaviateURL, "error", err)
		return graph.NewMemoryStore()
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}
	client, err := weaviate.NewClient(clientConf)
	if err != nil {
		slog.Error("Failed to create Weaviate client, falling back to in-memory graph", "error", err)
		return graph.NewMemoryStore()
	}
	datatypes.EnsureGraphSchema(client)
	return graph.NewWeaviateStore(client)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Load(); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	cfg := config.Global

	// --- Init the tracer ---
	cleanup, err := initTracer(cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	ledger, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open the ledger store at %s: %v", cfg.DBPath, err)
	}
	defer ledger.Close()

	projector := graph.NewProjector(graphBackend(cfg.WeaviateURL))
	resolver := resolve.NewResolver(ledger)
	detector := detect.NewDetector(ledger, nil)
	orchestrator := merge.NewOrchestrator(ledger, resolver, projector)
	gate := promote.NewGate(ledger, projector)

	// Reconcile the audit log before taking traffic: committed merges that
	// lost their audit append to a crash get backfilled here.
	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	projects, err := ledger.ProjectsWithMerges(startupCtx)
	if err != nil {
		log.Fatalf("failed to enumerate projects for recovery: %v", err)
	}
	for _, projectID := range projects {
		if _, err := orchestrator.ReconcileAudit(startupCtx, projectID); err != nil {
			log.Fatalf("audit reconciliation failed for project %s: %v", projectID, err)
		}
	}
	cancel()

	router := gin.Default()
	router.Use(otelgin.Middleware("canon-service"))

	routes.SetupRoutes(router, ledger, resolver, detector, orchestrator, gate, projector)

	port := cfg.Port
	if port == "" {
		port = "12230"
	}
	log.Println("Starting the canon server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
