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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

const requestTimeout = 60 * time.Second

// =============================================================================
// HTTP HELPERS
// =============================================================================

func requireProject() {
	if projectID == "" {
		fmt.Fprintln(os.Stderr, "Error: --project is required")
		os.Exit(1)
	}
}

// doRequest issues one HTTP request against the canon service and returns
// the response body. Non-2xx responses are printed and exit non-zero, so
// every command is usable in scripts.
func doRequest(method, path string, query url.Values, body any) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	endpoint := serviceURL() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode request: %v\n", err)
			os.Exit(1)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build request: %v\n", err)
		os.Exit(1)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Error("request failed", "endpoint", endpoint, "error", err)
		fmt.Fprintf(os.Stderr, "Request to %s failed: %v\n", endpoint, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read response: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fmt.Fprintf(os.Stderr, "Service returned %s: %s\n", resp.Status, data)
		os.Exit(1)
	}
	return data
}

// printJSON re-indents the service response for the terminal.
func printJSON(data []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(buf.String())
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runCandidates(cmd *cobra.Command, args []string) {
	requireProject()
	query := url.Values{"project_id": {projectID}}
	if threshold > 0 {
		query.Set("threshold", strconv.FormatFloat(threshold, 'f', -1, 64))
	}
	printJSON(doRequest(http.MethodGet, "/v1/candidates", query, nil))
}

func runMerge(cmd *cobra.Command, args []string) {
	requireProject()
	printJSON(doRequest(http.MethodPost, "/v1/merge", nil, map[string]string{
		"project_id": projectID,
		"source_id":  args[0],
		"target_id":  args[1],
		"actor":      actor,
	}))
}

func runAutoMerge(cmd *cobra.Command, args []string) {
	requireProject()
	printJSON(doRequest(http.MethodPost, "/v1/merge/auto", nil, map[string]string{
		"project_id": projectID,
		"actor":      actor,
	}))
}

func runPromote(cmd *cobra.Command, args []string) {
	requireProject()
	printJSON(doRequest(http.MethodPost, "/v1/promote", nil, map[string]any{
		"project_id":    projectID,
		"candidate_ids": args,
		"actor":         actor,
	}))
}

func runResolve(cmd *cobra.Command, args []string) {
	requireProject()
	query := url.Values{"project_id": {projectID}}
	printJSON(doRequest(http.MethodGet, "/v1/labels/"+url.PathEscape(args[0])+"/resolve", query, nil))
}

func runAudit(cmd *cobra.Command, args []string) {
	requireProject()
	query := url.Values{"project_id": {projectID}}
	printJSON(doRequest(http.MethodGet, "/v1/labels/"+url.PathEscape(args[0])+"/audit", query, nil))
}

func runInvariants(cmd *cobra.Command, args []string) {
	requireProject()
	printJSON(doRequest(http.MethodGet,
		"/v1/projects/"+url.PathEscape(projectID)+"/invariants", nil, nil))
}
