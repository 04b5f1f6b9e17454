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
	"log"
	"os"

	"github.com/jinterlante1206/AleutianCodex/pkg/logging"
)

var logger *logging.Logger

func main() {
	logger = logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  "~/.aleutian/logs",
		Service: "canonctl",
	})
	defer logger.Close()

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

// serviceURL resolves the canon service base URL.
func serviceURL() string {
	if v := os.Getenv("CANON_SERVICE_URL"); v != "" {
		return v
	}
	return "http://localhost:12230"
}
