// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the canon service configuration from
// ~/.aleutian/codex.yaml with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type CanonConfig struct {
	// Port the HTTP server listens on.
	Port string `yaml:"port"`

	// DBPath is the SQLite ledger file location.
	DBPath string `yaml:"db_path"`

	// WeaviateURL is the graph store endpoint. Empty means lightweight
	// mode with the in-memory graph backend.
	WeaviateURL string `yaml:"weaviate_url"`

	// OTLPEndpoint is the OpenTelemetry collector address.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Detection tuning.
	Detection DetectionConfig `yaml:"detection"`
}

type DetectionConfig struct {
	// Threshold is the minimum lexical similarity for proposed pairs.
	Threshold float64 `yaml:"threshold"` // e.g. 0.8

	// MaxResults caps a detection run's output (0 = unlimited).
	MaxResults int `yaml:"max_results"`
}

var (
	// Global is a singleton instance
	Global CanonConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

func loadInternal() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not find the user's home directory: %w", err)
	}
	configPath := filepath.Join(home, ".aleutian", "codex.yaml")
	// create it if it doesn't exist
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := createDefault(configPath); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read the config file: %w", err)
	}
	if err = yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to parse the config into the Global singleton: %w", err)
	}
	applyEnvOverrides(&Global)
	return nil
}

// applyEnvOverrides lets deployment environments win over the YAML file.
func applyEnvOverrides(cfg *CanonConfig) {
	if v := os.Getenv("CANON_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("CANON_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("WEAVIATE_SERVICE_URL"); v != "" {
		cfg.WeaviateURL = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func DefaultConfig() CanonConfig {
	home, _ := os.UserHomeDir()
	return CanonConfig{
		Port:   "12230",
		DBPath: filepath.Join(home, ".aleutian", "codex.db"),
		Detection: DetectionConfig{
			Threshold:  0.8,
			MaxResults: 0,
		},
	}
}
