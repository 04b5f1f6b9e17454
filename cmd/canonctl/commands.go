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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	projectID string
	actor     string
	threshold float64

	rootCmd = &cobra.Command{
		Use:   "canonctl",
		Short: "A cli to operate the code canonicalization ledger",
		Long: `canonctl issues commands to the canon service: duplicate
detection, merges, candidate promotion, canonical resolution and audit
history.`,
	}

	// --- Detection / Review ---
	candidatesCmd = &cobra.Command{
		Use:   "candidates",
		Short: "Run duplicate detection and list the proposed pairs",
		Run:   runCandidates, // Defined in cmd_ops.go
	}

	// --- Merging ---
	mergeCmd = &cobra.Command{
		Use:   "merge [source_id] [target_id]",
		Short: "Merge one label into another",
		Args:  cobra.ExactArgs(2),
		Run:   runMerge, // Defined in cmd_ops.go
	}
	autoMergeCmd = &cobra.Command{
		Use:   "automerge",
		Short: "Execute all validated candidate pairs of a project",
		Run:   runAutoMerge, // Defined in cmd_ops.go
	}

	// --- Promotion ---
	promoteCmd = &cobra.Command{
		Use:   "promote [candidate_id...]",
		Short: "Promote validated candidate labels into the registry",
		Args:  cobra.MinimumNArgs(1),
		Run:   runPromote, // Defined in cmd_ops.go
	}

	// --- Inspection ---
	resolveCmd = &cobra.Command{
		Use:   "resolve [label_id]",
		Short: "Resolve a label to its canonical representative",
		Args:  cobra.ExactArgs(1),
		Run:   runResolve, // Defined in cmd_ops.go
	}
	auditCmd = &cobra.Command{
		Use:   "audit [label_id]",
		Short: "Show a label's audit history",
		Args:  cobra.ExactArgs(1),
		Run:   runAudit, // Defined in cmd_ops.go
	}
	invariantsCmd = &cobra.Command{
		Use:   "invariants",
		Short: "Sweep a project for ledger invariant violations",
		Run:   runInvariants, // Defined in cmd_ops.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectID, "project", "p", "",
		"Project id (required)")
	rootCmd.PersistentFlags().StringVarP(&actor, "actor", "a", "canonctl",
		"Actor recorded on mutations")
	candidatesCmd.Flags().Float64VarP(&threshold, "threshold", "t", 0,
		"Minimum lexical similarity (0 uses the server default)")

	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(autoMergeCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(invariantsCmd)
}
