// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database queries, graph object ids, or file paths. Using these validators
// prevents injection attacks and keeps ledger keys well-formed.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// projectIDPattern matches valid project identifiers.
// Allows: letters, digits, dots, underscores, hyphens. Max length: 64.
var projectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]{0,63}$`)

// MaxLabelTextLength bounds label texts. Qualitative codes are short
// phrases; anything longer is almost certainly a pasted passage.
const MaxLabelTextLength = 512

// ValidateProjectID validates a project identifier.
//
// Project ids key every table and every graph object, so they must be safe
// to embed in queries and deterministic-UUID seeds.
//
// Valid project ids:
//   - 1-64 characters
//   - Letters and digits
//   - Dots (.), underscores (_) and hyphens (-) after the first character
//
// Returns an error if the id is invalid.
func ValidateProjectID(projectID string) error {
	if projectID == "" {
		return fmt.Errorf("project id cannot be empty")
	}
	if !projectIDPattern.MatchString(projectID) {
		return fmt.Errorf("invalid project id %q (must be 1-64 alphanumeric chars, dots, underscores, or hyphens)", projectID)
	}
	return nil
}

// ValidateLabelText validates a label or candidate text.
//
// Texts are stored verbatim; only emptiness after trimming and an upper
// length bound are rejected here. Case folding for the uniqueness check
// happens in the store, not in validation.
func ValidateLabelText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("label text cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxLabelTextLength {
		return fmt.Errorf("label text exceeds %d characters", MaxLabelTextLength)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("label text is not valid UTF-8")
	}
	return nil
}

// SanitizeLabelText trims surrounding whitespace and validates the result.
// Returns the trimmed text if valid, or an error if invalid.
//
// Use this at the API boundary so stored texts never carry accidental
// padding:
//
//	text, err := validation.SanitizeLabelText(req.Text)
//	if err != nil {
//	    return err
//	}
func SanitizeLabelText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if err := ValidateLabelText(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
