// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"
)

func TestValidateProjectID(t *testing.T) {
	valid := []string{"p1", "climate-study", "field_notes.2026", "A"}
	for _, id := range valid {
		if err := ValidateProjectID(id); err != nil {
			t.Errorf("ValidateProjectID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{
		"",
		"-starts-with-hyphen",
		".starts-with-dot",
		"has space",
		"has/slash",
		"has;semicolon",
		strings.Repeat("a", 65),
	}
	for _, id := range invalid {
		if err := ValidateProjectID(id); err == nil {
			t.Errorf("ValidateProjectID(%q) = nil, want error", id)
		}
	}
}

func TestValidateLabelText(t *testing.T) {
	if err := ValidateLabelText("escasez de agua"); err != nil {
		t.Errorf("valid text rejected: %v", err)
	}
	if err := ValidateLabelText("   "); err == nil {
		t.Error("whitespace-only text accepted")
	}
	if err := ValidateLabelText(strings.Repeat("x", MaxLabelTextLength+1)); err == nil {
		t.Error("over-length text accepted")
	}
}

func TestSanitizeLabelText(t *testing.T) {
	got, err := SanitizeLabelText("  water scarcity \n")
	if err != nil {
		t.Fatalf("SanitizeLabelText: %v", err)
	}
	if got != "water scarcity" {
		t.Errorf("got %q, want %q", got, "water scarcity")
	}

	if _, err := SanitizeLabelText("\t "); err == nil {
		t.Error("whitespace-only text accepted")
	}
}
