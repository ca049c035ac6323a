// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"testing"
)

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		input string
		want  PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"f", PersonalityFull},
		{"FULL", PersonalityFull},
		{"standard", PersonalityStandard},
		{"std", PersonalityStandard},
		{"s", PersonalityStandard},
		{"minimal", PersonalityMinimal},
		{"min", PersonalityMinimal},
		{"m", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"quiet", PersonalityMachine},
		{"q", PersonalityMachine},
		{"bogus", PersonalityStandard},
		{"", PersonalityStandard},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParsePersonalityLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParsePersonalityLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetPersonalityLevel(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)
	if got := GetPersonality().Level; got != PersonalityMachine {
		t.Errorf("Level = %v, want machine", got)
	}

	SetPersonalityLevel(PersonalityFull)
	if got := GetPersonality().Level; got != PersonalityFull {
		t.Errorf("Level = %v, want full", got)
	}
}

func TestSetPersonality(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonality(Personality{Level: PersonalityMinimal})
	if got := GetPersonality().Level; got != PersonalityMinimal {
		t.Errorf("Level = %v, want minimal", got)
	}
}

func TestInitPersonality_EnvOverride(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	t.Setenv("VULNPATCH_PERSONALITY", "machine")
	InitPersonality()

	if got := GetPersonality().Level; got != PersonalityMachine {
		t.Errorf("Level = %v, want machine from env", got)
	}
}

func TestInitPersonality_NonTTY(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	t.Setenv("VULNPATCH_PERSONALITY", "")

	// Test binaries run with stdout redirected, so isTerminal is false
	// and machine mode is selected.
	InitPersonality()
	if isTerminal() {
		t.Skip("stdout is a terminal in this environment")
	}
	if got := GetPersonality().Level; got != PersonalityMachine {
		t.Errorf("Level = %v, want machine for non-TTY", got)
	}
}
