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
	"bytes"
	"io"
	"testing"
)

// promptRecorder wraps MockInputReader and records SetPrompt calls.
type promptRecorder struct {
	*MockInputReader
	prompts []string
}

func (p *promptRecorder) SetPrompt(prompt string) {
	p.prompts = append(p.prompts, prompt)
}

func TestPrompter_WritesPromptForPlainReader(t *testing.T) {
	var out bytes.Buffer
	prompter := NewPrompter(NewMockInputReader([]string{"a"}), &out)

	reply, err := prompter.Ask("  [S]kip or [A]pplied: ")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if reply != "a" {
		t.Errorf("reply = %q, want 'a'", reply)
	}
	if out.String() != "  [S]kip or [A]pplied: " {
		t.Errorf("prompt output = %q", out.String())
	}
}

func TestPrompter_DelegatesPromptToPromptingReader(t *testing.T) {
	var out bytes.Buffer
	rec := &promptRecorder{MockInputReader: NewMockInputReader([]string{"s"})}
	prompter := NewPrompter(rec, &out)

	reply, err := prompter.Ask("continue? ")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if reply != "s" {
		t.Errorf("reply = %q, want 's'", reply)
	}
	if len(rec.prompts) != 1 || rec.prompts[0] != "continue? " {
		t.Errorf("SetPrompt calls = %v", rec.prompts)
	}
	// Prompting readers display their own prompt
	if out.Len() != 0 {
		t.Errorf("prompt leaked to writer: %q", out.String())
	}
}

func TestPrompter_PropagatesEOF(t *testing.T) {
	var out bytes.Buffer
	prompter := NewPrompter(NewMockInputReader(nil), &out)

	if _, err := prompter.Ask("anything? "); err != io.EOF {
		t.Errorf("Ask() error = %v, want io.EOF", err)
	}
}
