// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
)

// =============================================================================
// Prompter Implementation
// =============================================================================

// Prompter asks the operator a question and returns the reply.
//
// # Description
//
// Prompter pairs an InputReader with an output writer. Readers that
// display their own prompt (PromptingInputReader) are handed the
// prompt string; otherwise the prompt is written to out before
// reading. This avoids double-prompting with the interactive reader.
//
// # Thread Safety
//
// Not thread-safe. One prompter per run.
//
// # Examples
//
//	prompter := ux.NewPrompter(ux.NewInteractiveInputReader(50), os.Stdout)
//	reply, err := prompter.Ask("  Please apply manually. [S]kip or [A]pplied: ")
type Prompter struct {
	reader InputReader
	out    io.Writer
}

// NewPrompter creates a Prompter over the given reader and writer.
//
// # Inputs
//
//   - reader: Source of operator replies
//   - out: Destination for prompt text when the reader does not
//     display its own prompt
//
// # Outputs
//
//   - *Prompter: Ready for use
func NewPrompter(reader InputReader, out io.Writer) *Prompter {
	return &Prompter{
		reader: reader,
		out:    out,
	}
}

// Ask displays the prompt and reads one reply line.
//
// # Description
//
// Blocks until the operator submits a line. The reply is returned
// trimmed of surrounding whitespace.
//
// # Inputs
//
//   - prompt: Text shown before reading (should carry its own
//     trailing spacing, e.g. "press enter to continue...")
//
// # Outputs
//
//   - string: The operator's reply, trimmed
//   - error: io.EOF when input is exhausted, or other read error
func (p *Prompter) Ask(prompt string) (string, error) {
	if pr, ok := p.reader.(PromptingInputReader); ok {
		pr.SetPrompt(prompt)
	} else {
		fmt.Fprint(p.out, prompt)
	}
	return p.reader.ReadLine()
}
