// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vcs wraps the external `git` and `patch` tools behind a small
// toolchain interface.
//
// The reconciliation engine never shells out directly; everything it does to
// the working tree goes through Toolchain, and every Toolchain command goes
// through a ProcessRunner. Both layers have mock implementations so the
// decision procedure is testable without a repository or the patch utility.
//
// Architecture:
//
//	engine / patch records → Toolchain → ProcessRunner → git, patch
package vcs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
)

// logProgressInterval is how many parsed commits pass between progress
// callbacks while reading history.
const logProgressInterval = 1000

// maxSubjectLine bounds a single `git log --oneline` line.
const maxSubjectLine = 1 << 20

// Commit is one entry of the oneline history: abbreviated id plus subject.
type Commit struct {
	ID      string
	Subject string
}

// -----------------------------------------------------------------------------
// Toolchain Interface
// -----------------------------------------------------------------------------

// Toolchain is the set of tree-mutating and tree-probing primitives the
// patching pipeline needs.
//
// # Description
//
// ProbeApply answers "would this patch apply (or reverse) cleanly" without
// touching the tree. Apply mutates the tree with the patch utility.
// ApplyMailbox applies mbox content and records the commit in one step;
// ContinueMailbox finishes a mailbox apply that stopped partway. Stage adds
// paths to the index. Log enumerates the full no-merge history.
//
// # Thread Safety
//
// Implementations need not serialize calls; callers must not mutate the tree
// from more than one goroutine.
type Toolchain interface {
	// ProbeApply dry-runs the patch against the working tree.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - content: Full patch text, fed on stdin
	//   - reverse: Probe reverse application instead of forward
	//
	// # Outputs
	//
	//   - bool: True when the dry run exits cleanly
	//
	// # Limitations
	//
	//   - A missing or failing patch utility reads as "would not apply";
	//     the probe has no error channel by contract
	ProbeApply(ctx context.Context, content []byte, reverse bool) bool

	// Apply mutates the working tree with the patch, forward or reverse.
	Apply(ctx context.Context, content []byte, reverse bool) error

	// ApplyMailbox applies mbox-formatted content and commits it with the
	// authorship carried in the mailbox.
	ApplyMailbox(ctx context.Context, content []byte) error

	// ContinueMailbox resumes an interrupted mailbox apply after the
	// conflicts have been resolved and staged.
	ContinueMailbox(ctx context.Context) error

	// Stage adds the given paths to the index.
	Stage(ctx context.Context, paths ...string) error

	// Log returns the full no-merge history, newest first.
	Log(ctx context.Context) ([]Commit, error)
}

// -----------------------------------------------------------------------------
// Command Implementation
// -----------------------------------------------------------------------------

// CommandToolchain implements Toolchain with the `git` and `patch` binaries.
type CommandToolchain struct {
	runner   ProcessRunner
	progress func(commits int)
}

// NewCommandToolchain creates a toolchain that executes through runner.
//
// The runner decides the working directory and per-command timeout; the
// toolchain only decides argument vectors.
func NewCommandToolchain(runner ProcessRunner) *CommandToolchain {
	return &CommandToolchain{runner: runner}
}

var _ Toolchain = (*CommandToolchain)(nil)

// SetLogProgress installs a callback invoked every 1000 commits while Log
// parses history. Used by the CLI to show liveness on large trees.
func (t *CommandToolchain) SetLogProgress(fn func(commits int)) {
	t.progress = fn
}

// ProbeApply dry-runs the patch against the working tree.
func (t *CommandToolchain) ProbeApply(ctx context.Context, content []byte, reverse bool) bool {
	args := []string{"-p1", "--force", "--dry-run"}
	if reverse {
		args = append(args, "--reverse")
	}
	_, err := t.runner.RunWithInput(ctx, "patch", content, args...)
	return err == nil
}

// Apply mutates the working tree with the patch, forward or reverse.
func (t *CommandToolchain) Apply(ctx context.Context, content []byte, reverse bool) error {
	args := []string{"-p1", "--force"}
	if reverse {
		args = append(args, "--reverse")
	} else {
		args = append(args, "--no-backup-if-mismatch")
	}
	if _, err := t.runner.RunWithInput(ctx, "patch", content, args...); err != nil {
		return fmt.Errorf("patch %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

// ApplyMailbox applies mbox-formatted content via `git am`.
func (t *CommandToolchain) ApplyMailbox(ctx context.Context, content []byte) error {
	if _, err := t.runner.RunWithInput(ctx, "git", content, "am"); err != nil {
		return fmt.Errorf("git am: %w", err)
	}
	return nil
}

// ContinueMailbox resumes an interrupted `git am`.
func (t *CommandToolchain) ContinueMailbox(ctx context.Context) error {
	if _, err := t.runner.Run(ctx, "git", "am", "--continue"); err != nil {
		return fmt.Errorf("git am --continue: %w", err)
	}
	return nil
}

// Stage adds the given paths to the index.
func (t *CommandToolchain) Stage(ctx context.Context, paths ...string) error {
	args := append([]string{"add"}, paths...)
	if _, err := t.runner.Run(ctx, "git", args...); err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	return nil
}

// Log returns the full no-merge history, newest first.
//
// # Description
//
// Runs `git log --oneline --no-merges` and splits each line into an
// abbreviated id and a subject. Lines without a subject are kept with an
// empty subject; blank lines are skipped.
func (t *CommandToolchain) Log(ctx context.Context) ([]Commit, error) {
	out, err := t.runner.Run(ctx, "git", "log", "--oneline", "--no-merges")
	if err != nil {
		return nil, fmt.Errorf("git log: %w", err)
	}

	var commits []Commit
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), maxSubjectLine)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		id, subject, _ := strings.Cut(line, " ")
		commits = append(commits, Commit{ID: id, Subject: strings.TrimSpace(subject)})
		if t.progress != nil && len(commits)%logProgressInterval == 0 {
			t.progress(len(commits))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("git log: scan output: %w", err)
	}
	return commits, nil
}
