// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// ProcessRunner Interface
// -----------------------------------------------------------------------------

// ProcessRunner handles external process execution for the toolchain.
//
// All `git` and `patch` invocations go through this interface so the
// toolchain can be exercised in tests without real processes.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type ProcessRunner interface {
	// Run executes a command synchronously and returns its stdout.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - name: The executable name or path
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - []byte: stdout of the command
	//   - error: Non-nil if the command fails or is cancelled; stderr is
	//     folded into the error message
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithInput executes a command with data piped to stdin.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - name: The executable name or path
	//   - input: Data written to the process's stdin
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - []byte: stdout of the command
	//   - error: Non-nil if the command fails, stdin write fails, or cancelled
	//
	// # Limitations
	//
	//   - Input is fully buffered in memory before being written
	RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error)
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultProcessRunner implements ProcessRunner using os/exec.
//
// # Description
//
// Commands run in Dir (the target source tree) with an optional per-command
// timeout. On failure, trimmed stderr is folded into the returned error so
// callers get the tool's diagnostic without a separate channel.
type DefaultProcessRunner struct {
	// Dir is the working directory for every command. Empty means the
	// current process directory.
	Dir string

	// Timeout bounds each command. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// NewDefaultProcessRunner creates a runner rooted at dir.
func NewDefaultProcessRunner(dir string, timeout time.Duration) *DefaultProcessRunner {
	return &DefaultProcessRunner{Dir: dir, Timeout: timeout}
}

var _ ProcessRunner = (*DefaultProcessRunner)(nil)

// Run executes a command synchronously and returns its stdout.
func (r *DefaultProcessRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.exec(ctx, name, nil, args)
}

// RunWithInput executes a command with data piped to stdin.
func (r *DefaultProcessRunner) RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error) {
	return r.exec(ctx, name, input, args)
}

func (r *DefaultProcessRunner) exec(ctx context.Context, name string, input []byte, args []string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	if input != nil {
		cmd.Stdin = bytes.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%s %s timed out after %v", name, strings.Join(args, " "), r.Timeout)
		}
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockProcessRunner is a test double for ProcessRunner.
//
// Configure the mock by setting function fields before use. If a function
// field is nil and the corresponding method is called, it will panic.
//
// # Examples
//
//	mock := &MockProcessRunner{
//	    RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
//	        if name == "git" && args[0] == "log" {
//	            return []byte("abc123 Fix overflow\n"), nil
//	        }
//	        return nil, fmt.Errorf("unexpected command: %s", name)
//	    },
//	}
type MockProcessRunner struct {
	// RunFunc is called when Run is invoked
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithInputFunc is called when RunWithInput is invoked
	RunWithInputFunc func(ctx context.Context, name string, input []byte, args ...string) ([]byte, error)

	// Calls records all method invocations for verification
	Calls []ProcessRunnerCall

	// mu protects Calls for concurrent access
	mu sync.Mutex
}

// ProcessRunnerCall records a single method invocation.
type ProcessRunnerCall struct {
	Method string
	Name   string
	Args   []string
	Input  []byte
}

var _ ProcessRunner = (*MockProcessRunner)(nil)

// Run delegates to RunFunc and records the call.
func (m *MockProcessRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, ProcessRunnerCall{
		Method: "Run",
		Name:   name,
		Args:   args,
	})
	m.mu.Unlock()
	if m.RunFunc == nil {
		panic("MockProcessRunner.RunFunc not set")
	}
	return m.RunFunc(ctx, name, args...)
}

// RunWithInput delegates to RunWithInputFunc and records the call.
func (m *MockProcessRunner) RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, ProcessRunnerCall{
		Method: "RunWithInput",
		Name:   name,
		Args:   args,
		Input:  input,
	})
	m.mu.Unlock()
	if m.RunWithInputFunc == nil {
		panic("MockProcessRunner.RunWithInputFunc not set")
	}
	return m.RunWithInputFunc(ctx, name, input, args...)
}
