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
	"context"
	"sync"
)

// MockToolchain is a test double for Toolchain.
//
// Configure the mock by setting function fields before use. If a function
// field is nil and the corresponding method is called, it will panic.
//
// # Examples
//
//	mock := &vcs.MockToolchain{
//	    ProbeApplyFunc: func(ctx context.Context, content []byte, reverse bool) bool {
//	        return reverse // pretend everything is already applied
//	    },
//	}
type MockToolchain struct {
	// ProbeApplyFunc is called when ProbeApply is invoked
	ProbeApplyFunc func(ctx context.Context, content []byte, reverse bool) bool

	// ApplyFunc is called when Apply is invoked
	ApplyFunc func(ctx context.Context, content []byte, reverse bool) error

	// ApplyMailboxFunc is called when ApplyMailbox is invoked
	ApplyMailboxFunc func(ctx context.Context, content []byte) error

	// ContinueMailboxFunc is called when ContinueMailbox is invoked
	ContinueMailboxFunc func(ctx context.Context) error

	// StageFunc is called when Stage is invoked
	StageFunc func(ctx context.Context, paths ...string) error

	// LogFunc is called when Log is invoked
	LogFunc func(ctx context.Context) ([]Commit, error)

	// Calls records all method invocations for verification
	Calls []ToolchainCall

	// mu protects Calls for concurrent access
	mu sync.Mutex
}

// ToolchainCall records a single method invocation.
type ToolchainCall struct {
	Method  string
	Reverse bool
	Paths   []string
	Content []byte
}

var _ Toolchain = (*MockToolchain)(nil)

func (m *MockToolchain) record(call ToolchainCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// CallsTo returns the recorded calls for one method, in order.
func (m *MockToolchain) CallsTo(method string) []ToolchainCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ToolchainCall
	for _, c := range m.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// ProbeApply delegates to ProbeApplyFunc and records the call.
func (m *MockToolchain) ProbeApply(ctx context.Context, content []byte, reverse bool) bool {
	m.record(ToolchainCall{Method: "ProbeApply", Reverse: reverse, Content: content})
	if m.ProbeApplyFunc == nil {
		panic("MockToolchain.ProbeApplyFunc not set")
	}
	return m.ProbeApplyFunc(ctx, content, reverse)
}

// Apply delegates to ApplyFunc and records the call.
func (m *MockToolchain) Apply(ctx context.Context, content []byte, reverse bool) error {
	m.record(ToolchainCall{Method: "Apply", Reverse: reverse, Content: content})
	if m.ApplyFunc == nil {
		panic("MockToolchain.ApplyFunc not set")
	}
	return m.ApplyFunc(ctx, content, reverse)
}

// ApplyMailbox delegates to ApplyMailboxFunc and records the call.
func (m *MockToolchain) ApplyMailbox(ctx context.Context, content []byte) error {
	m.record(ToolchainCall{Method: "ApplyMailbox", Content: content})
	if m.ApplyMailboxFunc == nil {
		panic("MockToolchain.ApplyMailboxFunc not set")
	}
	return m.ApplyMailboxFunc(ctx, content)
}

// ContinueMailbox delegates to ContinueMailboxFunc and records the call.
func (m *MockToolchain) ContinueMailbox(ctx context.Context) error {
	m.record(ToolchainCall{Method: "ContinueMailbox"})
	if m.ContinueMailboxFunc == nil {
		panic("MockToolchain.ContinueMailboxFunc not set")
	}
	return m.ContinueMailboxFunc(ctx)
}

// Stage delegates to StageFunc and records the call.
func (m *MockToolchain) Stage(ctx context.Context, paths ...string) error {
	m.record(ToolchainCall{Method: "Stage", Paths: paths})
	if m.StageFunc == nil {
		panic("MockToolchain.StageFunc not set")
	}
	return m.StageFunc(ctx, paths...)
}

// Log delegates to LogFunc and records the call.
func (m *MockToolchain) Log(ctx context.Context) ([]Commit, error) {
	m.record(ToolchainCall{Method: "Log"})
	if m.LogFunc == nil {
		panic("MockToolchain.LogFunc not set")
	}
	return m.LogFunc(ctx)
}
