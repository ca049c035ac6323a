// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patch models one remediation artifact: a remote mbox-formatted
// patch plus the operations the reconciliation engine layers on it.
//
// A Patch starts as nothing but a remote reference. The first operation that
// needs more performs a single fetch-and-parse transition; after that the
// record is fully populated and immutable. A failed fetch leaves the record
// unfetched so a later attempt can retry. Partially populated metadata is
// never observable.
//
// Tree-touching operations take the vcs toolchain as an explicit capability
// rather than holding it, so a Patch value is inert data until the engine
// hands it the means to act.
package patch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tdm/vuln-patcher/services/patcher/history"
	"github.com/tdm/vuln-patcher/services/patcher/vcs"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrParseFailed indicates the fetched content is not a usable mbox
	// patch (missing envelope, missing subject). Fatal for this patch.
	ErrParseFailed = errors.New("patch parse failed")

	// ErrApplyFailed indicates a mutating forward or reverse application
	// exited nonzero.
	ErrApplyFailed = errors.New("patch apply failed")

	// ErrMergeFailed indicates the integrated apply-and-commit primitive
	// rejected the patch (typically a conflict partway through `git am`).
	ErrMergeFailed = errors.New("patch merge failed")
)

// revertPrefix is the subject prefix the feed's upstream uses when a commit
// undoes an earlier one. A matching revert cancels a history hit.
const revertPrefix = "Revert: "

// =============================================================================
// Types
// =============================================================================

// ContentFetcher retrieves a patch's content by its remote reference. The
// returned bytes are transport-decoded (base64 unwrapped) mbox text.
// Implemented by the feed client.
type ContentFetcher interface {
	FetchContent(ctx context.Context, ref string) ([]byte, error)
}

// Metadata is everything a fetched patch knows about itself.
type Metadata struct {
	// CommitID is the upstream commit id from the mbox envelope line.
	CommitID string

	// Author and Date are the original authorship headers, preserved
	// verbatim for the mailbox apply.
	Author string
	Date   string

	// Subject is the commit subject, guaranteed newline-free because it is
	// the history lookup key.
	Subject string

	// Files are the paths the diff touches, in diff order, without the
	// a/ b/ prefixes.
	Files []string
}

// Patch is one remediation artifact.
//
// # Thread Safety
//
// The unfetched-to-fetched transition is guarded; once fetched, all state is
// immutable. Tree-mutating operations must not run concurrently, which the
// engine guarantees by processing advisories sequentially.
type Patch struct {
	ref     string
	fetcher ContentFetcher

	mu      sync.Mutex
	fetched bool
	meta    Metadata
	content []byte
}

// New creates an unfetched Patch for ref. Nothing is retrieved until an
// operation needs the content.
func New(ref string, fetcher ContentFetcher) *Patch {
	return &Patch{ref: ref, fetcher: fetcher}
}

// Ref returns the immutable remote reference.
func (p *Patch) Ref() string {
	return p.ref
}

// ensure performs the single unfetched-to-fetched transition.
func (p *Patch) ensure(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetched {
		return nil
	}

	content, err := p.fetcher.FetchContent(ctx, p.ref)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", p.ref, err)
	}
	meta, err := parseMailbox(content)
	if err != nil {
		return fmt.Errorf("parse %s: %w", p.ref, err)
	}

	p.content = content
	p.meta = meta
	p.fetched = true
	return nil
}

// Metadata fetches on first use and returns the parsed metadata.
func (p *Patch) Metadata(ctx context.Context) (Metadata, error) {
	if err := p.ensure(ctx); err != nil {
		return Metadata{}, err
	}
	return p.meta, nil
}

// Content fetches on first use and returns the full mbox text.
func (p *Patch) Content(ctx context.Context) ([]byte, error) {
	if err := p.ensure(ctx); err != nil {
		return nil, err
	}
	return p.content, nil
}

// =============================================================================
// Operations
// =============================================================================

// CanApply dry-runs forward application against the working tree.
//
// # Outputs
//
//   - bool: probe outcome; true means the patch would apply cleanly
//   - error: fetch or parse failure only, never the probe outcome
func (p *Patch) CanApply(ctx context.Context, tools vcs.Toolchain) (bool, error) {
	if err := p.ensure(ctx); err != nil {
		return false, err
	}
	return tools.ProbeApply(ctx, p.content, false), nil
}

// CanReverse dry-runs reverse application. A patch that reverses cleanly is
// taken to be already present in the tree; this is the primary
// already-applied oracle.
func (p *Patch) CanReverse(ctx context.Context, tools vcs.Toolchain) (bool, error) {
	if err := p.ensure(ctx); err != nil {
		return false, err
	}
	return tools.ProbeApply(ctx, p.content, true), nil
}

// Apply mutates the working tree with the patch.
func (p *Patch) Apply(ctx context.Context, tools vcs.Toolchain) error {
	if err := p.ensure(ctx); err != nil {
		return err
	}
	if err := tools.Apply(ctx, p.content, false); err != nil {
		return fmt.Errorf("%w: %v", ErrApplyFailed, err)
	}
	return nil
}

// Reverse backs the patch out of the working tree.
func (p *Patch) Reverse(ctx context.Context, tools vcs.Toolchain) error {
	if err := p.ensure(ctx); err != nil {
		return err
	}
	if err := tools.Apply(ctx, p.content, true); err != nil {
		return fmt.Errorf("%w: %v", ErrApplyFailed, err)
	}
	return nil
}

// InHistory reports whether the patch already landed in the tree's history.
//
// # Description
//
// True iff the patch's subject appears in the index and no
// "Revert: <subject>" entry appears alongside it. A revert cancels the
// original application: the net tree state is "not applied".
func (p *Patch) InHistory(ctx context.Context, idx *history.Index) (bool, error) {
	if err := p.ensure(ctx); err != nil {
		return false, err
	}
	if !idx.Contains(p.meta.Subject) {
		return false, nil
	}
	if idx.Contains(revertPrefix + p.meta.Subject) {
		return false, nil
	}
	return true, nil
}

// Commit records the patch through the integrated mailbox apply, deriving
// commit authorship from the mbox headers.
func (p *Patch) Commit(ctx context.Context, tools vcs.Toolchain) error {
	if err := p.ensure(ctx); err != nil {
		return err
	}
	if err := tools.ApplyMailbox(ctx, p.content); err != nil {
		return fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}
	return nil
}
