// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history snapshots the target tree's commit subjects.
//
// The index is built once, before any advisory is processed, and is
// read-only afterwards. It backs the "is this patch already in the tree's
// history" oracle: a patch whose subject appears in the index was merged at
// some point, unless a matching revert subject cancels it (that check lives
// with the patch, not here).
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/tdm/vuln-patcher/services/patcher/vcs"
)

// ErrHistoryRead indicates the commit log could not be enumerated. This
// aborts the run before any advisory is touched: without the index the
// already-applied oracle would be wrong for every advisory.
var ErrHistoryRead = errors.New("history read failed")

// Source enumerates the no-merge commit history, newest first.
// *vcs.CommandToolchain satisfies it.
type Source interface {
	Log(ctx context.Context) ([]vcs.Commit, error)
}

// Index maps commit subject lines to abbreviated commit ids.
//
// # Thread Safety
//
// An Index is immutable after construction and safe for concurrent reads.
type Index struct {
	bySubject map[string]string
}

// Build reads the full history from src and indexes it.
func Build(ctx context.Context, src Source) (*Index, error) {
	commits, err := src.Log(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryRead, err)
	}
	return FromCommits(commits), nil
}

// FromCommits builds an index directly from commits. When two commits share
// a subject, the later entry wins, so with newest-first log order the index
// holds the oldest id for a repeated subject.
func FromCommits(commits []vcs.Commit) *Index {
	idx := &Index{bySubject: make(map[string]string, len(commits))}
	for _, c := range commits {
		idx.bySubject[c.Subject] = c.ID
	}
	return idx
}

// Lookup returns the commit id recorded for subject.
func (i *Index) Lookup(subject string) (string, bool) {
	id, ok := i.bySubject[subject]
	return id, ok
}

// Contains reports whether subject appears in the history.
func (i *Index) Contains(subject string) bool {
	_, ok := i.bySubject[subject]
	return ok
}

// Len returns the number of distinct subjects indexed.
func (i *Index) Len() int {
	return len(i.bySubject)
}
