// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report collects per-advisory outcomes for a reconciliation
// run and presents them as a JSON artifact and a terminal table.
//
// # Description
//
// The engine appends one Entry per advisory it examines, including
// the ones filtered out before any patch selection. Finish seals the
// Summary with totals and the finish timestamp. The Summary is not
// safe for concurrent use; advisories are processed sequentially and
// all writes happen on the engine's goroutine.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tdm/vuln-patcher/services/patcher/advisory"
)

// Operator resolutions recorded when an advisory could not be applied
// automatically and the catalog was surfaced.
const (
	ResolutionSkipped = "skipped"
	ResolutionApplied = "applied"
)

// Entry is the recorded outcome for a single advisory.
type Entry struct {
	// Advisory is the advisory name (e.g. "CVE-2018-9999").
	Advisory string `json:"advisory"`

	// Action is the final processing status. StatusNone marks an
	// advisory filtered out before patch selection.
	Action advisory.Status `json:"action"`

	// Applied reports whether the tree is remediated for this
	// advisory, by this run or a previous one.
	Applied bool `json:"applied"`

	// Reason explains a filtered or failed entry: the range or source
	// mismatch, or the error that stopped processing.
	Reason string `json:"reason,omitempty"`

	// Resolution is the operator's catalog decision, when one was
	// asked for.
	Resolution string `json:"resolution,omitempty"`
}

// Totals aggregates entry outcomes.
type Totals struct {
	Applied    int `json:"applied"`
	CanApply   int `json:"can_apply"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	OutOfScope int `json:"out_of_scope"`
	Total      int `json:"total"`
}

// count classifies one entry. The dry-run verdict outranks the other
// buckets; the rest are disjoint for engine-produced entries.
func (t *Totals) count(e Entry) {
	t.Total++
	switch {
	case e.Action == advisory.StatusCanApply:
		t.CanApply++
	case e.Applied:
		t.Applied++
	case e.Resolution == ResolutionSkipped || e.Action == advisory.StatusSkipped:
		t.Skipped++
	case e.Action == advisory.StatusCannotApply:
		t.Failed++
	default:
		t.OutOfScope++
	}
}

// Summary is the full record of one reconciliation run.
type Summary struct {
	RunID      uuid.UUID `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Target is the kernel tree's detected "major.minor" version.
	Target string `json:"target"`

	// Sources is the sorted set of detected source identifiers.
	Sources []string `json:"sources"`

	DryRun  bool    `json:"dry_run"`
	Entries []Entry `json:"entries"`
	Totals  Totals  `json:"totals"`
}

// New starts a Summary for a run against the given tree.
//
// # Inputs
//
//   - target: Detected kernel version, rendered with String()
//   - sources: Detected source identifier set (kernel.DetectSources)
//   - dryRun: Whether the run mutates the tree
//
// # Outputs
//
//   - *Summary: Fresh summary with a new run ID and start timestamp
func New(target string, sources map[string]bool, dryRun bool) *Summary {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Summary{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
		Target:    target,
		Sources:   names,
		DryRun:    dryRun,
		Entries:   []Entry{},
	}
}

// Add records one advisory outcome.
func (s *Summary) Add(e Entry) {
	s.Entries = append(s.Entries, e)
}

// Finish seals the summary: sets the finish timestamp and recomputes
// totals from the recorded entries.
func (s *Summary) Finish() {
	s.FinishedAt = time.Now().UTC()
	s.Totals = Totals{}
	for _, e := range s.Entries {
		s.Totals.count(e)
	}
}

// WriteJSON writes the summary as an indented JSON artifact.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
