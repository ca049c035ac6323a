// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package advisory models one vulnerability record from the feed: its
// affected version range, optional source tag, and version-keyed patches.
//
// Advisories are validated strictly at construction; a record that fails the
// schema never enters the run. The applied/action pair is mutable status,
// written only by the reconciliation engine.
package advisory

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/tdm/vuln-patcher/services/patcher/patch"
	"github.com/tdm/vuln-patcher/services/patcher/version"
)

// advisoryValidate is the validator instance for advisory construction.
var advisoryValidate *validator.Validate

func init() {
	advisoryValidate = validator.New()
}

// =============================================================================
// Status
// =============================================================================

// Status is the advisory's processing outcome, one line of the final report.
type Status string

const (
	// StatusNone means the advisory has not been processed (or was filtered
	// out before any patch was considered).
	StatusNone Status = "None"

	// StatusAlreadyApplied means the selected patch reverses cleanly, so
	// the fix is present in the working tree.
	StatusAlreadyApplied Status = "Already applied"

	// StatusInHistory means the patch's subject is in the commit history
	// with no cancelling revert.
	StatusInHistory Status = "In git history"

	// StatusCanApply is the dry-run verdict for a patch that would apply.
	StatusCanApply Status = "Can apply"

	// StatusCannotApply means no application path succeeded (or, in
	// dry-run mode, the probe failed).
	StatusCannotApply Status = "Cannot apply"

	// StatusAppliedClean means the integrated mailbox apply landed the
	// patch and its commit in one step.
	StatusAppliedClean Status = "Applied cleanly"

	// StatusAppliedManual means the patch needed the manual-recovery path
	// but was applied and committed.
	StatusAppliedManual Status = "Applied manually"

	// StatusSkipped means the mailbox apply failed and non-interactive
	// mode forbade recovery.
	StatusSkipped Status = "Skipped"
)

// =============================================================================
// Construction
// =============================================================================

// PatchRef is one version-keyed patch reference from the feed.
type PatchRef struct {
	Version string `validate:"required"`
	Ref     string `validate:"required,url"`
}

// Params is the validated raw material for an Advisory.
//
// Version bounds may be empty (unbounded). Source and Comments are optional.
type Params struct {
	Name       string `validate:"required"`
	VersionMin string
	VersionMax string
	Source     string
	Comments   string
	Patches    []PatchRef `validate:"dive"`
}

// Validate checks the schema constraints on p.
func (p Params) Validate() error {
	return advisoryValidate.Struct(p)
}

// Advisory is one vulnerability record.
//
// # Thread Safety
//
// All fields except the applied/action status are immutable after New. The
// status is written only by the engine goroutine.
type Advisory struct {
	name     string
	min      version.Version
	max      version.Version
	source   string
	comments string
	sortKey  string
	patches  *PatchSet

	applied bool
	action  Status
}

// New builds an Advisory, validating the schema and parsing every version
// eagerly.
//
// # Outputs
//
//   - *Advisory: the constructed record, action StatusNone
//   - error: schema violations, or version.ErrMalformedVersion for any
//     unparseable bound or patch key
func New(p Params, fetcher patch.ContentFetcher) (*Advisory, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("advisory %q: %w", p.Name, err)
	}

	min, err := version.Parse(p.VersionMin)
	if err != nil {
		return nil, fmt.Errorf("advisory %q: version_min: %w", p.Name, err)
	}
	max, err := version.Parse(p.VersionMax)
	if err != nil {
		return nil, fmt.Errorf("advisory %q: version_max: %w", p.Name, err)
	}

	patches := NewPatchSet()
	for _, ref := range p.Patches {
		ver, err := version.Parse(ref.Version)
		if err != nil {
			return nil, fmt.Errorf("advisory %q: patch key: %w", p.Name, err)
		}
		patches.Add(ver, patch.New(ref.Ref, fetcher))
	}

	return &Advisory{
		name:     p.Name,
		min:      min,
		max:      max,
		source:   p.Source,
		comments: p.Comments,
		sortKey:  sortKeyFor(p.Name),
		patches:  patches,
		action:   StatusNone,
	}, nil
}

// Name returns the advisory's display name.
func (a *Advisory) Name() string { return a.name }

// VersionMin returns the lower affected bound (possibly unbounded).
func (a *Advisory) VersionMin() version.Version { return a.min }

// VersionMax returns the upper affected bound (possibly unbounded).
func (a *Advisory) VersionMax() version.Version { return a.max }

// Source returns the source tag restricting applicability, or "".
func (a *Advisory) Source() string { return a.source }

// Comments returns the feed's free-text notes.
func (a *Advisory) Comments() string { return a.comments }

// SortKey returns the natural-order key derived from the name.
func (a *Advisory) SortKey() string { return a.sortKey }

// Patches returns the version-keyed patch set.
func (a *Advisory) Patches() *PatchSet { return a.patches }

// Applied reports whether the advisory ended in an applied state.
func (a *Advisory) Applied() bool { return a.applied }

// Action returns the current processing status.
func (a *Advisory) Action() Status { return a.action }

// SetOutcome records a processing result. Engine use only.
func (a *Advisory) SetOutcome(applied bool, action Status) {
	a.applied = applied
	a.action = action
}

// Sort orders advisories by sort key, in place.
func Sort(advisories []*Advisory) {
	sort.SliceStable(advisories, func(i, j int) bool {
		return advisories[i].sortKey < advisories[j].sortKey
	})
}

// =============================================================================
// Sort key
// =============================================================================

// sortKeyFor normalizes a name for natural ordering: alphanumeric runs are
// case-folded, all-digit runs are zero-padded to nine digits, everything
// else passes through verbatim. "CVE-9" sorts before "CVE-10".
func sortKeyFor(name string) string {
	var b strings.Builder
	rs := []rune(name)
	for pos := 0; pos < len(rs); {
		if !isAlnum(rs[pos]) {
			b.WriteRune(rs[pos])
			pos++
			continue
		}
		end := pos
		for end < len(rs) && isAlnum(rs[end]) {
			end++
		}
		field := string(rs[pos:end])
		pos = end
		if isAllDigits(field) {
			writePadded(&b, field)
		} else {
			b.WriteString(strings.ToLower(field))
		}
	}
	return b.String()
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// writePadded writes a digit run left-padded with zeros to nine characters.
// Runs already longer than nine digits keep their full width.
func writePadded(b *strings.Builder, digits string) {
	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	for i := len(trimmed); i < 9; i++ {
		b.WriteByte('0')
	}
	b.WriteString(trimmed)
}
