// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package advisory

import (
	"sort"

	"github.com/tdm/vuln-patcher/services/patcher/patch"
	"github.com/tdm/vuln-patcher/services/patcher/version"
)

// PatchSet holds an advisory's patches keyed by target version.
//
// # Description
//
// Keys are the canonical version strings, so "4.9" and "4.09" are distinct
// entries even though they compare equal; exact selection is a string match
// while the below/above searches use version ordering. The set answers the
// three selection questions the engine asks: exact key, greatest key
// strictly below, least key strictly above.
//
// # Thread Safety
//
// A PatchSet is effectively immutable once its advisory is constructed; the
// engine only reads it.
type PatchSet struct {
	byKey map[string]*patch.Patch
	keys  []version.Version
}

// NewPatchSet creates an empty set.
func NewPatchSet() *PatchSet {
	return &PatchSet{byKey: make(map[string]*patch.Patch)}
}

// Add inserts a patch under ver, replacing any previous entry for the same
// canonical key.
func (s *PatchSet) Add(ver version.Version, p *patch.Patch) {
	key := ver.String()
	if _, exists := s.byKey[key]; !exists {
		s.keys = append(s.keys, ver)
		sort.SliceStable(s.keys, func(i, j int) bool {
			return s.keys[i].Less(s.keys[j])
		})
	}
	s.byKey[key] = p
}

// Len returns the number of patches.
func (s *PatchSet) Len() int {
	return len(s.byKey)
}

// Has reports whether a patch is keyed by exactly ver.
func (s *PatchSet) Has(ver version.Version) bool {
	_, ok := s.byKey[ver.String()]
	return ok
}

// Get returns the patch keyed by exactly ver.
func (s *PatchSet) Get(ver version.Version) (*patch.Patch, bool) {
	p, ok := s.byKey[ver.String()]
	return p, ok
}

// Versions returns the patch keys in ascending order. The slice is a copy.
func (s *PatchSet) Versions() []version.Version {
	out := make([]version.Version, len(s.keys))
	copy(out, s.keys)
	return out
}

// GreatestBelow returns the greatest key strictly below ver: the
// forward-port candidate.
func (s *PatchSet) GreatestBelow(ver version.Version) (version.Version, bool) {
	for i := len(s.keys) - 1; i >= 0; i-- {
		if s.keys[i].Compare(ver) < 0 {
			return s.keys[i], true
		}
	}
	return version.Version{}, false
}

// LeastAbove returns the least key strictly above ver: the backward-port
// candidate.
func (s *PatchSet) LeastAbove(ver version.Version) (version.Version, bool) {
	for _, k := range s.keys {
		if k.Compare(ver) > 0 {
			return k, true
		}
	}
	return version.Version{}, false
}
