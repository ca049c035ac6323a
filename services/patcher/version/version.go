// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package version implements the dotted numeric version scheme used by the
// kernel advisory feed.
//
// Versions are ordered sequences of non-negative integer segments ("4.9",
// "4.4.153"). The empty version is a sentinel meaning "unbounded" and is only
// meaningful as a range endpoint. Ordering is plain lexicographic over the
// integer segments; there is no prerelease, build-metadata, or wildcard
// handling.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// Errors
// =============================================================================

// ErrMalformedVersion indicates a version string with a non-integer or
// negative segment. Malformed versions abort the run: every later range
// check against them would be meaningless.
var ErrMalformedVersion = errors.New("malformed version")

// =============================================================================
// Version
// =============================================================================

// Version is an immutable dotted numeric version.
//
// # Description
//
// A Version holds both the original string segments (so String round-trips
// exactly, "4.09" stays "4.09") and their integer values (used for ordering,
// so "4.09" and "4.9" compare equal). The zero value is the unbounded
// sentinel.
//
// # Thread Safety
//
// Versions are immutable after Parse and safe for concurrent use.
type Version struct {
	raw  []string
	nums []int
}

// Parse builds a Version from a dotted string.
//
// # Description
//
// The string is split on ".". Each segment must parse as a non-negative
// integer. The empty string yields the unbounded sentinel, not an error.
//
// # Outputs
//
//   - Version: the parsed value
//   - error: wraps ErrMalformedVersion when any segment is not a
//     non-negative integer
func Parse(s string) (Version, error) {
	if s == "" {
		return Version{}, nil
	}
	raw := strings.Split(s, ".")
	nums := make([]int, len(raw))
	for i, seg := range raw {
		n, err := strconv.Atoi(seg)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
		}
		nums[i] = n
	}
	return Version{raw: raw, nums: nums}, nil
}

// MustParse is Parse for trusted inputs; it panics on malformed versions.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the original dotted form. The sentinel renders as "".
func (v Version) String() string {
	return strings.Join(v.raw, ".")
}

// IsEmpty reports whether v is the unbounded sentinel.
func (v Version) IsEmpty() bool {
	return len(v.nums) == 0
}

// Compare orders two versions.
//
// # Description
//
// Segments are compared pairwise as integers. When one side runs out of
// segments while the other still has some, the exhausted side is strictly
// less ("4.9" < "4.9.1"). Simultaneous exhaustion is equality.
//
// # Outputs
//
//   - -1 if v < o, 0 if v == o, 1 if v > o
func (v Version) Compare(o Version) int {
	for i := range v.nums {
		if i >= len(o.nums) {
			return 1
		}
		switch {
		case v.nums[i] < o.nums[i]:
			return -1
		case v.nums[i] > o.nums[i]:
			return 1
		}
	}
	if len(v.nums) < len(o.nums) {
		return -1
	}
	return 0
}

// Less reports whether v orders strictly before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// InRange reports whether v lies within [min, max].
//
// # Description
//
// A bound that is the unbounded sentinel always passes. Otherwise v fails
// only when it is strictly below min or strictly above max. Both bounds are
// inclusive.
func (v Version) InRange(min, max Version) bool {
	if !min.IsEmpty() && v.Compare(min) < 0 {
		return false
	}
	if !max.IsEmpty() && v.Compare(max) > 0 {
		return false
	}
	return true
}
