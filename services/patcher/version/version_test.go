// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package version

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	t.Run("simple", func(t *testing.T) {
		v, err := Parse("4.9")
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if got := v.String(); got != "4.9" {
			t.Errorf("String() = %q, want %q", got, "4.9")
		}
		if v.IsEmpty() {
			t.Error("IsEmpty() = true for non-empty version")
		}
	})

	t.Run("empty_is_sentinel", func(t *testing.T) {
		v, err := Parse("")
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if !v.IsEmpty() {
			t.Error("IsEmpty() = false for empty version")
		}
		if got := v.String(); got != "" {
			t.Errorf("String() = %q, want empty", got)
		}
	})

	t.Run("many_segments", func(t *testing.T) {
		v, err := Parse("4.4.153.2")
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if got := v.String(); got != "4.4.153.2" {
			t.Errorf("String() = %q, want %q", got, "4.4.153.2")
		}
	})

	t.Run("leading_zeros_round_trip", func(t *testing.T) {
		v, err := Parse("4.09")
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if got := v.String(); got != "4.09" {
			t.Errorf("String() = %q, want %q", got, "4.09")
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, s := range []string{"4.9-rc1", "abc", "4..9", "4.", ".4", "4.-1"} {
			if _, err := Parse(s); !errors.Is(err, ErrMalformedVersion) {
				t.Errorf("Parse(%q) error = %v, want ErrMalformedVersion", s, err)
			}
		}
	})
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"4.9", "4.9", 0},
		{"4.9", "4.09", 0},
		{"4.4", "4.9", -1},
		{"4.9", "4.4", 1},
		{"4.9", "4.19", -1},
		{"4.9", "4.9.1", -1},
		{"4.9.1", "4.9", 1},
		{"5.0", "4.19", 1},
		{"4.4.153", "4.4.152", 1},
		{"", "4.9", -1},
		{"", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			a := MustParse(tt.a)
			b := MustParse(tt.b)
			if got := a.Compare(b); got != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := b.Compare(a); got != -tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.b, tt.a, got, -tt.want)
			}
		})
	}

	t.Run("transitive", func(t *testing.T) {
		a := MustParse("4.4")
		b := MustParse("4.9")
		c := MustParse("4.9.1")
		if !(a.Less(b) && b.Less(c) && a.Less(c)) {
			t.Error("ordering is not transitive over 4.4 < 4.9 < 4.9.1")
		}
	})
}

func TestInRange(t *testing.T) {
	tests := []struct {
		name     string
		v        string
		min, max string
		want     bool
	}{
		{"inside", "4.9", "4.4", "4.14", true},
		{"above_max", "5.0", "4.4", "4.14", false},
		{"below_min", "4.2", "4.4", "4.14", false},
		{"equal_min", "4.4", "4.4", "4.14", true},
		{"equal_max", "4.14", "4.4", "4.14", true},
		{"unbounded_both", "3.18", "", "", true},
		{"unbounded_min", "3.18", "", "4.14", true},
		{"unbounded_max", "5.4", "4.4", "", true},
		{"point_above_short_max", "4.9.1", "4.4", "4.9", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := MustParse(tt.v)
			min := MustParse(tt.min)
			max := MustParse(tt.max)
			if got := v.InRange(min, max); got != tt.want {
				t.Errorf("InRange(%q, [%q,%q]) = %v, want %v", tt.v, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestMustParse(t *testing.T) {
	t.Run("panics_on_malformed", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("MustParse did not panic on malformed input")
			}
		}()
		MustParse("not.a.version")
	})
}
