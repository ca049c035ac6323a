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
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/tdm/vuln-patcher/services/patcher/version"
)

// nopFetcher satisfies patch.ContentFetcher for construction-only tests.
type nopFetcher struct{}

func (nopFetcher) FetchContent(ctx context.Context, ref string) ([]byte, error) {
	return nil, errors.New("nopFetcher: no content")
}

func TestNew(t *testing.T) {
	t.Run("valid_record", func(t *testing.T) {
		adv, err := New(Params{
			Name:       "CVE-2018-9999",
			VersionMin: "4.4",
			VersionMax: "4.14",
			Source:     "qcacld",
			Comments:   "remote stack overflow",
			Patches: []PatchRef{
				{Version: "4.4", Ref: "https://feed.example/patch?id=1"},
				{Version: "4.9", Ref: "https://feed.example/patch?id=2"},
			},
		}, nopFetcher{})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		if adv.Name() != "CVE-2018-9999" {
			t.Errorf("Name() = %q", adv.Name())
		}
		if adv.Source() != "qcacld" {
			t.Errorf("Source() = %q", adv.Source())
		}
		if adv.Patches().Len() != 2 {
			t.Errorf("Patches().Len() = %d, want 2", adv.Patches().Len())
		}
		if adv.Applied() || adv.Action() != StatusNone {
			t.Errorf("fresh advisory state = (%v, %q), want (false, None)", adv.Applied(), adv.Action())
		}
		if !version.MustParse("4.9").InRange(adv.VersionMin(), adv.VersionMax()) {
			t.Error("4.9 not in the advisory's parsed range")
		}
	})

	t.Run("unbounded_range", func(t *testing.T) {
		adv, err := New(Params{Name: "CVE-2017-1"}, nopFetcher{})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if !adv.VersionMin().IsEmpty() || !adv.VersionMax().IsEmpty() {
			t.Error("empty bounds did not parse as unbounded sentinels")
		}
		if adv.Patches().Len() != 0 {
			t.Errorf("Patches().Len() = %d, want 0", adv.Patches().Len())
		}
	})

	t.Run("missing_name_rejected", func(t *testing.T) {
		_, err := New(Params{VersionMin: "4.4"}, nopFetcher{})
		if err == nil {
			t.Fatal("New() error = nil, want schema violation")
		}
	})

	t.Run("bad_patch_ref_rejected", func(t *testing.T) {
		_, err := New(Params{
			Name:    "CVE-2018-1",
			Patches: []PatchRef{{Version: "4.4", Ref: "not a url"}},
		}, nopFetcher{})
		if err == nil {
			t.Fatal("New() error = nil, want schema violation")
		}
	})

	t.Run("malformed_bound_is_fatal", func(t *testing.T) {
		_, err := New(Params{Name: "CVE-2018-1", VersionMin: "4.x"}, nopFetcher{})
		if !errors.Is(err, version.ErrMalformedVersion) {
			t.Errorf("New() error = %v, want ErrMalformedVersion", err)
		}
	})

	t.Run("malformed_patch_key_is_fatal", func(t *testing.T) {
		_, err := New(Params{
			Name:    "CVE-2018-1",
			Patches: []PatchRef{{Version: "4.4-rc1", Ref: "https://feed.example/p"}},
		}, nopFetcher{})
		if !errors.Is(err, version.ErrMalformedVersion) {
			t.Errorf("New() error = %v, want ErrMalformedVersion", err)
		}
	})
}

func TestSetOutcome(t *testing.T) {
	adv, err := New(Params{Name: "CVE-2018-1"}, nopFetcher{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	adv.SetOutcome(true, StatusAppliedClean)
	if !adv.Applied() || adv.Action() != StatusAppliedClean {
		t.Errorf("state = (%v, %q), want (true, Applied cleanly)", adv.Applied(), adv.Action())
	}
}

func TestSortKey(t *testing.T) {
	t.Run("numeric_aware_order", func(t *testing.T) {
		names := []string{"CVE-9", "CVE-10", "CVE-2"}
		keys := make([]string, len(names))
		for i, n := range names {
			keys[i] = sortKeyFor(n)
		}
		sort.Strings(keys)

		want := []string{sortKeyFor("CVE-2"), sortKeyFor("CVE-9"), sortKeyFor("CVE-10")}
		for i := range keys {
			if keys[i] != want[i] {
				t.Fatalf("sorted keys = %v, want CVE-2 < CVE-9 < CVE-10", keys)
			}
		}
	})

	t.Run("case_folded", func(t *testing.T) {
		if sortKeyFor("CVE-1") != sortKeyFor("cve-1") {
			t.Error("keys differ by case only")
		}
	})

	t.Run("padding", func(t *testing.T) {
		if got := sortKeyFor("CVE-2018-9999"); got != "cve-000002018-000009999" {
			t.Errorf("sortKeyFor(CVE-2018-9999) = %q", got)
		}
	})

	t.Run("separators_verbatim", func(t *testing.T) {
		if got := sortKeyFor("A_1 b"); got != "a_000000001 b" {
			t.Errorf("sortKeyFor(A_1 b) = %q", got)
		}
	})
}

func TestSort(t *testing.T) {
	mk := func(name string) *Advisory {
		adv, err := New(Params{Name: name}, nopFetcher{})
		if err != nil {
			t.Fatalf("New(%q) error = %v", name, err)
		}
		return adv
	}

	advisories := []*Advisory{mk("CVE-9"), mk("CVE-10"), mk("CVE-2")}
	Sort(advisories)

	got := []string{advisories[0].Name(), advisories[1].Name(), advisories[2].Name()}
	want := []string{"CVE-2", "CVE-9", "CVE-10"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sorted order = %v, want %v", got, want)
		}
	}
}
