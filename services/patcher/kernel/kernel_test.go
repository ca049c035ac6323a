// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kernel

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeMakefile drops a Makefile with the given content into dir.
func writeMakefile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "Makefile"), []byte(content), 0o644); err != nil {
		t.Fatalf("write Makefile: %v", err)
	}
}

func TestDetectVersion(t *testing.T) {
	t.Run("standard_makefile", func(t *testing.T) {
		dir := t.TempDir()
		writeMakefile(t, dir, `# SPDX-License-Identifier: GPL-2.0
VERSION = 4
PATCHLEVEL = 9
SUBLEVEL = 112
EXTRAVERSION =
NAME = Roaring Lionus

all: vmlinux
`)
		got, err := DetectVersion(dir)
		if err != nil {
			t.Fatalf("DetectVersion() error = %v", err)
		}
		if got.String() != "4.9" {
			t.Errorf("DetectVersion() = %q, want %q", got.String(), "4.9")
		}
	})

	t.Run("no_spaces_around_equals", func(t *testing.T) {
		dir := t.TempDir()
		writeMakefile(t, dir, "VERSION=3\nPATCHLEVEL=18\n")
		got, err := DetectVersion(dir)
		if err != nil {
			t.Fatalf("DetectVersion() error = %v", err)
		}
		if got.String() != "3.18" {
			t.Errorf("DetectVersion() = %q, want %q", got.String(), "3.18")
		}
	})

	t.Run("last_assignment_wins", func(t *testing.T) {
		dir := t.TempDir()
		writeMakefile(t, dir, "VERSION = 3\nPATCHLEVEL = 18\nVERSION = 4\nPATCHLEVEL = 4\n")
		got, err := DetectVersion(dir)
		if err != nil {
			t.Fatalf("DetectVersion() error = %v", err)
		}
		if got.String() != "4.4" {
			t.Errorf("DetectVersion() = %q, want %q", got.String(), "4.4")
		}
	})

	t.Run("multi_equals_lines_ignored", func(t *testing.T) {
		dir := t.TempDir()
		writeMakefile(t, dir, "KBUILD_CFLAGS += -DVER=1=2\nVERSION = 4\nPATCHLEVEL = 14\n")
		got, err := DetectVersion(dir)
		if err != nil {
			t.Fatalf("DetectVersion() error = %v", err)
		}
		if got.String() != "4.14" {
			t.Errorf("DetectVersion() = %q, want %q", got.String(), "4.14")
		}
	})

	t.Run("missing_patchlevel", func(t *testing.T) {
		dir := t.TempDir()
		writeMakefile(t, dir, "VERSION = 4\nSUBLEVEL = 0\n")
		_, err := DetectVersion(dir)
		if !errors.Is(err, ErrVersionNotFound) {
			t.Errorf("DetectVersion() error = %v, want ErrVersionNotFound", err)
		}
	})

	t.Run("missing_version", func(t *testing.T) {
		dir := t.TempDir()
		writeMakefile(t, dir, "PATCHLEVEL = 9\n")
		_, err := DetectVersion(dir)
		if !errors.Is(err, ErrVersionNotFound) {
			t.Errorf("DetectVersion() error = %v, want ErrVersionNotFound", err)
		}
	})

	t.Run("non_numeric_value", func(t *testing.T) {
		dir := t.TempDir()
		writeMakefile(t, dir, "VERSION = four\nPATCHLEVEL = 9\n")
		_, err := DetectVersion(dir)
		if err == nil {
			t.Error("DetectVersion() error = nil, want parse failure")
		}
	})

	t.Run("no_makefile", func(t *testing.T) {
		_, err := DetectVersion(t.TempDir())
		if err == nil {
			t.Error("DetectVersion() error = nil, want open failure")
		}
	})
}

func TestDetectSources(t *testing.T) {
	t.Run("bare_tree_is_mainline_only", func(t *testing.T) {
		got := DetectSources(t.TempDir())
		if len(got) != 1 || !got["mainline"] {
			t.Errorf("DetectSources() = %v, want mainline only", got)
		}
	})

	t.Run("directory_probe", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.MkdirAll(filepath.Join(dir, "drivers", "staging", "qcacld-2.0"), 0o755); err != nil {
			t.Fatal(err)
		}
		got := DetectSources(dir)
		if !got["qcacld"] {
			t.Errorf("DetectSources() = %v, missing qcacld", got)
		}
		if !got["mainline"] {
			t.Error("mainline dropped from detected sources")
		}
	})

	t.Run("file_probe", func(t *testing.T) {
		dir := t.TempDir()
		codecs := filepath.Join(dir, "sound", "soc", "codecs")
		if err := os.MkdirAll(codecs, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(codecs, "rt5506.h"), []byte("#define RT5506\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		got := DetectSources(dir)
		if !got["rt5506"] {
			t.Errorf("DetectSources() = %v, missing rt5506", got)
		}
		if got["rt5677"] {
			t.Errorf("DetectSources() = %v, rt5677 detected without marker", got)
		}
	})

	t.Run("multiple_vendors", func(t *testing.T) {
		dir := t.TempDir()
		for _, p := range []string{
			"drivers/staging/android",
			"drivers/misc/mediatek",
			"drivers/staging/prima",
		} {
			if err := os.MkdirAll(filepath.Join(dir, p), 0o755); err != nil {
				t.Fatal(err)
			}
		}
		got := DetectSources(dir)
		for _, want := range []string{"mainline", "android", "mtk", "prima"} {
			if !got[want] {
				t.Errorf("DetectSources() = %v, missing %s", got, want)
			}
		}
		if got["caf"] {
			t.Errorf("DetectSources() = %v, caf detected without marker", got)
		}
	})
}
