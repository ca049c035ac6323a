// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kernel probes a kernel source tree for its version and
// vendor composition.
//
// # Description
//
// Advisories carry a version range and optionally a vendor source
// identifier. Both sides of that match come from here: DetectVersion
// reads "major.minor" from the top-level Makefile, and DetectSources
// probes for vendor-specific subtrees to build the set of source
// identifiers present in the tree.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package kernel

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tdm/vuln-patcher/services/patcher/version"
)

// ErrVersionNotFound indicates the Makefile carried no VERSION or
// PATCHLEVEL assignment.
var ErrVersionNotFound = errors.New("kernel version not found in Makefile")

// sourceProbes maps vendor source identifiers to the path whose
// presence marks them. Order is fixed so DetectSources output is
// deterministic in logs.
var sourceProbes = []struct {
	source string
	path   string
}{
	{"android", "drivers/staging/android"},
	{"caf", "drivers/misc/qcom"},
	{"mtk", "drivers/misc/mediatek"},
	{"prima", "drivers/staging/prima"},
	{"qcacld", "drivers/staging/qcacld-2.0"},
	{"bcmdhd", "drivers/net/wireless/bcmdhd"},
	{"synaptics_dsx", "drivers/input/touchscreen/synaptics_dsx"},
	{"vl6180", "drivers/input/misc/vl6180"},
	{"vl53L0", "drivers/input/misc/vl53L0"},
	{"rt5506", "sound/soc/codecs/rt5506.h"},
	{"rt5677", "sound/soc/codecs/rt5677.h"},
}

// DetectVersion reads the kernel version from the tree's Makefile.
//
// # Description
//
// Scans the top-level Makefile for VERSION and PATCHLEVEL
// assignments and combines them as "major.minor". Lines that do not
// split into exactly two fields on '=' are ignored. When a key is
// assigned more than once, the last assignment wins.
//
// # Inputs
//
//   - dir: Path to the kernel tree root
//
// # Outputs
//
//   - version.Version: The tree's "major.minor" version
//   - error: Non-nil if the Makefile is unreadable, a value does not
//     parse as an integer, or either key is missing
//     (ErrVersionNotFound)
func DetectVersion(dir string) (version.Version, error) {
	f, err := os.Open(filepath.Join(dir, "Makefile"))
	if err != nil {
		return version.Version{}, fmt.Errorf("open Makefile: %w", err)
	}
	defer f.Close()

	var (
		major, minor         int
		haveMajor, haveMinor bool
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "=")
		if len(fields) != 2 {
			continue
		}
		key := strings.TrimSpace(fields[0])
		val := strings.TrimSpace(fields[1])
		switch key {
		case "VERSION":
			major, err = strconv.Atoi(val)
			if err != nil {
				return version.Version{}, fmt.Errorf("parse VERSION %q: %w", val, err)
			}
			haveMajor = true
		case "PATCHLEVEL":
			minor, err = strconv.Atoi(val)
			if err != nil {
				return version.Version{}, fmt.Errorf("parse PATCHLEVEL %q: %w", val, err)
			}
			haveMinor = true
		}
	}
	if err := scanner.Err(); err != nil {
		return version.Version{}, fmt.Errorf("read Makefile: %w", err)
	}
	if !haveMajor || !haveMinor {
		return version.Version{}, ErrVersionNotFound
	}

	return version.Parse(fmt.Sprintf("%d.%d", major, minor))
}

// DetectSources probes the tree for vendor-specific subtrees.
//
// # Description
//
// Returns the set of source identifiers present in the tree.
// "mainline" is always included; vendor identifiers are added when
// their marker path exists. Advisories whose source is absent from
// this set do not apply to the tree.
//
// # Inputs
//
//   - dir: Path to the kernel tree root
//
// # Outputs
//
//   - map[string]bool: Set of detected source identifiers
func DetectSources(dir string) map[string]bool {
	sources := map[string]bool{"mainline": true}
	for _, probe := range sourceProbes {
		if _, err := os.Stat(filepath.Join(dir, probe.path)); err == nil {
			sources[probe.source] = true
		}
	}
	return sources
}
