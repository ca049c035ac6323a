// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tdm/vuln-patcher/services/patcher/kernel"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var probeRepoDir string // Kernel tree to probe (overrides config)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// probeCmd shows what a run would detect, without any network access.
//
// # Description
//
// Reads VERSION and PATCHLEVEL from the tree's Makefile and checks the
// vendor subtree markers, then prints the detected kernel version and
// source tags. Useful for confirming the tree is probed as expected
// before a run, and for scripting.
//
// # Examples
//
//	vulnpatch probe                      # Probe the CWD
//	vulnpatch probe --repo ~/src/kernel  # Probe a specific tree
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show the detected kernel version and source tags",
	Run:   runProbeCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	probeCmd.Flags().StringVar(&probeRepoDir, "repo", "",
		"Kernel tree to probe (default: repo.path from config, then CWD)")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runProbeCommand(cmd *cobra.Command, args []string) {
	dir := resolveRepoDir(probeRepoDir)

	ver, err := kernel.DetectVersion(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot detect kernel version in %s: %v\n", dir, err)
		os.Exit(1)
	}
	sources := kernel.DetectSources(dir)

	fmt.Printf("Kernel version: %s\n", ver)
	fmt.Printf("Source tags: %s\n", strings.Join(sortedSourceTags(sources), " "))
}

// sortedSourceTags flattens the detected source set for display.
func sortedSourceTags(sources map[string]bool) []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
