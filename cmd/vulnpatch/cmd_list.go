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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tdm/vuln-patcher/pkg/ux"
	"github.com/tdm/vuln-patcher/services/patcher/advisory"
	"github.com/tdm/vuln-patcher/services/patcher/feed"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	listFeedURL    string // Advisory feed base URL (overrides config)
	listJSONOutput bool   // Output as JSON
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// listCmd prints the advisory catalog without touching any tree.
//
// # Description
//
// Fetches the full catalog from the feed and prints one line per
// advisory in processing order: name, applicability range, source tag,
// and the versions its remediation patches are keyed by. The table
// view shows a spinner during the fetch; with --json stdout stays
// pure JSON and dot progress goes to stderr instead.
//
// # Examples
//
//	vulnpatch list                  # Catalog in processing order
//	vulnpatch list --json           # JSON output for scripting
//
// # Limitations
//
//   - Patch subjects are not shown; they would need a content fetch
//     per patch
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the advisory catalog in processing order",
	Run:   runListCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	listCmd.Flags().StringVar(&listFeedURL, "feed-url", "",
		"Advisory feed base URL (default: feed.base_url from config)")
	listCmd.Flags().BoolVar(&listJSONOutput, "json", false,
		"Output as JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runListCommand(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	baseURL := config.Feed.BaseURL
	if listFeedURL != "" {
		baseURL = listFeedURL
	}
	cfg := feed.Config{
		BaseURL:     baseURL,
		Timeout:     time.Duration(config.Feed.TimeoutSeconds) * time.Second,
		RatePerSec:  config.Feed.RatePerSecond,
		Concurrency: config.Feed.Concurrency,
		Logger:      logger,
	}
	if listJSONOutput {
		cfg.Progress = os.Stderr
	}
	client, err := feed.NewClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if listJSONOutput {
		advisories, err := client.FetchAll(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to fetch advisory catalog: %v\n", err)
			os.Exit(1)
		}
		outputCatalogJSON(advisories)
		return
	}

	spin := ux.NewSpinner("Fetching advisory catalog")
	spin.Start()
	advisories, err := client.FetchAll(ctx)
	if err != nil {
		spin.StopWithError(fmt.Sprintf("Failed to fetch advisory catalog: %v", err))
		os.Exit(1)
	}
	spin.StopWithSuccess(fmt.Sprintf("Fetched %d advisories", len(advisories)))
	outputCatalogTable(advisories)
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

// catalogEntry is the JSON projection of one advisory.
type catalogEntry struct {
	Name       string   `json:"name"`
	VersionMin string   `json:"version_min,omitempty"`
	VersionMax string   `json:"version_max,omitempty"`
	Source     string   `json:"source,omitempty"`
	Comments   string   `json:"comments,omitempty"`
	Patches    []string `json:"patches"`
}

// outputCatalogJSON prints the catalog as a JSON array.
func outputCatalogJSON(advisories []*advisory.Advisory) {
	entries := make([]catalogEntry, 0, len(advisories))
	for _, adv := range advisories {
		entries = append(entries, catalogEntry{
			Name:       adv.Name(),
			VersionMin: adv.VersionMin().String(),
			VersionMax: adv.VersionMax().String(),
			Source:     adv.Source(),
			Comments:   adv.Comments(),
			Patches:    patchVersionList(adv),
		})
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(entries); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}

// outputCatalogTable prints one aligned line per advisory. The title
// and header row are dropped in machine personality so output pipes
// cleanly.
func outputCatalogTable(advisories []*advisory.Advisory) {
	ux.Title("Advisory catalog")
	if ux.GetPersonality().Level != ux.PersonalityMachine {
		fmt.Printf("%-20s %-14s %-14s %s\n", "ADVISORY", "RANGE", "SOURCE", "PATCHES")
	}
	for _, adv := range advisories {
		source := adv.Source()
		if source == "" {
			source = "-"
		}
		fmt.Printf("%-20s %-14s %-14s %s\n",
			adv.Name(),
			fmt.Sprintf("[%s,%s]", adv.VersionMin(), adv.VersionMax()),
			source,
			strings.Join(patchVersionList(adv), ", "))
	}
}

// patchVersionList renders the patch keys in ascending order.
func patchVersionList(adv *advisory.Advisory) []string {
	versions := adv.Patches().Versions()
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.String()
	}
	return out
}
