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
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tdm/vuln-patcher/pkg/ux"
	"github.com/tdm/vuln-patcher/services/patcher/engine"
	"github.com/tdm/vuln-patcher/services/patcher/feed"
	"github.com/tdm/vuln-patcher/services/patcher/history"
	"github.com/tdm/vuln-patcher/services/patcher/kernel"
	"github.com/tdm/vuln-patcher/services/patcher/report"
	"github.com/tdm/vuln-patcher/services/patcher/vcs"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	runDryRun         bool   // Probe and report without touching the tree
	runInteractive    bool   // Force operator prompts even without a TTY
	runNonInteractive bool   // Suppress prompts, skip anything manual
	runRepoDir        string // Kernel tree to reconcile (overrides config)
	runFeedURL        string // Advisory feed base URL (overrides config)
	runReportPath     string // Write the JSON run report to this path
	runNoCache        bool   // Bypass the patch content cache
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// runCmd reconciles the kernel tree against the advisory feed.
//
// # Description
//
// Detects the tree's kernel version and source tags, indexes its git
// history, fetches the advisory catalog, and processes every advisory
// in catalog order. Out-of-scope advisories are skipped, remediated
// ones are recognized, and missing patches are applied, falling back
// to operator-assisted recovery when the integrated apply fails. Ends
// with a summary table and, when --report is given, a JSON artifact.
//
// # Examples
//
//	vulnpatch run                        # Full reconciliation of CWD
//	vulnpatch run --dry-run              # Probe only, no tree changes
//	vulnpatch run --repo ~/src/kernel    # Reconcile a specific tree
//	vulnpatch run --report run.json      # Also write the JSON report
//
// # Limitations
//
//   - The tree must be git-managed; history indexing runs git log
//   - Manual recovery needs an interactive session (TTY or --interactive)
//
// # Assumptions
//
//   - git and patch are on PATH
//   - The feed is reachable (see --feed-url and feed.base_url)
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile the kernel tree against the advisory feed",
	Long: `Run the full reconciliation: probe the kernel tree, fetch the
advisory catalog, and process every advisory in order.

For each advisory the tree is checked for an existing remediation
(clean reverse or git history) before a patch is selected and applied.
Patches that fail the integrated apply drop into operator-assisted
recovery unless the run is non-interactive.

Examples:
  vulnpatch run                        # Full reconciliation of CWD
  vulnpatch run --dry-run              # Probe only, no tree changes
  vulnpatch run --non-interactive      # Never prompt, skip manual work
  vulnpatch run --report run.json      # Also write the JSON report`,
	Run: runRunCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false,
		"Probe which patches would apply without changing the tree")
	runCmd.Flags().BoolVar(&runInteractive, "interactive", false,
		"Force operator prompts even when stdin is not a TTY")
	runCmd.Flags().BoolVar(&runNonInteractive, "non-interactive", false,
		"Never prompt; skip advisories that need manual action")
	runCmd.Flags().StringVar(&runRepoDir, "repo", "",
		"Kernel tree to reconcile (default: repo.path from config, then CWD)")
	runCmd.Flags().StringVar(&runFeedURL, "feed-url", "",
		"Advisory feed base URL (default: feed.base_url from config)")
	runCmd.Flags().StringVar(&runReportPath, "report", "",
		"Write the run report as JSON to this path")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false,
		"Bypass the patch content cache for this run")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runRunCommand validates the flag combination and executes the run.
//
// # Description
//
// The real work happens in executeRun so that deferred cleanup (the
// patch content cache) runs before the process exits. Exits nonzero
// on any fatal error; per-advisory fetch failures are recorded in the
// report and do not abort the run.
//
// # Inputs
//
//   - cmd: Cobra command (unused)
//   - args: Command arguments (unused)
func runRunCommand(cmd *cobra.Command, args []string) {
	if runInteractive && runNonInteractive {
		fmt.Fprintln(os.Stderr, "--interactive and --non-interactive are mutually exclusive")
		os.Exit(1)
	}
	if err := executeRun(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		os.Exit(1)
	}
}

// executeRun wires the toolchain, history index, feed client, and
// engine together and drives one reconciliation.
func executeRun(ctx context.Context) error {
	repoDir := resolveRepoDir(runRepoDir)

	target, err := kernel.DetectVersion(repoDir)
	if err != nil {
		return fmt.Errorf("detect kernel version in %s: %w", repoDir, err)
	}
	sources := kernel.DetectSources(repoDir)
	logger.Info("kernel tree probed",
		"dir", repoDir, "version", target.String(), "sources", len(sources))

	timeout := time.Duration(config.Repo.CommandTimeoutSeconds) * time.Second
	runner := vcs.NewDefaultProcessRunner(repoDir, timeout)
	tools := vcs.NewCommandToolchain(runner)

	fmt.Print("Reading git history: ")
	tools.SetLogProgress(func(int) { fmt.Print(".") })
	hist, err := history.Build(ctx, tools)
	fmt.Println()
	tools.SetLogProgress(nil)
	if err != nil {
		return err
	}
	logger.Info("git history indexed", "subjects", hist.Len())

	var cache *feed.Cache
	if dir := expandHome(config.Feed.CacheDir); dir != "" && !runNoCache {
		cache, err = feed.OpenCache(feed.DefaultCacheConfig(dir))
		if err != nil {
			// A broken cache only costs refetches; the run goes on.
			ux.Warning(fmt.Sprintf("Patch content cache unavailable (%s): %v", dir, err))
		} else {
			defer cache.Close()
		}
	}

	baseURL := config.Feed.BaseURL
	if runFeedURL != "" {
		baseURL = runFeedURL
	}
	client, err := feed.NewClient(feed.Config{
		BaseURL:     baseURL,
		Timeout:     time.Duration(config.Feed.TimeoutSeconds) * time.Second,
		RatePerSec:  config.Feed.RatePerSecond,
		Concurrency: config.Feed.Concurrency,
		Cache:       cache,
		Logger:      logger,
		Progress:    os.Stdout,
	})
	if err != nil {
		return err
	}
	advisories, err := client.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("fetch advisory catalog: %w", err)
	}

	nonInteractive := !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd())
	if runInteractive {
		nonInteractive = false
	}
	if runNonInteractive {
		nonInteractive = true
	}

	eng, err := engine.New(engine.Config{
		Toolchain:      tools,
		History:        hist,
		Prompter:       ux.NewPrompter(ux.NewInteractiveInputReader(50), os.Stdout),
		Out:            os.Stdout,
		Logger:         logger,
		DryRun:         runDryRun,
		NonInteractive: nonInteractive,
	})
	if err != nil {
		return err
	}

	summary, runErr := eng.Run(ctx, target, sources, advisories)

	// The summary is sealed even when the run aborted partway, so the
	// table and artifact still cover everything that was processed.
	fmt.Println()
	summary.Render(os.Stdout)

	if runReportPath != "" {
		if err := writeReport(summary, runReportPath); err != nil {
			return err
		}
		ux.Success("Run report written to " + runReportPath)
	}
	return runErr
}

// =============================================================================
// HELPERS
// =============================================================================

// resolveRepoDir picks the tree to operate on: the flag wins, then
// repo.path from the config, then the working directory.
func resolveRepoDir(flagValue string) string {
	if flagValue != "" {
		return expandHome(flagValue)
	}
	if config.Repo.Path != "" {
		return expandHome(config.Repo.Path)
	}
	return "."
}

// writeReport writes the run report JSON artifact.
func writeReport(s *report.Summary, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	defer f.Close()
	if err := s.WriteJSON(f); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
