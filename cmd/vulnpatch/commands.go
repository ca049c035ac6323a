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

	"github.com/spf13/cobra"

	"github.com/tdm/vuln-patcher/pkg/logging"
	"github.com/tdm/vuln-patcher/pkg/ux"
)

// --- Global Command Variables ---
var (
	cfgFile          string // Explicit config file path (--config)
	logLevel         string // Minimum log level (debug/info/warn/error)
	logJSON          bool   // JSON log lines on stderr instead of text
	quietLogs        bool   // Suppress stderr logging entirely
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	// config and logger are populated by the root PersistentPreRun
	// before any subcommand runs. The initializers keep helper
	// functions usable from tests that bypass cobra.
	config = defaultConfig()
	logger = logging.Default()

	rootCmd = &cobra.Command{
		Use:   "vulnpatch",
		Short: "Reconcile a kernel tree against the security advisory feed",
		Long: `vulnpatch compares a kernel source tree against a feed of security
advisories and determines, for each one, whether its remediation patch
is already present, can be applied, or needs the operator.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loaded, err := loadConfig(cfgFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
				os.Exit(1)
			}
			config = loaded

			if logLevel != "" {
				config.Logging.Level = logLevel
			}
			if cmd.Root().PersistentFlags().Changed("log-json") {
				config.Logging.JSON = logJSON
			}
			level, err := logging.ParseLevel(config.Logging.Level)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid log level %q: %v\n", config.Logging.Level, err)
				os.Exit(1)
			}
			logger = logging.New(logging.Config{
				Level:   level,
				LogDir:  expandHome(config.Logging.Dir),
				Service: "vulnpatch",
				JSON:    config.Logging.JSON,
				Quiet:   quietLogs,
			})

			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file path (default: config.yaml in CWD or beside the binary)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Minimum log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false,
		"Write stderr logs as JSON lines")
	rootCmd.PersistentFlags().BoolVar(&quietLogs, "quiet", false,
		"Suppress stderr logging (file logging still applies)")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(probeCmd)
}
