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
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the vulnpatch configuration file layout.
//
// Every field has a working default, so the tool runs without a config
// file at all. Command-line flags override file values per run.
type Config struct {
	// Feed: where the advisory catalog is served from
	Feed FeedConfig `yaml:"feed"`

	// Repo: the kernel tree under reconciliation
	Repo RepoConfig `yaml:"repo"`

	// Logging: stderr/file diagnostics, never operator-facing output
	Logging LoggingConfig `yaml:"logging"`
}

type FeedConfig struct {
	BaseURL        string  `yaml:"base_url"`        // e.g. http://code.nwwn.com/vuln
	TimeoutSeconds int     `yaml:"timeout_seconds"` // e.g. 30
	RatePerSecond  float64 `yaml:"rate_per_second"` // e.g. 10
	Concurrency    int     `yaml:"concurrency"`     // e.g. 8
	CacheDir       string  `yaml:"cache_dir"`       // e.g. ~/.vulnpatch/cache, empty disables caching
}

type RepoConfig struct {
	Path                  string `yaml:"path"`                    // e.g. /src/kernel/msm-4.9
	CommandTimeoutSeconds int    `yaml:"command_timeout_seconds"` // e.g. 120, per git/patch invocation
}

type LoggingConfig struct {
	Level string `yaml:"level"` // e.g. info
	JSON  bool   `yaml:"json"`  // JSON log lines on stderr instead of text
	Dir   string `yaml:"dir"`   // e.g. ~/.vulnpatch/logs, empty disables file logs
}

func defaultConfig() Config {
	return Config{
		Feed: FeedConfig{
			BaseURL:        "http://code.nwwn.com/vuln",
			TimeoutSeconds: 30,
			RatePerSecond:  10,
			Concurrency:    8,
			CacheDir:       "~/.vulnpatch/cache",
		},
		Repo: RepoConfig{
			Path:                  ".",
			CommandTimeoutSeconds: 120,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// loadConfig reads the configuration, layered over defaultConfig.
//
// # Description
//
// With an explicit path the file must exist and parse. With an empty
// path it probes config.yaml in the working directory and then beside
// the binary, and silently falls back to the defaults when neither
// exists.
//
// # Inputs
//
//   - path: Explicit config file path, or "" to probe
//
// # Outputs
//
//   - Config: Defaults merged with whatever the file sets
//   - error: Non-nil when an explicit file is unreadable or any file
//     fails to parse
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = probeConfigPath()
		if path == "" {
			return cfg, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// probeConfigPath looks for config.yaml in the working directory and
// then next to the binary. Returns "" when neither exists.
func probeConfigPath() string {
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	if exe, err := os.Executable(); err == nil {
		p := filepath.Join(filepath.Dir(exe), "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// expandHome replaces a leading ~ with the user's home directory.
// Paths that cannot be expanded are returned unchanged.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
