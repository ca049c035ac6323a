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
	"testing"
)

func TestRootCommand_Configuration(t *testing.T) {
	if rootCmd.Use != "vulnpatch" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "vulnpatch")
	}
	if rootCmd.PersistentPreRun == nil {
		t.Error("rootCmd.PersistentPreRun is nil; config and logging would never initialize")
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	flags := []string{"config", "log-level", "log-json", "quiet", "personality"}

	for _, flagName := range flags {
		flag := rootCmd.PersistentFlags().Lookup(flagName)
		if flag == nil {
			t.Errorf("Persistent flag %q not registered", flagName)
		}
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := map[string]bool{"run": false, "list": false, "probe": false}

	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("Subcommand %q not attached to the root command", name)
		}
	}
}
