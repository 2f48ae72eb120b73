// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/tabherd/pkg/ux"
)

// --- Global Command Variables ---
var (
	configPath string // --config override for ~/.tabherd/tabherd.yaml
	plainMode  bool   // --plain forces machine-readable output
	serveDebug bool   // --debug enables gin debug mode and request logs
	statusJSON bool   // --json dumps the raw status payload
	apiAddr    string // --addr overrides the daemon address for client commands

	rootCmd = &cobra.Command{
		Use:   "tabherd",
		Short: "A local daemon that herds browser tabs into groups",
		Long: `Tabherd watches browser windows through its companion extension,
classifies tabs with a local or cloud model, and herds them into
named tab groups - automatically or on request.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if plainMode {
				ux.SetMode(ux.ModePlain)
			} else {
				ux.InitMode()
			}
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the tabherd daemon",
		Run:   runServe, // Defined in cmd_serve.go
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's queue, sessions, and provider",
		Run:   runStatus, // Defined in cmd_status.go
	}

	organizeCmd = &cobra.Command{
		Use:   "organize",
		Short: "Ask the daemon to organize every known window now",
		Run:   runOrganize, // Defined in cmd_status.go
	}

	// --- Rules ---
	rulesCmd = &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate the pattern rules file",
	}
	rulesShowCmd = &cobra.Command{
		Use:   "show [file]",
		Short: "Print the rules with their groups and colors",
		Args:  cobra.MaximumNArgs(1),
		Run:   runRulesShow, // Defined in cmd_rules.go
	}
	rulesValidateCmd = &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a rules file without loading it into the daemon",
		Args:  cobra.MaximumNArgs(1),
		Run:   runRulesValidate, // Defined in cmd_rules.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (default ~/.tabherd/tabherd.yaml)")
	rootCmd.PersistentFlags().BoolVar(&plainMode, "plain", false,
		"Plain output for scripting (also TABHERD_PLAIN=1)")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false,
		"Enable debug mode: gin request logs and debug-level routing output")

	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Dump the raw status JSON")
	statusCmd.Flags().StringVar(&apiAddr, "addr", "", "Daemon address (default from config)")

	rootCmd.AddCommand(organizeCmd)
	organizeCmd.Flags().StringVar(&apiAddr, "addr", "", "Daemon address (default from config)")

	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
}
