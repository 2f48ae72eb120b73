// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command tabherd runs the tab organizing daemon and its management CLI.
//
// The daemon pairs with a browser extension over a local WebSocket,
// classifies open tabs, and herds them into tab groups.
//
// Usage:
//
//	tabherd serve                 # run the daemon
//	tabherd status                # query a running daemon
//	tabherd organize              # trigger a pass on every window
//	tabherd rules validate        # check the rules file
//	tabherd rules show            # print rules with group colors
package main

import (
	"os"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
