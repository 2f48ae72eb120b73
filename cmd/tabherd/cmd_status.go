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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tabherd/pkg/ux"
	"github.com/AleutianAI/tabherd/services/organizer"
	"github.com/AleutianAI/tabherd/services/organizer/config"
)

// daemonAddr resolves the daemon address: the --addr flag wins,
// otherwise the config file's server address.
func daemonAddr() string {
	if apiAddr != "" {
		return apiAddr
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		ux.Error(fmt.Sprintf("Config: %v", err))
		os.Exit(1)
	}
	return cfg.Server.Addr
}

// apiCall performs one request against the running daemon and decodes
// the JSON response into out (skipped when out is nil).
func apiCall(method, addr, path string, out any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(method, "http://"+addr+path, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr organizer.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// runStatus queries and prints the daemon's status report.
func runStatus(cmd *cobra.Command, args []string) {
	addr := daemonAddr()

	var status organizer.StatusResponse
	if err := apiCall(http.MethodGet, addr, "/api/v1/status", &status); err != nil {
		ux.Error(fmt.Sprintf("Status: %v", err))
		os.Exit(1)
	}

	if statusJSON {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			ux.Error(err.Error())
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	ux.Title("tabherd @ " + addr)

	state := "idle"
	if status.Organizing {
		state = "organizing"
	}
	if !status.Enabled {
		state = "disabled"
	}
	ux.KV("State", state)
	ux.KV("Provider", status.Provider)
	ux.KV("Autopilot", strconv.FormatBool(status.Autopilot))
	ux.KV("Sessions", strconv.Itoa(status.Sessions))
	ux.KV("Windows", strconv.Itoa(status.Windows))
	ux.KV("Queue depth", strconv.Itoa(status.QueueDepth))

	storeState := "not loaded"
	if status.Store.Loaded {
		storeState = fmt.Sprintf("%d fingerprints", status.Store.Fingerprints)
		if status.Store.InMemory {
			storeState += " (in-memory)"
		}
	}
	ux.KV("Store", storeState)
}

// runOrganize triggers an immediate organization pass on every window
// the daemon knows about.
func runOrganize(cmd *cobra.Command, args []string) {
	addr := daemonAddr()

	var resp organizer.OrganizeResponse
	if err := apiCall(http.MethodPost, addr, "/api/v1/organize", &resp); err != nil {
		ux.Error(fmt.Sprintf("Organize: %v", err))
		os.Exit(1)
	}

	if resp.WindowsQueued == 0 {
		ux.Info("Nothing new to organize; any queued windows will drain shortly.")
		return
	}
	ux.Success(fmt.Sprintf("Queued %d windows for organization", resp.WindowsQueued))
}
