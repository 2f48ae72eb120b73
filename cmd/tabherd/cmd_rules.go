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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tabherd/pkg/ux"
	"github.com/AleutianAI/tabherd/services/organizer/classify"
	"github.com/AleutianAI/tabherd/services/organizer/config"
)

// rulesPath resolves the rules file: an explicit argument wins,
// otherwise the config file's organizer.rules_path.
func rulesPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		ux.Error(fmt.Sprintf("Config: %v", err))
		os.Exit(1)
	}
	return cfg.Organizer.RulesPath
}

// runRulesValidate loads and validates a rules file, reporting every
// problem at once.
func runRulesValidate(cmd *cobra.Command, args []string) {
	path := rulesPath(args)

	rules, err := classify.LoadRulesFile(path)
	if err != nil {
		ux.Error(fmt.Sprintf("Rules: %v", err))
		os.Exit(1)
	}

	disabled := 0
	for _, r := range rules {
		if r.Disabled {
			disabled++
		}
	}
	msg := fmt.Sprintf("%s: %d rules valid", path, len(rules))
	if disabled > 0 {
		msg += fmt.Sprintf(" (%d disabled)", disabled)
	}
	ux.Success(msg)
}

// runRulesShow pretty-prints the rules a file defines, in match order.
func runRulesShow(cmd *cobra.Command, args []string) {
	path := rulesPath(args)

	rules, err := classify.LoadRulesFile(path)
	if errors.Is(err, os.ErrNotExist) {
		ux.Info(fmt.Sprintf("No rules file at %s; the classifier decides everything.", path))
		return
	}
	if err != nil {
		ux.Error(fmt.Sprintf("Rules: %v", err))
		os.Exit(1)
	}
	if len(rules) == 0 {
		ux.Info(fmt.Sprintf("%s defines no rules.", path))
		return
	}

	ux.Title(path)
	for _, r := range rules {
		head := fmt.Sprintf("%s %s", ux.GroupLabel(r.Group, r.Color), r.Name)
		if r.Disabled {
			head += " [disabled]"
		}
		fmt.Println(head)
		if len(r.Domains) > 0 {
			ux.KV("domains", strings.Join(r.Domains, ", "))
		}
		if len(r.Keywords) > 0 {
			ux.KV("keywords", strings.Join(r.Keywords, ", "))
		}
		if r.Match != "" {
			ux.KV("match", r.Match)
		}
	}
}
