// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import "sync"

// Source is the live view of the organization toggles the processor
// reads on every pass. Settings implements it; tests fake it.
type Source interface {
	// Enabled reports whether organization runs at all.
	Enabled() bool

	// Autopilot reports whether suggestions are applied immediately.
	Autopilot() bool

	// BatchSize is the number of tabs per classifier call.
	BatchSize() int

	// CustomRules is free-text guidance for the classifier prompt.
	CustomRules() string
}

// Settings is the runtime-mutable slice of OrganizerConfig. The config
// HTTP endpoints mutate it; the processor reads it between chunks, so
// changes take effect mid-pass.
//
// # Thread Safety
//
// Safe for concurrent use.
type Settings struct {
	mu          sync.RWMutex
	enabled     bool
	autopilot   bool
	batchSize   int
	customRules string
}

// NewSettings seeds runtime settings from the validated file config.
func NewSettings(cfg OrganizerConfig) *Settings {
	return &Settings{
		enabled:     cfg.Enabled,
		autopilot:   cfg.Autopilot,
		batchSize:   cfg.BatchSize,
		customRules: cfg.CustomRules,
	}
}

func (s *Settings) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

func (s *Settings) Autopilot() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autopilot
}

func (s *Settings) BatchSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batchSize
}

func (s *Settings) CustomRules() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.customRules
}

func (s *Settings) SetEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = v
}

func (s *Settings) SetAutopilot(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autopilot = v
}

// SetBatchSize clamps to the validated range rather than erroring;
// the HTTP handler reports the effective value back.
func (s *Settings) SetBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	if n > 100 {
		n = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchSize = n
}

func (s *Settings) SetCustomRules(rules string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customRules = rules
}

// View is a consistent point-in-time copy of the settings.
type View struct {
	Enabled     bool
	Autopilot   bool
	BatchSize   int
	CustomRules string
}

// View returns all settings under one lock acquisition.
func (s *Settings) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		Enabled:     s.enabled,
		Autopilot:   s.autopilot,
		BatchSize:   s.batchSize,
		CustomRules: s.customRules,
	}
}

var _ Source = (*Settings)(nil)
