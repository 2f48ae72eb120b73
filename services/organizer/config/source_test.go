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

import (
	"sync"
	"testing"
)

func TestNewSettings(t *testing.T) {
	s := NewSettings(OrganizerConfig{
		Enabled:     true,
		Autopilot:   true,
		BatchSize:   25,
		CustomRules: "keep docs together",
	})

	if !s.Enabled() {
		t.Error("Enabled() = false, want the seeded true")
	}
	if !s.Autopilot() {
		t.Error("Autopilot() = false, want the seeded true")
	}
	if s.BatchSize() != 25 {
		t.Errorf("BatchSize() = %d, want 25", s.BatchSize())
	}
	if s.CustomRules() != "keep docs together" {
		t.Errorf("CustomRules() = %q, want the seeded text", s.CustomRules())
	}
}

func TestSettingsSetters(t *testing.T) {
	s := NewSettings(OrganizerConfig{Enabled: true, BatchSize: 10})

	s.SetEnabled(false)
	s.SetAutopilot(true)
	s.SetCustomRules("news goes last")

	v := s.View()
	if v.Enabled {
		t.Error("View().Enabled = true after SetEnabled(false)")
	}
	if !v.Autopilot {
		t.Error("View().Autopilot = false after SetAutopilot(true)")
	}
	if v.CustomRules != "news goes last" {
		t.Errorf("View().CustomRules = %q", v.CustomRules)
	}
	if v.BatchSize != 10 {
		t.Errorf("View().BatchSize = %d, want the untouched 10", v.BatchSize)
	}
}

func TestSetBatchSizeClamps(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{name: "below the floor", in: 0, want: 1},
		{name: "negative", in: -7, want: 1},
		{name: "in range", in: 42, want: 42},
		{name: "above the ceiling", in: 1000, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSettings(OrganizerConfig{BatchSize: 10})
			s.SetBatchSize(tt.in)
			if got := s.BatchSize(); got != tt.want {
				t.Errorf("BatchSize() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestSettingsConcurrentAccess drives readers and writers together; the
// race detector is the real assertion here.
func TestSettingsConcurrentAccess(t *testing.T) {
	s := NewSettings(OrganizerConfig{Enabled: true, BatchSize: 10})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.SetEnabled(n%2 == 0)
				s.SetBatchSize(n + j)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.View()
				_ = s.Enabled()
			}
		}()
	}
	wg.Wait()

	if got := s.BatchSize(); got < 1 || got > 100 {
		t.Errorf("BatchSize() = %d, escaped the clamped range", got)
	}
}
