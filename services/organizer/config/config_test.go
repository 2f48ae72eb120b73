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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tabherd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// ===== Defaults =====

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr != "127.0.0.1:8747" {
		t.Errorf("Server.Addr = %q, want loopback default", cfg.Server.Addr)
	}
	if cfg.Organizer.BatchSize != 10 {
		t.Errorf("Organizer.BatchSize = %d, want 10", cfg.Organizer.BatchSize)
	}
	if cfg.Organizer.Debounce != 500*time.Millisecond {
		t.Errorf("Organizer.Debounce = %v, want 500ms", cfg.Organizer.Debounce)
	}
	if !cfg.Organizer.Enabled {
		t.Error("Organizer.Enabled should default to true")
	}
	if cfg.Organizer.Autopilot {
		t.Error("Organizer.Autopilot should default to false")
	}

	// The defaults must validate as-is.
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	path := DefaultPath()
	if !strings.Contains(path, DefaultDirName) {
		t.Errorf("DefaultPath() = %q, want it under %s", path, DefaultDirName)
	}
	if filepath.Base(path) != "tabherd.yaml" {
		t.Errorf("DefaultPath() base = %q, want tabherd.yaml", filepath.Base(path))
	}
}

// ===== Load =====

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9999"
organizer:
  autopilot: true
  batch_size: 25
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("Server.Addr = %q, want the file's value", cfg.Server.Addr)
	}
	if !cfg.Organizer.Autopilot {
		t.Error("Organizer.Autopilot = false, want the file's true")
	}
	if cfg.Organizer.BatchSize != 25 {
		t.Errorf("Organizer.BatchSize = %d, want 25", cfg.Organizer.BatchSize)
	}

	// Sections the file never mentions keep their defaults.
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want the 10s default", cfg.Server.ShutdownTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want the info default", cfg.Log.Level)
	}
	if cfg.Classifier.Provider == "" {
		t.Error("Classifier.Provider lost its default")
	}
}

func TestLoad_ExplicitFalseSurvives(t *testing.T) {
	path := writeConfig(t, `
organizer:
  enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Organizer.Enabled {
		t.Error("explicit enabled: false was overwritten by the default")
	}
}

func TestLoad_MissingExplicitPath(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() of a missing explicit path should fail")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Error("Load() of malformed YAML should fail")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
log:
  level: shouty
organizer:
  batch_size: 500
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() of an invalid config should fail")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
	// Both problems are reported in one pass.
	if !strings.Contains(err.Error(), "Log.Level") || !strings.Contains(err.Error(), "BatchSize") {
		t.Errorf("error %q does not report every problem", err)
	}
}

// ===== Validate =====

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "empty addr",
			mutate:  func(cfg *Config) { cfg.Server.Addr = "" },
			wantErr: "Server.Addr",
		},
		{
			name:    "unknown log level",
			mutate:  func(cfg *Config) { cfg.Log.Level = "verbose" },
			wantErr: "Log.Level",
		},
		{
			name:    "batch size too small",
			mutate:  func(cfg *Config) { cfg.Organizer.BatchSize = 0 },
			wantErr: "BatchSize",
		},
		{
			name:    "batch size too large",
			mutate:  func(cfg *Config) { cfg.Organizer.BatchSize = 101 },
			wantErr: "BatchSize",
		},
		{
			name:    "negative debounce",
			mutate:  func(cfg *Config) { cfg.Organizer.Debounce = -time.Second },
			wantErr: "Debounce",
		},
		{
			name:    "recalc interval below a minute",
			mutate:  func(cfg *Config) { cfg.Organizer.RecalcInterval = 30 * time.Second },
			wantErr: "RecalcInterval",
		},
		{
			name:   "recalc interval disabled",
			mutate: func(cfg *Config) { cfg.Organizer.RecalcInterval = 0 },
		},
		{
			name:   "recalc interval at the floor",
			mutate: func(cfg *Config) { cfg.Organizer.RecalcInterval = time.Minute },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

// ===== ApplyDefaults =====

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.Organizer.Enabled = false // explicit off stays off
	cfg.ApplyDefaults()

	def := Default()
	if cfg.Server.Addr != def.Server.Addr {
		t.Errorf("Server.Addr = %q, want default %q", cfg.Server.Addr, def.Server.Addr)
	}
	if cfg.Organizer.BatchSize != def.Organizer.BatchSize {
		t.Errorf("BatchSize = %d, want default %d", cfg.Organizer.BatchSize, def.Organizer.BatchSize)
	}
	if cfg.Organizer.Debounce != def.Organizer.Debounce {
		t.Errorf("Debounce = %v, want default %v", cfg.Organizer.Debounce, def.Organizer.Debounce)
	}
	if cfg.Organizer.Enabled {
		t.Error("ApplyDefaults flipped an explicit enabled=false")
	}
	if cfg.Store.QueueSize <= 0 {
		t.Errorf("Store.QueueSize = %d, want a positive default", cfg.Store.QueueSize)
	}
	if cfg.Classifier.Timeout <= 0 {
		t.Errorf("Classifier.Timeout = %v, want a positive default", cfg.Classifier.Timeout)
	}
}

func TestApplyDefaults_InMemoryStoreKeepsEmptyPath(t *testing.T) {
	var cfg Config
	cfg.Store.InMemory = true
	cfg.ApplyDefaults()

	if cfg.Store.Path != "" {
		t.Errorf("Store.Path = %q, want empty for an in-memory store", cfg.Store.Path)
	}
}
