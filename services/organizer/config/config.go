// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the daemon configuration.
//
// # Description
//
// Configuration lives in a single YAML file, by default
// ~/.tabherd/tabherd.yaml, created with defaults on first run. Load
// seeds every section with its defaults before unmarshalling, so a
// sparse file only overrides what it names. The organizer section also
// feeds Settings, the runtime-mutable view the HTTP config endpoints
// and the processor share.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/tabherd/services/organizer/classify"
	"github.com/AleutianAI/tabherd/services/organizer/store"
)

// ErrInvalidConfig indicates the configuration failed validation.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultDirName is the per-user state directory under $HOME.
const DefaultDirName = ".tabherd"

// Config is the daemon's full configuration.
type Config struct {
	// Server configures the HTTP/WebSocket surface.
	Server ServerConfig `yaml:"server"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Store configures the persistent badger store.
	Store store.Config `yaml:"store"`

	// Classifier configures the classification engine and provider.
	Classifier classify.Config `yaml:"classifier"`

	// Organizer configures the drain loop and its runtime toggles.
	Organizer OrganizerConfig `yaml:"organizer"`
}

// ServerConfig configures the listen surface. The daemon is a local
// companion to a browser extension; it binds loopback by default.
type ServerConfig struct {
	// Addr is the listen address, host:port.
	Addr string `yaml:"addr"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the slog setup in pkg/logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Dir is where log files are written. Empty logs to stderr only.
	Dir string `yaml:"dir"`

	// JSON switches file output to JSON lines.
	JSON bool `yaml:"json"`
}

// OrganizerConfig configures the organization behavior itself.
type OrganizerConfig struct {
	// Enabled switches organization on. Off leaves enqueued work
	// untouched in the queue.
	Enabled bool `yaml:"enabled"`

	// Autopilot applies suggestions in the browser immediately instead
	// of caching them for confirmation.
	Autopilot bool `yaml:"autopilot"`

	// BatchSize is how many tabs go to the classifier per call.
	BatchSize int `yaml:"batch_size"`

	// Debounce is the quiet period after a snapshot before a drain
	// starts; bursts of tab events coalesce into one pass.
	Debounce time.Duration `yaml:"debounce"`

	// RecalcInterval re-enqueues every known window at low priority on
	// a timer. Zero disables periodic recalculation.
	RecalcInterval time.Duration `yaml:"recalc_interval"`

	// RulesPath is the pattern rules file, hot-reloaded on change.
	// A missing file means no rules.
	RulesPath string `yaml:"rules_path"`

	// CustomRules is free-text guidance folded into the classifier
	// prompt verbatim.
	CustomRules string `yaml:"custom_rules"`
}

// Default returns the full default configuration. Paths land under
// ~/.tabherd; with no resolvable home directory they are relative.
func Default() Config {
	dir := DefaultDirName
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, DefaultDirName)
	}
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8747",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   filepath.Join(dir, "logs"),
		},
		Store:      store.DefaultConfig(filepath.Join(dir, "store")),
		Classifier: classify.DefaultConfig(),
		Organizer: OrganizerConfig{
			Enabled:        true,
			Autopilot:      false,
			BatchSize:      10,
			Debounce:       500 * time.Millisecond,
			RecalcInterval: 0,
			RulesPath:      filepath.Join(dir, "rules.yaml"),
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	dir := DefaultDirName
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, DefaultDirName)
	}
	return filepath.Join(dir, "tabherd.yaml")
}

// Load reads the config file at path, or the default location when
// path is empty. A missing default file is created with defaults
// first; a missing explicit path is an error.
//
// # Outputs
//
//   - *Config: Defaults overlaid with the file's values, validated.
//   - error: Read, parse, or validation failure.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Printf("First run detected, creating the config at %s\n", path)
			if err := writeDefault(path); err != nil {
				return nil, err
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyDefaults fills zero-valued fields that have no meaningful zero.
// Explicit false booleans are respected.
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}

	if c.Store.Path == "" && !c.Store.InMemory {
		c.Store.Path = def.Store.Path
	}
	sd := store.DefaultConfig(c.Store.Path)
	if c.Store.QueueSize <= 0 {
		c.Store.QueueSize = sd.QueueSize
	}
	if c.Store.SuggestionTTL <= 0 {
		c.Store.SuggestionTTL = sd.SuggestionTTL
	}
	if c.Store.NegativeTTL <= 0 {
		c.Store.NegativeTTL = sd.NegativeTTL
	}
	if c.Store.GCDiscardRatio <= 0 {
		c.Store.GCDiscardRatio = sd.GCDiscardRatio
	}

	cd := classify.DefaultConfig()
	if c.Classifier.Provider == "" {
		c.Classifier.Provider = cd.Provider
	}
	if c.Classifier.Temperature <= 0 {
		c.Classifier.Temperature = cd.Temperature
	}
	if c.Classifier.MaxTokens <= 0 {
		c.Classifier.MaxTokens = cd.MaxTokens
	}
	if c.Classifier.Timeout <= 0 {
		c.Classifier.Timeout = cd.Timeout
	}
	if c.Classifier.RetryBackoff <= 0 {
		c.Classifier.RetryBackoff = cd.RetryBackoff
	}

	if c.Organizer.BatchSize <= 0 {
		c.Organizer.BatchSize = def.Organizer.BatchSize
	}
	if c.Organizer.Debounce <= 0 {
		c.Organizer.Debounce = def.Organizer.Debounce
	}
}

// Validate checks the whole tree and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "Server.Addr must not be empty")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("Log.Level %q is not recognized", c.Log.Level))
	}
	if c.Organizer.BatchSize < 1 || c.Organizer.BatchSize > 100 {
		errs = append(errs, "Organizer.BatchSize must be between 1 and 100")
	}
	if c.Organizer.Debounce < 0 {
		errs = append(errs, "Organizer.Debounce must be non-negative")
	}
	if c.Organizer.RecalcInterval < 0 {
		errs = append(errs, "Organizer.RecalcInterval must be non-negative")
	}
	if c.Organizer.RecalcInterval > 0 && c.Organizer.RecalcInterval < time.Minute {
		errs = append(errs, "Organizer.RecalcInterval below 1m would thrash the classifier")
	}

	if err := c.Store.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("Store: %v", err))
	}
	if err := c.Classifier.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("Classifier: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}
