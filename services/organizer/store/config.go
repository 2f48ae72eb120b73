// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"fmt"
	"strings"
	"time"
)

// Config controls the persistent store.
type Config struct {
	// Path is the BadgerDB directory. Created if missing.
	// Ignored when InMemory is true.
	Path string `yaml:"path"`

	// InMemory keeps all data in RAM and discards it on Close.
	// Intended for tests.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites syncs every write batch to disk before acknowledging.
	SyncWrites bool `yaml:"sync_writes"`

	// QueueSize bounds the async write queue. When the queue is full,
	// further writes are dropped and counted, never blocked on.
	QueueSize int `yaml:"queue_size"`

	// SuggestionTTL is how long cached group suggestions stay live.
	SuggestionTTL time.Duration `yaml:"suggestion_ttl"`

	// NegativeTTL is how long unmatched-item markers stay live. Shorter
	// than SuggestionTTL so unmatched tabs get another pass eventually.
	NegativeTTL time.Duration `yaml:"negative_ttl"`

	// GCInterval is how often the value-log GC runs. Zero disables GC.
	// GC never runs for in-memory stores.
	GCInterval time.Duration `yaml:"gc_interval"`

	// GCDiscardRatio is the minimum ratio of discardable data that
	// triggers a value-log rewrite. Must be in (0, 1].
	GCDiscardRatio float64 `yaml:"gc_discard_ratio"`
}

// DefaultConfig returns the production configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		InMemory:       false,
		SyncWrites:     true,            // Durability over write latency
		QueueSize:      256,             // Writes beyond this are dropped
		SuggestionTTL:  72 * time.Hour,  // Suggestions older than this are stale
		NegativeTTL:    12 * time.Hour,  // Unmatched tabs retried after this
		GCInterval:     5 * time.Minute, // Value log GC cadence
		GCDiscardRatio: 0.5,             // Rewrite files that are half garbage
	}
}

// InMemoryConfig returns a configuration for a RAM-only store, intended
// for tests.
func InMemoryConfig() Config {
	cfg := DefaultConfig("")
	cfg.InMemory = true
	cfg.SyncWrites = false
	cfg.GCInterval = 0
	return cfg
}

// Validate checks the configuration, collecting every problem into one
// error wrapping ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []string

	if !c.InMemory && c.Path == "" {
		errs = append(errs, "path: required unless in_memory is set")
	}
	if c.QueueSize <= 0 {
		errs = append(errs, "queue_size: must be positive")
	}
	if c.SuggestionTTL <= 0 {
		errs = append(errs, "suggestion_ttl: must be positive")
	}
	if c.NegativeTTL <= 0 {
		errs = append(errs, "negative_ttl: must be positive")
	}
	if c.GCInterval < 0 {
		errs = append(errs, "gc_interval: must not be negative")
	}
	if c.GCInterval > 0 && (c.GCDiscardRatio <= 0 || c.GCDiscardRatio > 1) {
		errs = append(errs, "gc_discard_ratio: must be in (0, 1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}
