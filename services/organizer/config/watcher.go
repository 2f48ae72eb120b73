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
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/tabherd/services/organizer/classify"
)

// RulesWatcher hot-reloads the pattern rules file.
//
// # Description
//
// Watches the directory containing the rules file and reloads on every
// write or create of that file. Watching the directory instead of the
// file itself survives the rename-replace dance editors do on save. A
// reload that fails to parse or validate keeps the previous rules and
// logs the reason.
//
// # Thread Safety
//
// Safe for concurrent use. Start should only be called once.
type RulesWatcher struct {
	path    string
	apply   func([]classify.Rule) error
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewRulesWatcher creates a watcher for the rules file at path.
//
// # Inputs
//
//   - path: Rules file location. The file may not exist yet; it is
//     picked up when created.
//   - apply: Receives each successfully loaded rule set, typically
//     (*classify.PatternProvider).SetRules.
//   - logger: May be nil.
//
// # Outputs
//
//   - *RulesWatcher: Ready-to-start watcher.
//   - error: Non-nil if watcher creation fails.
func NewRulesWatcher(path string, apply func([]classify.Rule) error, logger *slog.Logger) (*RulesWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RulesWatcher{
		path:    path,
		apply:   apply,
		watcher: watcher,
		logger:  logger.With(slog.String("component", "rules_watcher")),
	}, nil
}

// Start begins watching for rules changes. Blocks until the context is
// cancelled or the watcher is stopped. Should be run in a goroutine.
func (w *RulesWatcher) Start(ctx context.Context) {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("failed to watch rules directory",
			slog.String("dir", dir),
			slog.Any("error", err))
		return
	}
	w.logger.Debug("watching rules file", slog.String("path", w.path))

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rules watcher error", slog.Any("error", err))

		case <-ctx.Done():
			w.logger.Debug("rules watcher stopping")
			return
		}
	}
}

// handleEvent processes a single fsnotify event.
func (w *RulesWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if filepath.Base(event.Name) != filepath.Base(w.path) {
		return
	}
	w.Reload()
}

// Reload loads the rules file and hands the result to the apply
// callback. A missing file applies an empty rule set.
func (w *RulesWatcher) Reload() {
	rules, err := classify.LoadRulesFile(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			rules = nil
		} else {
			w.logger.Warn("rules reload failed, keeping previous rules",
				slog.String("path", w.path),
				slog.Any("error", err))
			return
		}
	}
	if err := w.apply(rules); err != nil {
		w.logger.Warn("rules rejected, keeping previous rules",
			slog.String("path", w.path),
			slog.Any("error", err))
		return
	}
	w.logger.Info("rules reloaded",
		slog.String("path", w.path),
		slog.Int("rules", len(rules)))
}

// Stop stops the watcher. Safe to call multiple times.
func (w *RulesWatcher) Stop() error {
	return w.watcher.Close()
}
