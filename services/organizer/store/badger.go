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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// openBadger opens the underlying BadgerDB per the store configuration.
func openBadger(cfg Config, logger *slog.Logger) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1)

	if logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// badgerLogger adapts slog to badger's logger interface. Badger's info
// output is routine compaction chatter, so it lands at debug level.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// gcRunner periodically reclaims badger value-log space in the
// background until stopped.
type gcRunner struct {
	db           *badger.DB
	interval     time.Duration
	discardRatio float64
	logger       *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

func newGCRunner(db *badger.DB, cfg Config, logger *slog.Logger) *gcRunner {
	return &gcRunner{
		db:           db,
		interval:     cfg.GCInterval,
		discardRatio: cfg.GCDiscardRatio,
		logger:       logger,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

func (g *gcRunner) start() {
	go g.loop()
}

// stop signals the loop and waits for it to exit.
func (g *gcRunner) stop() {
	close(g.stopCh)
	<-g.doneCh
}

func (g *gcRunner) loop() {
	defer close(g.doneCh)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.runGC()
		}
	}
}

// runGC keeps rewriting value-log files until badger reports there is
// nothing left to reclaim.
func (g *gcRunner) runGC() {
	for {
		err := g.db.RunValueLogGC(g.discardRatio)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) {
			g.logger.Debug("value log GC",
				slog.String("error", err.Error()))
		}
		return
	}
}
