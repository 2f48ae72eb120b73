// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package organizer assembles the tab organizing daemon: the session
// hub that mirrors browser state, the coordinator and processor that
// drive classification, the persistent suggestion store, and the HTTP
// and WebSocket surfaces the extension talks to.
//
// # Description
//
// Snapshots and tab events flow in over the socket (or REST for
// headless use), land in the coordinator's queue, and a debounced
// drain pass classifies what changed. With autopilot on the resulting
// groups are pushed back to the extension as apply_group commands;
// with it off they are cached for explicit confirmation through the
// suggestions endpoints.
package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/AleutianAI/tabherd/services/organizer/classify"
	"github.com/AleutianAI/tabherd/services/organizer/config"
	"github.com/AleutianAI/tabherd/services/organizer/coordinate"
	"github.com/AleutianAI/tabherd/services/organizer/observability"
	"github.com/AleutianAI/tabherd/services/organizer/processor"
	"github.com/AleutianAI/tabherd/services/organizer/snapshot"
	"github.com/AleutianAI/tabherd/services/organizer/store"
	"github.com/AleutianAI/tabherd/services/organizer/tabs"
)

// Service owns every organizer component and the boundaries between
// them: the debounce window between event ingestion and draining, the
// optional periodic recalculation sweep, and the runtime settings the
// config endpoints mutate.
//
// # Thread Safety
//
// Safe for concurrent use once constructed. Start and Stop must each
// be called once, in that order.
type Service struct {
	cfg      *config.Config
	settings *config.Settings
	logger   *slog.Logger
	metrics  *observability.Metrics

	store    *store.Store
	coord    *coordinate.Coordinator
	engine   *classify.Engine
	patterns *classify.PatternProvider
	hub      *Hub
	proc     *processor.Processor
	watcher  *config.RulesWatcher

	// debounce is the quiet period between the last ingested event and
	// the drain it schedules.
	debounce time.Duration

	timerMu    sync.Mutex
	drainTimer *time.Timer

	runCtx context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
}

// NewService wires the organizer from a validated config. The store is
// created but not opened; Start opens it.
func NewService(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("new service: %w: nil config", config.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.New(cfg.Store, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("new service: %w", err)
	}

	rules := loadInitialRules(cfg.Organizer.RulesPath, logger)
	engine, patterns, err := classify.NewEngineFromConfig(cfg.Classifier, rules, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("new service: %w", err)
	}

	hub := NewHub(logger, metrics)
	coord := coordinate.NewCoordinator(st, hub, logger, metrics)
	settings := config.NewSettings(cfg.Organizer)

	proc, err := processor.New(processor.Options{
		Coordinator: coord,
		Source:      hub,
		Classifier:  engine,
		Applier:     hub,
		Config:      settings,
		Cache:       st,
		Errors:      hub,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("new service: %w", err)
	}

	svc := &Service{
		cfg:      cfg,
		settings: settings,
		logger:   logger.With(slog.String("component", "organizer")),
		metrics:  metrics,
		store:    st,
		coord:    coord,
		engine:   engine,
		patterns: patterns,
		hub:      hub,
		proc:     proc,
		debounce: cfg.Organizer.Debounce,
	}
	hub.SetEvents(svc)

	if cfg.Organizer.RulesPath != "" {
		watcher, err := config.NewRulesWatcher(cfg.Organizer.RulesPath, patterns.SetRules, logger)
		if err != nil {
			logger.Warn("Rules file watching disabled",
				slog.String("path", cfg.Organizer.RulesPath),
				slog.String("error", err.Error()))
		} else {
			svc.watcher = watcher
		}
	}

	return svc, nil
}

// loadInitialRules reads the rules file at boot. A missing file is the
// normal first-run state; a malformed one must not stop the daemon, so
// both degrade to no rules.
func loadInitialRules(path string, logger *slog.Logger) []classify.Rule {
	if path == "" {
		return nil
	}
	rules, err := classify.LoadRulesFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("No rules file yet", slog.String("path", path))
		} else {
			logger.Warn("Ignoring unreadable rules file",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	}
	logger.Info("Loaded classification rules",
		slog.String("path", path),
		slog.Int("rules", len(rules)))
	return rules
}

// Start opens the store and launches the background tasks: the rules
// file watcher and, when configured, the periodic recalculation sweep.
func (s *Service) Start(ctx context.Context) error {
	if err := s.store.Load(ctx); err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)

	if s.watcher != nil {
		s.tasks.Add(1)
		go func() {
			defer s.tasks.Done()
			s.watcher.Start(s.runCtx)
		}()
	}

	if s.cfg.Organizer.RecalcInterval > 0 {
		s.tasks.Add(1)
		go func() {
			defer s.tasks.Done()
			s.recalcLoop(s.runCtx)
		}()
	}

	s.logger.Info("Organizer service started",
		slog.String("provider", s.engine.Provider()),
		slog.Bool("enabled", s.settings.Enabled()),
		slog.Bool("autopilot", s.settings.Autopilot()),
		slog.Duration("debounce", s.debounce))
	return nil
}

// Stop cancels background work and closes the store. An in-flight
// drain pass aborts at its next checkpoint; writes it no longer gets
// to queue are suggestions, which the next pass recomputes.
func (s *Service) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	s.timerMu.Lock()
	if s.drainTimer != nil {
		s.drainTimer.Stop()
	}
	s.timerMu.Unlock()

	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn("Rules watcher close failed", slog.String("error", err.Error()))
		}
	}
	s.tasks.Wait()

	if err := s.store.Flush(ctx); err != nil {
		s.logger.Warn("Store flush incomplete", slog.String("error", err.Error()))
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	s.logger.Info("Organizer service stopped")
	return nil
}

// recalcLoop periodically re-enqueues every mirrored window at low
// priority so groupings converge even without browser events.
func (s *Service) recalcLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Organizer.RecalcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.enqueueMirrored(true)
			if n > 0 {
				s.logger.Debug("Periodic recalculation sweep", slog.Int("windows", n))
				s.scheduleDrain()
			}
		}
	}
}

// enqueueMirrored enqueues every mirrored window with a fresh snapshot
// and returns how many entered or moved in the queue.
func (s *Service) enqueueMirrored(requeue bool) int {
	n := 0
	for _, id := range s.hub.WindowIDs() {
		snap, ok := s.hub.SnapshotOf(id)
		if !ok {
			continue
		}
		if s.coord.Enqueue(id, snap, requeue) {
			n++
		}
	}
	return n
}

// ===== Drain boundary =====

// scheduleDrain arms the debounce timer, or pushes its deadline out
// when a burst of events is still arriving. The drain itself runs on
// the timer's goroutine; overlapping fires coalesce inside the
// processor.
func (s *Service) scheduleDrain() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.drainTimer == nil {
		s.drainTimer = time.AfterFunc(s.debounce, s.drainNow)
		return
	}
	s.drainTimer.Reset(s.debounce)
}

func (s *Service) drainNow() {
	if s.runCtx == nil || s.runCtx.Err() != nil {
		return
	}
	err := s.proc.Run(s.runCtx)
	switch {
	case err == nil:
	case errors.Is(err, processor.ErrDisabled):
		s.logger.Debug("Drain skipped, organization disabled",
			slog.Int("queued", s.coord.Size()))
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error("Drain pass failed", slog.String("error", err.Error()))
	}
}

// ===== Session events =====

// SnapshotReceived feeds a mirrored state change into the coordinator
// and schedules a drain. Duplicate fingerprints still schedule: the
// timer is cheap and an earlier disabled pass may have left the queue
// populated.
func (s *Service) SnapshotReceived(windowID int64, snap *snapshot.Snapshot) {
	s.coord.Enqueue(windowID, snap, false)
	s.scheduleDrain()
}

// WindowRemoved purges a destroyed window from the coordinator.
func (s *Service) WindowRemoved(windowID int64) {
	s.coord.Remove(windowID)
}

// ===== Handler-facing operations =====

// IngestSnapshot records a REST-delivered snapshot; the mirror change
// flows through SnapshotReceived like socket traffic.
func (s *Service) IngestSnapshot(info tabs.WindowInfo, items []tabs.Item, groups []tabs.Group) SnapshotResponse {
	s.hub.IngestLocal(info, items, groups)
	return SnapshotResponse{WindowID: info.ID, QueueDepth: s.coord.Size()}
}

// RemoveWindow drops a window everywhere. Idempotent.
func (s *Service) RemoveWindow(windowID int64) {
	s.hub.RemoveWindow(windowID)
}

// OrganizeNow enqueues every mirrored window at high priority and
// drains immediately, bypassing the debounce window.
func (s *Service) OrganizeNow() OrganizeResponse {
	n := s.enqueueMirrored(false)
	if s.coord.Size() > 0 {
		go s.drainNow()
	}
	return OrganizeResponse{WindowsQueued: n}
}

// Status reports queue, session, and store health.
func (s *Service) Status() StatusResponse {
	return StatusResponse{
		Organizing: s.coord.IsProcessing(),
		QueueDepth: s.coord.Size(),
		Sessions:   s.hub.SessionCount(),
		Windows:    s.hub.WindowCount(),
		Provider:   s.engine.Provider(),
		Enabled:    s.settings.Enabled(),
		Autopilot:  s.settings.Autopilot(),
		Store:      s.store.Stats(),
	}
}

// Health reports liveness for GET /health.
func (s *Service) Health() HealthResponse {
	return HealthResponse{
		Status:     "ok",
		Version:    ServiceVersion,
		Provider:   s.engine.Provider(),
		StoreReady: s.store.Stats().Loaded,
		Sessions:   s.hub.SessionCount(),
	}
}

// Suggestions returns the window's live cached suggestions. Entries
// whose tab closed, navigated, was pinned, or is already grouped are
// filtered out when the window is mirrored; for unmirrored windows the
// raw cache is returned so a reconnecting UI can still render it.
func (s *Service) Suggestions(ctx context.Context, windowID int64) (*SuggestionsResponse, error) {
	entries, err := s.store.WindowSuggestions(ctx, windowID)
	if err != nil {
		return nil, fmt.Errorf("suggestions for window %d: %w", windowID, err)
	}

	live, mirrored := s.liveByID(ctx, windowID)

	resp := &SuggestionsResponse{WindowID: windowID, Suggestions: []SuggestionView{}}
	for _, e := range entries {
		if e.Negative {
			continue
		}
		view := SuggestionView{
			ItemID:     e.ItemID,
			Group:      e.Group,
			Confidence: e.Confidence,
			Provider:   e.Provider,
			Color:      s.patterns.ColorFor(e.Group),
			CreatedAt:  e.CreatedAt,
		}
		if mirrored {
			it, ok := live[e.ItemID]
			if !ok || it.Pinned || it.Grouped() || store.ContentHash(it) != e.ContentHash {
				continue
			}
			view.Title = it.Title
			view.URL = it.URL
		}
		resp.Suggestions = append(resp.Suggestions, view)
	}
	return resp, nil
}

// AcceptSuggestion materializes the cached suggestions for one group
// name: every live, still-matching tab with a suggestion for that group
// is sent to the extension in a single apply_group command.
func (s *Service) AcceptSuggestion(ctx context.Context, windowID int64, group string) (*AcceptResponse, error) {
	live, mirrored := s.liveByID(ctx, windowID)
	if !mirrored {
		return nil, fmt.Errorf("accept for window %d: %w", windowID, ErrUnknownWindow)
	}

	entries, err := s.store.WindowSuggestions(ctx, windowID)
	if err != nil {
		return nil, fmt.Errorf("accept for window %d: %w", windowID, err)
	}

	var ids []int64
	for _, e := range entries {
		if e.Negative || e.Group != group {
			continue
		}
		it, ok := live[e.ItemID]
		if !ok || it.Pinned || it.Grouped() || store.ContentHash(it) != e.ContentHash {
			continue
		}
		ids = append(ids, e.ItemID)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("accept %q in window %d: %w", group, windowID, ErrNothingToApply)
	}

	existingID := int64(0)
	if groups, ok := s.hub.GroupsOf(windowID); ok {
		for _, g := range groups {
			if g.Name == group {
				existingID = g.ID
				break
			}
		}
	}

	groupID, err := s.hub.ApplyGroup(ctx, windowID, ids, group, existingID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Suggestion accepted",
		slog.Int64("window_id", windowID),
		slog.String("group", group),
		slog.Int("tabs", len(ids)))
	return &AcceptResponse{GroupID: groupID, ItemIDs: ids}, nil
}

// liveByID indexes the window's mirrored tabs by id.
func (s *Service) liveByID(ctx context.Context, windowID int64) (map[int64]tabs.Item, bool) {
	items, err := s.hub.Items(ctx, windowID)
	if err != nil {
		return nil, false
	}
	byID := make(map[int64]tabs.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	return byID, true
}

// ConfigView returns the effective runtime settings.
func (s *Service) ConfigView() ConfigResponse {
	v := s.settings.View()
	return ConfigResponse{
		Enabled:     v.Enabled,
		Autopilot:   v.Autopilot,
		BatchSize:   v.BatchSize,
		CustomRules: v.CustomRules,
	}
}

// UpdateConfig applies a partial settings update and returns the
// effective values after clamping. Re-enabling organization kicks a
// drain so windows parked by a disabled pass get processed.
func (s *Service) UpdateConfig(req ConfigUpdateRequest) ConfigResponse {
	if req.Enabled != nil {
		wasEnabled := s.settings.Enabled()
		s.settings.SetEnabled(*req.Enabled)
		if *req.Enabled && !wasEnabled && s.coord.Size() > 0 {
			s.scheduleDrain()
		}
	}
	if req.Autopilot != nil {
		s.settings.SetAutopilot(*req.Autopilot)
	}
	if req.BatchSize != nil {
		s.settings.SetBatchSize(*req.BatchSize)
	}
	if req.CustomRules != nil {
		s.settings.SetCustomRules(*req.CustomRules)
	}
	s.logger.Info("Runtime settings updated",
		slog.Bool("enabled", s.settings.Enabled()),
		slog.Bool("autopilot", s.settings.Autopilot()),
		slog.Int("batch_size", s.settings.BatchSize()))
	return s.ConfigView()
}

var _ SessionEvents = (*Service)(nil)
