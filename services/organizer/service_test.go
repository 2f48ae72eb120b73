// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package organizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/tabherd/services/organizer/classify"
	"github.com/AleutianAI/tabherd/services/organizer/config"
	"github.com/AleutianAI/tabherd/services/organizer/store"
	"github.com/AleutianAI/tabherd/services/organizer/tabs"
)

func init() {
	// Set Gin to test mode to reduce noise
	gin.SetMode(gin.TestMode)
}

// ===== Fixtures =====

// neverDrain parks the debounce timer far in the future so tests
// observe queued state and trigger drains explicitly via OrganizeNow.
const neverDrain = time.Hour

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testRules match github.com tabs into "Work" (blue) and nytimes.com
// tabs into "News"; everything else stays unmatched.
const testRules = `rules:
  - name: code
    group: Work
    color: blue
    domains: ["github.com"]
  - name: news
    group: News
    domains: ["nytimes.com"]
`

func writeRulesFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(testRules), 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}
	return path
}

// newTestService builds and starts a full service on an in-memory
// store with the offline rule engine as the primary classifier.
func newTestService(t *testing.T, mutate func(cfg *config.Config)) *Service {
	t.Helper()

	cfg := config.Default()
	cfg.Store = store.InMemoryConfig()
	cfg.Classifier.Provider = classify.ProviderPattern
	cfg.Classifier.FallbackToRules = false
	cfg.Organizer.RulesPath = writeRulesFile(t, t.TempDir())
	cfg.Organizer.Debounce = neverDrain
	if mutate != nil {
		mutate(&cfg)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	svc, err := NewService(&cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		if err := svc.Stop(context.Background()); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return svc
}

func newTestRouter(svc *Service) *gin.Engine {
	router := gin.New()
	RegisterRoutes(router, NewHandlers(svc))
	return router
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", d, what)
}

func workTab(id int64, slug string) tabs.Item {
	return tabs.Item{ID: id, Title: "repo " + slug, URL: "https://github.com/tabherd/" + slug}
}

func newsTab(id int64, slug string) tabs.Item {
	return tabs.Item{ID: id, Title: "story " + slug, URL: "https://nytimes.com/" + slug}
}

func otherTab(id int64, slug string) tabs.Item {
	return tabs.Item{ID: id, Title: slug, URL: "https://example.org/" + slug}
}

func normalWindow(id int64) tabs.WindowInfo {
	return tabs.WindowInfo{ID: id, Type: tabs.WindowNormal}
}

// suggestionCount polls the suggestion view for a window.
func suggestionCount(t *testing.T, svc *Service, windowID int64) int {
	t.Helper()
	resp, err := svc.Suggestions(context.Background(), windowID)
	if err != nil {
		t.Fatalf("Suggestions: %v", err)
	}
	return len(resp.Suggestions)
}

// ===== Lifecycle =====

func TestServiceStartStop(t *testing.T) {
	svc := newTestService(t, nil)

	h := svc.Health()
	if h.Status != "ok" {
		t.Errorf("health status = %q, want ok", h.Status)
	}
	if h.Version != ServiceVersion {
		t.Errorf("health version = %q, want %q", h.Version, ServiceVersion)
	}
	if !h.StoreReady {
		t.Error("store not ready after Start")
	}
	if h.Provider != "pattern" {
		t.Errorf("provider = %q, want pattern", h.Provider)
	}
	if h.Sessions != 0 {
		t.Errorf("sessions = %d, want 0", h.Sessions)
	}
}

func TestNewServiceRejectsNilConfig(t *testing.T) {
	_, err := NewService(nil, testLogger(), nil)
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("NewService(nil) error = %v, want ErrInvalidConfig", err)
	}
}

func TestNewServiceToleratesMissingRulesFile(t *testing.T) {
	cfg := config.Default()
	cfg.Store = store.InMemoryConfig()
	cfg.Classifier.Provider = classify.ProviderPattern
	cfg.Classifier.FallbackToRules = false
	cfg.Organizer.RulesPath = filepath.Join(t.TempDir(), "missing.yaml")
	cfg.ApplyDefaults()

	svc, err := NewService(&cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewService with missing rules file: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// ===== Ingest and drain =====

func TestIngestQueuesUntilDrain(t *testing.T) {
	svc := newTestService(t, nil)

	resp := svc.IngestSnapshot(normalWindow(10), []tabs.Item{workTab(1, "a")}, nil)
	if resp.WindowID != 10 {
		t.Errorf("ingest window id = %d, want 10", resp.WindowID)
	}
	if resp.QueueDepth != 1 {
		t.Errorf("queue depth after ingest = %d, want 1", resp.QueueDepth)
	}

	st := svc.Status()
	if !st.Organizing {
		t.Error("status not organizing with a queued window")
	}
	if st.Windows != 1 {
		t.Errorf("mirrored windows = %d, want 1", st.Windows)
	}
}

func TestOrganizeNowDrainsImmediately(t *testing.T) {
	svc := newTestService(t, nil)

	svc.IngestSnapshot(normalWindow(10), []tabs.Item{workTab(1, "a"), workTab(2, "b")}, nil)
	resp := svc.OrganizeNow()
	if resp.WindowsQueued != 0 {
		// The window is already queued from the ingest; the manual
		// trigger only re-delivers the identical snapshot.
		t.Errorf("windows queued = %d, want 0", resp.WindowsQueued)
	}

	waitFor(t, 2*time.Second, "suggestions to be cached", func() bool {
		return suggestionCount(t, svc, 10) == 2
	})
	waitFor(t, 2*time.Second, "queue to drain", func() bool {
		st := svc.Status()
		return !st.Organizing && st.QueueDepth == 0
	})
}

func TestDebouncedDrainRunsWithoutManualTrigger(t *testing.T) {
	svc := newTestService(t, func(cfg *config.Config) {
		cfg.Organizer.Debounce = 10 * time.Millisecond
	})

	svc.IngestSnapshot(normalWindow(10), []tabs.Item{workTab(1, "a")}, nil)

	waitFor(t, 2*time.Second, "debounced drain", func() bool {
		return suggestionCount(t, svc, 10) == 1
	})
}

func TestReEnableKicksParkedQueue(t *testing.T) {
	svc := newTestService(t, func(cfg *config.Config) {
		cfg.Organizer.Debounce = 10 * time.Millisecond
	})

	off := false
	svc.UpdateConfig(ConfigUpdateRequest{Enabled: &off})
	svc.IngestSnapshot(normalWindow(10), []tabs.Item{workTab(1, "a")}, nil)

	// The debounced drain fires, sees organization disabled, and leaves
	// the window queued.
	time.Sleep(50 * time.Millisecond)
	if st := svc.Status(); st.QueueDepth != 1 {
		t.Fatalf("queue depth while disabled = %d, want 1", st.QueueDepth)
	}
	if n := suggestionCount(t, svc, 10); n != 0 {
		t.Fatalf("suggestions while disabled = %d, want 0", n)
	}

	on := true
	svc.UpdateConfig(ConfigUpdateRequest{Enabled: &on})

	waitFor(t, 2*time.Second, "parked window to drain after re-enable", func() bool {
		return suggestionCount(t, svc, 10) == 1 && svc.Status().QueueDepth == 0
	})
}

func TestPeriodicSweepReEnqueuesMirroredWindows(t *testing.T) {
	svc := newTestService(t, nil)

	svc.IngestSnapshot(normalWindow(10), []tabs.Item{workTab(1, "a")}, nil)
	svc.IngestSnapshot(normalWindow(20), []tabs.Item{newsTab(5, "x")}, nil)
	svc.OrganizeNow()
	waitFor(t, 2*time.Second, "initial drain", func() bool {
		return svc.Status().QueueDepth == 0 && !svc.Status().Organizing
	})

	// What the recalculation ticker does each interval.
	if n := svc.enqueueMirrored(true); n != 2 {
		t.Fatalf("sweep enqueued %d windows, want 2", n)
	}
	if st := svc.Status(); st.QueueDepth != 2 {
		t.Errorf("queue depth after sweep = %d, want 2", st.QueueDepth)
	}
}

func TestWindowRemovalPurgesQueue(t *testing.T) {
	svc := newTestService(t, nil)

	svc.IngestSnapshot(normalWindow(10), []tabs.Item{workTab(1, "a")}, nil)
	if st := svc.Status(); st.QueueDepth != 1 || st.Windows != 1 {
		t.Fatalf("setup: queue=%d windows=%d", st.QueueDepth, st.Windows)
	}

	svc.RemoveWindow(10)

	st := svc.Status()
	if st.QueueDepth != 0 {
		t.Errorf("queue depth after removal = %d, want 0", st.QueueDepth)
	}
	if st.Windows != 0 {
		t.Errorf("mirrored windows after removal = %d, want 0", st.Windows)
	}
	if st.Organizing {
		t.Error("still organizing after the only window was removed")
	}

	// Idempotent.
	svc.RemoveWindow(10)
}

// ===== Suggestions =====

func TestSuggestionsEnrichedFromMirror(t *testing.T) {
	svc := newTestService(t, nil)

	svc.IngestSnapshot(normalWindow(10), []tabs.Item{workTab(1, "a"), otherTab(9, "misc")}, nil)
	svc.OrganizeNow()
	waitFor(t, 2*time.Second, "suggestion to be cached", func() bool {
		return suggestionCount(t, svc, 10) == 1
	})

	resp, err := svc.Suggestions(context.Background(), 10)
	if err != nil {
		t.Fatalf("Suggestions: %v", err)
	}
	s := resp.Suggestions[0]
	if s.ItemID != 1 {
		t.Errorf("suggestion item = %d, want 1", s.ItemID)
	}
	if s.Group != "Work" {
		t.Errorf("suggestion group = %q, want Work", s.Group)
	}
	if s.Color != "blue" {
		t.Errorf("suggestion color = %q, want blue (pinned by rule)", s.Color)
	}
	if s.Provider != "pattern" {
		t.Errorf("suggestion provider = %q, want pattern", s.Provider)
	}
	if s.Title != "repo a" || s.URL == "" {
		t.Errorf("suggestion not enriched from mirror: title=%q url=%q", s.Title, s.URL)
	}
	// The unmatched tab is negative-cached, never shown.
	for _, v := range resp.Suggestions {
		if v.ItemID == 9 {
			t.Error("negative suggestion leaked into the view")
		}
	}
}

func TestSuggestionsDropStaleEntries(t *testing.T) {
	svc := newTestService(t, nil)

	svc.IngestSnapshot(normalWindow(10), []tabs.Item{workTab(1, "a"), workTab(2, "b")}, nil)
	svc.OrganizeNow()
	waitFor(t, 2*time.Second, "suggestions to be cached", func() bool {
		return suggestionCount(t, svc, 10) == 2
	})

	// Tab 1 navigates away; its cached verdict no longer matches the
	// live content hash. No drain runs (debounce parked).
	svc.IngestSnapshot(normalWindow(10), []tabs.Item{newsTab(1, "breaking"), workTab(2, "b")}, nil)

	resp, err := svc.Suggestions(context.Background(), 10)
	if err != nil {
		t.Fatalf("Suggestions: %v", err)
	}
	if len(resp.Suggestions) != 1 {
		t.Fatalf("live suggestions = %d, want 1", len(resp.Suggestions))
	}
	if resp.Suggestions[0].ItemID != 2 {
		t.Errorf("surviving suggestion = tab %d, want 2", resp.Suggestions[0].ItemID)
	}
}

func TestAcceptSuggestionRequiresSession(t *testing.T) {
	svc := newTestService(t, nil)

	svc.IngestSnapshot(normalWindow(10), []tabs.Item{workTab(1, "a")}, nil)
	svc.OrganizeNow()
	waitFor(t, 2*time.Second, "suggestion to be cached", func() bool {
		return suggestionCount(t, svc, 10) == 1
	})

	// REST-ingested windows have no socket to carry apply commands.
	_, err := svc.AcceptSuggestion(context.Background(), 10, "Work")
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("accept without session: got %v, want ErrNoSession", err)
	}
}

func TestAcceptSuggestionUnknownWindow(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.AcceptSuggestion(context.Background(), 404, "Work")
	if !errors.Is(err, ErrUnknownWindow) {
		t.Fatalf("accept unknown window: got %v, want ErrUnknownWindow", err)
	}
}

func TestAcceptSuggestionStaleGroup(t *testing.T) {
	svc := newTestService(t, nil)

	svc.IngestSnapshot(normalWindow(10), []tabs.Item{workTab(1, "a")}, nil)
	svc.OrganizeNow()
	waitFor(t, 2*time.Second, "suggestion to be cached", func() bool {
		return suggestionCount(t, svc, 10) == 1
	})

	// The tab navigates; the cached Work suggestion is now stale.
	svc.IngestSnapshot(normalWindow(10), []tabs.Item{newsTab(1, "breaking")}, nil)

	_, err := svc.AcceptSuggestion(context.Background(), 10, "Work")
	if !errors.Is(err, ErrNothingToApply) {
		t.Fatalf("accept stale group: got %v, want ErrNothingToApply", err)
	}
}

// ===== Runtime settings =====

func TestUpdateConfigPartial(t *testing.T) {
	svc := newTestService(t, nil)

	before := svc.ConfigView()
	if !before.Enabled || before.Autopilot {
		t.Fatalf("unexpected defaults: %+v", before)
	}

	auto := true
	batch := 25
	after := svc.UpdateConfig(ConfigUpdateRequest{Autopilot: &auto, BatchSize: &batch})
	if !after.Enabled {
		t.Error("enabled flipped by an update that did not mention it")
	}
	if !after.Autopilot {
		t.Error("autopilot not applied")
	}
	if after.BatchSize != 25 {
		t.Errorf("batch size = %d, want 25", after.BatchSize)
	}

	rules := "keep shopping tabs together"
	after = svc.UpdateConfig(ConfigUpdateRequest{CustomRules: &rules})
	if after.CustomRules != rules {
		t.Errorf("custom rules = %q, want %q", after.CustomRules, rules)
	}
	if !after.Autopilot || after.BatchSize != 25 {
		t.Error("earlier settings lost by a later partial update")
	}
}

func TestStatusReflectsSettings(t *testing.T) {
	svc := newTestService(t, nil)

	off := false
	svc.UpdateConfig(ConfigUpdateRequest{Enabled: &off})
	st := svc.Status()
	if st.Enabled {
		t.Error("status still reports enabled")
	}
	if st.Provider != "pattern" {
		t.Errorf("status provider = %q, want pattern", st.Provider)
	}
	if !st.Store.Loaded || !st.Store.InMemory {
		t.Errorf("store stats = %+v, want loaded in-memory", st.Store)
	}
}

// ===== Convergence =====

// A second pass over an already-organized window must not re-classify:
// grouped tabs are not candidates and cached verdicts cover the rest.
func TestRepeatedDrainsConverge(t *testing.T) {
	svc := newTestService(t, nil)

	svc.IngestSnapshot(normalWindow(10), []tabs.Item{workTab(1, "a"), otherTab(9, "misc")}, nil)
	svc.OrganizeNow()
	waitFor(t, 2*time.Second, "first drain", func() bool {
		return suggestionCount(t, svc, 10) == 1 && svc.Status().QueueDepth == 0
	})

	for i := 0; i < 3; i++ {
		svc.OrganizeNow()
		waitFor(t, 2*time.Second, fmt.Sprintf("drain %d", i+2), func() bool {
			st := svc.Status()
			return st.QueueDepth == 0 && !st.Organizing
		})
	}

	if n := suggestionCount(t, svc, 10); n != 1 {
		t.Errorf("suggestions after repeated drains = %d, want 1", n)
	}
}
