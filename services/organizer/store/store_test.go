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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(InMemoryConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newDiskStore(t *testing.T, dir string) *Store {
	t.Helper()
	cfg := DefaultConfig(dir)
	cfg.SyncWrites = false
	s, err := New(cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustFlush(t *testing.T, s *Store) {
	t.Helper()
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := InMemoryConfig()
	cfg.QueueSize = 0
	if _, err := New(cfg, testLogger(), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}

	cfg = DefaultConfig("")
	if _, err := New(cfg, testLogger(), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for empty path, got %v", err)
	}
}

func TestStateMachine(t *testing.T) {
	ctx := context.Background()
	s, err := New(InMemoryConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := s.LastFingerprint(1); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("LastFingerprint before Load: got %v, want ErrNotLoaded", err)
	}
	if _, err := s.GetSuggestion(ctx, 1, 1, "h"); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("GetSuggestion before Load: got %v, want ErrNotLoaded", err)
	}
	if err := s.Flush(ctx); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("Flush before Load: got %v, want ErrNotLoaded", err)
	}

	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Load(ctx); !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("second Load: got %v, want ErrAlreadyLoaded", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.LastFingerprint(1); !errors.Is(err, ErrClosed) {
		t.Fatalf("LastFingerprint after Close: got %v, want ErrClosed", err)
	}
	if err := s.Load(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Load after Close: got %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestCloseWithoutLoad(t *testing.T) {
	s, err := New(InMemoryConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close without Load: %v", err)
	}
	if err := s.Load(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Load after Close: got %v, want ErrClosed", err)
	}
}

func TestFingerprintReadYourWrites(t *testing.T) {
	s := newTestStore(t)

	s.PutFingerprintAsync(7, "abc123")
	fp, err := s.LastFingerprint(7)
	if err != nil {
		t.Fatalf("LastFingerprint: %v", err)
	}
	if fp != "abc123" {
		t.Fatalf("fingerprint = %q, want abc123", fp)
	}

	if _, err := s.LastFingerprint(8); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown window: got %v, want ErrNotFound", err)
	}
}

func TestFingerprintPersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()

	s1 := newDiskStore(t, dir)
	s1.PutFingerprintAsync(42, "deadbeef")
	mustFlush(t, s1)
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2 := newDiskStore(t, dir)
	fp, err := s2.LastFingerprint(42)
	if err != nil {
		t.Fatalf("LastFingerprint after reload: %v", err)
	}
	if fp != "deadbeef" {
		t.Fatalf("fingerprint = %q, want deadbeef", fp)
	}
}

func TestLoadClearsStaleProcessingState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1 := newDiskStore(t, dir)
	s1.PutProcessingSetAsync([]int64{1, 2, 3})
	s1.PutOrganizingAsync(true)
	mustFlush(t, s1)

	ids, err := s1.ProcessingSet(ctx)
	if err != nil {
		t.Fatalf("ProcessingSet: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("processing set size = %d, want 3", len(ids))
	}
	on, err := s1.Organizing(ctx)
	if err != nil {
		t.Fatalf("Organizing: %v", err)
	}
	if !on {
		t.Fatal("organizing flag not set")
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A new process must not believe the old run's work is still queued.
	s2 := newDiskStore(t, dir)
	ids, err = s2.ProcessingSet(ctx)
	if err != nil {
		t.Fatalf("ProcessingSet after reload: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("stale processing set survived reload: %v", ids)
	}
	on, err = s2.Organizing(ctx)
	if err != nil {
		t.Fatalf("Organizing after reload: %v", err)
	}
	if on {
		t.Fatal("stale organizing flag survived reload")
	}
}

func TestAsyncWritesBeforeLoadAreDropped(t *testing.T) {
	s, err := New(InMemoryConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	s.PutFingerprintAsync(1, "early")
	s.PutProcessingSetAsync([]int64{1})
	s.PutOrganizingAsync(true)
	s.DeleteWindowAsync(1)
	s.PutSuggestionsAsync([]Suggestion{{WindowID: 1, ItemID: 2, ContentHash: "h"}})

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := s.LastFingerprint(1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("dropped write was applied: %v", err)
	}
}

func TestAsyncWritesAfterCloseAreDropped(t *testing.T) {
	s, err := New(InMemoryConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Must not panic on the closed queue.
	s.PutFingerprintAsync(1, "late")
	s.PutProcessingSetAsync([]int64{1})
	s.PutOrganizingAsync(false)
	s.DeleteWindowAsync(1)
}

func TestFlushCancelledContext(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Flush(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Flush with cancelled context: got %v", err)
	}
}

func TestProcessingSetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.PutProcessingSetAsync([]int64{5, 6})
	mustFlush(t, s)

	ids, err := s.ProcessingSet(ctx)
	if err != nil {
		t.Fatalf("ProcessingSet: %v", err)
	}
	if len(ids) != 2 || ids[0] != 5 || ids[1] != 6 {
		t.Fatalf("processing set = %v, want [5 6]", ids)
	}
}

func TestOrganizingRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.PutOrganizingAsync(true)
	mustFlush(t, s)
	on, err := s.Organizing(ctx)
	if err != nil {
		t.Fatalf("Organizing: %v", err)
	}
	if !on {
		t.Fatal("organizing flag not persisted")
	}

	s.PutOrganizingAsync(false)
	mustFlush(t, s)
	on, err = s.Organizing(ctx)
	if err != nil {
		t.Fatalf("Organizing: %v", err)
	}
	if on {
		t.Fatal("organizing flag not cleared")
	}
}

func TestStats(t *testing.T) {
	s, err := New(InMemoryConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if s.Stats().Loaded {
		t.Fatal("unloaded store reports loaded")
	}

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.PutFingerprintAsync(1, "a")
	s.PutFingerprintAsync(2, "b")

	st := s.Stats()
	if !st.Loaded || !st.InMemory {
		t.Fatalf("stats = %+v", st)
	}
	if st.Fingerprints != 2 {
		t.Fatalf("fingerprints = %d, want 2", st.Fingerprints)
	}
	if st.QueueCapacity != InMemoryConfig().QueueSize {
		t.Fatalf("queue capacity = %d", st.QueueCapacity)
	}
}

func TestConcurrentWrites(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := int64(g*100 + i)
				s.PutFingerprintAsync(id, fmt.Sprintf("fp-%d", id))
				s.LastFingerprint(id)
				if i%10 == 0 {
					s.DeleteWindowAsync(id)
				}
				if i%7 == 0 {
					s.PutSuggestionsAsync([]Suggestion{
						{WindowID: id, ItemID: id + 1, ContentHash: "h", Group: "G"},
					})
				}
			}
		}(g)
	}
	wg.Wait()

	s.PutFingerprintAsync(999, "final")
	mustFlush(t, s)
	fp, err := s.LastFingerprint(999)
	if err != nil || fp != "final" {
		t.Fatalf("LastFingerprint(999) = %q, %v", fp, err)
	}
}
