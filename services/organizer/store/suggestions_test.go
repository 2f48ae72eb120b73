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
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/tabherd/services/organizer/tabs"
)

func positive(windowID, itemID int64, hash, group string) Suggestion {
	return Suggestion{
		WindowID:    windowID,
		ItemID:      itemID,
		ContentHash: hash,
		Group:       group,
		Confidence:  0.9,
		Provider:    "test",
	}
}

func negative(windowID, itemID int64, hash string) Suggestion {
	return Suggestion{
		WindowID:    windowID,
		ItemID:      itemID,
		ContentHash: hash,
		Provider:    "test",
		Negative:    true,
	}
}

func TestSuggestionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.PutSuggestionsAsync([]Suggestion{
		positive(1, 10, "h1", "Dev"),
		negative(1, 11, "h2"),
	})
	mustFlush(t, s)

	got, err := s.GetSuggestion(ctx, 1, 10, "h1")
	if err != nil {
		t.Fatalf("GetSuggestion: %v", err)
	}
	if got.Group != "Dev" || got.Provider != "test" || got.Negative {
		t.Fatalf("suggestion = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not stamped")
	}

	neg, err := s.GetSuggestion(ctx, 1, 11, "h2")
	if err != nil {
		t.Fatalf("GetSuggestion negative: %v", err)
	}
	if !neg.Negative || neg.Group != "" {
		t.Fatalf("negative entry = %+v", neg)
	}

	if _, err := s.GetSuggestion(ctx, 1, 10, "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale hash: got %v, want ErrNotFound", err)
	}
	if _, err := s.GetSuggestion(ctx, 2, 10, "h1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wrong window: got %v, want ErrNotFound", err)
	}
}

func TestPutSuggestionsSkipsEmptyHash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.PutSuggestionsAsync([]Suggestion{{WindowID: 1, ItemID: 5, Group: "Dev"}})
	mustFlush(t, s)

	got, err := s.WindowSuggestions(ctx, 1)
	if err != nil {
		t.Fatalf("WindowSuggestions: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("hashless entry was stored: %+v", got)
	}
}

func TestWindowSuggestionsFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.PutSuggestionsAsync([]Suggestion{
		positive(3, 20, "ha", "Dev"),
		positive(3, 5, "hb", "News"),
		negative(3, 7, "hc"),
		positive(4, 9, "hd", "Other"),
	})
	mustFlush(t, s)

	got, err := s.WindowSuggestions(ctx, 3)
	if err != nil {
		t.Fatalf("WindowSuggestions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d suggestions, want 2: %+v", len(got), got)
	}
	if got[0].ItemID != 5 || got[0].Group != "News" {
		t.Fatalf("first = %+v, want item 5 News", got[0])
	}
	if got[1].ItemID != 20 || got[1].Group != "Dev" {
		t.Fatalf("second = %+v, want item 20 Dev", got[1])
	}
}

func TestWindowSuggestionsNewestWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := positive(2, 10, "h-old", "Stale")
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	fresh := positive(2, 10, "h-new", "Fresh")
	fresh.CreatedAt = time.Now().UTC()

	s.PutSuggestionsAsync([]Suggestion{old, fresh})
	mustFlush(t, s)

	got, err := s.WindowSuggestions(ctx, 2)
	if err != nil {
		t.Fatalf("WindowSuggestions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1: %+v", len(got), got)
	}
	if got[0].Group != "Fresh" {
		t.Fatalf("group = %q, want Fresh", got[0].Group)
	}
}

func TestDeleteWindowPurgesSuggestions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.PutFingerprintAsync(6, "fp6")
	s.PutSuggestionsAsync([]Suggestion{
		positive(6, 1, "h1", "A"),
		positive(6, 2, "h2", "B"),
		positive(7, 3, "h3", "C"),
	})
	mustFlush(t, s)

	s.DeleteWindowAsync(6)
	mustFlush(t, s)

	if _, err := s.LastFingerprint(6); !errors.Is(err, ErrNotFound) {
		t.Fatalf("fingerprint survived delete: %v", err)
	}
	got, err := s.WindowSuggestions(ctx, 6)
	if err != nil {
		t.Fatalf("WindowSuggestions: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("suggestions survived delete: %+v", got)
	}

	other, err := s.WindowSuggestions(ctx, 7)
	if err != nil {
		t.Fatalf("WindowSuggestions(7): %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("neighbor window lost suggestions: %+v", other)
	}
}

func TestCorruptSuggestionEntryReadsAsMiss(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(suggestionKey(1, 2, "bad"), []byte("{not json"))
	})
	if err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	if _, err := s.GetSuggestion(ctx, 1, 2, "bad"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupt entry: got %v, want ErrNotFound", err)
	}
	got, err := s.WindowSuggestions(ctx, 1)
	if err != nil {
		t.Fatalf("WindowSuggestions: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("corrupt entry surfaced: %+v", got)
	}
}

func TestContentHash(t *testing.T) {
	base := tabs.Item{ID: 1, Title: "Pull requests", URL: "https://github.com/pulls"}

	h1 := ContentHash(base)
	if len(h1) != 64 {
		t.Fatalf("hash length = %d, want 64", len(h1))
	}
	if h2 := ContentHash(base); h2 != h1 {
		t.Fatal("hash not stable for identical content")
	}

	retitled := base
	retitled.Title = "Issues"
	if ContentHash(retitled) == h1 {
		t.Fatal("title change did not change hash")
	}

	navigated := base
	navigated.URL = "https://github.com/issues"
	if ContentHash(navigated) == h1 {
		t.Fatal("URL change did not change hash")
	}
}
