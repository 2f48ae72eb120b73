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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/tabherd/services/organizer/tabs"
)

// Suggestion is one cached classifier verdict for a tab. A Negative
// suggestion records that the classifier saw the tab and left it
// unassigned, so later passes skip it until the marker expires.
//
// Entries are keyed by window, tab id, and content hash: when the tab
// navigates, its hash changes and the old entry simply ages out.
type Suggestion struct {
	WindowID    int64     `json:"window_id"`
	ItemID      int64     `json:"item_id"`
	ContentHash string    `json:"content_hash"`
	Group       string    `json:"group,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	Negative    bool      `json:"negative,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContentHash digests the parts of a tab that a suggestion depends on.
func ContentHash(it tabs.Item) string {
	sum := sha256.Sum256([]byte(it.Title + "\x00" + it.URL))
	return hex.EncodeToString(sum[:])
}

func suggestionKey(windowID, itemID int64, contentHash string) []byte {
	return []byte(fmt.Sprintf("%s%d:%016d:%s", keyPrefixSuggestion, windowID, itemID, contentHash))
}

func windowSuggestionPrefix(windowID int64) []byte {
	return []byte(fmt.Sprintf("%s%d:", keyPrefixSuggestion, windowID))
}

// PutSuggestionsAsync caches a batch of suggestions from one window
// pass in a single transaction. Entries carry a TTL: SuggestionTTL for
// group suggestions, NegativeTTL for unmatched markers. Entries with an
// empty content hash are skipped.
func (s *Store) PutSuggestionsAsync(suggestions []Suggestion) {
	batch := make([]Suggestion, 0, len(suggestions))
	now := time.Now().UTC()
	for _, sug := range suggestions {
		if sug.ContentHash == "" {
			continue
		}
		if sug.CreatedAt.IsZero() {
			sug.CreatedAt = now
		}
		batch = append(batch, sug)
	}
	if len(batch) == 0 {
		return
	}

	positiveTTL := s.config.SuggestionTTL
	negativeTTL := s.config.NegativeTTL
	s.enqueue("suggestions", func(txn *badger.Txn) error {
		for _, sug := range batch {
			data, err := json.Marshal(sug)
			if err != nil {
				return fmt.Errorf("encode suggestion: %w", err)
			}
			entry := badger.NewEntry(suggestionKey(sug.WindowID, sug.ItemID, sug.ContentHash), data)
			if sug.Negative {
				entry = entry.WithTTL(negativeTTL)
			} else {
				entry = entry.WithTTL(positiveTTL)
			}
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSuggestion returns the cached suggestion for a tab at its current
// content, or ErrNotFound. Negative entries are returned too; callers
// check the Negative flag. A corrupt entry reads as a miss.
func (s *Store) GetSuggestion(ctx context.Context, windowID, itemID int64, contentHash string) (*Suggestion, error) {
	if err := s.readyErr(); err != nil {
		return nil, err
	}

	var sug Suggestion
	found := false
	err := s.withRead(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(suggestionKey(windowID, itemID, contentHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &sug); err != nil {
				s.logger.Warn("corrupt suggestion entry",
					slog.Int64("window_id", windowID),
					slog.Int64("item_id", itemID))
				return nil
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &sug, nil
}

// WindowSuggestions returns the live group suggestions for a window,
// newest entry per tab, sorted by tab id. Negative markers are
// internal to the processor and excluded here.
func (s *Store) WindowSuggestions(ctx context.Context, windowID int64) ([]Suggestion, error) {
	if err := s.readyErr(); err != nil {
		return nil, err
	}

	latest := make(map[int64]Suggestion)
	err := s.withRead(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = windowSuggestionPrefix(windowID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var sug Suggestion
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sug)
			})
			if err != nil {
				s.logger.Warn("corrupt suggestion entry, skipping",
					slog.Int64("window_id", windowID))
				continue
			}
			if sug.Negative {
				continue
			}
			if prev, ok := latest[sug.ItemID]; ok && !sug.CreatedAt.After(prev.CreatedAt) {
				continue
			}
			latest[sug.ItemID] = sug
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Suggestion, 0, len(latest))
	for _, sug := range latest {
		out = append(out, sug)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}
