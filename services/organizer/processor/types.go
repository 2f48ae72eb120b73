// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package processor

import (
	"context"

	"github.com/AleutianAI/tabherd/services/organizer/classify"
	"github.com/AleutianAI/tabherd/services/organizer/store"
	"github.com/AleutianAI/tabherd/services/organizer/tabs"
)

// ItemSource supplies the live tab state of a window. It is backed by
// the extension session's state mirror, which tracks every snapshot and
// tab event the browser sends, so it is always at least as fresh as the
// snapshot the window was enqueued with.
//
// Both methods are window-scoped: a tab that was closed or dragged to
// another window simply stops appearing in that window's Items, so the
// processor never has to filter globally.
type ItemSource interface {
	// Items returns the window's tabs in window order.
	Items(ctx context.Context, windowID int64) ([]tabs.Item, error)

	// Window returns the window's container metadata, used to skip
	// windows that cannot hold tab groups.
	Window(ctx context.Context, windowID int64) (tabs.WindowInfo, error)
}

// GroupApplier materializes one group suggestion in the browser. The
// extension session implements it by pushing an apply_group command
// over the socket and awaiting the correlated result.
type GroupApplier interface {
	// ApplyGroup adds itemIDs to the group named name in windowID.
	// existingGroupID > 0 targets a group the browser already has; the
	// implementation must tolerate that group having vanished by
	// creating a new one. existingGroupID == 0 always creates a new
	// group. Returns the browser-assigned group id.
	ApplyGroup(ctx context.Context, windowID int64, itemIDs []int64, name string, existingGroupID int64) (int64, error)
}

// ErrorSink receives user-facing failure messages. Cancellation and
// item-resolution misses are never reported here.
type ErrorSink interface {
	ReportError(windowID int64, message string)
}

// Classifier is the slice of the classification engine the processor
// consumes. *classify.Engine satisfies it.
type Classifier interface {
	Classify(ctx context.Context, req *classify.Request) (*classify.Result, error)
}

// SuggestionCache is the slice of the persistent store the processor
// consumes: read-through before chunking, async write-back after.
// *store.Store satisfies it.
type SuggestionCache interface {
	// GetSuggestion returns the live cache entry for the tab at its
	// current content hash, or store.ErrNotFound.
	GetSuggestion(ctx context.Context, windowID, itemID int64, contentHash string) (*store.Suggestion, error)

	// PutSuggestionsAsync queues cache entries for write-back.
	PutSuggestionsAsync(suggestions []store.Suggestion)
}

var _ Classifier = (*classify.Engine)(nil)
var _ SuggestionCache = (*store.Store)(nil)
