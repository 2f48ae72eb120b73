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
	"time"

	"github.com/AleutianAI/tabherd/services/organizer/store"
	"github.com/AleutianAI/tabherd/services/organizer/tabs"
)

// ServiceVersion is the organizer service version.
const ServiceVersion = "0.1.0"

// SnapshotRequest is the body of POST /api/v1/windows/:id/snapshot. The
// window id in the path is authoritative; Window.ID in the body is
// ignored.
type SnapshotRequest struct {
	// Window describes the window container. Optional; an omitted type
	// is treated as a normal window.
	Window tabs.WindowInfo `json:"window"`

	// Tabs is the full tab list of the window, in window order.
	Tabs []tabs.Item `json:"tabs" binding:"required"`

	// Groups are the named tab groups currently present in the window.
	Groups []tabs.Group `json:"groups"`
}

// SnapshotResponse reports what the ingest did.
type SnapshotResponse struct {
	// WindowID is the window the snapshot was recorded for.
	WindowID int64 `json:"window_id"`

	// QueueDepth is the pending queue size after the ingest.
	QueueDepth int `json:"queue_depth"`
}

// OrganizeResponse reports how many windows a manual trigger enqueued.
type OrganizeResponse struct {
	// WindowsQueued is the number of mirrored windows that entered the
	// queue.
	WindowsQueued int `json:"windows_queued"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	// Organizing is true while a drain pass is pending or running.
	Organizing bool `json:"organizing"`

	// QueueDepth is the number of windows waiting to be organized.
	QueueDepth int `json:"queue_depth"`

	// Sessions is the number of connected extension sockets.
	Sessions int `json:"sessions"`

	// Windows is the number of windows currently mirrored.
	Windows int `json:"windows"`

	// Provider is the active classifier backend.
	Provider string `json:"provider"`

	// Enabled mirrors the runtime organization toggle.
	Enabled bool `json:"enabled"`

	// Autopilot mirrors the runtime autopilot toggle.
	Autopilot bool `json:"autopilot"`

	// Store reports persistent store health.
	Store store.Stats `json:"store"`
}

// SuggestionView is one cached suggestion enriched for confirmation UIs.
type SuggestionView struct {
	// ItemID is the tab the suggestion applies to.
	ItemID int64 `json:"item_id"`

	// Title is the tab's live title when the window is mirrored,
	// otherwise empty.
	Title string `json:"title,omitempty"`

	// URL is the tab's live URL when the window is mirrored, otherwise
	// empty.
	URL string `json:"url,omitempty"`

	// Group is the suggested group name.
	Group string `json:"group"`

	// Confidence is the classifier's confidence in the placement.
	Confidence float64 `json:"confidence,omitempty"`

	// Provider is the backend that produced the suggestion.
	Provider string `json:"provider,omitempty"`

	// Color is the group color the rule engine associates with the
	// group name, if any.
	Color string `json:"color,omitempty"`

	// CreatedAt is when the suggestion was cached.
	CreatedAt time.Time `json:"created_at"`
}

// SuggestionsResponse is the body of GET /api/v1/suggestions/:windowID.
type SuggestionsResponse struct {
	// WindowID is the window the suggestions belong to.
	WindowID int64 `json:"window_id"`

	// Suggestions are the live cached suggestions, window order not
	// guaranteed.
	Suggestions []SuggestionView `json:"suggestions"`
}

// AcceptRequest is the body of POST /api/v1/suggestions/:windowID/accept.
type AcceptRequest struct {
	// Group is the suggested group name to materialize.
	Group string `json:"group" binding:"required"`
}

// AcceptResponse reports the applied grouping.
type AcceptResponse struct {
	// GroupID is the browser-assigned id of the group the tabs joined.
	GroupID int64 `json:"group_id"`

	// ItemIDs are the tabs that were added to the group.
	ItemIDs []int64 `json:"item_ids"`
}

// ConfigResponse is the body of GET /api/v1/config and the response to
// PUT; it reflects the effective runtime settings after clamping.
type ConfigResponse struct {
	// Enabled reports whether organization runs at all.
	Enabled bool `json:"enabled"`

	// Autopilot reports whether suggestions apply without confirmation.
	Autopilot bool `json:"autopilot"`

	// BatchSize is the number of tabs per classifier call.
	BatchSize int `json:"batch_size"`

	// CustomRules is free-text guidance folded into the prompt.
	CustomRules string `json:"custom_rules,omitempty"`
}

// ConfigUpdateRequest is the body of PUT /api/v1/config. Nil fields are
// left unchanged, so a client can toggle autopilot without knowing the
// batch size.
type ConfigUpdateRequest struct {
	// Enabled toggles organization.
	Enabled *bool `json:"enabled,omitempty"`

	// Autopilot toggles immediate application of suggestions.
	Autopilot *bool `json:"autopilot,omitempty"`

	// BatchSize sets the tabs-per-call chunk size. Clamped to 1-100.
	BatchSize *int `json:"batch_size,omitempty" binding:"omitempty,min=1,max=100"`

	// CustomRules replaces the prompt guidance. An empty string clears
	// it.
	CustomRules *string `json:"custom_rules,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	// Status is "ok" while the service is able to take snapshots.
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`

	// Provider is the active classifier backend.
	Provider string `json:"provider"`

	// StoreReady is true once the persistent store finished loading.
	StoreReady bool `json:"store_ready"`

	// Sessions is the number of connected extension sockets.
	Sessions int `json:"sessions"`
}

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	// Error is a human-readable message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code"`
}
