// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tabs defines the browser-side domain types shared by the
// organizer: tabs, tab groups, and windows as reported by the extension.
//
// # Thread Safety
//
// All types in this package are plain values. Copy them freely; never
// share pointers to them across goroutines while mutating.
package tabs

// Item is a single browser tab as reported by the extension.
type Item struct {
	// ID is the browser-assigned tab id, stable for the tab's lifetime.
	ID int64 `json:"id"`

	// Title is the current page title.
	Title string `json:"title"`

	// URL is the current page URL.
	URL string `json:"url"`

	// GroupID is the tab group the tab belongs to, or 0 when ungrouped.
	// Browser-assigned group ids are always positive.
	GroupID int64 `json:"group_id"`

	// Pinned tabs are excluded from organization.
	Pinned bool `json:"pinned"`
}

// Grouped reports whether the tab currently belongs to a group.
func (i Item) Grouped() bool {
	return i.GroupID != 0
}

// Group is an existing named tab group within a window.
type Group struct {
	// ID is the browser-assigned group id. Always positive.
	ID int64 `json:"id"`

	// Name is the user-visible group title.
	Name string `json:"name"`

	// Color is the browser's group color token (e.g. "blue"). Optional.
	Color string `json:"color,omitempty"`
}

// WindowType mirrors the browser's window type taxonomy. Only normal
// windows carry groupable tabs.
type WindowType string

const (
	// WindowNormal is a regular browser window.
	WindowNormal WindowType = "normal"

	// WindowPopup is a popup window (no tab strip).
	WindowPopup WindowType = "popup"

	// WindowDevTools is a detached developer tools window.
	WindowDevTools WindowType = "devtools"
)

// WindowInfo describes a window well enough to decide whether its tabs
// may be organized.
type WindowInfo struct {
	// ID is the browser-assigned window id.
	ID int64 `json:"id"`

	// Type is the window type. Defaults to WindowNormal when the
	// extension omits it.
	Type WindowType `json:"type"`

	// Incognito windows are never organized.
	Incognito bool `json:"incognito"`
}

// Groupable reports whether tabs in this window may be organized.
func (w WindowInfo) Groupable() bool {
	if w.Incognito {
		return false
	}
	return w.Type == "" || w.Type == WindowNormal
}
