// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot fingerprints a window's tab and group state.
//
// # Description
//
// A Snapshot is an immutable capture of every tab and tab group in one
// window, condensed into an order-independent fingerprint. Two snapshots
// with equal fingerprints describe the same window state, so re-delivery
// of unchanged state is detected cheaply at enqueue time. Snapshots also
// carry the raw tab and group lists, which the change classifier uses to
// decide whether a concurrent mutation invalidates in-flight work.
//
// # Thread Safety
//
// Snapshots are immutable after construction and safe to share across
// goroutines.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/tabherd/services/organizer/tabs"
)

// Snapshot is a fingerprinted capture of one window's tabs and groups.
// Build with New; never mutate the field slices.
type Snapshot struct {
	// Fingerprint is the order-independent digest of the window state.
	Fingerprint string

	// Items are the window's tabs at capture time.
	Items []tabs.Item

	// Groups are the window's tab groups at capture time.
	Groups []tabs.Group

	byID map[int64]tabs.Item
}

// New builds a snapshot of the given tabs and groups.
//
// # Description
//
//	The fingerprint is a SHA-256 digest over one identity line per tab
//	and per group, sorted lexicographically before hashing, so tab order
//	never affects the result. Tab identity covers id, title, URL, and
//	group membership; group identity covers id and name. The input
//	slices are copied.
//
// # Inputs
//
//   - items: The window's tabs. May be nil.
//   - groups: The window's tab groups. May be nil.
//
// # Outputs
//
//   - *Snapshot: The immutable snapshot. Never nil.
func New(items []tabs.Item, groups []tabs.Group) *Snapshot {
	lines := make([]string, 0, len(items)+len(groups))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("t:%d:%s:%s:%d", it.ID, it.Title, it.URL, it.GroupID))
	}
	for _, g := range groups {
		lines = append(lines, fmt.Sprintf("g:%d:%s", g.ID, g.Name))
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))

	s := &Snapshot{
		Fingerprint: hex.EncodeToString(sum[:]),
		Items:       make([]tabs.Item, len(items)),
		Groups:      make([]tabs.Group, len(groups)),
		byID:        make(map[int64]tabs.Item, len(items)),
	}
	copy(s.Items, items)
	copy(s.Groups, groups)
	for _, it := range s.Items {
		s.byID[it.ID] = it
	}
	return s
}

// Equal reports whether both snapshots describe the same window state.
// Nil snapshots are only equal to nil.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Fingerprint == other.Fingerprint
}

// Item returns the tab with the given id at capture time.
func (s *Snapshot) Item(id int64) (tabs.Item, bool) {
	if s == nil {
		return tabs.Item{}, false
	}
	it, ok := s.byID[id]
	return it, ok
}

// GroupName returns the name of the group with the given id at capture
// time, or "" if the window had no such group.
func (s *Snapshot) GroupName(id int64) string {
	if s == nil {
		return ""
	}
	for _, g := range s.Groups {
		if g.ID == id {
			return g.Name
		}
	}
	return ""
}
