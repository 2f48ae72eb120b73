// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package groups resolves suggested group names to stable identifiers
// within one organization pass over one window.
//
// # Description
//
// The classifier works in batches, and a group suggested in batch n may
// not exist in the browser yet when batch n+1 is classified. The resolver
// bridges that gap: names of groups the window already has resolve to
// their browser-assigned (positive) ids, and names seen for the first
// time get a provisional negative id, allocated monotonically. Within one
// pass the same name always resolves to the same id, so later batches
// merge into groups earlier batches created. Once the browser
// materializes a group, Confirm upgrades the binding to the real id.
//
// Provisional ids never leave the pass; they are not persisted.
//
// # Thread Safety
//
// Not safe for concurrent use. A Resolver is scoped to one window within
// one pass of the single drain loop.
package groups

import "github.com/AleutianAI/tabherd/services/organizer/tabs"

// Resolver maps group names to ids for one window pass.
type Resolver struct {
	ids  map[string]int64
	next int64
}

// NewResolver seeds a resolver with the window's existing groups.
//
// When two existing groups share a name, the first one wins, so
// suggestions merge into the oldest group rather than a duplicate.
func NewResolver(existing []tabs.Group) *Resolver {
	r := &Resolver{
		ids:  make(map[string]int64, len(existing)),
		next: -1,
	}
	for _, g := range existing {
		if _, ok := r.ids[g.Name]; !ok {
			r.ids[g.Name] = g.ID
		}
	}
	return r
}

// Resolve returns the id bound to name, allocating the next provisional
// negative id on first sight. Repeated calls with the same name return
// the same id.
func (r *Resolver) Resolve(name string) int64 {
	if id, ok := r.ids[name]; ok {
		return id
	}
	id := r.next
	r.next--
	r.ids[name] = id
	return id
}

// Lookup returns the current binding for name without allocating.
func (r *Resolver) Lookup(name string) (int64, bool) {
	id, ok := r.ids[name]
	return id, ok
}

// Confirm rebinds name to the browser-assigned id after the group has
// been materialized. Later batches then reference the real group.
func (r *Resolver) Confirm(name string, realID int64) {
	r.ids[name] = realID
}

// NameMap returns a copy of the current name-to-id bindings, suitable
// for handing to the classifier provider.
func (r *Resolver) NameMap() map[string]int64 {
	m := make(map[string]int64, len(r.ids))
	for name, id := range r.ids {
		m[name] = id
	}
	return m
}

// IsProvisional reports whether id was allocated by a resolver rather
// than assigned by the browser.
func IsProvisional(id int64) bool {
	return id < 0
}
