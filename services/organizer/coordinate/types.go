// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coordinate

import (
	"context"

	"github.com/AleutianAI/tabherd/services/organizer/snapshot"
)

// StateStore receives the coordinator's persistence side effects.
//
// # Description
//
// The coordinator's own state lives in memory; the store only mirrors it
// for crash recovery and UI reads. Implementations must not block: writes
// are queued internally and failures are logged by the implementation,
// never surfaced back to the coordinator.
type StateStore interface {
	// PutFingerprintAsync records the last-known snapshot fingerprint
	// for a window.
	PutFingerprintAsync(windowID int64, fingerprint string)

	// PutProcessingSetAsync records the set of window ids currently
	// queued or being organized.
	PutProcessingSetAsync(ids []int64)

	// PutOrganizingAsync records whether any organization work is
	// pending or running.
	PutOrganizingAsync(active bool)

	// DeleteWindowAsync purges all persisted state for a destroyed
	// window (fingerprint and cached suggestions).
	DeleteWindowAsync(windowID int64)
}

// StatusSink observes transitions of the organizing flag, e.g. to drive
// a spinner in the extension popup.
type StatusSink interface {
	OrganizingChanged(active bool)
}

// windowState is the per-window record. One exists for every window that
// is currently queued or active; it is deleted when the window completes
// without a pending requeue.
type windowState struct {
	id     int64
	snap   *snapshot.Snapshot
	queued bool
	active bool

	// requeued marks that a newer snapshot arrived while the window was
	// active. At completion the window loops back into the queue instead
	// of going idle.
	requeued bool

	// change is the strongest change kind recorded since the window was
	// acquired. Reset on acquisition.
	change snapshot.ChangeKind

	// requeues counts requeue notifications since acquisition.
	requeues int
}

// inflightChunk tracks the batch of tab ids currently at the classifier
// for one window, with the cancel function that aborts the call.
type inflightChunk struct {
	itemIDs map[int64]struct{}
	cancel  context.CancelFunc
}

// nopStore stands in when no store is configured (tests, dry runs).
type nopStore struct{}

func (nopStore) PutFingerprintAsync(int64, string) {}
func (nopStore) PutProcessingSetAsync([]int64)     {}
func (nopStore) PutOrganizingAsync(bool)           {}
func (nopStore) DeleteWindowAsync(int64)           {}

var _ StateStore = nopStore{}
