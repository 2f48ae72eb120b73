// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package coordinate owns the queue of windows waiting to be organized.
//
// # Description
//
// The coordinator is a priority queue plus an active set. Windows enter
// the queue when their snapshot changes, move atomically into the active
// set when the drain loop acquires them, and return to idle (or loop back
// into the queue) when the loop completes them. Three invariants hold at
// every point outside the atomic acquire:
//
//   - the queue and the active set are disjoint
//   - a window id appears in the queue at most once
//   - "organizing" is true iff the queue or the active set is non-empty
//
// A snapshot arriving for a window that is currently active does not
// touch the queue. It is recorded as a requeue notification, classified
// against the batch of tabs in flight (fatal changes cancel the
// outstanding classifier call), and turned into queue membership when the
// window completes.
//
// # Thread Safety
//
// Safe for concurrent use. All state is guarded by one mutex; no method
// blocks on I/O while holding it.
package coordinate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AleutianAI/tabherd/services/organizer/observability"
	"github.com/AleutianAI/tabherd/services/organizer/snapshot"
)

// Coordinator tracks which windows need organizing and which are being
// organized. Construct with NewCoordinator.
type Coordinator struct {
	mu       sync.Mutex
	queue    []int64
	active   map[int64]struct{}
	states   map[int64]*windowState
	inflight map[int64]*inflightChunk

	// lastOrganizing is the organizing flag as last reported to the
	// status sink and store.
	lastOrganizing bool

	store   StateStore
	status  StatusSink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewCoordinator creates a coordinator.
//
// # Inputs
//
//   - store: Persistence sink for fingerprints and UI state. May be nil.
//   - status: Receiver of organizing-flag transitions. May be nil.
//   - logger: Logger for state transitions. If nil, uses slog.Default().
//   - metrics: Metrics registry. May be nil.
//
// # Outputs
//
//   - *Coordinator: Ready to use. Never nil.
func NewCoordinator(store StateStore, status StatusSink, logger *slog.Logger, metrics *observability.Metrics) *Coordinator {
	if store == nil {
		store = nopStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		active:   make(map[int64]struct{}),
		states:   make(map[int64]*windowState),
		inflight: make(map[int64]*inflightChunk),
		store:    store,
		status:   status,
		logger:   logger.With(slog.String("component", "coordinator")),
		metrics:  metrics,
	}
}

// Enqueue records a fresh snapshot for a window and queues it for
// organization.
//
// # Description
//
//	Delivery of an unchanged snapshot (equal fingerprint) is free: the
//	call returns false without mutating anything. Otherwise the window's
//	state is created or updated and the fingerprint is persisted eagerly,
//	before the window is ever drained.
//
//	Fresh snapshots (requeue=false) are urgent: the id is placed at, or
//	moved to, the front of the queue. Requeues (requeue=true) are
//	appended at the back and never displace an existing queue position.
//
//	If the window is currently active, the queue is left untouched.
//	The change is classified against the batch of tabs in flight; fatal
//	changes cancel the outstanding classifier call. The window re-enters
//	the queue when CompleteWindow runs.
//
// # Inputs
//
//   - windowID: The window the snapshot belongs to.
//   - snap: The freshly captured snapshot. Must not be nil.
//   - requeue: True for natural re-entries (post-abort, periodic sweep).
//
// # Outputs
//
//   - bool: True iff queue membership or order changed.
func (c *Coordinator) Enqueue(windowID int64, snap *snapshot.Snapshot, requeue bool) bool {
	if snap == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[windowID]
	if ok && st.snap.Equal(snap) {
		c.metrics.RecordEnqueue("duplicate")
		return false
	}

	if ok && st.active {
		kind := snapshot.Classify(st.snap, snap, c.inflightItems(windowID))
		st.snap = snap
		st.requeued = true
		st.requeues++
		if kind > st.change {
			st.change = kind
		}
		c.store.PutFingerprintAsync(windowID, snap.Fingerprint)
		c.metrics.RecordEnqueue("requeued_active")
		c.metrics.RecordChange(kind.String())
		if kind == snapshot.ChangeFatal {
			c.cancelInflight(windowID)
		}
		c.logger.Debug("window requeued while active",
			slog.Int64("window_id", windowID),
			slog.String("change", kind.String()),
			slog.Int("requeues", st.requeues))
		return false
	}

	if ok && st.queued {
		st.snap = snap
		c.store.PutFingerprintAsync(windowID, snap.Fingerprint)
		if requeue {
			c.metrics.RecordEnqueue("updated")
			return false
		}
		moved := c.moveToFront(windowID)
		c.metrics.RecordEnqueue("promoted")
		return moved
	}

	// New window, or state map drift; either way it enters the queue.
	c.states[windowID] = &windowState{id: windowID, snap: snap, queued: true}
	if requeue {
		c.queue = append(c.queue, windowID)
	} else {
		c.queue = append([]int64{windowID}, c.queue...)
	}
	c.store.PutFingerprintAsync(windowID, snap.Fingerprint)
	c.metrics.RecordEnqueue("queued")
	c.logger.Debug("window queued",
		slog.Int64("window_id", windowID),
		slog.Bool("requeue", requeue),
		slog.Int("queue_depth", len(c.queue)))
	c.publishLocked()
	return true
}

// AcquireQueue atomically claims every queued window for the drain loop.
//
// # Description
//
//	Moves all queued ids into the active set and returns them in queue
//	order (front first). Safe to call with an empty queue. This is the
//	only transition from pending to in-progress; acquisition resets each
//	window's change tracking.
//
// # Outputs
//
//   - []int64: The claimed window ids, front of the queue first.
func (c *Coordinator) AcquireQueue() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return nil
	}

	ids := c.queue
	c.queue = nil
	for _, id := range ids {
		c.active[id] = struct{}{}
		if st, ok := c.states[id]; ok {
			st.queued = false
			st.active = true
			st.requeued = false
			st.change = snapshot.ChangeNone
			st.requeues = 0
		}
	}
	c.logger.Debug("queue acquired", slog.Int("windows", len(ids)))
	c.publishLocked()
	return ids
}

// CompleteWindow releases a window from the active set.
//
// # Description
//
//	Persists the window's final fingerprint. If a newer snapshot arrived
//	while the window was active, the window loops back into the queue
//	(at the back) and its state is retained; otherwise the state is
//	deleted and the window goes idle.
func (c *Coordinator) CompleteWindow(windowID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[windowID]
	if !ok {
		delete(c.active, windowID)
		c.publishLocked()
		return
	}

	delete(c.active, windowID)
	st.active = false
	c.store.PutFingerprintAsync(windowID, st.snap.Fingerprint)

	if st.requeued {
		st.requeued = false
		st.queued = true
		c.queue = append(c.queue, windowID)
		c.logger.Debug("window re-entered queue at completion",
			slog.Int64("window_id", windowID),
			slog.Int("requeues", st.requeues))
	} else {
		delete(c.states, windowID)
	}
	c.publishLocked()
}

// Remove forgets a window entirely, e.g. when it is closed.
//
// # Description
//
//	Drops the window from the queue, the active set, and the state map,
//	cancels any classifier call in flight for it, and purges its
//	persisted state. Idempotent.
func (c *Coordinator) Remove(windowID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.states[windowID]; !ok {
		if _, inActive := c.active[windowID]; !inActive && !c.queuedLocked(windowID) {
			return
		}
	}

	c.cancelInflight(windowID)
	c.dropFromQueue(windowID)
	delete(c.active, windowID)
	delete(c.states, windowID)
	c.store.DeleteWindowAsync(windowID)
	c.metrics.RecordEnqueue("removed")
	c.logger.Debug("window removed", slog.Int64("window_id", windowID))
	c.publishLocked()
}

// BeginChunk registers the batch of tab ids about to be sent to the
// classifier for a window, together with the chunk's cancel function.
//
// The registration lets a concurrent Enqueue classify its delta against
// the in-flight batch and abort the call on a fatal change. If the
// window was removed since it was acquired, the chunk is cancelled
// immediately.
func (c *Coordinator) BeginChunk(windowID int64, itemIDs []int64, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := make(map[int64]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		set[id] = struct{}{}
	}
	c.inflight[windowID] = &inflightChunk{itemIDs: set, cancel: cancel}

	if _, ok := c.states[windowID]; !ok && cancel != nil {
		cancel()
	}
}

// EndChunk clears the in-flight registration for a window. The chunk's
// cancel function is not invoked.
func (c *Coordinator) EndChunk(windowID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, windowID)
}

// ChangeSince reports the strongest change recorded for a window since
// it was acquired. A window with no state (removed) reads as fatal.
func (c *Coordinator) ChangeSince(windowID int64) snapshot.ChangeKind {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[windowID]
	if !ok {
		return snapshot.ChangeFatal
	}
	return st.change
}

// SnapshotFor returns the latest snapshot recorded for a window, or nil
// when the window is unknown.
func (c *Coordinator) SnapshotFor(windowID int64) *snapshot.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[windowID]
	if !ok {
		return nil
	}
	return st.snap
}

// Has reports whether the coordinator holds state for a window.
func (c *Coordinator) Has(windowID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.states[windowID]
	return ok
}

// IsProcessing reports whether any window is queued or active.
func (c *Coordinator) IsProcessing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0 || len(c.active) > 0
}

// Size returns the number of queued windows.
func (c *Coordinator) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// ===== Internals =====

// inflightItems returns the in-flight batch for a window, or nil.
// Caller must hold c.mu.
func (c *Coordinator) inflightItems(windowID int64) map[int64]struct{} {
	if chunk, ok := c.inflight[windowID]; ok {
		return chunk.itemIDs
	}
	return nil
}

// cancelInflight aborts the outstanding classifier call for a window.
// Caller must hold c.mu; CancelFunc only closes a channel, so invoking
// it under the lock is safe.
func (c *Coordinator) cancelInflight(windowID int64) {
	chunk, ok := c.inflight[windowID]
	if !ok {
		return
	}
	if chunk.cancel != nil {
		chunk.cancel()
		c.metrics.RecordChunkAborted()
		c.logger.Debug("in-flight chunk cancelled", slog.Int64("window_id", windowID))
	}
	delete(c.inflight, windowID)
}

// queuedLocked reports queue membership. Caller must hold c.mu.
func (c *Coordinator) queuedLocked(windowID int64) bool {
	for _, id := range c.queue {
		if id == windowID {
			return true
		}
	}
	return false
}

// dropFromQueue removes an id from the queue, preserving order of the
// rest. Caller must hold c.mu.
func (c *Coordinator) dropFromQueue(windowID int64) {
	for i, id := range c.queue {
		if id == windowID {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
}

// moveToFront moves an already-queued id to the front. Returns true if
// the position changed. Caller must hold c.mu.
func (c *Coordinator) moveToFront(windowID int64) bool {
	if len(c.queue) > 0 && c.queue[0] == windowID {
		return false
	}
	for i, id := range c.queue {
		if id == windowID {
			copy(c.queue[1:i+1], c.queue[:i])
			c.queue[0] = windowID
			return true
		}
	}
	return false
}

// publishLocked pushes the organizing flag and the processing set to the
// status sink and store after a state mutation. Caller must hold c.mu.
func (c *Coordinator) publishLocked() {
	organizing := len(c.queue) > 0 || len(c.active) > 0

	ids := make([]int64, 0, len(c.queue)+len(c.active))
	ids = append(ids, c.queue...)
	for id := range c.active {
		ids = append(ids, id)
	}
	c.store.PutProcessingSetAsync(ids)
	c.metrics.SetQueueDepth(len(c.queue))
	c.metrics.SetActiveWindows(len(c.active))

	if organizing == c.lastOrganizing {
		return
	}
	c.lastOrganizing = organizing
	c.store.PutOrganizingAsync(organizing)
	if c.status != nil {
		c.status.OrganizingChanged(organizing)
	}
	c.logger.Debug("organizing flag changed", slog.Bool("organizing", organizing))
}
