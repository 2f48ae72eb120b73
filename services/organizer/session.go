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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/tabherd/services/organizer/coordinate"
	"github.com/AleutianAI/tabherd/services/organizer/observability"
	"github.com/AleutianAI/tabherd/services/organizer/processor"
	"github.com/AleutianAI/tabherd/services/organizer/snapshot"
	"github.com/AleutianAI/tabherd/services/organizer/tabs"
)

// defaultApplyTimeout bounds how long an apply_group command waits for
// the extension's acknowledgement.
const defaultApplyTimeout = 15 * time.Second

// ===== Wire protocol =====

// Message types exchanged with the extension over the socket.
const (
	msgSnapshot      = "snapshot"
	msgTabEvent      = "tab_event"
	msgWindowRemoved = "window_removed"
	msgApplyResult   = "apply_result"
	msgApplyGroup    = "apply_group"
	msgStatus        = "status"
	msgError         = "error"
)

// Tab event kinds carried by tab_event messages. A tab dragged between
// windows arrives as removed in one window and created in the other.
const (
	eventCreated = "created"
	eventUpdated = "updated"
	eventMoved   = "moved"
	eventRemoved = "removed"
)

// wsMessage is the inbound envelope for every message the extension
// sends. One struct covers all types; unused fields stay zero.
type wsMessage struct {
	// Type selects the message kind: snapshot, tab_event,
	// window_removed, or apply_result.
	Type string `json:"type"`

	// Window carries the window metadata of a snapshot message.
	Window *tabs.WindowInfo `json:"window,omitempty"`

	// Tabs is the full tab list of a snapshot message, in window order.
	Tabs []tabs.Item `json:"tabs,omitempty"`

	// Groups are the named tab groups of a snapshot message.
	Groups []tabs.Group `json:"groups,omitempty"`

	// WindowID addresses tab_event and window_removed messages.
	WindowID int64 `json:"window_id,omitempty"`

	// Event is the tab event kind: created, updated, moved, or removed.
	Event string `json:"event,omitempty"`

	// Tab is the affected tab for created and updated events.
	Tab *tabs.Item `json:"tab,omitempty"`

	// TabID addresses moved and removed events when Tab is omitted.
	TabID int64 `json:"tab_id,omitempty"`

	// Index is the target position for created and moved events.
	// Omitted means append.
	Index *int `json:"index,omitempty"`

	// ID correlates an apply_result with its apply_group command.
	ID string `json:"id,omitempty"`

	// OK reports whether the apply_group command succeeded.
	OK bool `json:"ok,omitempty"`

	// GroupID is the browser-assigned group id of a successful apply.
	GroupID int64 `json:"group_id,omitempty"`

	// Error is the failure reason of an unsuccessful apply.
	Error string `json:"error,omitempty"`
}

// applyCommand asks the extension to add tabs to a group. GroupID > 0
// targets an existing group; 0 creates a new one named Name.
type applyCommand struct {
	Type     string  `json:"type"`
	ID       string  `json:"id"`
	WindowID int64   `json:"window_id"`
	TabIDs   []int64 `json:"tab_ids"`
	Name     string  `json:"name"`
	GroupID  int64   `json:"group_id"`
}

// statusPush tells the extension whether organization work is pending
// or running, e.g. to drive a popup spinner.
type statusPush struct {
	Type       string `json:"type"`
	Organizing bool   `json:"organizing"`
}

// errorPush surfaces a user-facing organization failure.
type errorPush struct {
	Type     string `json:"type"`
	WindowID int64  `json:"window_id"`
	Message  string `json:"message"`
}

// applyOutcome is the resolved result of one apply_group command.
type applyOutcome struct {
	groupID int64
	err     error
}

// ===== Window mirror =====

// windowMirror is the live state of one window as last reported.
type windowMirror struct {
	info   tabs.WindowInfo
	tabs   []tabs.Item
	groups []tabs.Group
}

// mirror tracks window state fed by snapshots and tab events. Sessions
// each own one; the hub owns one more for REST-ingested windows.
//
// Mutations return a fresh fingerprinted snapshot computed under the
// same lock, so callers never pair a stale snapshot with newer state.
type mirror struct {
	mu      sync.RWMutex
	windows map[int64]*windowMirror
}

func newMirror() *mirror {
	return &mirror{windows: make(map[int64]*windowMirror)}
}

// setWindow replaces the window's mirrored state wholesale.
func (m *mirror) setWindow(info tabs.WindowInfo, items []tabs.Item, groups []tabs.Group) *snapshot.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[info.ID] = &windowMirror{info: info, tabs: items, groups: groups}
	return snapshot.New(items, groups)
}

// applyTabEvent folds one incremental tab event into the mirror. The
// window must already be mirrored from a snapshot; events for unknown
// windows return false and the caller waits for the next snapshot.
func (m *mirror) applyTabEvent(windowID int64, event string, tab *tabs.Item, tabID int64, index *int) (*snapshot.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[windowID]
	if !ok {
		return nil, false
	}

	switch event {
	case eventCreated:
		if tab == nil {
			return nil, false
		}
		w.tabs = removeTab(w.tabs, tab.ID)
		w.tabs = insertTab(w.tabs, *tab, index)
	case eventUpdated:
		if tab == nil {
			return nil, false
		}
		replaced := false
		for i := range w.tabs {
			if w.tabs[i].ID == tab.ID {
				w.tabs[i] = *tab
				replaced = true
				break
			}
		}
		if !replaced {
			w.tabs = append(w.tabs, *tab)
		}
	case eventMoved:
		id := tabID
		if tab != nil {
			id = tab.ID
		}
		moved, rest, found := takeTab(w.tabs, id)
		if !found {
			return nil, false
		}
		if tab != nil {
			moved = *tab
		}
		w.tabs = insertTab(rest, moved, index)
	case eventRemoved:
		id := tabID
		if tab != nil {
			id = tab.ID
		}
		w.tabs = removeTab(w.tabs, id)
	default:
		return nil, false
	}

	return snapshot.New(w.tabs, w.groups), true
}

func (m *mirror) remove(windowID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, windowID)
}

func (m *mirror) has(windowID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.windows[windowID]
	return ok
}

// items returns a copy of the window's tabs in window order.
func (m *mirror) items(windowID int64) ([]tabs.Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[windowID]
	if !ok {
		return nil, false
	}
	out := make([]tabs.Item, len(w.tabs))
	copy(out, w.tabs)
	return out, true
}

func (m *mirror) window(windowID int64) (tabs.WindowInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[windowID]
	if !ok {
		return tabs.WindowInfo{}, false
	}
	return w.info, true
}

// groupList returns a copy of the window's named groups.
func (m *mirror) groupList(windowID int64) ([]tabs.Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[windowID]
	if !ok {
		return nil, false
	}
	out := make([]tabs.Group, len(w.groups))
	copy(out, w.groups)
	return out, true
}

func (m *mirror) snapshot(windowID int64) (*snapshot.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[windowID]
	if !ok {
		return nil, false
	}
	return snapshot.New(w.tabs, w.groups), true
}

func (m *mirror) windowIDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, 0, len(m.windows))
	for id := range m.windows {
		out = append(out, id)
	}
	return out
}

func removeTab(items []tabs.Item, id int64) []tabs.Item {
	out := items[:0]
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}

func takeTab(items []tabs.Item, id int64) (tabs.Item, []tabs.Item, bool) {
	for i, it := range items {
		if it.ID == id {
			return it, append(items[:i], items[i+1:]...), true
		}
	}
	return tabs.Item{}, items, false
}

func insertTab(items []tabs.Item, it tabs.Item, index *int) []tabs.Item {
	if index == nil || *index < 0 || *index >= len(items) {
		return append(items, it)
	}
	i := *index
	items = append(items, tabs.Item{})
	copy(items[i+1:], items[i:])
	items[i] = it
	return items
}

// ===== Hub =====

// SessionEvents receives mirror changes so the owner can feed the
// coordinator. The Service implements it.
type SessionEvents interface {
	// SnapshotReceived fires with a freshly fingerprinted snapshot
	// every time a window's mirrored state changes.
	SnapshotReceived(windowID int64, snap *snapshot.Snapshot)

	// WindowRemoved fires when a window is destroyed or the session
	// mirroring it disconnects.
	WindowRemoved(windowID int64)
}

type nopEvents struct{}

func (nopEvents) SnapshotReceived(int64, *snapshot.Snapshot) {}
func (nopEvents) WindowRemoved(int64)                        {}

// Hub owns the extension sessions and routes window-scoped calls to
// whichever session mirrors the window. It is the processor's item
// source, group applier, and error sink, and the coordinator's status
// sink; REST-ingested windows live in a session-less local mirror that
// can feed classification but cannot carry apply commands.
//
// # Thread Safety
//
// Safe for concurrent use. SetEvents must be called before the first
// session or ingest.
type Hub struct {
	logger  *slog.Logger
	metrics *observability.Metrics

	events SessionEvents

	// applyTimeout bounds apply_group acknowledgement waits. Tests
	// shorten it.
	applyTimeout time.Duration

	organizing atomic.Bool

	mu       sync.RWMutex
	sessions map[string]*Session

	local *mirror
}

// NewHub creates an empty hub. A nil logger falls back to the default;
// nil metrics disable recording.
func NewHub(logger *slog.Logger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:       logger.With(slog.String("component", "session_hub")),
		metrics:      metrics,
		events:       nopEvents{},
		applyTimeout: defaultApplyTimeout,
		sessions:     make(map[string]*Session),
		local:        newMirror(),
	}
}

// SetEvents wires the mirror-change callbacks. Call once during
// service construction, before any session connects.
func (h *Hub) SetEvents(ev SessionEvents) {
	if ev != nil {
		h.events = ev
	}
}

// Serve runs one extension session on an upgraded connection. It
// blocks until the peer disconnects, then drops every window the
// session mirrored.
func (h *Hub) Serve(conn *websocket.Conn) {
	s := &Session{
		id:      uuid.NewString(),
		hub:     h,
		conn:    conn,
		state:   newMirror(),
		pending: make(map[string]chan applyOutcome),
		closed:  make(chan struct{}),
	}
	s.logger = h.logger.With(slog.String("session_id", s.id))

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	h.metrics.SessionOpened()
	s.logger.Info("Extension session connected")

	if err := s.send(statusPush{Type: msgStatus, Organizing: h.organizing.Load()}); err != nil {
		s.logger.Warn("Failed to send initial status", slog.String("error", err.Error()))
	}

	s.readLoop()
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.id]
	delete(h.sessions, s.id)
	h.mu.Unlock()
	if !ok {
		return
	}

	s.closeOnce.Do(func() { close(s.closed) })
	_ = s.conn.Close()
	h.metrics.SessionClosed()

	dropped := s.state.windowIDs()
	for _, id := range dropped {
		h.events.WindowRemoved(id)
	}
	s.logger.Info("Extension session closed", slog.Int("windows_dropped", len(dropped)))
}

// ownerOf finds the session currently mirroring the window.
func (h *Hub) ownerOf(windowID int64) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		if s.state.has(windowID) {
			return s, true
		}
	}
	return nil, false
}

func (h *Hub) sessionList() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Items returns the window's live tabs in window order.
func (h *Hub) Items(ctx context.Context, windowID int64) ([]tabs.Item, error) {
	if s, ok := h.ownerOf(windowID); ok {
		if items, ok := s.state.items(windowID); ok {
			return items, nil
		}
	}
	if items, ok := h.local.items(windowID); ok {
		return items, nil
	}
	return nil, fmt.Errorf("items for window %d: %w", windowID, ErrUnknownWindow)
}

// Window returns the window's container metadata.
func (h *Hub) Window(ctx context.Context, windowID int64) (tabs.WindowInfo, error) {
	if s, ok := h.ownerOf(windowID); ok {
		if info, ok := s.state.window(windowID); ok {
			return info, nil
		}
	}
	if info, ok := h.local.window(windowID); ok {
		return info, nil
	}
	return tabs.WindowInfo{}, fmt.Errorf("window %d: %w", windowID, ErrUnknownWindow)
}

// ApplyGroup pushes an apply_group command to the session mirroring
// the window and awaits the correlated result.
func (h *Hub) ApplyGroup(ctx context.Context, windowID int64, itemIDs []int64, name string, existingGroupID int64) (int64, error) {
	s, ok := h.ownerOf(windowID)
	if !ok {
		if h.local.has(windowID) {
			return 0, fmt.Errorf("apply to window %d: %w", windowID, ErrNoSession)
		}
		return 0, fmt.Errorf("apply to window %d: %w", windowID, ErrUnknownWindow)
	}
	return s.applyGroup(ctx, windowID, itemIDs, name, existingGroupID, h.applyTimeout)
}

// ReportError logs an organization failure and pushes it to the
// session mirroring the window, when there is one.
func (h *Hub) ReportError(windowID int64, message string) {
	h.logger.Warn("Organization error",
		slog.Int64("window_id", windowID),
		slog.String("message", message))
	if s, ok := h.ownerOf(windowID); ok {
		if err := s.send(errorPush{Type: msgError, WindowID: windowID, Message: message}); err != nil {
			s.logger.Debug("Failed to push error to extension", slog.String("error", err.Error()))
		}
	}
}

// OrganizingChanged broadcasts the organizing flag to every session.
// The coordinator invokes it inside its own state transitions, so the
// network writes happen on a separate goroutine; each push re-reads
// the flag, making the last delivered value always the current one.
func (h *Hub) OrganizingChanged(active bool) {
	h.organizing.Store(active)
	go h.broadcastStatus()
}

func (h *Hub) broadcastStatus() {
	msg := statusPush{Type: msgStatus, Organizing: h.organizing.Load()}
	for _, s := range h.sessionList() {
		if err := s.send(msg); err != nil {
			s.logger.Debug("Failed to push status", slog.String("error", err.Error()))
		}
	}
}

// IngestLocal records a REST-delivered snapshot. A window already
// mirrored by a session is refreshed in place; anything else lands in
// the hub's session-less mirror.
func (h *Hub) IngestLocal(info tabs.WindowInfo, items []tabs.Item, groups []tabs.Group) {
	var snap *snapshot.Snapshot
	if s, ok := h.ownerOf(info.ID); ok {
		snap = s.state.setWindow(info, items, groups)
	} else {
		snap = h.local.setWindow(info, items, groups)
	}
	h.events.SnapshotReceived(info.ID, snap)
}

// RemoveWindow drops a window from every mirror and fires the removal
// event. Idempotent.
func (h *Hub) RemoveWindow(windowID int64) {
	h.local.remove(windowID)
	if s, ok := h.ownerOf(windowID); ok {
		s.state.remove(windowID)
	}
	h.events.WindowRemoved(windowID)
}

// WindowIDs returns every mirrored window id, session-fed and local,
// in ascending order.
func (h *Hub) WindowIDs() []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	add := func(ids []int64) {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, s := range h.sessionList() {
		add(s.state.windowIDs())
	}
	add(h.local.windowIDs())
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SnapshotOf builds a fresh snapshot of the window's mirrored state.
func (h *Hub) SnapshotOf(windowID int64) (*snapshot.Snapshot, bool) {
	if s, ok := h.ownerOf(windowID); ok {
		if snap, ok := s.state.snapshot(windowID); ok {
			return snap, true
		}
	}
	return h.local.snapshot(windowID)
}

// GroupsOf returns the window's mirrored named groups.
func (h *Hub) GroupsOf(windowID int64) ([]tabs.Group, bool) {
	if s, ok := h.ownerOf(windowID); ok {
		if groups, ok := s.state.groupList(windowID); ok {
			return groups, true
		}
	}
	return h.local.groupList(windowID)
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// WindowCount returns the number of mirrored windows.
func (h *Hub) WindowCount() int {
	return len(h.WindowIDs())
}

// ===== Session =====

// Session is one extension socket: it feeds the mirror from inbound
// messages and carries apply_group commands out.
//
// # Thread Safety
//
// readLoop is the only reader of the connection. Writes are serialized
// by writeMu, so commands and pushes may originate from any goroutine.
type Session struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	state  *mirror
	logger *slog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan applyOutcome

	closed    chan struct{}
	closeOnce sync.Once
}

func (s *Session) readLoop() {
	defer s.hub.unregister(s)
	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.logger.Info("Extension session disconnected", slog.String("reason", err.Error()))
			return
		}
		s.dispatch(&msg)
	}
}

func (s *Session) dispatch(msg *wsMessage) {
	switch msg.Type {
	case msgSnapshot:
		if msg.Window == nil {
			s.logger.Warn("Snapshot message without window metadata")
			return
		}
		snap := s.state.setWindow(*msg.Window, msg.Tabs, msg.Groups)
		s.hub.events.SnapshotReceived(msg.Window.ID, snap)
	case msgTabEvent:
		snap, ok := s.state.applyTabEvent(msg.WindowID, msg.Event, msg.Tab, msg.TabID, msg.Index)
		if !ok {
			s.logger.Debug("Tab event for unmirrored window",
				slog.Int64("window_id", msg.WindowID),
				slog.String("event", msg.Event))
			return
		}
		s.hub.events.SnapshotReceived(msg.WindowID, snap)
	case msgWindowRemoved:
		s.state.remove(msg.WindowID)
		s.hub.events.WindowRemoved(msg.WindowID)
	case msgApplyResult:
		s.resolveApply(msg)
	default:
		s.logger.Warn("Unknown message type from extension", slog.String("type", msg.Type))
	}
}

func (s *Session) resolveApply(msg *wsMessage) {
	s.pendingMu.Lock()
	ch, ok := s.pending[msg.ID]
	if ok {
		delete(s.pending, msg.ID)
	}
	s.pendingMu.Unlock()
	if !ok {
		s.logger.Debug("Apply result for unknown command", slog.String("command_id", msg.ID))
		return
	}

	out := applyOutcome{groupID: msg.GroupID}
	if !msg.OK {
		reason := msg.Error
		if reason == "" {
			reason = "extension rejected the command"
		}
		out.err = errors.New(reason)
	}
	ch <- out
}

// applyGroup sends one apply_group command and blocks for the
// correlated apply_result, the timeout, session close, or caller
// cancellation, whichever comes first.
func (s *Session) applyGroup(ctx context.Context, windowID int64, itemIDs []int64, name string, existingGroupID int64, timeout time.Duration) (int64, error) {
	cmdID := uuid.NewString()
	ch := make(chan applyOutcome, 1)
	s.pendingMu.Lock()
	s.pending[cmdID] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, cmdID)
		s.pendingMu.Unlock()
	}()

	cmd := applyCommand{
		Type:     msgApplyGroup,
		ID:       cmdID,
		WindowID: windowID,
		TabIDs:   itemIDs,
		Name:     name,
		GroupID:  existingGroupID,
	}
	if err := s.send(cmd); err != nil {
		s.hub.metrics.RecordApplyCommand("write_error")
		return 0, fmt.Errorf("send apply command: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		if out.err != nil {
			s.hub.metrics.RecordApplyCommand("rejected")
			return 0, fmt.Errorf("apply rejected by extension: %w", out.err)
		}
		s.hub.metrics.RecordApplyCommand("ok")
		return out.groupID, nil
	case <-timer.C:
		s.hub.metrics.RecordApplyCommand("timeout")
		return 0, ErrApplyTimeout
	case <-s.closed:
		s.hub.metrics.RecordApplyCommand("closed")
		return 0, ErrSessionClosed
	case <-ctx.Done():
		s.hub.metrics.RecordApplyCommand("canceled")
		return 0, ctx.Err()
	}
}

func (s *Session) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

var (
	_ processor.ItemSource   = (*Hub)(nil)
	_ processor.GroupApplier = (*Hub)(nil)
	_ processor.ErrorSink    = (*Hub)(nil)
	_ coordinate.StatusSink  = (*Hub)(nil)
)
