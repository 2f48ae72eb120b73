// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the organizer.
//
// # Description
//
// Metrics cover the organization pipeline end to end:
//   - Queue state (enqueue outcomes, queue depth, active windows)
//   - Drain passes (windows processed, chunks classified, abort reasons)
//   - Classifier calls (per provider, with latency)
//   - Suggestion dispositions (applied, cached, negative)
//   - Store writes and extension sessions
//
// # Integration
//
// Exposed via the /metrics endpoint. Initialize once at startup with
// InitMetrics; components treat a nil *Metrics as "metrics disabled", so
// tests can pass nil.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "tabherd"

// Subsystem for organizer metrics
const organizerSubsystem = "organizer"

// Metrics holds all Prometheus metrics for the organizer pipeline.
//
// All helper methods are safe on a nil receiver and do nothing, so
// components never need to guard metric calls.
type Metrics struct {
	// EnqueuesTotal counts Enqueue outcomes.
	// Labels: outcome (queued, duplicate, promoted, updated, requeued_active, removed)
	EnqueuesTotal *prometheus.CounterVec

	// ChangesTotal counts change classifications for windows with work
	// in flight. Labels: kind (none, benign, fatal)
	ChangesTotal *prometheus.CounterVec

	// QueueDepth tracks the number of queued windows.
	QueueDepth prometheus.Gauge

	// ActiveWindows tracks windows claimed by the drain loop.
	ActiveWindows prometheus.Gauge

	// InflightCancelsTotal counts classifier calls aborted by a fatal
	// concurrent change.
	InflightCancelsTotal prometheus.Counter

	// DrainsTotal counts drain passes started.
	DrainsTotal prometheus.Counter

	// WindowsTotal counts per-window processing outcomes.
	// Labels: outcome (completed, aborted, error, skipped)
	WindowsTotal *prometheus.CounterVec

	// ChunksTotal counts classified chunks by outcome.
	// Labels: outcome (applied, cached, aborted, error)
	ChunksTotal *prometheus.CounterVec

	// ClassifierRequestsTotal counts provider calls.
	// Labels: provider, status (success, error, cancelled)
	ClassifierRequestsTotal *prometheus.CounterVec

	// ClassifierLatencySeconds measures provider call latency.
	// Labels: provider
	ClassifierLatencySeconds *prometheus.HistogramVec

	// SuggestionsTotal counts suggestion dispositions.
	// Labels: disposition (applied, cached, negative, stale)
	SuggestionsTotal *prometheus.CounterVec

	// StoreWritesTotal counts persistent store writes.
	// Labels: op, status (success, error, dropped)
	StoreWritesTotal *prometheus.CounterVec

	// SessionsActive tracks connected extension sessions.
	SessionsActive prometheus.Gauge

	// ApplyCommandsTotal counts group-apply commands pushed to the
	// extension. Labels: status (applied, failed, timeout)
	ApplyCommandsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance. Initialized by InitMetrics().
var DefaultMetrics *Metrics

// InitMetrics initializes and registers the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics on the default registry.
// Call once at application startup.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		EnqueuesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "enqueues_total",
				Help:      "Total window enqueue operations by outcome",
			},
			[]string{"outcome"},
		),

		ChangesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "changes_total",
				Help:      "Concurrent change classifications for in-flight windows",
			},
			[]string{"kind"},
		),

		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "queue_depth",
				Help:      "Number of windows waiting to be organized",
			},
		),

		ActiveWindows: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "active_windows",
				Help:      "Number of windows claimed by the drain loop",
			},
		),

		InflightCancelsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "inflight_cancels_total",
				Help:      "Classifier calls aborted by a fatal concurrent change",
			},
		),

		DrainsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "drains_total",
				Help:      "Drain passes started",
			},
		),

		WindowsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "windows_total",
				Help:      "Per-window processing outcomes",
			},
			[]string{"outcome"},
		),

		ChunksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "chunks_total",
				Help:      "Classified chunks by outcome",
			},
			[]string{"outcome"},
		),

		ClassifierRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "classifier_requests_total",
				Help:      "Classifier provider calls by status",
			},
			[]string{"provider", "status"},
		),

		ClassifierLatencySeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "classifier_latency_seconds",
				Help:      "Classifier provider call latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"provider"},
		),

		SuggestionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "suggestions_total",
				Help:      "Suggestion dispositions",
			},
			[]string{"disposition"},
		),

		StoreWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "store_writes_total",
				Help:      "Persistent store writes by operation and status",
			},
			[]string{"op", "status"},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "sessions_active",
				Help:      "Connected extension sessions",
			},
		),

		ApplyCommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: organizerSubsystem,
				Name:      "apply_commands_total",
				Help:      "Group-apply commands pushed to the extension by status",
			},
			[]string{"status"},
		),
	}

	return DefaultMetrics
}

// ===== Helper Methods =====

// RecordEnqueue records an Enqueue outcome.
func (m *Metrics) RecordEnqueue(outcome string) {
	if m == nil {
		return
	}
	m.EnqueuesTotal.WithLabelValues(outcome).Inc()
}

// RecordChange records a change classification.
func (m *Metrics) RecordChange(kind string) {
	if m == nil {
		return
	}
	m.ChangesTotal.WithLabelValues(kind).Inc()
}

// SetQueueDepth updates the queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// SetActiveWindows updates the active windows gauge.
func (m *Metrics) SetActiveWindows(n int) {
	if m == nil {
		return
	}
	m.ActiveWindows.Set(float64(n))
}

// RecordChunkAborted counts an in-flight classifier call cancelled by a
// fatal change.
func (m *Metrics) RecordChunkAborted() {
	if m == nil {
		return
	}
	m.InflightCancelsTotal.Inc()
}

// RecordDrain counts a drain pass.
func (m *Metrics) RecordDrain() {
	if m == nil {
		return
	}
	m.DrainsTotal.Inc()
}

// RecordWindow records a per-window processing outcome.
func (m *Metrics) RecordWindow(outcome string) {
	if m == nil {
		return
	}
	m.WindowsTotal.WithLabelValues(outcome).Inc()
}

// RecordChunk records a chunk outcome.
func (m *Metrics) RecordChunk(outcome string) {
	if m == nil {
		return
	}
	m.ChunksTotal.WithLabelValues(outcome).Inc()
}

// RecordClassifierCall records one provider call with its latency.
func (m *Metrics) RecordClassifierCall(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.ClassifierRequestsTotal.WithLabelValues(provider, status).Inc()
	m.ClassifierLatencySeconds.WithLabelValues(provider).Observe(seconds)
}

// RecordSuggestion records a suggestion disposition.
func (m *Metrics) RecordSuggestion(disposition string) {
	if m == nil {
		return
	}
	m.SuggestionsTotal.WithLabelValues(disposition).Inc()
}

// RecordStoreWrite records a persistent store write outcome.
func (m *Metrics) RecordStoreWrite(op, status string) {
	if m == nil {
		return
	}
	m.StoreWritesTotal.WithLabelValues(op, status).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// RecordApplyCommand records the outcome of a group-apply command.
func (m *Metrics) RecordApplyCommand(status string) {
	if m == nil {
		return
	}
	m.ApplyCommandsTotal.WithLabelValues(status).Inc()
}
