// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package processor drives the single batch-organization drain loop.
//
// # Description
//
// The processor owns the only goroutine that consumes the coordinator's
// queue. Each Run drains the queue to empty: windows are claimed in
// priority order, their unorganized tabs are classified in fixed-size
// chunks, and the resulting group suggestions are either applied in the
// browser (autopilot) or cached for the user to confirm. Between and
// during chunks the processor checks the coordinator for concurrent
// window changes; a fatal change aborts the window's remaining work and
// the window re-enters the queue with its fresh snapshot.
//
// Staleness is checked at four points per chunk: before the classifier
// call, during the call (the chunk's context is cancelled by the
// coordinator on a fatal enqueue), after the call returns, and once
// more per suggestion against the window's live tabs just before apply.
//
// # Thread Safety
//
// Run is self-serializing: a second concurrent call returns immediately
// while a drain is active. All other methods are unexported.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/tabherd/services/organizer/classify"
	"github.com/AleutianAI/tabherd/services/organizer/config"
	"github.com/AleutianAI/tabherd/services/organizer/coordinate"
	"github.com/AleutianAI/tabherd/services/organizer/groups"
	"github.com/AleutianAI/tabherd/services/organizer/observability"
	"github.com/AleutianAI/tabherd/services/organizer/snapshot"
	"github.com/AleutianAI/tabherd/services/organizer/store"
	"github.com/AleutianAI/tabherd/services/organizer/tabs"
)

var tracer = otel.Tracer("tabherd.processor")

// Drain loop states.
const (
	stateIdle int32 = iota
	stateDraining
)

// ===== Options =====

// Options carries the processor's collaborators. Coordinator, Source,
// Classifier, Applier, and Config are required. Cache and Errors may be
// nil: without a cache every pass reclassifies, without a sink failures
// are only logged.
type Options struct {
	Coordinator *coordinate.Coordinator
	Source      ItemSource
	Classifier  Classifier
	Applier     GroupApplier
	Config      config.Source

	Cache   SuggestionCache
	Errors  ErrorSink
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// ===== Processor =====

// Processor drains the coordinator queue and classifies tabs in chunks.
// Build with New.
type Processor struct {
	coord   *coordinate.Coordinator
	source  ItemSource
	engine  Classifier
	applier GroupApplier
	cache   SuggestionCache
	cfg     config.Source
	errs    ErrorSink
	logger  *slog.Logger
	metrics *observability.Metrics

	state atomic.Int32
}

// New builds a Processor.
//
// # Inputs
//
//   - opts: Collaborators. See Options for which are required.
//
// # Outputs
//
//   - *Processor: Ready to Run.
//   - error: ErrInvalidOptions when a required collaborator is nil.
func New(opts Options) (*Processor, error) {
	switch {
	case opts.Coordinator == nil:
		return nil, fmt.Errorf("%w: coordinator is required", ErrInvalidOptions)
	case opts.Source == nil:
		return nil, fmt.Errorf("%w: item source is required", ErrInvalidOptions)
	case opts.Classifier == nil:
		return nil, fmt.Errorf("%w: classifier is required", ErrInvalidOptions)
	case opts.Applier == nil:
		return nil, fmt.Errorf("%w: group applier is required", ErrInvalidOptions)
	case opts.Config == nil:
		return nil, fmt.Errorf("%w: config source is required", ErrInvalidOptions)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		coord:   opts.Coordinator,
		source:  opts.Source,
		engine:  opts.Classifier,
		applier: opts.Applier,
		cache:   opts.Cache,
		cfg:     opts.Config,
		errs:    opts.Errors,
		logger:  logger.With(slog.String("component", "processor")),
		metrics: opts.Metrics,
	}, nil
}

// Run drains the coordinator queue until no work remains.
//
// # Description
//
//	Loops while the coordinator reports pending or active work: claims
//	the whole queue, processes each window in order, completes every
//	claimed window (aborted ones included, so fatal requeues re-enter
//	the queue), then loops in case work arrived mid-pass. A window's
//	failure never stops the pass; it is reported to the error sink and
//	the pass moves on.
//
// # Inputs
//
//   - ctx: Cancelling it stops the drain between chunks; the current
//     classifier call observes it directly.
//
// # Outputs
//
//   - error: nil on a completed pass, ErrDisabled when organization is
//     switched off while work is pending, or ctx.Err() on shutdown.
//     A concurrent Run already draining returns nil immediately.
//
// # Thread Safety
//
// Safe to call from any goroutine; only one drain runs at a time.
func (p *Processor) Run(ctx context.Context) error {
	if !p.state.CompareAndSwap(stateIdle, stateDraining) {
		p.logger.Debug("drain already active, coalescing")
		return nil
	}
	defer p.state.Store(stateIdle)

	p.metrics.RecordDrain()
	ctx, span := tracer.Start(ctx, "processor.Run")
	defer span.End()

	for p.coord.IsProcessing() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.cfg.Enabled() {
			p.logger.Info("organization disabled, leaving work queued",
				slog.Int("pending", p.coord.Size()))
			span.SetAttributes(attribute.Bool("disabled", true))
			return ErrDisabled
		}

		ids := p.coord.AcquireQueue()
		if len(ids) == 0 {
			// Active windows only; their owner completes them.
			return nil
		}
		span.SetAttributes(attribute.Int("windows", len(ids)))

		for _, windowID := range ids {
			if ctx.Err() != nil {
				break
			}
			p.processWindow(ctx, windowID)
		}
		for _, windowID := range ids {
			p.coord.CompleteWindow(windowID)
		}
	}
	return ctx.Err()
}

// ===== Per-Window Pass =====

// processWindow classifies one window's candidate tabs chunk by chunk.
// Never returns an error: failures are reported to the sink and
// recorded, and the caller moves on to the next window.
func (p *Processor) processWindow(ctx context.Context, windowID int64) {
	logger := p.logger.With(slog.Int64("window_id", windowID))
	ctx, span := tracer.Start(ctx, "processor.processWindow",
		trace.WithAttributes(attribute.Int64("window_id", windowID)))
	defer span.End()

	outcome := p.organizeWindow(ctx, windowID, logger)
	p.metrics.RecordWindow(outcome)
	span.SetAttributes(attribute.String("outcome", outcome))
}

// organizeWindow does the work of processWindow and names the outcome:
// completed, skipped, aborted, or error.
func (p *Processor) organizeWindow(ctx context.Context, windowID int64, logger *slog.Logger) string {
	win, err := p.source.Window(ctx, windowID)
	if err != nil {
		logger.Warn("window lookup failed", slog.Any("error", err))
		p.report(windowID, fmt.Sprintf("Could not inspect window %d: %v", windowID, err))
		return "error"
	}
	if !win.Groupable() {
		logger.Debug("window cannot hold groups, skipping",
			slog.String("type", string(win.Type)),
			slog.Bool("incognito", win.Incognito))
		return "skipped"
	}

	items, err := p.source.Items(ctx, windowID)
	if err != nil {
		logger.Warn("item fetch failed", slog.Any("error", err))
		p.report(windowID, fmt.Sprintf("Could not read tabs of window %d: %v", windowID, err))
		return "error"
	}

	candidates := p.candidates(ctx, windowID, items)
	if len(candidates) == 0 {
		logger.Debug("no tabs to organize", slog.Int("total", len(items)))
		return "completed"
	}

	// One resolver per window pass: names suggested in chunk n resolve
	// to the same group in chunk n+1.
	res := groups.NewResolver(p.existingGroups(windowID))
	instructions := p.cfg.CustomRules()
	size := p.cfg.BatchSize()
	if size < 1 {
		size = 1
	}

	logger.Info("organizing window",
		slog.Int("candidates", len(candidates)),
		slog.Int("batch_size", size))

	errored := false
	for start := 0; start < len(candidates); start += size {
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}

		err := p.processChunk(ctx, windowID, candidates[start:end], res, instructions)
		switch {
		case err == nil:
		case errors.Is(err, errStale):
			logger.Info("window changed mid-pass, aborting remaining chunks",
				slog.Int("remaining", len(candidates)-end))
			return "aborted"
		case ctx.Err() != nil:
			return "aborted"
		default:
			logger.Warn("chunk failed", slog.Any("error", err))
			p.report(windowID, fmt.Sprintf("Could not organize %d tabs in window %d: %v", end-start, windowID, err))
			errored = true
		}
	}

	if errored {
		return "error"
	}
	return "completed"
}

// candidates filters a window's tabs down to the ones worth sending to
// the classifier: not pinned, not already in a group, and without a
// live cached verdict for their current content.
func (p *Processor) candidates(ctx context.Context, windowID int64, items []tabs.Item) []tabs.Item {
	out := make([]tabs.Item, 0, len(items))
	for _, it := range items {
		if it.Pinned || it.Grouped() {
			continue
		}
		if p.cachedVerdict(ctx, windowID, it) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// cachedVerdict reports whether the tab already has a live cache entry,
// positive or negative, at its current content hash.
func (p *Processor) cachedVerdict(ctx context.Context, windowID int64, it tabs.Item) bool {
	if p.cache == nil {
		return false
	}
	sug, err := p.cache.GetSuggestion(ctx, windowID, it.ID, store.ContentHash(it))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Debug("suggestion lookup failed",
				slog.Int64("window_id", windowID),
				slog.Int64("item_id", it.ID),
				slog.Any("error", err))
		}
		return false
	}
	return sug != nil
}

// existingGroups returns the window's groups from its latest snapshot.
func (p *Processor) existingGroups(windowID int64) []tabs.Group {
	snap := p.coord.SnapshotFor(windowID)
	if snap == nil {
		return nil
	}
	return snap.Groups
}

// ===== Per-Chunk Pass =====

// processChunk classifies one chunk and applies or caches the result.
//
// Staleness checkpoints: ChangeSince before the call, chunk-context
// cancellation during it, ChangeSince after it, and a per-suggestion
// member check inside applyResult. Returns errStale on a fatal change,
// the parent context's error on shutdown, or the provider error.
func (p *Processor) processChunk(ctx context.Context, windowID int64, chunk []tabs.Item, res *groups.Resolver, instructions string) error {
	if p.coord.ChangeSince(windowID) == snapshot.ChangeFatal {
		p.metrics.RecordChunk("aborted")
		return errStale
	}

	ids := make([]int64, len(chunk))
	for i, it := range chunk {
		ids[i] = it.ID
	}

	req := &classify.Request{
		WindowID:       windowID,
		Items:          chunk,
		ExistingGroups: sortedNames(res.NameMap()),
		Instructions:   instructions,
	}

	result, err := func() (*classify.Result, error) {
		chunkCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		p.coord.BeginChunk(windowID, ids, cancel)
		defer p.coord.EndChunk(windowID)
		return p.engine.Classify(chunkCtx, req)
	}()

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.Canceled) || p.coord.ChangeSince(windowID) == snapshot.ChangeFatal {
			p.metrics.RecordChunk("aborted")
			return errStale
		}
		p.metrics.RecordChunk("error")
		return err
	}

	if p.coord.ChangeSince(windowID) == snapshot.ChangeFatal {
		p.metrics.RecordChunk("aborted")
		return errStale
	}

	return p.applyResult(ctx, windowID, req, result, res)
}

// applyResult turns one chunk's assignments into applied groups
// (autopilot) or cache entries, and negative-caches unmatched tabs.
//
// Every suggestion is validated against the window's live tabs first:
// members that vanished, got pinned, joined a group, or navigated away
// from the content that was classified are dropped. The last case
// covers tabs that changed benignly while a different chunk was in
// flight; their verdict would describe a page they no longer show.
func (p *Processor) applyResult(ctx context.Context, windowID int64, req *classify.Request, result *classify.Result, res *groups.Resolver) error {
	live, err := p.liveItems(ctx, windowID)
	if err != nil {
		p.metrics.RecordChunk("error")
		return fmt.Errorf("revalidate chunk: %w", err)
	}
	classified := make(map[int64]tabs.Item, len(req.Items))
	for _, it := range req.Items {
		classified[it.ID] = it
	}
	fresh := func(id int64) (tabs.Item, bool) {
		it, ok := live[id]
		orig, wasSent := classified[id]
		if !ok || !wasSent || it.Pinned || it.Grouped() {
			return tabs.Item{}, false
		}
		if it.Title != orig.Title || it.URL != orig.URL {
			return tabs.Item{}, false
		}
		return it, true
	}

	autopilot := p.cfg.Autopilot()
	entries := make([]store.Suggestion, 0, len(req.Items))

	names, byGroup := groupAssignments(result.Assignments)
	for _, name := range names {
		members := make([]classify.Assignment, 0, len(byGroup[name]))
		memberIDs := make([]int64, 0, len(byGroup[name]))
		for _, a := range byGroup[name] {
			if _, ok := fresh(a.ItemID); !ok {
				p.metrics.RecordSuggestion("stale")
				continue
			}
			members = append(members, a)
			memberIDs = append(memberIDs, a.ItemID)
		}
		if len(members) == 0 {
			continue
		}

		if !autopilot {
			for _, a := range members {
				entries = append(entries, store.Suggestion{
					WindowID:    windowID,
					ItemID:      a.ItemID,
					ContentHash: store.ContentHash(live[a.ItemID]),
					Group:       a.Group,
					Confidence:  a.Confidence,
					Provider:    result.Provider,
				})
				p.metrics.RecordSuggestion("cached")
			}
			continue
		}

		groupID := res.Resolve(name)
		existingID := groupID
		if groups.IsProvisional(groupID) {
			existingID = 0
		}
		realID, err := p.applier.ApplyGroup(ctx, windowID, memberIDs, name, existingID)
		if err != nil {
			p.putSuggestions(entries)
			p.metrics.RecordChunk("error")
			return fmt.Errorf("apply group %q: %w", name, err)
		}
		res.Confirm(name, realID)
		for range members {
			p.metrics.RecordSuggestion("applied")
		}
		p.logger.Debug("group applied",
			slog.Int64("window_id", windowID),
			slog.String("group", name),
			slog.Int64("group_id", realID),
			slog.Int("tabs", len(memberIDs)))
	}

	for _, id := range result.Unmatched(req) {
		it, ok := fresh(id)
		if !ok {
			continue
		}
		entries = append(entries, store.Suggestion{
			WindowID:    windowID,
			ItemID:      id,
			ContentHash: store.ContentHash(it),
			Negative:    true,
		})
		p.metrics.RecordSuggestion("negative")
	}
	p.putSuggestions(entries)

	if autopilot {
		p.metrics.RecordChunk("applied")
	} else {
		p.metrics.RecordChunk("cached")
	}
	return nil
}

// liveItems fetches the window's current tabs keyed by id.
func (p *Processor) liveItems(ctx context.Context, windowID int64) (map[int64]tabs.Item, error) {
	items, err := p.source.Items(ctx, windowID)
	if err != nil {
		return nil, err
	}
	m := make(map[int64]tabs.Item, len(items))
	for _, it := range items {
		m[it.ID] = it
	}
	return m, nil
}

func (p *Processor) putSuggestions(entries []store.Suggestion) {
	if p.cache == nil || len(entries) == 0 {
		return
	}
	p.cache.PutSuggestionsAsync(entries)
}

func (p *Processor) report(windowID int64, message string) {
	if p.errs == nil {
		return
	}
	p.errs.ReportError(windowID, message)
}

// ===== Helpers =====

// groupAssignments buckets assignments by group name, preserving the
// order groups first appear in the result.
func groupAssignments(assignments []classify.Assignment) ([]string, map[string][]classify.Assignment) {
	names := make([]string, 0, len(assignments))
	byGroup := make(map[string][]classify.Assignment, len(assignments))
	for _, a := range assignments {
		if _, ok := byGroup[a.Group]; !ok {
			names = append(names, a.Group)
		}
		byGroup[a.Group] = append(byGroup[a.Group], a)
	}
	return names, byGroup
}

// sortedNames returns the map's keys sorted, for a stable prompt.
func sortedNames(m map[string]int64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
