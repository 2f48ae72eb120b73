// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists organizer state in BadgerDB: per-window
// snapshot fingerprints, cached group suggestions, the processing
// window set, and the organizing status flag.
//
// # Description
//
// The store is an explicit state machine. New validates configuration,
// Load opens the database, hydrates the fingerprint map, and discards
// processing state left over from a previous run, and Close drains
// pending writes and releases the database. Operations called out of
// order return ErrNotLoaded or ErrClosed.
//
// All mutations are asynchronous: they are handed to a single writer
// goroutine through a bounded queue and never block or fail the caller.
// A full queue drops the write with a log line and a metric. Fingerprint
// reads are served from the in-memory map, so a queued fingerprint write
// is immediately visible to readers.
//
// # Thread Safety
//
// All methods are safe for concurrent use once Load has returned. Load
// and Close must not race each other.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/tabherd/services/organizer/coordinate"
	"github.com/AleutianAI/tabherd/services/organizer/observability"
)

// Store lifecycle states.
const (
	stateNew int32 = iota
	stateLoading
	stateReady
	stateClosed
)

// Key layout. All keys are flat strings; suggestion item ids are
// zero-padded so a prefix scan yields them in numeric order.
const (
	keyPrefixFingerprint = "fingerprint:"
	keyPrefixSuggestion  = "suggestion:"
	keyProcessingSet     = "processing:ids"
	keyOrganizing        = "status:organizing"
)

func fingerprintKey(windowID int64) []byte {
	return []byte(fmt.Sprintf("%s%d", keyPrefixFingerprint, windowID))
}

// writeOp is one queued mutation. done, when non-nil, is closed after
// the mutation has been applied; Flush uses it as a barrier.
type writeOp struct {
	op    string
	apply func(txn *badger.Txn) error
	done  chan struct{}
}

// Store is the badger-backed organizer state store.
//
// # Thread Safety
//
// Safe for concurrent use after Load.
type Store struct {
	config  Config
	logger  *slog.Logger
	metrics *observability.Metrics

	state atomic.Int32

	db *badger.DB
	gc *gcRunner

	// queueMu guards the queue against a send racing Close.
	queueMu    sync.RWMutex
	queue      chan writeOp
	writerDone chan struct{}

	mu           sync.RWMutex
	fingerprints map[int64]string
}

var _ coordinate.StateStore = (*Store)(nil)

// New constructs an unloaded store.
//
// # Inputs
//
//   - cfg: Store configuration. Must pass Validate.
//   - logger: Parent logger. Defaults to slog.Default().
//   - metrics: May be nil; writes are then uncounted.
//
// # Outputs
//
//   - *Store: The store in the new state. Call Load before use.
//   - error: Non-nil if the configuration is invalid.
func New(cfg Config, logger *slog.Logger, metrics *observability.Metrics) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		config:       cfg,
		logger:       logger.With(slog.String("component", "store")),
		metrics:      metrics,
		queue:        make(chan writeOp, cfg.QueueSize),
		writerDone:   make(chan struct{}),
		fingerprints: make(map[int64]string),
	}, nil
}

// Load opens the database and brings the store to the ready state.
//
// # Description
//
//	Hydrates the fingerprint map from disk, then discards any processing
//	set or organizing flag persisted by a previous run: whatever was
//	queued or running when that process died is no longer queued or
//	running. Starts the async writer and, for on-disk stores, the
//	value-log GC loop.
//
// # Outputs
//
//   - error: ErrAlreadyLoaded if Load already ran, ErrClosed after
//     Close, or the underlying open/hydration failure. On failure the
//     store returns to the new state and Load may be retried.
func (s *Store) Load(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.state.CompareAndSwap(stateNew, stateLoading) {
		if s.state.Load() == stateClosed {
			return ErrClosed
		}
		return ErrAlreadyLoaded
	}
	if err := ctx.Err(); err != nil {
		s.state.Store(stateNew)
		return err
	}

	db, err := openBadger(s.config, s.logger)
	if err != nil {
		s.state.Store(stateNew)
		return err
	}

	rec, err := readRecoveredState(db)
	if err != nil {
		db.Close()
		s.state.Store(stateNew)
		return fmt.Errorf("hydrate store: %w", err)
	}

	if rec.processing > 0 || rec.organizing {
		err := db.Update(func(txn *badger.Txn) error {
			if err := txn.Delete([]byte(keyProcessingSet)); err != nil {
				return err
			}
			return txn.Set([]byte(keyOrganizing), []byte("0"))
		})
		if err != nil {
			db.Close()
			s.state.Store(stateNew)
			return fmt.Errorf("clear stale processing state: %w", err)
		}
	}

	s.db = db
	s.mu.Lock()
	s.fingerprints = rec.fingerprints
	s.mu.Unlock()

	if !s.config.InMemory && s.config.GCInterval > 0 {
		s.gc = newGCRunner(db, s.config, s.logger)
		s.gc.start()
	}
	go s.writeLoop()

	s.state.Store(stateReady)

	s.logger.Info("store loaded",
		slog.String("path", s.config.Path),
		slog.Bool("in_memory", s.config.InMemory),
		slog.Int("fingerprints", len(rec.fingerprints)),
		slog.Int("stale_processing", rec.processing),
		slog.Bool("stale_organizing", rec.organizing))
	return nil
}

// Close drains queued writes and closes the database. Idempotent.
func (s *Store) Close() error {
	s.queueMu.Lock()
	switch s.state.Load() {
	case stateClosed:
		s.queueMu.Unlock()
		return nil
	case stateLoading:
		s.queueMu.Unlock()
		return errors.New("close during load")
	case stateNew:
		s.state.Store(stateClosed)
		s.queueMu.Unlock()
		return nil
	}
	s.state.Store(stateClosed)
	close(s.queue)
	s.queueMu.Unlock()

	<-s.writerDone
	if s.gc != nil {
		s.gc.stop()
	}
	err := s.db.Close()
	s.logger.Info("store closed")
	return err
}

// Flush blocks until every write queued before the call has been
// applied. Intended for shutdown paths and tests.
func (s *Store) Flush(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.queueMu.RLock()
	if err := s.readyErr(); err != nil {
		s.queueMu.RUnlock()
		return err
	}
	done := make(chan struct{})
	op := writeOp{
		op:    "flush",
		apply: func(*badger.Txn) error { return nil },
		done:  done,
	}
	select {
	case s.queue <- op:
		s.queueMu.RUnlock()
	case <-ctx.Done():
		s.queueMu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ===== Async mutations =====

// PutFingerprintAsync records the last organized fingerprint for a
// window. The in-memory map is updated immediately; the disk write is
// queued.
func (s *Store) PutFingerprintAsync(windowID int64, fingerprint string) {
	if s.state.Load() == stateReady {
		s.mu.Lock()
		s.fingerprints[windowID] = fingerprint
		s.mu.Unlock()
	}
	key := fingerprintKey(windowID)
	s.enqueue("fingerprint", func(txn *badger.Txn) error {
		return txn.Set(key, []byte(fingerprint))
	})
}

// PutProcessingSetAsync records the window ids currently queued or
// being organized.
func (s *Store) PutProcessingSetAsync(ids []int64) {
	snapshot := make([]int64, len(ids))
	copy(snapshot, ids)
	s.enqueue("processing_set", func(txn *badger.Txn) error {
		data, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		return txn.Set([]byte(keyProcessingSet), data)
	})
}

// PutOrganizingAsync records whether organization work is pending or
// running.
func (s *Store) PutOrganizingAsync(active bool) {
	val := []byte("0")
	if active {
		val = []byte("1")
	}
	s.enqueue("organizing", func(txn *badger.Txn) error {
		return txn.Set([]byte(keyOrganizing), val)
	})
}

// DeleteWindowAsync purges the fingerprint and every cached suggestion
// for a destroyed window.
func (s *Store) DeleteWindowAsync(windowID int64) {
	if s.state.Load() == stateReady {
		s.mu.Lock()
		delete(s.fingerprints, windowID)
		s.mu.Unlock()
	}
	fpKey := fingerprintKey(windowID)
	prefix := windowSuggestionPrefix(windowID)
	s.enqueue("delete_window", func(txn *badger.Txn) error {
		if err := txn.Delete(fpKey); err != nil {
			return err
		}
		return deletePrefix(txn, prefix)
	})
}

// ===== Reads =====

// LastFingerprint returns the last persisted fingerprint for a window,
// or ErrNotFound.
func (s *Store) LastFingerprint(windowID int64) (string, error) {
	if err := s.readyErr(); err != nil {
		return "", err
	}
	s.mu.RLock()
	fp, ok := s.fingerprints[windowID]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return fp, nil
}

// ProcessingSet returns the persisted set of processing window ids.
// Empty after Load until the coordinator publishes a new set.
func (s *Store) ProcessingSet(ctx context.Context) ([]int64, error) {
	if err := s.readyErr(); err != nil {
		return nil, err
	}
	var ids []int64
	err := s.withRead(ctx, func(txn *badger.Txn) error {
		got, err := readProcessingSet(txn)
		if err != nil {
			return err
		}
		ids = got
		return nil
	})
	return ids, err
}

// Organizing returns the persisted organizing flag. Always false right
// after Load.
func (s *Store) Organizing(ctx context.Context) (bool, error) {
	if err := s.readyErr(); err != nil {
		return false, err
	}
	var on bool
	err := s.withRead(ctx, func(txn *badger.Txn) error {
		got, err := readOrganizing(txn)
		if err != nil {
			return err
		}
		on = got
		return nil
	})
	return on, err
}

// Stats reports store health for status endpoints.
type Stats struct {
	Loaded        bool   `json:"loaded"`
	InMemory      bool   `json:"in_memory"`
	Path          string `json:"path,omitempty"`
	Fingerprints  int    `json:"fingerprints"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
}

// Stats returns a point-in-time snapshot of store health.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	n := len(s.fingerprints)
	s.mu.RUnlock()
	return Stats{
		Loaded:        s.state.Load() == stateReady,
		InMemory:      s.config.InMemory,
		Path:          s.config.Path,
		Fingerprints:  n,
		QueueDepth:    len(s.queue),
		QueueCapacity: cap(s.queue),
	}
}

// ===== Internals =====

func (s *Store) readyErr() error {
	switch s.state.Load() {
	case stateReady:
		return nil
	case stateClosed:
		return ErrClosed
	default:
		return ErrNotLoaded
	}
}

// enqueue hands a mutation to the writer goroutine. Never blocks: if
// the store is not ready or the queue is full, the write is dropped.
func (s *Store) enqueue(op string, apply func(txn *badger.Txn) error) {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()

	if s.state.Load() != stateReady {
		s.logger.Debug("store write dropped",
			slog.String("op", op),
			slog.String("reason", "not ready"))
		s.metrics.RecordStoreWrite(op, "dropped")
		return
	}

	select {
	case s.queue <- writeOp{op: op, apply: apply}:
	default:
		s.logger.Warn("write queue full, dropping write",
			slog.String("op", op))
		s.metrics.RecordStoreWrite(op, "dropped")
	}
}

// writeLoop is the single writer goroutine. Runs from Load until Close
// closes the queue; a failed write is logged and counted, never
// surfaced to the producer.
func (s *Store) writeLoop() {
	defer close(s.writerDone)
	for op := range s.queue {
		status := "ok"
		if err := s.db.Update(op.apply); err != nil {
			status = "error"
			s.logger.Error("store write failed",
				slog.String("op", op.op),
				slog.String("error", err.Error()))
		}
		s.metrics.RecordStoreWrite(op.op, status)
		if op.done != nil {
			close(op.done)
		}
	}
}

// withRead runs fn in a read transaction after checking the context.
func (s *Store) withRead(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// recovered is the state found on disk during Load.
type recovered struct {
	fingerprints map[int64]string
	processing   int
	organizing   bool
}

func readRecoveredState(db *badger.DB) (recovered, error) {
	rec := recovered{fingerprints: make(map[int64]string)}
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixFingerprint)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			id, err := strconv.ParseInt(key[len(keyPrefixFingerprint):], 10, 64)
			if err != nil {
				continue
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec.fingerprints[id] = string(val)
		}

		ids, err := readProcessingSet(txn)
		if err != nil {
			return err
		}
		rec.processing = len(ids)

		on, err := readOrganizing(txn)
		if err != nil {
			return err
		}
		rec.organizing = on
		return nil
	})
	return rec, err
}

func readProcessingSet(txn *badger.Txn) ([]int64, error) {
	item, err := txn.Get([]byte(keyProcessingSet))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := json.Unmarshal(val, &ids); err != nil {
		return nil, fmt.Errorf("decode processing set: %w", err)
	}
	return ids, nil
}

func readOrganizing(txn *badger.Txn) (bool, error) {
	item, err := txn.Get([]byte(keyOrganizing))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	return len(val) > 0 && val[0] == '1', nil
}

// deletePrefix removes every key under prefix within txn.
func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	keys := make([][]byte, 0, 16)
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
