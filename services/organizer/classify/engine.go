// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/tabherd/services/organizer/observability"
)

var engineTracer = otel.Tracer("tabherd.classify")

// Engine wraps a Provider with request coalescing, retry logic, rate
// limiting, and rule fallback.
//
// # Description
//
//	Identical concurrent requests share one provider call. Failed calls
//	are retried with exponential backoff, except on context cancellation
//	or deadline expiry, which return immediately so an aborted batch
//	never burns provider quota. When the provider fails for any other
//	reason and rules are configured, the rule engine answers instead.
//
// # Thread Safety
//
// Safe for concurrent use after construction.
type Engine struct {
	provider  Provider
	fallback  *PatternProvider
	config    Config
	inflight  singleflight.Group
	semaphore chan struct{}
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewEngine creates an engine around the given provider.
//
// # Inputs
//
//   - provider: The primary backend. Must not be nil.
//   - fallback: Rule engine consulted on provider failure. May be nil.
//   - cfg: Engine configuration. Validated.
//   - logger: If nil, uses slog.Default().
//   - metrics: May be nil.
func NewEngine(provider Provider, fallback *PatternProvider, cfg Config, logger *slog.Logger, metrics *observability.Metrics) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("provider must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var semaphore chan struct{}
	if cfg.MaxConcurrent > 0 {
		semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Engine{
		provider:  provider,
		fallback:  fallback,
		config:    cfg,
		semaphore: semaphore,
		limiter:   limiter,
		logger:    logger.With(slog.String("component", "classify")),
		metrics:   metrics,
	}, nil
}

// NewEngineFromConfig builds the configured provider, the rule engine,
// and the wrapping Engine in one call.
//
// # Description
//
//	The rule engine is always constructed so rules stay hot-reloadable
//	and usable as fallback. When cfg.Provider is ProviderPattern the
//	rule engine is also the primary and no fallback is wired.
//
// # Outputs
//
//   - *Engine: Ready to classify.
//   - *PatternProvider: For rule reloads and group color lookups.
//   - error: On unknown provider, missing credentials, or bad config.
func NewEngineFromConfig(cfg Config, rules []Rule, logger *slog.Logger, metrics *observability.Metrics) (*Engine, *PatternProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	pattern, err := NewPatternProvider(rules)
	if err != nil {
		return nil, nil, err
	}

	var primary Provider
	var fallback *PatternProvider
	switch cfg.Provider {
	case "", ProviderPattern:
		primary = pattern
	case ProviderOpenAI:
		primary, err = NewOpenAIProvider(cfg)
		fallback = pattern
	case ProviderOllama:
		primary, err = NewOllamaProvider(cfg)
		fallback = pattern
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, nil, err
	}
	if !cfg.FallbackToRules {
		fallback = nil
	}

	engine, err := NewEngine(primary, fallback, cfg, logger, metrics)
	if err != nil {
		return nil, nil, err
	}
	return engine, pattern, nil
}

// Provider returns the primary backend name for logs.
func (e *Engine) Provider() string { return e.provider.Name() }

// Classify suggests groups for the request's tabs.
//
// # Description
//
//	Coalesces identical concurrent requests, retries transient provider
//	failures, and falls back to rules when configured. Context
//	cancellation and deadline expiry are returned as-is, are never
//	retried, and never trigger fallback.
//
// # Outputs
//
//   - *Result: Suggested placements. FallbackUsed is set when the rule
//     engine answered.
//   - error: Cancellation, or provider failure with no fallback wired.
func (e *Engine) Classify(ctx context.Context, req *Request) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil || len(req.Items) == 0 {
		return nil, ErrNoItems
	}

	ctx, span := engineTracer.Start(ctx, "classify.Engine.Classify",
		trace.WithAttributes(
			attribute.String("provider", e.provider.Name()),
			attribute.Int("tabs", len(req.Items)),
			attribute.Int64("window_id", req.WindowID),
		),
	)
	defer span.End()

	// Coalesce identical concurrent requests into one provider call.
	resultInterface, err, shared := e.inflight.Do(req.Key(), func() (interface{}, error) {
		return e.classifyWithRetry(ctx, req)
	})

	if err != nil {
		// Cancelled work stays cancelled: no fallback, no caching upstream.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context cancelled")
			return nil, err
		}

		if e.fallback != nil {
			span.SetAttributes(
				attribute.Bool("fallback_used", true),
				attribute.String("fallback_reason", err.Error()),
			)
			e.logger.Warn("provider failed, answering from rules",
				slog.String("provider", e.provider.Name()),
				slog.Any("error", err))
			result, ferr := e.fallback.Classify(ctx, req)
			if ferr != nil {
				return nil, err
			}
			result.FallbackUsed = true
			e.metrics.RecordClassifierCall(e.fallback.Name(), "fallback", 0)
			return result, nil
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result, ok := resultInterface.(*Result)
	if !ok {
		err := fmt.Errorf("unexpected type from singleflight group: got %T", resultInterface)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("assignments", len(result.Assignments)),
		attribute.Bool("coalesced", shared),
	)
	return result, nil
}

// classifyWithRetry performs classification with exponential backoff.
func (e *Engine) classifyWithRetry(ctx context.Context, req *Request) (*Result, error) {
	var lastErr error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := e.config.RetryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := e.doClassify(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		e.logger.Debug("classification attempt failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", e.config.MaxRetries),
			slog.String("error", err.Error()))
	}

	return nil, fmt.Errorf("classification failed after %d attempts: %w", e.config.MaxRetries+1, lastErr)
}

// doClassify performs a single provider attempt.
func (e *Engine) doClassify(ctx context.Context, req *Request) (*Result, error) {
	if e.semaphore != nil {
		select {
		case e.semaphore <- struct{}{}:
			defer func() { <-e.semaphore }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	result, err := e.provider.Classify(reqCtx, req)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		status := "error"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = "cancelled"
		}
		e.metrics.RecordClassifierCall(e.provider.Name(), status, elapsed)
		return nil, err
	}

	e.metrics.RecordClassifierCall(e.provider.Name(), "success", elapsed)
	return result, nil
}
