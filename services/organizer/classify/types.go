// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classify turns a batch of tabs into group suggestions.
//
// # Description
//
// A Provider is one classification backend: a cloud model, a local model
// served by Ollama, or the rule engine. Providers are pure request/response
// callers; they never mutate browser state and they honor context
// cancellation. The Engine wraps a Provider with coalescing, retries, rate
// limiting, and rule fallback.
package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/AleutianAI/tabherd/services/organizer/tabs"
)

// Provider is a classification backend.
//
// Implementations must be safe for concurrent use, must honor context
// cancellation, and must not have side effects on browser state.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Classify suggests a group for each tab in the request. Tabs the
	// provider cannot place are simply absent from the result.
	Classify(ctx context.Context, req *Request) (*Result, error)
}

// Request is one classification call: a chunk of tabs from a single
// window plus the grouping context the model needs.
type Request struct {
	// WindowID is the window the tabs belong to. Informational.
	WindowID int64

	// Items are the tabs to classify, in window order.
	Items []tabs.Item

	// ExistingGroups are group names already present in the window.
	// The model is asked to prefer these over inventing new names.
	ExistingGroups []string

	// Instructions are user-supplied grouping rules folded into the
	// prompt verbatim. May be empty.
	Instructions string
}

// Key returns a stable coalescing key for the request. Two requests
// with the same tabs and grouping context share one provider call.
func (r *Request) Key() string {
	lines := make([]string, 0, len(r.Items)+len(r.ExistingGroups)+1)
	for _, it := range r.Items {
		lines = append(lines, "t:"+strconv.FormatInt(it.ID, 10)+":"+it.Title+":"+it.URL)
	}
	for _, g := range r.ExistingGroups {
		lines = append(lines, "g:"+g)
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	h.Write([]byte(r.Instructions))
	return hex.EncodeToString(h.Sum(nil))
}

// Assignment is one suggested placement.
type Assignment struct {
	// ItemID is the tab the suggestion applies to.
	ItemID int64 `json:"id"`

	// Group is the suggested group name. Never empty in a Result.
	Group string `json:"group"`

	// Confidence is the model's confidence in the placement (0.0-1.0).
	Confidence float64 `json:"confidence,omitempty"`

	// Reasoning is a short explanation. Informational.
	Reasoning string `json:"reasoning,omitempty"`
}

// Result is the provider's answer for one request.
//
// Tabs absent from Assignments were left unplaced; the caller records
// them so they are not resubmitted every pass.
type Result struct {
	// Assignments are the suggested placements, at most one per tab.
	Assignments []Assignment

	// Provider is the name of the backend that produced the result.
	Provider string

	// FallbackUsed indicates the rule engine answered after the primary
	// provider failed.
	FallbackUsed bool
}

// Unmatched returns the ids of request tabs the result did not place.
func (res *Result) Unmatched(req *Request) []int64 {
	placed := make(map[int64]struct{}, len(res.Assignments))
	for _, a := range res.Assignments {
		placed[a.ItemID] = struct{}{}
	}
	var out []int64
	for _, it := range req.Items {
		if _, ok := placed[it.ID]; !ok {
			out = append(out, it.ID)
		}
	}
	return out
}
