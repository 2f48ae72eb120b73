// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"testing"

	"github.com/AleutianAI/tabherd/services/organizer/tabs"
)

func testItems() []tabs.Item {
	return []tabs.Item{
		{ID: 1, Title: "Inbox", URL: "https://mail.example.com", GroupID: 0},
		{ID: 2, Title: "CI Dashboard", URL: "https://ci.example.com", GroupID: 10},
		{ID: 3, Title: "Docs", URL: "https://docs.example.com", GroupID: 10},
	}
}

func testGroups() []tabs.Group {
	return []tabs.Group{
		{ID: 10, Name: "Work", Color: "blue"},
	}
}

func TestFingerprintOrderIndependent(t *testing.T) {
	items := testItems()
	reversed := []tabs.Item{items[2], items[0], items[1]}

	a := New(items, testGroups())
	b := New(reversed, testGroups())

	if a.Fingerprint != b.Fingerprint {
		t.Errorf("reordered tabs changed fingerprint: %s vs %s", a.Fingerprint, b.Fingerprint)
	}
	if !a.Equal(b) {
		t.Error("Equal() = false for reordered snapshots")
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := New(testItems(), testGroups())

	// Title edit.
	edited := testItems()
	edited[0].Title = "Inbox (3)"
	if New(edited, testGroups()).Equal(base) {
		t.Error("title change did not change fingerprint")
	}

	// Manual regroup.
	moved := testItems()
	moved[0].GroupID = 10
	if New(moved, testGroups()).Equal(base) {
		t.Error("group reassignment did not change fingerprint")
	}

	// Group rename.
	renamed := testGroups()
	renamed[0].Name = "Deep Work"
	if New(testItems(), renamed).Equal(base) {
		t.Error("group rename did not change fingerprint")
	}

	// Tab removal.
	if New(testItems()[:2], testGroups()).Equal(base) {
		t.Error("tab removal did not change fingerprint")
	}
}

func TestNewCopiesInputs(t *testing.T) {
	items := testItems()
	s := New(items, testGroups())

	items[0].Title = "mutated"
	if s.Items[0].Title != "Inbox" {
		t.Error("snapshot items alias the caller's slice")
	}
}

func TestEqualNil(t *testing.T) {
	var a *Snapshot
	var b *Snapshot
	if !a.Equal(b) {
		t.Error("nil.Equal(nil) = false")
	}
	s := New(nil, nil)
	if s.Equal(nil) || a.Equal(s) {
		t.Error("nil compared equal to a real snapshot")
	}
}

func TestItemLookup(t *testing.T) {
	s := New(testItems(), testGroups())

	it, ok := s.Item(2)
	if !ok {
		t.Fatal("Item(2) not found")
	}
	if it.Title != "CI Dashboard" {
		t.Errorf("Item(2).Title = %q, want %q", it.Title, "CI Dashboard")
	}
	if _, ok := s.Item(99); ok {
		t.Error("Item(99) found, want missing")
	}
	if got := s.GroupName(10); got != "Work" {
		t.Errorf("GroupName(10) = %q, want %q", got, "Work")
	}
	if got := s.GroupName(99); got != "" {
		t.Errorf("GroupName(99) = %q, want empty", got)
	}
}

func TestClassifyNone(t *testing.T) {
	old := New(testItems(), testGroups())
	next := New(testItems(), testGroups())
	inflight := map[int64]struct{}{1: {}, 2: {}}

	if got := Classify(old, next, inflight); got != ChangeNone {
		t.Errorf("Classify(unchanged) = %v, want ChangeNone", got)
	}
}

func TestClassifyBenignNewTab(t *testing.T) {
	old := New(testItems(), testGroups())
	grown := append(testItems(), tabs.Item{ID: 4, Title: "News", URL: "https://news.example.com"})
	next := New(grown, testGroups())
	inflight := map[int64]struct{}{1: {}, 2: {}}

	if got := Classify(old, next, inflight); got != ChangeBenign {
		t.Errorf("Classify(new unrelated tab) = %v, want ChangeBenign", got)
	}
}

func TestClassifyFatalInflightRemoved(t *testing.T) {
	old := New(testItems(), testGroups())
	next := New(testItems()[1:], testGroups()) // tab 1 gone
	inflight := map[int64]struct{}{1: {}}

	if got := Classify(old, next, inflight); got != ChangeFatal {
		t.Errorf("Classify(in-flight tab removed) = %v, want ChangeFatal", got)
	}
}

func TestClassifyFatalInflightRegrouped(t *testing.T) {
	old := New(testItems(), testGroups())
	moved := testItems()
	moved[0].GroupID = 10 // user dragged tab 1 into Work
	next := New(moved, testGroups())
	inflight := map[int64]struct{}{1: {}}

	if got := Classify(old, next, inflight); got != ChangeFatal {
		t.Errorf("Classify(in-flight tab regrouped) = %v, want ChangeFatal", got)
	}
}

func TestClassifyBenignOutsideBatch(t *testing.T) {
	old := New(testItems(), testGroups())
	moved := testItems()
	moved[0].GroupID = 10 // tab 1 changed, but batch is tab 2 and 3
	next := New(moved, testGroups())
	inflight := map[int64]struct{}{2: {}, 3: {}}

	if got := Classify(old, next, inflight); got != ChangeBenign {
		t.Errorf("Classify(change outside batch) = %v, want ChangeBenign", got)
	}
}

func TestClassifyEmptyInflight(t *testing.T) {
	old := New(testItems(), testGroups())
	next := New(testItems()[:1], nil)

	if got := Classify(old, next, nil); got != ChangeBenign {
		t.Errorf("Classify(no in-flight batch) = %v, want ChangeBenign", got)
	}
}

func TestClassifyNilNewSnapshot(t *testing.T) {
	old := New(testItems(), testGroups())
	inflight := map[int64]struct{}{1: {}}

	if got := Classify(old, nil, inflight); got != ChangeFatal {
		t.Errorf("Classify(window gone) = %v, want ChangeFatal", got)
	}
}

func TestChangeKindString(t *testing.T) {
	cases := map[ChangeKind]string{
		ChangeNone:    "none",
		ChangeBenign:  "benign",
		ChangeFatal:   "fatal",
		ChangeKind(9): "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("ChangeKind(%d).String() = %q, want %q", int(k), got, want)
		}
	}
}
