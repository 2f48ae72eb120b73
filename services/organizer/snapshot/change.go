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

// ChangeKind classifies how a window changed relative to the batch of
// tabs currently held by an in-flight classifier call.
type ChangeKind int

const (
	// ChangeNone means the window state is unchanged.
	ChangeNone ChangeKind = iota

	// ChangeBenign means the window changed in a way that does not touch
	// the in-flight batch (e.g. a new, unrelated tab). In-flight results
	// remain valid; the delta is picked up on the next drain.
	ChangeBenign

	// ChangeFatal means a tab in the in-flight batch was removed, edited,
	// or regrouped, or the window itself is gone. In-flight results must
	// be discarded and the window reprocessed from the new snapshot.
	ChangeFatal
)

// String returns the lowercase label used in logs and metrics.
func (k ChangeKind) String() string {
	switch k {
	case ChangeNone:
		return "none"
	case ChangeBenign:
		return "benign"
	case ChangeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify compares two snapshots of one window against the set of tab
// ids currently held by an in-flight classifier call.
//
// # Description
//
//	The rule is conservative: any delta touching an in-flight tab is
//	fatal, whether the tab vanished, its title or URL changed, or it
//	was moved to a different group (a manual action the classifier
//	result would contradict). Deltas confined to tabs outside the batch
//	are benign.
//	Mis-classifying benign as fatal wastes classifier calls;
//	mis-classifying fatal as benign applies stale groupings over a
//	user's explicit action, so ties break toward fatal.
//
// # Inputs
//
//   - old: The snapshot the in-flight batch was built from.
//   - new: The freshly captured snapshot.
//   - inflight: Tab ids currently at the classifier. May be empty.
//
// # Outputs
//
//   - ChangeKind: ChangeNone when fingerprints match, otherwise
//     ChangeBenign or ChangeFatal per the rule above.
func Classify(old, new *Snapshot, inflight map[int64]struct{}) ChangeKind {
	if old.Equal(new) {
		return ChangeNone
	}
	if len(inflight) == 0 {
		return ChangeBenign
	}
	if old == nil || new == nil {
		return ChangeFatal
	}
	for id := range inflight {
		before, ok := old.Item(id)
		if !ok {
			// The batch was built from old; missing means the caller's
			// bookkeeping is off. Fail safe.
			return ChangeFatal
		}
		after, ok := new.Item(id)
		if !ok || before != after {
			return ChangeFatal
		}
	}
	return ChangeBenign
}
