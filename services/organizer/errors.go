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

import "errors"

var (
	// ErrUnknownWindow means no connected session (and no REST ingest)
	// has reported the window.
	ErrUnknownWindow = errors.New("window is not tracked")

	// ErrNoSession means the window is known but no extension socket
	// can carry commands for it, so nothing can be applied.
	ErrNoSession = errors.New("no extension session for window")

	// ErrSessionClosed means the extension disconnected while a command
	// was awaiting its result.
	ErrSessionClosed = errors.New("session closed before command completed")

	// ErrApplyTimeout means the extension did not acknowledge an
	// apply_group command within the command timeout.
	ErrApplyTimeout = errors.New("apply command timed out")

	// ErrNothingToApply means every cached suggestion for the requested
	// group is stale: its tab closed, navigated, or was grouped by hand.
	ErrNothingToApply = errors.New("no live suggestions for group")
)
