// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package processor

import "errors"

var (
	// ErrInvalidOptions indicates a required collaborator is missing.
	ErrInvalidOptions = errors.New("invalid processor options")

	// ErrDisabled is returned by Run when organization is switched off
	// while work is pending. Pending windows stay queued untouched.
	ErrDisabled = errors.New("organization is disabled")

	// errStale aborts the rest of a window's chunks after a fatal
	// concurrent change. Internal control flow, never reported.
	errStale = errors.New("window changed while classifying")
)
