// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import "errors"

var (
	// ErrInvalidConfig indicates the store configuration failed validation.
	ErrInvalidConfig = errors.New("invalid store configuration")

	// ErrNotLoaded is returned by operations invoked before Load succeeds.
	ErrNotLoaded = errors.New("store not loaded")

	// ErrAlreadyLoaded is returned by Load when the store is already
	// loaded or loading.
	ErrAlreadyLoaded = errors.New("store already loaded")

	// ErrClosed is returned by operations invoked after Close.
	ErrClosed = errors.New("store closed")

	// ErrNotFound indicates the requested key has no live entry.
	ErrNotFound = errors.New("not found")
)
