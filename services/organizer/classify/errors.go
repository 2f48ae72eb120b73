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

import "errors"

// Sentinel errors for the classify package.
var (
	// ErrNoCredentials indicates no API key could be located for a
	// cloud provider.
	ErrNoCredentials = errors.New("no credentials")

	// ErrNoItems indicates a classification request with no tabs.
	ErrNoItems = errors.New("no items to classify")

	// ErrEmptyResponse indicates the provider returned no usable text.
	ErrEmptyResponse = errors.New("empty provider response")

	// ErrNoJSON indicates no JSON object could be extracted from the
	// provider response.
	ErrNoJSON = errors.New("no JSON object in response")

	// ErrUnknownProvider indicates an unrecognized provider name.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidConfig indicates the classifier configuration failed
	// validation.
	ErrInvalidConfig = errors.New("invalid classifier config")
)
