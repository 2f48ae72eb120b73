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
	"fmt"
	"strings"
	"time"
)

// ProviderKind selects a classification backend.
type ProviderKind string

const (
	// ProviderOpenAI uses the OpenAI chat completions API.
	ProviderOpenAI ProviderKind = "openai"

	// ProviderOllama uses a local model served by Ollama.
	ProviderOllama ProviderKind = "ollama"

	// ProviderPattern uses the offline rule engine only.
	ProviderPattern ProviderKind = "pattern"
)

// Config configures the classification engine and its provider.
//
// Thread Safety: Do not modify after passing to NewEngine.
type Config struct {
	// Provider selects the backend. Defaults to ProviderPattern.
	Provider ProviderKind `yaml:"provider"`

	// Model is the model name. Provider-specific default if empty.
	Model string `yaml:"model"`

	// BaseURL is the Ollama endpoint, e.g. http://localhost:11434.
	// Ignored by other providers.
	BaseURL string `yaml:"base_url"`

	// APIKey is the cloud API key. If empty, the environment and the
	// container secrets path are consulted.
	APIKey string `yaml:"api_key"`

	// Temperature for classification. Small but non-zero; some models
	// return empty output at exactly 0.
	Temperature float32 `yaml:"temperature"`

	// MaxTokens limits the response length. Must be > 0.
	MaxTokens int `yaml:"max_tokens"`

	// Timeout bounds each provider attempt. Must be > 0.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries before giving up or falling back to rules.
	// 0 = no retries.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the base for exponential backoff.
	// Retry N waits RetryBackoff * 2^(N-1).
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// MaxConcurrent limits simultaneous provider calls. 0 = unlimited.
	MaxConcurrent int `yaml:"max_concurrent"`

	// RequestsPerMinute rate-limits cloud providers. 0 = unlimited.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// FallbackToRules answers from the rule engine when the primary
	// provider fails for any reason other than cancellation.
	FallbackToRules bool `yaml:"fallback_to_rules"`
}

// DefaultConfig returns production defaults: local-first (Ollama),
// short timeout, modest retry budget, rule fallback on.
func DefaultConfig() Config {
	return Config{
		Provider:          ProviderOllama,
		Temperature:       0.1,
		MaxTokens:         1024,
		Timeout:           30 * time.Second,
		MaxRetries:        2,
		RetryBackoff:      250 * time.Millisecond,
		MaxConcurrent:     2,
		RequestsPerMinute: 0,
		FallbackToRules:   true,
	}
}

// Validate checks that config values are within valid ranges.
//
// # Outputs
//
//   - error: Non-nil if any field is invalid, describing all issues.
func (c Config) Validate() error {
	var errs []string

	switch c.Provider {
	case "", ProviderOpenAI, ProviderOllama, ProviderPattern:
	default:
		errs = append(errs, fmt.Sprintf("Provider %q is not recognized", c.Provider))
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		errs = append(errs, "Temperature must be between 0.0 and 1.0")
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, "MaxTokens must be positive")
	}
	if c.Timeout <= 0 {
		errs = append(errs, "Timeout must be positive")
	}
	if c.MaxRetries < 0 {
		errs = append(errs, "MaxRetries must be non-negative")
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, "RetryBackoff must be non-negative")
	}
	if c.MaxConcurrent < 0 {
		errs = append(errs, "MaxConcurrent must be non-negative")
	}
	if c.RequestsPerMinute < 0 {
		errs = append(errs, "RequestsPerMinute must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}
