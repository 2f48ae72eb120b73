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
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const openaiSecretPath = "/run/secrets/openai_api_key"

// OpenAIProvider classifies tabs with the OpenAI chat completions API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIProvider creates the cloud provider.
//
// # Description
//
//	The API key is taken from cfg.APIKey, then the OPENAI_API_KEY
//	environment variable, then the container secrets path. The model
//	defaults to gpt-4o-mini.
//
// # Outputs
//
//   - *OpenAIProvider: Ready to use.
//   - error: ErrNoCredentials when no key can be located.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		keyBytes, err := os.ReadFile(openaiSecretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found",
				slog.String("path", openaiSecretPath))
			return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrNoCredentials)
		}
		apiKey = strings.TrimSpace(string(keyBytes))
		slog.Info("Read the OpenAI API key from container secrets")
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
		slog.Warn("OpenAI model not set, defaulting to gpt-4o-mini")
	}

	slog.Info("Initializing OpenAI classifier", slog.String("model", model))
	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Name implements Provider.
func (o *OpenAIProvider) Name() string { return string(ProviderOpenAI) }

// Classify implements Provider.
func (o *OpenAIProvider) Classify(ctx context.Context, req *Request) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, ErrNoItems
	}

	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	slog.Debug("Classifying tabs via OpenAI",
		slog.String("model", o.model),
		slog.Int("tabs", len(req.Items)))

	chatReq := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:         o.temperature,
		MaxCompletionTokens: o.maxTokens,
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return nil, ErrEmptyResponse
	}

	return ParseResult(resp.Choices[0].Message.Content, req, o.Name())
}

var _ Provider = (*OpenAIProvider)(nil)
