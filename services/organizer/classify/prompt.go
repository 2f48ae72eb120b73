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
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
)

// groupingPromptTemplate asks for strict JSON to keep parsing cheap.
// Tab titles and URLs dominate the token count; instructions and group
// names are short.
const groupingPromptTemplate = `You are a browser tab organizer.

Assign each tab to a named group based on its title and URL. Prefer the
existing groups below; invent a new short name (1-3 words) only when no
existing group fits. Leave a tab out of the answer entirely if it does
not belong in any group.
{{if .Groups}}
Existing groups:
{{range .Groups}}- {{.}}
{{end}}{{end}}{{if .Instructions}}
User rules (follow these first):
{{.Instructions}}
{{end}}
Tabs:
{{range .Items}}- id={{.ID}} title={{printf "%q" .Title}} url={{printf "%q" .URL}}
{{end}}
Respond with ONLY valid JSON (no markdown, no preamble):
{"assignments":[{"id":1,"group":"Name","confidence":0.0-1.0,"reasoning":"brief"}]}`

var promptTemplate = template.Must(template.New("grouping").Parse(groupingPromptTemplate))

// BuildPrompt renders the grouping prompt for a request.
func BuildPrompt(req *Request) (string, error) {
	data := struct {
		Groups       []string
		Instructions string
		Items        any
	}{
		Groups:       req.ExistingGroups,
		Instructions: strings.TrimSpace(req.Instructions),
		Items:        req.Items,
	}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// ExtractJSON locates the first balanced JSON object in model output.
//
// # Description
//
//	Models wrap JSON in markdown fences or prose despite instructions.
//	This strips code fences, then scans for the first '{' and returns
//	the balanced object, tracking string literals and escapes so braces
//	inside strings do not confuse the scan.
//
// # Outputs
//
//   - []byte: The raw JSON object, verified to unmarshal.
//   - error: ErrNoJSON when no parseable object exists.
func ExtractJSON(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrNoJSON
	}

	// Strip a surrounding code fence, with or without a language tag.
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		if idx := strings.IndexByte(s, '\n'); idx >= 0 {
			// Drop the language tag line (```json, ```JSON, bare ```).
			first := strings.TrimSpace(s[:idx])
			if len(first) <= 8 && !strings.ContainsAny(first, "{}") {
				s = s[idx+1:]
			}
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					candidate := []byte(s[start : i+1])
					if !json.Valid(candidate) {
						return nil, fmt.Errorf("%w: unbalanced or malformed object", ErrNoJSON)
					}
					return candidate, nil
				}
			}
		}
	}

	return nil, fmt.Errorf("%w: object never closes", ErrNoJSON)
}

// wireResult is the JSON shape providers are prompted to emit.
type wireResult struct {
	Assignments []Assignment `json:"assignments"`
}

// ParseResult extracts and validates assignments from raw model output.
//
// # Description
//
//	Drops assignments for tab ids not present in the request (models
//	occasionally invent ids), drops empty group names, clamps confidence
//	into [0,1], and keeps only the first assignment per tab.
func ParseResult(raw string, req *Request, providerName string) (*Result, error) {
	data, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var wire wireResult
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parse assignments: %w", err)
	}

	known := make(map[int64]struct{}, len(req.Items))
	for _, it := range req.Items {
		known[it.ID] = struct{}{}
	}

	seen := make(map[int64]struct{}, len(wire.Assignments))
	out := make([]Assignment, 0, len(wire.Assignments))
	for _, a := range wire.Assignments {
		a.Group = strings.TrimSpace(a.Group)
		if a.Group == "" {
			continue
		}
		if _, ok := known[a.ItemID]; !ok {
			slog.Warn("classifier suggested unknown tab id",
				slog.Int64("tab_id", a.ItemID),
				slog.String("provider", providerName))
			continue
		}
		if _, dup := seen[a.ItemID]; dup {
			continue
		}
		seen[a.ItemID] = struct{}{}
		if a.Confidence < 0 {
			a.Confidence = 0
		}
		if a.Confidence > 1 {
			a.Confidence = 1
		}
		out = append(out, a)
	}

	return &Result{Assignments: out, Provider: providerName}, nil
}
