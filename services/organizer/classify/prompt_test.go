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
	"encoding/json"
	"strings"
	"testing"

	"github.com/AleutianAI/tabherd/services/organizer/tabs"
)

func testRequest() *Request {
	return &Request{
		WindowID: 7,
		Items: []tabs.Item{
			{ID: 1, Title: "Pull request #42", URL: "https://github.com/acme/widget/pull/42"},
			{ID: 2, Title: "Receipt", URL: "https://pay.example.com/receipt/9"},
		},
		ExistingGroups: []string{"Dev", "Shopping"},
		Instructions:   "Put anything from github into Dev.",
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt(testRequest())
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}

	for _, want := range []string{
		"id=1", "id=2",
		`"Pull request #42"`,
		"- Dev", "- Shopping",
		"Put anything from github into Dev.",
		`"assignments"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptOmitsEmptySections(t *testing.T) {
	req := testRequest()
	req.ExistingGroups = nil
	req.Instructions = ""

	prompt, err := BuildPrompt(req)
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if strings.Contains(prompt, "Existing groups:") {
		t.Error("prompt should omit the groups section when there are none")
	}
	if strings.Contains(prompt, "User rules") {
		t.Error("prompt should omit the rules section when empty")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "clean JSON", input: `{"assignments":[]}`},
		{name: "surrounding whitespace", input: "   {\"assignments\":[]}   "},
		{name: "markdown JSON block", input: "```json\n{\"assignments\":[]}\n```"},
		{name: "uppercase language tag", input: "```JSON\n{\"assignments\":[]}\n```"},
		{name: "generic code block", input: "```\n{\"assignments\":[]}\n```"},
		{name: "preamble", input: "Here are the groups:\n{\"assignments\":[]}"},
		{name: "postamble", input: "{\"assignments\":[]}\nHope this helps!"},
		{name: "braces inside string", input: `{"a":"text {with} braces","assignments":[]}`},
		{name: "escaped quotes", input: `{"a":"he said \"hi\"","assignments":[]}`},
		{name: "first of two objects", input: `{"first":1} {"second":2}`},
		{name: "empty string", input: "", wantErr: true},
		{name: "whitespace only", input: "  \t\n ", wantErr: true},
		{name: "no JSON", input: "just prose, nothing else", wantErr: true},
		{name: "malformed", input: "{assignments: []}", wantErr: true},
		{name: "never closes", input: `{"assignments":[`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ExtractJSON(%q) expected error, got %s", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON(%q): %v", tt.input, err)
			}
			if !json.Valid(got) {
				t.Errorf("ExtractJSON(%q) returned invalid JSON: %s", tt.input, got)
			}
		})
	}
}

func TestParseResultFiltersBadAssignments(t *testing.T) {
	req := testRequest()
	raw := `{"assignments":[
		{"id":1,"group":"Dev","confidence":0.9},
		{"id":1,"group":"Duplicate","confidence":0.5},
		{"id":2,"group":"","confidence":0.8},
		{"id":99,"group":"Hallucinated","confidence":1.0}
	]}`

	result, err := ParseResult(raw, req, "test")
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}

	if len(result.Assignments) != 1 {
		t.Fatalf("assignments = %d, want 1 (got %+v)", len(result.Assignments), result.Assignments)
	}
	a := result.Assignments[0]
	if a.ItemID != 1 || a.Group != "Dev" {
		t.Errorf("kept assignment = %+v, want id 1 in Dev", a)
	}

	unmatched := result.Unmatched(req)
	if len(unmatched) != 1 || unmatched[0] != 2 {
		t.Errorf("unmatched = %v, want [2]", unmatched)
	}
}

func TestParseResultClampsConfidence(t *testing.T) {
	req := testRequest()
	raw := `{"assignments":[
		{"id":1,"group":"Dev","confidence":7.5},
		{"id":2,"group":"Shopping","confidence":-1}
	]}`

	result, err := ParseResult(raw, req, "test")
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	for _, a := range result.Assignments {
		if a.Confidence < 0 || a.Confidence > 1 {
			t.Errorf("confidence %f out of range for tab %d", a.Confidence, a.ItemID)
		}
	}
}

func TestParseResultNoJSON(t *testing.T) {
	if _, err := ParseResult("I could not group these tabs.", testRequest(), "test"); err == nil {
		t.Error("expected error for prose response")
	}
}

func TestRequestKeyStable(t *testing.T) {
	a := testRequest()
	b := testRequest()
	if a.Key() != b.Key() {
		t.Error("identical requests must share a key")
	}

	b.Items[0].Title = "changed"
	if a.Key() == b.Key() {
		t.Error("different tab content must change the key")
	}

	c := testRequest()
	c.Instructions = "different rules"
	if a.Key() == c.Key() {
		t.Error("different instructions must change the key")
	}
}
