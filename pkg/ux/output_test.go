// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"strings"
	"testing"
)

// withMode runs a test body under a fixed output mode.
func withMode(t *testing.T, m Mode, fn func()) {
	t.Helper()
	prev := GetMode()
	SetMode(m)
	defer SetMode(prev)
	fn()
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{in: "plain", want: ModePlain},
		{in: "machine", want: ModePlain},
		{in: "p", want: ModePlain},
		{in: "PLAIN", want: ModePlain},
		{in: "styled", want: ModeStyled},
		{in: "", want: ModeStyled},
		{in: "whatever", want: ModeStyled},
	}
	for _, tt := range tests {
		if got := ParseMode(tt.in); got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSetMode(t *testing.T) {
	withMode(t, ModePlain, func() {
		if !Plain() {
			t.Error("Plain() = false after SetMode(ModePlain)")
		}
	})
	withMode(t, ModeStyled, func() {
		if Plain() {
			t.Error("Plain() = true after SetMode(ModeStyled)")
		}
	})
}

func TestIconRender(t *testing.T) {
	// Every icon renders to something containing its glyph; styling
	// escapes may wrap it depending on the terminal profile.
	icons := []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow, IconBullet}
	for _, icon := range icons {
		if got := icon.Render(); !strings.Contains(got, string(icon)) {
			t.Errorf("Icon(%q).Render() = %q, glyph missing", string(icon), got)
		}
	}
}

func TestSwatch(t *testing.T) {
	withMode(t, ModeStyled, func() {
		for _, color := range []string{"grey", "blue", "red", "yellow", "green", "pink", "purple", "cyan", "orange"} {
			if got := Swatch(color); !strings.Contains(got, "●") {
				t.Errorf("Swatch(%q) = %q, want a colored dot", color, got)
			}
		}
		if got := Swatch("mauve"); got != string(IconBullet) {
			t.Errorf("Swatch(unknown) = %q, want plain bullet", got)
		}
	})

	withMode(t, ModePlain, func() {
		if got := Swatch("blue"); got != "blue" {
			t.Errorf("plain Swatch = %q, want the color name", got)
		}
	})
}

func TestGroupLabel(t *testing.T) {
	withMode(t, ModePlain, func() {
		if got := GroupLabel("Work", "blue"); got != "Work(blue)" {
			t.Errorf("plain GroupLabel = %q", got)
		}
		if got := GroupLabel("Work", ""); got != "Work" {
			t.Errorf("plain GroupLabel with no color = %q", got)
		}
	})

	withMode(t, ModeStyled, func() {
		if got := GroupLabel("Work", "blue"); !strings.Contains(got, "Work") {
			t.Errorf("styled GroupLabel = %q, name missing", got)
		}
	})
}
