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
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Mode selects between styled human output and plain machine output.
type Mode string

const (
	// ModeStyled renders colors, icons, and boxes.
	ModeStyled Mode = "styled"

	// ModePlain emits prefix-tagged plain text for scripts and pipes.
	ModePlain Mode = "plain"
)

var (
	currentMode = ModeStyled
	modeMu      sync.RWMutex
)

// GetMode returns the active output mode.
func GetMode() Mode {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return currentMode
}

// SetMode overrides the active output mode.
func SetMode(m Mode) {
	modeMu.Lock()
	defer modeMu.Unlock()
	currentMode = m
}

// ParseMode maps a flag value to a Mode. Unrecognized values fall
// back to styled.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "machine", "p":
		return ModePlain
	default:
		return ModeStyled
	}
}

// InitMode picks the output mode from the environment: TABHERD_PLAIN
// forces plain, and anything that is not a terminal gets plain too.
func InitMode() {
	if os.Getenv("TABHERD_PLAIN") != "" {
		SetMode(ModePlain)
		return
	}
	if !isTerminal() {
		SetMode(ModePlain)
		return
	}
	SetMode(ModeStyled)
}

func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Plain reports whether output should skip styling.
func Plain() bool {
	return GetMode() == ModePlain
}
