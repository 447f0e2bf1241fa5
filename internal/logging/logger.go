/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/gologme/log"
)

// Levels from least to most verbose.
var Levels = []string{"error", "warn", "info", "debug"}

// ValidLevel reports whether level is one of Levels.
func ValidLevel(level string) bool {
	level = strings.ToLower(strings.TrimSpace(level))
	for _, l := range Levels {
		if l == level {
			return true
		}
	}
	return false
}

// New returns a leveled logger writing to w with a coloured component
// prefix. Every level up to and including level is enabled.
func New(w io.Writer, component string, attr color.Attribute, level string) *log.Logger {
	paint := color.New(attr).SprintfFunc()
	l := log.New(w, fmt.Sprintf("[ %s ] ", paint(component)), log.LstdFlags|log.Lmsgprefix)
	EnableLevels(l, level)
	return l
}

func EnableLevels(l *log.Logger, level string) {
	level = strings.ToLower(strings.TrimSpace(level))
	if !ValidLevel(level) {
		level = "info"
	}
	for _, name := range Levels {
		l.EnableLevel(name)
		if name == level {
			return
		}
	}
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
