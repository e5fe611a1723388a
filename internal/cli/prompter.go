// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
)

// TerminalPrompter asks retry questions on the terminal. Without a line
// editor or a TTY every retry is declined.
type TerminalPrompter struct {
	line *liner.State
	out  io.Writer
}

// NewTerminalPrompter creates a prompter reading answers through line.
func NewTerminalPrompter(line *liner.State, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{line: line, out: out}
}

// ConfirmRetry prints the failure and asks whether to try again.
func (p *TerminalPrompter) ConfirmRetry(ctx context.Context, title, message string) bool {
	fmt.Fprintf(p.out, "%s %s\n", ErrorStyle.Render("["+title+"]"), message)

	if p.line == nil || !CanPrompt() || ctx.Err() != nil {
		return false
	}
	answer, err := p.line.Prompt("Retry? [Y/n] ")
	if err != nil {
		return false
	}
	return parseYes(answer, true)
}

// parseYes interprets a y/n answer; blank input returns def.
func parseYes(answer string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "":
		return def
	case "y", "yes", "r", "retry":
		return true
	default:
		return false
	}
}
