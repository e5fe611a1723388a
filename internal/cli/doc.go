// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the terminal front end of deepgate.
//
// # Key Types
//
//   - REPL: interactive chat loop with slash commands
//   - LineEditor: liner-based input with persistent history
//   - StreamRenderer: prints a reply as tokens arrive
//   - TerminalPrompter: asks whether to retry a failed request
//
// Output is styled with lipgloss when stdout is a terminal; NO_COLOR and
// FORCE_COLOR override the detection.
package cli
