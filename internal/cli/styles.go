// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/deepgate/internal/model"
)

// init configures the lipgloss color profile from terminal capabilities.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// PromptStyle is the REPL input prompt
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	// TitleStyle is used for banners and section headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("141"))

	// CommandStyle highlights commands and model names
	CommandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// DimStyle is used for hints and secondary information
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// roleStyles colors speaker labels.
var roleStyles = map[model.Role]lipgloss.Style{
	model.RoleUser:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	model.RoleAssistant: lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
	model.RoleSystem:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
}

// =============================================================================
// HELPERS
// =============================================================================

// RenderSeparator renders a horizontal rule. Default width is 30.
func RenderSeparator(width ...int) string {
	w := 30
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return SeparatorStyle.Render(strings.Repeat("─", w))
}

// RenderRole renders a role's display name in its color.
func RenderRole(role model.Role) string {
	style, ok := roleStyles[role]
	if !ok {
		return role.DisplayName()
	}
	return style.Render(role.DisplayName())
}

// RenderStatus renders a bracketed status tag.
func RenderStatus(status string) string {
	switch strings.ToLower(status) {
	case "ok", "running", "loaded":
		return SuccessStyle.Render("[" + strings.ToUpper(status) + "]")
	case "error", "fail":
		return ErrorStyle.Render("[" + strings.ToUpper(status) + "]")
	case "loading", "warn":
		return WarningStyle.Render("[" + strings.ToUpper(status) + "]")
	default:
		return DimStyle.Render("[" + strings.ToUpper(status) + "]")
	}
}
