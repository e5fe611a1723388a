// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/deepgate/internal/deepgate"
	"github.com/jeranaias/deepgate/internal/model"
	"github.com/jeranaias/deepgate/internal/storage"
	"github.com/jeranaias/deepgate/internal/util"
)

// transcriptPreview is the rune limit of a message line in /show.
const transcriptPreview = 200

// PrintModels lists models with their loading and running flags.
func PrintModels(out io.Writer, models []deepgate.LanguageModel) {
	if len(models) == 0 {
		fmt.Fprintln(out, DimStyle.Render("[No models available]"))
		return
	}

	fmt.Fprintln(out, TitleStyle.Render("Available Models"))
	fmt.Fprintln(out, RenderSeparator(20))
	for i, m := range models {
		status := ""
		switch {
		case m.IsLoading:
			status = " " + RenderStatus("loading")
		case m.IsRunning:
			status = " " + RenderStatus("running")
		}

		detail := strings.TrimSpace(strings.Join([]string{m.Family(), m.ParameterSize()}, " "))
		if detail != "" {
			detail = " " + DimStyle.Render("("+detail+")")
		}
		fmt.Fprintf(out, "  %2d. %s%s%s\n", i+1, CommandStyle.Render(m.Name), detail, status)
	}
}

// PrintHistory lists stored sessions, oldest first, numbered for /resume.
func PrintHistory(out io.Writer, sessions []storage.Summary) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, DimStyle.Render("[No saved sessions]"))
		return
	}

	fmt.Fprintln(out, TitleStyle.Render("Saved Sessions"))
	fmt.Fprintln(out, RenderSeparator(20))
	for i, s := range sessions {
		fmt.Fprintf(out, "  %2d. %s  %s  %s\n",
			i+1,
			DimStyle.Render(s.CreatedAt.Local().Format(time.DateTime)),
			s.Summary,
			DimStyle.Render(fmt.Sprintf("[%s, %s, %d msgs]", s.Kind, modelOrNone(s.Model), s.MessageCount)))
	}
}

// PrintTranscript prints every visible message of conv. The system prompt
// is skipped.
func PrintTranscript(out io.Writer, conv *model.Conversation) {
	fmt.Fprintf(out, "%s %s\n", TitleStyle.Render("Session"), DimStyle.Render(conv.ID))
	fmt.Fprintf(out, "%s %s\n", DimStyle.Render("Model:"), CommandStyle.Render(modelOrNone(conv.Model)))
	fmt.Fprintln(out, RenderSeparator())

	for _, msg := range conv.Messages {
		if msg.Role == model.RoleSystem {
			continue
		}
		line := util.TruncateRunes(util.FlattenLines(msg.Content), transcriptPreview)
		if msg.IsPending() {
			line += " " + WarningStyle.Render("[incomplete]")
		}
		fmt.Fprintf(out, "%s: %s\n", RenderRole(msg.Role), line)
	}
}

// resolveSessionRef maps a /resume argument to a session id. A number
// selects from the listing; anything else is an id or unique id prefix.
func resolveSessionRef(ref string, sessions []storage.Summary) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("usage: /resume <number|id>")
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(sessions) {
			return "", fmt.Errorf("no session %d (have %d)", n, len(sessions))
		}
		return sessions[n-1].ID, nil
	}

	match := ""
	for _, s := range sessions {
		if s.ID == ref {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("session prefix %q is ambiguous", ref)
			}
			match = s.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no session matches %q", ref)
	}
	return match, nil
}

func modelOrNone(name string) string {
	if name == "" {
		return "none"
	}
	return name
}
