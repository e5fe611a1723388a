// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/deepgate/internal/model"
)

// StreamRenderer prints a streaming assistant reply as it grows. It is a
// model.Listener and runs on the orchestrator's dispatcher.
type StreamRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	current string // message being streamed
	printed string
}

// NewStreamRenderer creates a renderer writing to out.
func NewStreamRenderer(out io.Writer) *StreamRenderer {
	return &StreamRenderer{out: out}
}

// OnChange handles one session change.
func (r *StreamRenderer) OnChange(c model.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch c.Type {
	case model.ChangeAppended:
		if c.Message.Role == model.RoleAssistant && !c.Message.IsComplete {
			r.current = c.Message.ID
			r.printed = ""
			fmt.Fprint(r.out, RenderRole(model.RoleAssistant)+": ")
		}

	case model.ChangeUpdated:
		if c.Message.ID != r.current {
			return
		}
		content := c.Message.Content
		if strings.HasPrefix(content, r.printed) {
			fmt.Fprint(r.out, content[len(r.printed):])
		} else {
			// Content restarted, e.g. on retry.
			fmt.Fprint(r.out, "\n"+RenderRole(model.RoleAssistant)+": "+content)
		}
		r.printed = content

	case model.ChangeCompleted:
		if c.Message.ID == r.current {
			fmt.Fprintln(r.out)
			r.current = ""
		}
	}
}

// Abort ends the line of a reply that will not complete.
func (r *StreamRenderer) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != "" {
		fmt.Fprintln(r.out)
		r.current = ""
	}
}
