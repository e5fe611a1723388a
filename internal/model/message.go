// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/deepgate/internal/deepgate"
	"github.com/jeranaias/deepgate/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the three chat roles.
func (r Role) Valid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single message in a conversation.
//
// Role never changes after creation. An assistant reply is created
// incomplete; its content is replaced as tokens stream in and frozen once
// IsComplete is set.
type Message struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	IsComplete bool      `json:"is_complete"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewMessage creates a complete message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:         generateID(),
		Role:       role,
		Content:    content,
		IsComplete: true,
		Timestamp:  time.Now(),
	}
}

// newPendingReply creates the empty assistant message a stream writes into.
func newPendingReply() *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
	}
}

// IsPending reports whether m is an assistant reply still being streamed.
func (m *Message) IsPending() bool {
	return m.Role == RoleAssistant && !m.IsComplete
}

// Preview returns a one-line, rune-truncated preview of the content.
func (m *Message) Preview(maxLen int) string {
	return util.TruncateRunes(util.FlattenLines(m.Content), maxLen)
}

// ToWire converts the message to its wire form.
func (m *Message) ToWire() deepgate.Message {
	return deepgate.Message{Role: m.Role.String(), Content: m.Content}
}

func generateID() string {
	return "msg_" + uuid.NewString()
}
