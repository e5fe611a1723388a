// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/deepgate/internal/deepgate"
)

// SummaryLength is the rune limit of a generated session summary.
const SummaryLength = 50

// DefaultSystemPrompt seeds new sessions when no prompt is configured.
const DefaultSystemPrompt = "You are a very helpful assistant and the user needs your help with day to day tasks or maybe answers to some weird questions. " +
	"When asked about your name, tell them you are Tinkerbell from a fairyland far away, give made up details but never tell them what you truly are."

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidArgument is a rejected mutation. The conversation is unchanged.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrEmptyMessage = fmt.Errorf("%w: message is empty", ErrInvalidArgument)
	ErrNoModel      = fmt.Errorf("%w: no model selected", ErrInvalidArgument)

	// ErrNotPending is returned when a handle is not a pending assistant
	// reply of the conversation.
	ErrNotPending = errors.New("not a pending assistant reply of this conversation")
)

// =============================================================================
// KIND TYPE
// =============================================================================

// Kind classifies a stored session.
type Kind string

const (
	KindChat   Kind = "chat"
	KindNote   Kind = "note"
	KindPrompt Kind = "prompt"
)

// ParseKind parses a kind name, defaulting to chat for an empty string.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindChat:
		return KindChat, nil
	case KindNote:
		return KindNote, nil
	case KindPrompt:
		return KindPrompt, nil
	}
	return "", fmt.Errorf("%w: unknown session kind %q", ErrInvalidArgument, s)
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is one chat session: an ordered message list, seeded with a
// system message, and the model the next completion goes to.
//
// A Conversation is not safe for concurrent use. All mutations are expected
// to come from one goroutine; the chat package runs them on its dispatcher.
// It never persists itself.
type Conversation struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	Model     string     `json:"model,omitempty"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	listeners    map[int]Listener
	nextListener int
}

// NewConversation creates a chat session seeded with a system message.
func NewConversation(systemPrompt string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.NewString(),
		Kind:      KindChat,
		Messages:  []*Message{NewMessage(RoleSystem, systemPrompt)},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// SetModel selects the model for subsequent completions. Messages already
// sent are unaffected.
func (c *Conversation) SetModel(name string) {
	name = strings.TrimSpace(name)
	if name == c.Model {
		return
	}
	c.Model = name
	c.touch()
	c.emit(Change{Type: ChangeModel, Index: -1, Model: name})
}

// AppendUserMessage appends a user message. It fails with ErrEmptyMessage
// for blank text and ErrNoModel when no model is selected.
func (c *Conversation) AppendUserMessage(text string) (*Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if c.Model == "" {
		return nil, ErrNoModel
	}

	msg := NewMessage(RoleUser, text)
	c.append(msg)
	return msg, nil
}

// BeginAssistantReply appends an empty, incomplete assistant message and
// returns it as the handle a stream writes through.
func (c *Conversation) BeginAssistantReply() *Message {
	msg := newPendingReply()
	c.append(msg)
	return msg
}

// UpdateAssistantReply replaces a pending reply's content with the answer
// accumulated so far.
func (c *Conversation) UpdateAssistantReply(handle *Message, content string) error {
	idx := c.pendingIndex(handle)
	if idx < 0 {
		return ErrNotPending
	}
	if handle.Content == content {
		return nil
	}
	handle.Content = content
	c.touch()
	c.emit(Change{Type: ChangeUpdated, Index: idx, Message: *handle})
	return nil
}

// CompleteAssistantReply marks a pending reply complete. This is the point
// at which a turn may be persisted.
func (c *Conversation) CompleteAssistantReply(handle *Message) error {
	idx := c.pendingIndex(handle)
	if idx < 0 {
		return ErrNotPending
	}
	handle.IsComplete = true
	c.touch()
	c.emit(Change{Type: ChangeCompleted, Index: idx, Message: *handle})
	return nil
}

func (c *Conversation) append(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.touch()
	c.emit(Change{Type: ChangeAppended, Index: len(c.Messages) - 1, Message: *msg})
}

func (c *Conversation) touch() {
	c.UpdatedAt = time.Now()
}

// pendingIndex returns the index of handle if it is a pending reply held by
// this conversation, or -1.
func (c *Conversation) pendingIndex(handle *Message) int {
	if handle == nil || !handle.IsPending() {
		return -1
	}
	for i, msg := range c.Messages {
		if msg == handle {
			return i
		}
	}
	return -1
}

// =============================================================================
// QUERIES
// =============================================================================

// ToChatCompletion builds the request payload. Incomplete assistant replies
// are left out, so a failed turn retried later resends the same prompt.
func (c *Conversation) ToChatCompletion() deepgate.ChatCompletion {
	messages := make([]deepgate.Message, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.IsPending() {
			continue
		}
		messages = append(messages, msg.ToWire())
	}
	return deepgate.ChatCompletion{Model: c.Model, Messages: messages}
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// PendingReply returns the trailing incomplete assistant reply, or nil.
func (c *Conversation) PendingReply() *Message {
	if last := c.LastMessage(); last != nil && last.IsPending() {
		return last
	}
	return nil
}

// MessageCount returns the number of messages, system message included.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsComplete reports whether no reply is pending.
func (c *Conversation) IsComplete() bool {
	for _, msg := range c.Messages {
		if msg.IsPending() {
			return false
		}
	}
	return true
}

// Summary returns a one-line label from the first user message.
func (c *Conversation) Summary() string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			return msg.Preview(SummaryLength)
		}
	}
	return "New conversation"
}

// Validate checks the structural invariants of a loaded conversation.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: conversation has no id", ErrInvalidArgument)
	}
	if len(c.Messages) > 0 && c.Messages[0].Role != RoleSystem {
		return fmt.Errorf("%w: first message must be the system prompt", ErrInvalidArgument)
	}
	for i, msg := range c.Messages {
		if msg == nil || !msg.Role.Valid() {
			return fmt.Errorf("%w: message %d has no valid role", ErrInvalidArgument, i)
		}
	}
	return nil
}

// Clone returns a deep copy for persistence. Listeners are not copied.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:        c.ID,
		Kind:      c.Kind,
		Model:     c.Model,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Messages:  make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		msgCopy := *msg
		clone.Messages[i] = &msgCopy
	}
	return clone
}

// GetMeta returns lightweight listing metadata.
func (c *Conversation) GetMeta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Kind:         c.Kind,
		Model:        c.Model,
		Summary:      c.Summary(),
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// ConversationMeta holds lightweight metadata for listing.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Model        string    `json:"model"`
	Summary      string    `json:"summary"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
