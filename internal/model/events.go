// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// ChangeType identifies what happened to a conversation.
type ChangeType int

const (
	ChangeAppended ChangeType = iota
	ChangeUpdated
	ChangeCompleted
	ChangeModel
)

// String returns the change type name.
func (t ChangeType) String() string {
	switch t {
	case ChangeAppended:
		return "appended"
	case ChangeUpdated:
		return "updated"
	case ChangeCompleted:
		return "completed"
	case ChangeModel:
		return "model"
	default:
		return "unknown"
	}
}

// Change describes one mutation. Message is a copy taken at the time of the
// change; Index is -1 for model changes.
type Change struct {
	Type    ChangeType
	Index   int
	Message Message
	Model   string
}

// Listener receives changes synchronously on the mutating goroutine.
type Listener func(Change)

// Subscribe registers l and returns a function that removes it.
func (c *Conversation) Subscribe(l Listener) (unsubscribe func()) {
	if c.listeners == nil {
		c.listeners = make(map[int]Listener)
	}
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = l

	return func() {
		delete(c.listeners, id)
	}
}

func (c *Conversation) emit(change Change) {
	for _, l := range c.listeners {
		l(change)
	}
}
