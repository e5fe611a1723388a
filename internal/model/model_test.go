// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const testPrompt = "You are a helpful assistant."

func newReadyConversation(t *testing.T) *Conversation {
	t.Helper()
	conv := NewConversation(testPrompt)
	conv.SetModel("qwen2.5:7b")
	return conv
}

// =============================================================================
// CONSTRUCTION TESTS
// =============================================================================

func TestNewConversation_SeedsSystemMessage(t *testing.T) {
	conv := NewConversation(testPrompt)

	if conv.ID == "" {
		t.Error("ID should be generated")
	}
	if conv.Kind != KindChat {
		t.Errorf("Kind = %q, want chat", conv.Kind)
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("Messages = %d, want 1", len(conv.Messages))
	}

	first := conv.Messages[0]
	if first.Role != RoleSystem || first.Content != testPrompt || !first.IsComplete {
		t.Errorf("seed message = %+v", first)
	}
	if err := conv.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestNewConversation_UniqueIDs(t *testing.T) {
	a := NewConversation(testPrompt)
	b := NewConversation(testPrompt)
	if a.ID == b.ID {
		t.Error("conversation IDs should be unique")
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{"": KindChat, "chat": KindChat, "NOTE": KindNote, " prompt ": KindPrompt}
	for in, want := range tests {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	if _, err := ParseKind("diary"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ParseKind(diary) error = %v, want ErrInvalidArgument", err)
	}
}

// =============================================================================
// USER MESSAGE TESTS
// =============================================================================

func TestAppendUserMessage(t *testing.T) {
	conv := newReadyConversation(t)

	msg, err := conv.AppendUserMessage("Hello")
	if err != nil {
		t.Fatalf("AppendUserMessage error: %v", err)
	}
	if msg.Role != RoleUser || msg.Content != "Hello" || !msg.IsComplete {
		t.Errorf("message = %+v", msg)
	}
	if conv.LastMessage() != msg {
		t.Error("LastMessage should be the user message")
	}
}

func TestAppendUserMessage_RejectsWithoutMutation(t *testing.T) {
	tests := []struct {
		name  string
		model string
		text  string
		want  error
	}{
		{"empty", "qwen2.5:7b", "", ErrEmptyMessage},
		{"whitespace", "qwen2.5:7b", " \n\t ", ErrEmptyMessage},
		{"no model", "", "Hello", ErrNoModel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conv := NewConversation(testPrompt)
			conv.SetModel(tc.model)
			before := conv.UpdatedAt

			msg, err := conv.AppendUserMessage(tc.text)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
			if !errors.Is(err, ErrInvalidArgument) {
				t.Error("rejection should wrap ErrInvalidArgument")
			}
			if msg != nil {
				t.Error("no message should be returned")
			}
			if len(conv.Messages) != 1 {
				t.Errorf("Messages = %d, want 1", len(conv.Messages))
			}
			if !conv.UpdatedAt.Equal(before) {
				t.Error("UpdatedAt should not change")
			}
		})
	}
}

// =============================================================================
// ASSISTANT REPLY TESTS
// =============================================================================

func TestAssistantReplyLifecycle(t *testing.T) {
	conv := newReadyConversation(t)
	conv.AppendUserMessage("Hello")

	reply := conv.BeginAssistantReply()
	if reply.Role != RoleAssistant || reply.IsComplete || reply.Content != "" {
		t.Fatalf("pending reply = %+v", reply)
	}
	if conv.PendingReply() != reply {
		t.Error("PendingReply should return the handle")
	}
	if conv.IsComplete() {
		t.Error("IsComplete should be false while a reply is pending")
	}

	if err := conv.UpdateAssistantReply(reply, "Hi"); err != nil {
		t.Fatalf("UpdateAssistantReply error: %v", err)
	}
	if err := conv.UpdateAssistantReply(reply, "Hithere"); err != nil {
		t.Fatalf("UpdateAssistantReply error: %v", err)
	}
	if reply.Content != "Hithere" {
		t.Errorf("Content = %q, want full buffer 'Hithere'", reply.Content)
	}

	if err := conv.CompleteAssistantReply(reply); err != nil {
		t.Fatalf("CompleteAssistantReply error: %v", err)
	}
	if !reply.IsComplete {
		t.Error("reply should be complete")
	}
	if conv.PendingReply() != nil {
		t.Error("no reply should be pending")
	}
}

func TestCompletedReplyIsFrozen(t *testing.T) {
	conv := newReadyConversation(t)
	conv.AppendUserMessage("Hello")
	reply := conv.BeginAssistantReply()
	conv.UpdateAssistantReply(reply, "done")
	conv.CompleteAssistantReply(reply)

	if err := conv.UpdateAssistantReply(reply, "changed"); !errors.Is(err, ErrNotPending) {
		t.Errorf("update after complete = %v, want ErrNotPending", err)
	}
	if reply.Content != "done" {
		t.Errorf("Content = %q, want 'done'", reply.Content)
	}
	if err := conv.CompleteAssistantReply(reply); !errors.Is(err, ErrNotPending) {
		t.Errorf("second complete = %v, want ErrNotPending", err)
	}
}

func TestCompleteAssistantReply_ForeignHandle(t *testing.T) {
	conv := newReadyConversation(t)
	other := newReadyConversation(t)
	foreign := other.BeginAssistantReply()

	if err := conv.CompleteAssistantReply(foreign); !errors.Is(err, ErrNotPending) {
		t.Errorf("foreign handle = %v, want ErrNotPending", err)
	}
	if err := conv.CompleteAssistantReply(conv.Messages[0]); !errors.Is(err, ErrNotPending) {
		t.Errorf("system handle = %v, want ErrNotPending", err)
	}
	if err := conv.CompleteAssistantReply(nil); !errors.Is(err, ErrNotPending) {
		t.Errorf("nil handle = %v, want ErrNotPending", err)
	}
}

// =============================================================================
// PAYLOAD TESTS
// =============================================================================

func TestToChatCompletion_ExcludesPendingReply(t *testing.T) {
	conv := newReadyConversation(t)
	conv.AppendUserMessage("Hello")
	reply := conv.BeginAssistantReply()
	conv.UpdateAssistantReply(reply, "partial")

	payload := conv.ToChatCompletion()
	if payload.Model != "qwen2.5:7b" {
		t.Errorf("Model = %q", payload.Model)
	}
	if len(payload.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2 (system + user)", len(payload.Messages))
	}
	if payload.Messages[0].Role != "system" || payload.Messages[1].Role != "user" {
		t.Errorf("roles = %s, %s", payload.Messages[0].Role, payload.Messages[1].Role)
	}

	conv.CompleteAssistantReply(reply)
	payload = conv.ToChatCompletion()
	if len(payload.Messages) != 3 || payload.Messages[2].Content != "partial" {
		t.Errorf("completed reply should be sent, got %+v", payload.Messages)
	}
}

func TestSetModel_DoesNotRewriteMessages(t *testing.T) {
	conv := newReadyConversation(t)
	conv.AppendUserMessage("Hello")

	conv.SetModel("deepseek-r1:8b")
	payload := conv.ToChatCompletion()

	if payload.Model != "deepseek-r1:8b" {
		t.Errorf("Model = %q, want deepseek-r1:8b", payload.Model)
	}
	if len(payload.Messages) != 2 || payload.Messages[1].Content != "Hello" {
		t.Errorf("messages changed: %+v", payload.Messages)
	}
}

// =============================================================================
// SUBSCRIPTION TESTS
// =============================================================================

func TestSubscribe_ReceivesValueCopies(t *testing.T) {
	conv := NewConversation(testPrompt)

	var changes []Change
	unsubscribe := conv.Subscribe(func(c Change) {
		changes = append(changes, c)
	})

	conv.SetModel("qwen2.5:7b")
	conv.AppendUserMessage("Hello")
	reply := conv.BeginAssistantReply()
	conv.UpdateAssistantReply(reply, "Hi")
	conv.CompleteAssistantReply(reply)

	wantTypes := []ChangeType{ChangeModel, ChangeAppended, ChangeAppended, ChangeUpdated, ChangeCompleted}
	if len(changes) != len(wantTypes) {
		t.Fatalf("got %d changes, want %d", len(changes), len(wantTypes))
	}
	for i, want := range wantTypes {
		if changes[i].Type != want {
			t.Errorf("change %d = %s, want %s", i, changes[i].Type, want)
		}
	}

	// The update carried a snapshot, not the live message.
	if changes[3].Message.Content != "Hi" || changes[3].Message.IsComplete {
		t.Errorf("update snapshot = %+v", changes[3].Message)
	}
	if changes[3].Index != 2 {
		t.Errorf("update index = %d, want 2", changes[3].Index)
	}

	unsubscribe()
	conv.SetModel("other")
	if len(changes) != len(wantTypes) {
		t.Error("listener called after unsubscribe")
	}
}

// =============================================================================
// SNAPSHOT TESTS
// =============================================================================

func TestClone_IsDeep(t *testing.T) {
	conv := newReadyConversation(t)
	conv.AppendUserMessage("Hello")
	conv.Subscribe(func(Change) {})

	clone := conv.Clone()
	clone.Messages[1].Content = "edited"

	if conv.Messages[1].Content != "Hello" {
		t.Error("editing the clone changed the original")
	}
	if clone.listeners != nil {
		t.Error("listeners should not be cloned")
	}
	if clone.ID != conv.ID || clone.Model != conv.Model {
		t.Error("identity fields should be copied")
	}
}

func TestSummary(t *testing.T) {
	conv := newReadyConversation(t)
	if conv.Summary() != "New conversation" {
		t.Errorf("empty Summary = %q", conv.Summary())
	}

	conv.AppendUserMessage("Explain\nthe difference between TCP and UDP in a few short sentences please")
	summary := conv.Summary()

	if strings.Contains(summary, "\n") {
		t.Error("summary should be a single line")
	}
	if len([]rune(summary)) != SummaryLength {
		t.Errorf("summary has %d runes, want %d", len([]rune(summary)), SummaryLength)
	}
	if !strings.HasPrefix(summary, "Explain the difference") {
		t.Errorf("Summary = %q", summary)
	}
}

func TestConversation_JSONRoundTrip(t *testing.T) {
	conv := newReadyConversation(t)
	conv.AppendUserMessage("Hello")
	reply := conv.BeginAssistantReply()
	conv.UpdateAssistantReply(reply, "Hi")
	conv.CompleteAssistantReply(reply)

	data, err := json.Marshal(conv)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var loaded Conversation
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if len(loaded.Messages) != 3 || !loaded.Messages[2].IsComplete {
		t.Errorf("loaded messages = %+v", loaded.Messages)
	}
}

func TestValidate_RejectsMissingSystemSeed(t *testing.T) {
	conv := &Conversation{ID: "x", Messages: []*Message{NewMessage(RoleUser, "hi")}}
	if err := conv.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Validate() = %v, want ErrInvalidArgument", err)
	}
}
