// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation session and its messages.
//
// # Key Types
//
//   - Conversation: one chat session, seeded with a system message
//   - Message: single message with role, content and completion flag
//   - Change: value copy of a mutation, delivered to subscribers
//
// # Usage
//
// A turn appends the user message, opens a pending reply, replaces its
// content as the stream grows and completes it:
//
//	conv := model.NewConversation(systemPrompt)
//	conv.SetModel("qwen2.5:7b")
//	if _, err := conv.AppendUserMessage("Hello!"); err != nil {
//	    return err
//	}
//	reply := conv.BeginAssistantReply()
//	payload := conv.ToChatCompletion()
//	// ... stream payload, calling conv.UpdateAssistantReply(reply, answer)
//	err := conv.CompleteAssistantReply(reply)
package model
