// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs chat turns against a DeepGate server.
//
// The Orchestrator owns the current session on a Dispatcher goroutine. Send
// streams a reply into the session, persists completed turns in a
// storage.HistoryStore and asks a Prompter before any retry.
//
//	orch, err := chat.New(chat.Options{
//	    Client:       deepgate.NewClient(),
//	    Store:        store,
//	    Prompter:     prompter,
//	    DefaultModel: "llama3",
//	})
//	defer orch.Close()
//	err = orch.Send(ctx, "hello")
package chat
