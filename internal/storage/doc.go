// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session history persistence.
//
// # Key Types
//
//   - HistoryStore: upsert, list and load conversation snapshots
//   - SQLiteStore: default backend, one row per session
//   - FileStore: one JSON document per session
//   - MemoryStore: in-process, for ephemeral runs and tests
//
// # Usage
//
//	store, err := storage.Open(storage.Config{Backend: "sqlite", Path: dbPath})
//	err = store.Upsert(ctx, conv.Clone())
//	history, err := store.ListAll(ctx)
//
// # Storage Location
//
// By default the history lives in ~/.deepgate/history.db.
package storage
