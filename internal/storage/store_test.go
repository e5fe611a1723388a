// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/deepgate/internal/model"
)

// backends returns a fresh instance of every store implementation.
func backends(t *testing.T) map[string]HistoryStore {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	files, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)

	return map[string]HistoryStore{
		"sqlite": sqlite,
		"file":   files,
		"memory": NewMemoryStore(),
	}
}

// completedTurn builds a conversation with one finished turn.
func completedTurn(t *testing.T, question, answer string) *model.Conversation {
	t.Helper()
	conv := model.NewConversation("You are concise.")
	conv.SetModel("qwen2.5:7b")
	_, err := conv.AppendUserMessage(question)
	require.NoError(t, err)
	reply := conv.BeginAssistantReply()
	require.NoError(t, conv.UpdateAssistantReply(reply, answer))
	require.NoError(t, conv.CompleteAssistantReply(reply))
	return conv
}

// =============================================================================
// CONTRACT TESTS
// =============================================================================

func TestHistoryStore_UpsertAndLoad(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv := completedTurn(t, "What is SSE?", "Server-sent events.")

			require.NoError(t, store.Upsert(ctx, conv.Clone()))

			loaded, err := store.Load(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, conv.ID, loaded.ID)
			assert.Equal(t, model.KindChat, loaded.Kind)
			assert.Equal(t, "qwen2.5:7b", loaded.Model)
			require.Len(t, loaded.Messages, 3)
			assert.Equal(t, model.RoleSystem, loaded.Messages[0].Role)
			assert.Equal(t, "Server-sent events.", loaded.Messages[2].Content)
			assert.True(t, loaded.Messages[2].IsComplete)
			assert.True(t, conv.CreatedAt.Equal(loaded.CreatedAt), "created_at should round-trip")
		})
	}
}

func TestHistoryStore_UpsertReplacesAndKeepsOrder(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := completedTurn(t, "first question", "a")
			time.Sleep(2 * time.Millisecond)
			second := completedTurn(t, "second question", "b")

			require.NoError(t, store.Upsert(ctx, first.Clone()))
			require.NoError(t, store.Upsert(ctx, second.Clone()))

			// A second turn on the first session replaces its snapshot.
			_, err := first.AppendUserMessage("follow up")
			require.NoError(t, err)
			reply := first.BeginAssistantReply()
			require.NoError(t, first.UpdateAssistantReply(reply, "c"))
			require.NoError(t, first.CompleteAssistantReply(reply))
			require.NoError(t, store.Upsert(ctx, first.Clone()))

			list, err := store.ListAll(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, first.ID, list[0].ID, "re-upsert keeps the original position")
			assert.Equal(t, second.ID, list[1].ID)
			assert.Equal(t, 5, list[0].MessageCount)
			assert.Equal(t, "first question", list[0].Summary)

			loaded, err := store.Load(ctx, first.ID)
			require.NoError(t, err)
			assert.Len(t, loaded.Messages, 5)
		})
	}
}

func TestHistoryStore_LoadMissing(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(context.Background(), "does-not-exist")
			assert.True(t, errors.Is(err, ErrSessionNotFound), "got %v", err)
		})
	}
}

func TestHistoryStore_EmptyList(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			list, err := store.ListAll(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, list)
			assert.Empty(t, list)
		})
	}
}

func TestHistoryStore_RejectsInvalidSnapshot(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.True(t, errors.Is(store.Upsert(ctx, nil), ErrInvalidSession))

			bad := &model.Conversation{ID: "x", Messages: []*model.Message{model.NewMessage(model.RoleUser, "hi")}}
			err := store.Upsert(ctx, bad)
			assert.True(t, errors.Is(err, ErrInvalidSession))
			assert.True(t, errors.Is(err, model.ErrInvalidArgument))
		})
	}
}

// =============================================================================
// BACKEND-SPECIFIC TESTS
// =============================================================================

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	conv := completedTurn(t, "persist me", "ok")
	require.NoError(t, store.Upsert(ctx, conv))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "second Close should be harmless")

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, conv.ID, list[0].ID)
	assert.Equal(t, "persist me", list[0].Summary)
}

func TestFileStore_SkipsCorruptedDocuments(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, completedTurn(t, "good", "ok")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{nope"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0600))

	list, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].Summary)
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "../etc/passwd")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	conv := completedTurn(t, "q", "a")
	conv.ID = "../escape"
	assert.True(t, errors.Is(store.Upsert(context.Background(), conv), ErrInvalidSession))
}

func TestMemoryStore_StoresCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv := completedTurn(t, "q", "a")
	require.NoError(t, store.Upsert(ctx, conv))
	conv.Messages[1].Content = "mutated after upsert"

	loaded, err := store.Load(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "q", loaded.Messages[1].Content)
	assert.Equal(t, 1, store.Len())
}

func TestOpen_SelectsBackend(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		cfg     Config
		want    any
		wantErr bool
	}{
		{Config{Path: filepath.Join(dir, "default.db")}, &SQLiteStore{}, false},
		{Config{Backend: "SQLite", Path: filepath.Join(dir, "h.db")}, &SQLiteStore{}, false},
		{Config{Backend: "file", Path: filepath.Join(dir, "sessions")}, &FileStore{}, false},
		{Config{Backend: "memory"}, &MemoryStore{}, false},
		{Config{Backend: "file"}, nil, true},
		{Config{Backend: "litedb", Path: dir}, nil, true},
	}

	for _, tc := range tests {
		store, err := Open(tc.cfg)
		if tc.wantErr {
			assert.Error(t, err, "backend %q", tc.cfg.Backend)
			continue
		}
		require.NoError(t, err, "backend %q", tc.cfg.Backend)
		assert.IsType(t, tc.want, store)
		store.Close()
	}
}
