// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sync"

	"github.com/jeranaias/deepgate/internal/model"
)

// MemoryStore keeps sessions in process memory. Used for ephemeral runs
// and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	order    []string
	sessions map[string]*model.Conversation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*model.Conversation)}
}

// Upsert stores a private copy of conv.
func (s *MemoryStore) Upsert(ctx context.Context, conv *model.Conversation) error {
	if err := checkSnapshot(conv); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[conv.ID]; !ok {
		s.order = append(s.order, conv.ID)
	}
	s.sessions[conv.ID] = conv.Clone()
	return nil
}

// ListAll returns summaries in insertion order.
func (s *MemoryStore) ListAll(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		summaries = append(summaries, s.sessions[id].GetMeta())
	}
	return summaries, nil
}

// Load returns a copy of the stored snapshot.
func (s *MemoryStore) Load(ctx context.Context, id string) (*model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	return conv.Clone(), nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
