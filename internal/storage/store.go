// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/deepgate/internal/model"
)

// =============================================================================
// HISTORY STORE CONTRACT
// =============================================================================

// Summary is one entry of the history index.
type Summary = model.ConversationMeta

// HistoryStore persists conversation snapshots keyed by session id.
//
// Upsert replaces the whole stored snapshot; the last write wins. ListAll
// returns sessions in the order they were first stored, and storing an
// existing id again keeps its position.
type HistoryStore interface {
	Upsert(ctx context.Context, conv *model.Conversation) error
	ListAll(ctx context.Context) ([]Summary, error)
	Load(ctx context.Context, id string) (*model.Conversation, error)
	Close() error
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrSessionNotFound is returned when a session doesn't exist.
// Use errors.Is(err, ErrSessionNotFound) to check for this error.
var ErrSessionNotFound = &StoreError{Message: "session not found"}

// ErrInvalidSession is returned for a snapshot that cannot be stored.
var ErrInvalidSession = &StoreError{Message: "invalid session"}

// StoreError represents a history store error.
// It can be compared using errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// checkSnapshot rejects snapshots that would corrupt the index.
func checkSnapshot(conv *model.Conversation) error {
	if conv == nil {
		return fmt.Errorf("%w: nil conversation", ErrInvalidSession)
	}
	if err := conv.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// =============================================================================
// BACKEND SELECTION
// =============================================================================

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config selects and locates a history store.
type Config struct {
	// Backend is sqlite (default), file or memory.
	Backend string

	// Path is the database file for sqlite or the directory for file.
	Path string
}

// Open creates the configured history store.
func Open(cfg Config) (HistoryStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendSQLite:
		if cfg.Path == "" {
			return nil, errors.New("sqlite history store needs a path")
		}
		return NewSQLiteStore(cfg.Path)
	case BackendFile:
		if cfg.Path == "" {
			return nil, errors.New("file history store needs a directory")
		}
		return NewFileStore(cfg.Path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
