// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/deepgate/internal/model"
	"github.com/jeranaias/deepgate/internal/util"
)

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore keeps the session history in a SQLite database. It is the
// default backend.
type SQLiteStore struct {
	db   *sql.DB
	path string

	closeOnce sync.Once
	closeErr  error
}

// NewSQLiteStore opens (creating if needed) the history database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), util.PrivateDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Upsert stores a full snapshot of conv, replacing any earlier one.
func (s *SQLiteStore) Upsert(ctx context.Context, conv *model.Conversation) error {
	if err := checkSnapshot(conv); err != nil {
		return err
	}

	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}

	_, err = s.db.ExecContext(ctx, upsertSession,
		conv.ID,
		string(conv.Kind),
		conv.Model,
		conv.Summary(),
		len(conv.Messages),
		conv.CreatedAt.UnixNano(),
		conv.UpdatedAt.UnixNano(),
		string(messages),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", conv.ID, err)
	}
	return nil
}

// ListAll returns every session summary in insertion order.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, listSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	summaries := make([]Summary, 0)
	for rows.Next() {
		var (
			sum              Summary
			kind             string
			created, updated int64
		)
		if err := rows.Scan(&sum.ID, &kind, &sum.Model, &sum.Summary, &sum.MessageCount, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.Kind = model.Kind(kind)
		sum.CreatedAt = time.Unix(0, created)
		sum.UpdatedAt = time.Unix(0, updated)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return summaries, nil
}

// Load returns the stored snapshot for id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*model.Conversation, error) {
	var (
		conv             model.Conversation
		kind, messages   string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, loadSession, id).
		Scan(&conv.ID, &kind, &conv.Model, &created, &updated, &messages)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(messages), &conv.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	conv.Kind = model.Kind(kind)
	conv.CreatedAt = time.Unix(0, created)
	conv.UpdatedAt = time.Unix(0, updated)
	return &conv, nil
}

// Close closes the database. It is safe to call more than once.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
