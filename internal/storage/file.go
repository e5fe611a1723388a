// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/deepgate/internal/model"
	"github.com/jeranaias/deepgate/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// storedSession is the on-disk document: the conversation plus its summary.
type storedSession struct {
	*model.Conversation
	Summary string `json:"summary"`
}

// FileStore keeps one JSON document per session in a directory.
type FileStore struct {
	// BaseDir is the directory for session documents
	BaseDir string

	mu sync.Mutex
}

// NewFileStore creates a store rooted at baseDir, creating it if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, util.PrivateDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileStore{BaseDir: baseDir}, nil
}

// Upsert writes a full snapshot of conv, replacing any earlier one.
func (s *FileStore) Upsert(ctx context.Context, conv *model.Conversation) error {
	if err := checkSnapshot(conv); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.filePath(conv.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(storedSession{Conversation: conv, Summary: conv.Summary()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session %s: %w", conv.ID, err)
	}
	return nil
}

// Load reads the stored snapshot for id.
func (s *FileStore) Load(ctx context.Context, id string) (*model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.read(id)
	if err != nil {
		return nil, err
	}
	return doc.Conversation, nil
}

func (s *FileStore) read(id string) (*storedSession, error) {
	path, err := s.filePath(id)
	if err != nil {
		return nil, notFound(id)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(id)
		}
		return nil, err
	}

	doc := &storedSession{Conversation: &model.Conversation{}}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return doc, nil
}

// ListAll returns every readable session, oldest first. Documents that fail
// to decode are skipped.
func (s *FileStore) ListAll(ctx context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Summary{}, nil
		}
		return nil, err
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		doc, err := s.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue // Skip corrupted files
		}

		meta := doc.GetMeta()
		if doc.Summary != "" {
			meta.Summary = doc.Summary
		}
		summaries = append(summaries, meta)
	}

	// Creation time survives upserts, so it stands in for insertion order.
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// filePath returns the document path for id, rejecting ids that would
// escape BaseDir.
func (s *FileStore) filePath(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: bad session id %q", ErrInvalidSession, id)
	}
	return filepath.Join(s.BaseDir, id+".json"), nil
}
