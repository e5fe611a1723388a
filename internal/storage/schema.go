// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

const (
	// SchemaVersion tracks the history database schema version for migrations
	SchemaVersion = 1
)

// Schema is the SQLite schema for the session history.
//
// seq records first insertion; upserts update the row in place, so listing
// by seq keeps chronological insertion order.
const Schema = `
-- Metadata table for schema version
CREATE TABLE IF NOT EXISTS metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- One row per conversation session, messages stored as a JSON array
CREATE TABLE IF NOT EXISTS sessions (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    id            TEXT NOT NULL UNIQUE,
    kind          TEXT NOT NULL DEFAULT 'chat',
    model         TEXT NOT NULL DEFAULT '',
    summary       TEXT NOT NULL DEFAULT '',
    message_count INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL,
    messages      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_kind ON sessions(kind);
`

// InitMetadata records the schema version on first open.
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
`

const upsertSession = `
INSERT INTO sessions (id, kind, model, summary, message_count, created_at, updated_at, messages)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    kind          = excluded.kind,
    model         = excluded.model,
    summary       = excluded.summary,
    message_count = excluded.message_count,
    created_at    = excluded.created_at,
    updated_at    = excluded.updated_at,
    messages      = excluded.messages
`

const listSessions = `
SELECT id, kind, model, summary, message_count, created_at, updated_at
FROM sessions
ORDER BY seq
`

const loadSession = `
SELECT id, kind, model, created_at, updated_at, messages
FROM sessions
WHERE id = ?
`
