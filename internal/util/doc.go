// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the deepgate packages.
//
//   - AtomicWriteFile: crash-safe file writing with fsync, used by the file
//     history store and config saving
//   - TruncateRunes, FlattenLines: UTF-8 safe one-line previews for session
//     summaries
package util
