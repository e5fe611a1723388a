// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes Prometheus counters for chat turns, streamed
// tokens, model loads and stream duration.
//
// A nil *Metrics is valid and records nothing.
package metrics
