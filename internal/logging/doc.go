// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zerolog logger shared by deepgate components.
//
// Libraries take a zerolog.Logger and default to a no-op one; only main
// wires a real Logger. Each component logs with a "component" field.
//
//	log, err := logging.New(logging.Config{Level: "debug", Pretty: true})
//	chatLog := log.Component(logging.ComponentChat)
package logging
