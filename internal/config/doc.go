// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for deepgate.
//
// Configuration is a TOML file with sensible defaults, environment variable
// overrides and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: DeepGate server location, environment and timeouts
//   - StorageConfig: Session history backend selection
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command line flags (applied by the caller)
//   - Environment variables (DEEPGATE_*)
//   - ~/.deepgate/config.toml (or $DEEPGATE_HOME/config.toml)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := deepgate.NewClientWithConfig(cfg.ClientConfig(&logger))
package config
