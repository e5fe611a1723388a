// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/deepgate/internal/util"
)

// Component names used for sub-loggers.
const (
	ComponentClient  = "client"
	ComponentChat    = "chat"
	ComponentStorage = "storage"
	ComponentCLI     = "cli"
	ComponentMetrics = "metrics"
)

// Config holds logger configuration.
type Config struct {
	Level      string    // trace, debug, info, warn, error
	Pretty     bool      // human-readable console output
	Output     io.Writer // default os.Stderr
	File       string    // append to this file instead of Output
	WithCaller bool
}

// Logger wraps zerolog with deepgate component helpers.
type Logger struct {
	zlog   zerolog.Logger
	closer io.Closer
}

// ParseLevel maps a level name to a zerolog level. Unknown or empty names
// fall back to warn so the REPL stays quiet by default.
func ParseLevel(name string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.WarnLevel
	}
	return level
}

// New creates a structured logger. The returned logger owns the log file,
// if any, until Close.
func New(cfg Config) (*Logger, error) {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var closer io.Closer
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), util.PrivateDirPerm); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		// SECURITY: logs may carry prompts, owner-only permissions
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output = f
		closer = f
	}

	if cfg.Pretty && cfg.File == "" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.Kitchen,
		}
	}

	zlog := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "deepgate").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog, closer: closer}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns the underlying zerolog logger.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zlog
}

// Component returns a sub-logger tagged with a component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Client returns the logger for DeepGate server calls.
func (l *Logger) Client(env string) *zerolog.Logger {
	zl := l.zlog.With().Str("component", ComponentClient).Str("env", env).Logger()
	return &zl
}

// Close releases the log file, if one was opened.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}
