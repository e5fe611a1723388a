// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/jeranaias/deepgate/internal/deepgate"
	"github.com/jeranaias/deepgate/internal/model"
	"github.com/jeranaias/deepgate/internal/storage"
	"github.com/jeranaias/deepgate/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete deepgate configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Chat    ChatConfig    `toml:"chat"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
}

// ServerConfig locates the DeepGate server and bounds requests to it.
type ServerConfig struct {
	// BaseURL of the host or node server
	BaseURL string `toml:"base_url"`
	// Environment is the path segment used for every request: "host" or "node"
	Environment string `toml:"environment"`
	// RequestTimeoutSecs bounds fetch-models (default 30)
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
	// LoadTimeoutSecs bounds load-model (default 300)
	LoadTimeoutSecs int `toml:"load_timeout_secs"`
	// StreamIdleTimeoutSecs aborts a silent completion stream (default 120, 0 disables)
	StreamIdleTimeoutSecs int `toml:"stream_idle_timeout_secs"`
}

// ChatConfig holds conversation defaults.
type ChatConfig struct {
	DefaultSystemPrompt string `toml:"default_system_prompt"`
	// DefaultModel is selected for new sessions when set
	DefaultModel string `toml:"default_model"`
}

// StorageConfig selects the history backend.
type StorageConfig struct {
	// Backend is "sqlite" (default), "file" or "memory"
	Backend string `toml:"backend"`
	// Path overrides the default location under the config directory
	Path string `toml:"path"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is trace, debug, info, warn or error (default warn)
	Level string `toml:"level"`
	// Pretty writes human-readable console output instead of JSON
	Pretty bool `toml:"pretty"`
	// File appends logs to a file instead of stderr
	File string `toml:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr to serve /metrics on, e.g. "127.0.0.1:9464"; empty disables
	Addr string `toml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:               deepgate.DefaultBaseURL,
			Environment:           deepgate.EnvHost.String(),
			RequestTimeoutSecs:    30,
			LoadTimeoutSecs:       300,
			StreamIdleTimeoutSecs: 120,
		},
		Chat: ChatConfig{
			DefaultSystemPrompt: model.DefaultSystemPrompt,
		},
		Storage: StorageConfig{
			Backend: storage.BackendSQLite,
		},
		Log: LogConfig{
			Level:  "warn",
			Pretty: true,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the deepgate directory: $DEEPGATE_HOME or ~/.deepgate.
func ConfigDir() (string, error) {
	if dir := os.Getenv("DEEPGATE_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".deepgate"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file to owner read/write.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the config file at path, or the default path when empty. A
// missing file yields defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	} else if _, err := os.Stat(path); err != nil {
		// An explicitly named file must exist.
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// their current values, so an explicit 0 can still disable the watchdog.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// fillDefaults fills in blank values that have no meaningful zero.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = defaults.Server.BaseURL
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = defaults.Server.Environment
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = defaults.Server.RequestTimeoutSecs
	}
	if cfg.Server.LoadTimeoutSecs == 0 {
		cfg.Server.LoadTimeoutSecs = defaults.Server.LoadTimeoutSecs
	}
	if cfg.Chat.DefaultSystemPrompt == "" {
		cfg.Chat.DefaultSystemPrompt = defaults.Chat.DefaultSystemPrompt
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

// ApplyEnvOverrides applies environment variable overrides:
//   - DEEPGATE_BASE_URL: overrides server.base_url
//   - DEEPGATE_ENV: overrides server.environment
//   - DEEPGATE_MODEL: overrides chat.default_model
//   - DEEPGATE_LOG_LEVEL: overrides log.level
//   - DEEPGATE_STORAGE: overrides storage.backend
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DEEPGATE_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("DEEPGATE_ENV"); v != "" {
		c.Server.Environment = v
	}
	if v := os.Getenv("DEEPGATE_MODEL"); v != "" {
		c.Chat.DefaultModel = v
	}
	if v := os.Getenv("DEEPGATE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("DEEPGATE_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration as TOML.
// SECURITY: Config files are written with 0600 permissions.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# deepgate configuration file\n")
	buf.WriteString("# Generated by deepgate - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: fmt.Sprintf("invalid URL '%s', want scheme://host[:port]", c.Server.BaseURL),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: fmt.Sprintf("unsupported scheme '%s'", u.Scheme),
		})
	}

	if !deepgate.Environment(c.Server.Environment).Valid() {
		errs = append(errs, ValidationError{
			Field:   "server.environment",
			Message: fmt.Sprintf("invalid environment '%s', must be one of: host, node", c.Server.Environment),
		})
	}

	if c.Server.RequestTimeoutSecs < 1 {
		errs = append(errs, ValidationError{Field: "server.request_timeout_secs", Message: "must be at least 1"})
	}
	if c.Server.LoadTimeoutSecs < 1 {
		errs = append(errs, ValidationError{Field: "server.load_timeout_secs", Message: "must be at least 1"})
	}
	if c.Server.StreamIdleTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "server.stream_idle_timeout_secs", Message: "must be non-negative (0 disables)"})
	}

	switch strings.ToLower(c.Storage.Backend) {
	case storage.BackendSQLite, storage.BackendFile, storage.BackendMemory:
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: sqlite, file, memory", c.Storage.Backend),
		})
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s'", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// Env returns the configured environment segment.
func (c *Config) Env() deepgate.Environment {
	return deepgate.Environment(c.Server.Environment)
}

// ClientConfig builds the DeepGate client configuration.
func (c *Config) ClientConfig(log *zerolog.Logger) *deepgate.ClientConfig {
	return &deepgate.ClientConfig{
		BaseURL:           c.Server.BaseURL,
		RequestTimeout:    time.Duration(c.Server.RequestTimeoutSecs) * time.Second,
		LoadTimeout:       time.Duration(c.Server.LoadTimeoutSecs) * time.Second,
		StreamIdleTimeout: time.Duration(c.Server.StreamIdleTimeoutSecs) * time.Second,
		Logger:            log,
	}
}

// StorageConfig resolves the history store location. A blank path maps to
// history.db (sqlite) or sessions/ (file) under the config directory.
func (c *Config) StorageConfig() (storage.Config, error) {
	backend := strings.ToLower(c.Storage.Backend)
	cfg := storage.Config{Backend: backend, Path: c.Storage.Path}
	if cfg.Path != "" || backend == storage.BackendMemory {
		return cfg, nil
	}

	dir, err := ConfigDir()
	if err != nil {
		return cfg, err
	}
	if backend == storage.BackendFile {
		cfg.Path = filepath.Join(dir, "sessions")
	} else {
		cfg.Path = filepath.Join(dir, "history.db")
	}
	return cfg, nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value by its TOML key (e.g. "server.base_url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value by its TOML key, converting from string
// when needed.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	return setFieldValue(field, value)
}

// Keys returns every configuration key in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, section.Tag.Get("toml")+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// lookup walks sections and fields by their toml tags.
func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return reflect.Value{}, fmt.Errorf("invalid key %q, want section.name", key)
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return v, nil
}

func fieldByTag(v reflect.Value, tag string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if strings.EqualFold(t.Field(i).Tag.Get("toml"), tag) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int:
			intVal, err := strconv.Atoi(strVal)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(int64(intVal))
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return errors.New("cannot assign nil")
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return err.Error()
	}
	return buf.String()
}
