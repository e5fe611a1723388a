// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package deepgate

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/deepgate/internal/transport"
)

// DefaultBaseURL is the address the DeepGate host listens on out of the box.
const DefaultBaseURL = "http://127.0.0.1:9090"

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the DeepGate client.
type ClientConfig struct {
	// BaseURL is the server base URL (default: http://127.0.0.1:9090)
	BaseURL string

	// RequestTimeout bounds fetch-models and other short requests (default: 30s)
	RequestTimeout time.Duration

	// LoadTimeout bounds a load-model request, which blocks until the
	// server has the model in memory (default: 300s)
	LoadTimeout time.Duration

	// PingTimeout bounds a reachability probe (default: 5s)
	PingTimeout time.Duration

	// StreamIdleTimeout aborts a completion stream that delivers no line for
	// this long. Zero disables the watchdog.
	StreamIdleTimeout time.Duration

	// UserAgent sent with every request.
	UserAgent string

	// Logger for request and stream diagnostics (default: disabled).
	Logger *zerolog.Logger

	// HTTPClient overrides the underlying http.Client (tests).
	HTTPClient *http.Client
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           DefaultBaseURL,
		RequestTimeout:    30 * time.Second,
		LoadTimeout:       300 * time.Second,
		PingTimeout:       5 * time.Second,
		StreamIdleTimeout: 120 * time.Second,
		UserAgent:         "deepgate-cli",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to a DeepGate host or node server. It lists and loads models
// and streams chat completions.
//
// The Client is safe for concurrent use.
//
// Example:
//
//	client := deepgate.NewClient()
//	models, err := client.FetchAvailableModels(ctx, deepgate.EnvHost)
type Client struct {
	config *ClientConfig
	http   *transport.Client
	log    zerolog.Logger
}

// NewClient creates a new client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new client with custom configuration. Zero
// values are replaced by defaults, except StreamIdleTimeout where zero means
// disabled.
func NewClientWithConfig(config *ClientConfig) *Client {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}

	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.LoadTimeout == 0 {
		config.LoadTimeout = defaults.LoadTimeout
	}
	if config.PingTimeout == 0 {
		config.PingTimeout = defaults.PingTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}
	log = log.With().Str("component", "deepgate").Logger()

	return &Client{
		config: config,
		http: transport.New(transport.Config{
			BaseURL:    config.BaseURL,
			UserAgent:  config.UserAgent,
			Logger:     log,
			HTTPClient: config.HTTPClient,
		}),
		log: log,
	}
}

// BaseURL returns the server base URL the client talks to.
func (c *Client) BaseURL() string {
	return c.http.BaseURL()
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// Ping verifies that the server answers on the environment's fetch-models
// endpoint. The response body is discarded.
func (c *Client) Ping(ctx context.Context, env Environment) error {
	if !env.Valid() {
		return invalidEnvironment(env)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.PingTimeout)
	defer cancel()

	if err := c.http.GetJSON(ctx, endpoint(env, pathFetchModels), nil); err != nil {
		return fromTransport("DeepGate server did not answer", err)
	}
	return nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// FetchAvailableModels lists the models the server can run. There is no
// internal retry; callers decide whether to ask again.
func (c *Client) FetchAvailableModels(ctx context.Context, env Environment) ([]LanguageModel, error) {
	if !env.Valid() {
		return nil, invalidEnvironment(env)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var list ModelList
	if err := c.http.GetJSON(ctx, endpoint(env, pathFetchModels), &list); err != nil {
		return nil, fromTransport("failed to fetch models", err)
	}

	c.log.Debug().Str("env", env.String()).Int("count", len(list.Models)).Msg("fetched models")
	return list.Models, nil
}

// LoadModel asks the server to load a model into memory.
//
// An empty name fails fast and onLoadingChanged is never called. Otherwise
// onLoadingChanged(true) runs before the request and onLoadingChanged(false)
// runs when it returns, whatever the outcome. onLoadingChanged may be nil.
func (c *Client) LoadModel(ctx context.Context, env Environment, name string, onLoadingChanged func(loading bool)) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ClientError{Type: ErrTypeInvalidArgument, Message: "model name is required"}
	}
	if !env.Valid() {
		return invalidEnvironment(env)
	}

	if onLoadingChanged != nil {
		onLoadingChanged(true)
		defer onLoadingChanged(false)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.LoadTimeout)
	defer cancel()

	start := time.Now()
	err := c.http.PostJSON(ctx, endpoint(env, pathLoadModel), LoadModelRequest{ModelName: name}, nil)
	if err != nil {
		cause := fromTransport("load-model request failed", err)
		c.log.Warn().Err(err).Str("model", name).Msg("model load failed")
		return &ClientError{
			Type:       ErrTypeModelLoad,
			Message:    "failed to load model " + name,
			Cause:      cause,
			StatusCode: cause.StatusCode,
		}
	}

	c.log.Info().Str("model", name).Dur("duration", time.Since(start)).Msg("model loaded")
	return nil
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// fromTransport classifies a transport failure. Status and decode failures
// are protocol errors; everything else, including cancellation, is a
// network error.
func fromTransport(message string, err error) *ClientError {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return &ClientError{Type: ErrTypeProtocol, Message: message, Cause: err, StatusCode: statusErr.StatusCode}
	}
	var decodeErr *transport.DecodeError
	if errors.As(err, &decodeErr) {
		return &ClientError{Type: ErrTypeProtocol, Message: message, Cause: err}
	}
	return &ClientError{Type: ErrTypeNetwork, Message: message, Cause: err}
}

func invalidEnvironment(env Environment) *ClientError {
	return &ClientError{
		Type:    ErrTypeInvalidArgument,
		Message: "unknown environment " + strconv.Quote(string(env)) + ` (want "host" or "node")`,
	}
}
