// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// maxErrorBody caps how much of a failed response body is kept for the
// error message.
const maxErrorBody = 4 * 1024

// =============================================================================
// ERRORS
// =============================================================================

// StatusError is a response with a non-2xx status code.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	msg := e.Method + " " + e.Path + ": " + e.Status
	if e.Body != "" {
		msg += " - " + e.Body
	}
	return msg
}

// DecodeError is a 2xx response whose body could not be decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return "decode " + e.Path + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// =============================================================================
// CLIENT
// =============================================================================

// Config holds configuration for the transport client.
type Config struct {
	// BaseURL is prepended to every request path (e.g. http://127.0.0.1:9090).
	BaseURL string

	// UserAgent is sent on every request when set.
	UserAgent string

	// Logger receives resty's internal warnings and request debug lines.
	Logger zerolog.Logger

	// HTTPClient overrides the underlying http.Client (tests).
	HTTPClient *http.Client
}

// Client issues JSON requests and opens event streams against one server.
//
// The client has no overall timeout: callers bound each request with the
// context, since a stream may legitimately stay open for minutes.
type Client struct {
	rest *resty.Client
	log  zerolog.Logger
}

// New creates a transport client.
func New(cfg Config) *Client {
	var rest *resty.Client
	if cfg.HTTPClient != nil {
		rest = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rest = resty.New()
	}

	log := cfg.Logger.With().Str("component", "transport").Logger()

	rest.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetLogger(&restyLogger{log: log})
	if cfg.UserAgent != "" {
		rest.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{rest: rest, log: log}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.rest.BaseURL
}

// GetJSON issues a GET and decodes a JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(path)
	return c.finish(http.MethodGet, path, resp, err, out)
}

// PostJSON issues a POST with a JSON body and decodes a JSON response into
// out. A nil out discards the response body.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetBody(body).
		Post(path)
	return c.finish(http.MethodPost, path, resp, err, out)
}

// OpenStream issues a POST with a JSON body and returns the raw response
// body for an event-stream response. The caller must close it. Closing the
// body is also how a stream is cancelled mid-read.
func (c *Client) OpenStream(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache").
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}

	raw := resp.RawBody()
	if !resp.IsSuccess() {
		var text string
		if raw != nil {
			data, _ := io.ReadAll(io.LimitReader(raw, maxErrorBody))
			raw.Close()
			text = strings.TrimSpace(string(data))
		}
		return nil, &StatusError{
			Method:     http.MethodPost,
			Path:       path,
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       text,
		}
	}
	if raw == nil {
		return nil, fmt.Errorf("POST %s: %w", path, errors.New("empty response body"))
	}

	c.log.Debug().Str("path", path).Int("status", resp.StatusCode()).Msg("stream opened")
	return raw, nil
}

// finish converts a resty response into an error or a decoded body.
func (c *Client) finish(method, path string, resp *resty.Response, err error, out any) error {
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode()).
		Dur("duration", resp.Time()).
		Msg("request completed")

	if !resp.IsSuccess() {
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       truncateBody(resp.String()),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}

// =============================================================================
// LOGGER ADAPTER
// =============================================================================

// restyLogger routes resty's printf-style logging into zerolog.
type restyLogger struct {
	log zerolog.Logger
}

func (l *restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error().Msgf(strings.TrimSpace(format), v...)
}

func (l *restyLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn().Msgf(strings.TrimSpace(format), v...)
}

func (l *restyLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug().Msgf(strings.TrimSpace(format), v...)
}
