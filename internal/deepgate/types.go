// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package deepgate

import "time"

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Environment selects which server role handles a request. It is the first
// path segment of every endpoint.
type Environment string

const (
	EnvHost Environment = "host"
	EnvNode Environment = "node"
)

// Valid reports whether e is a known environment segment.
func (e Environment) Valid() bool {
	return e == EnvHost || e == EnvNode
}

// String returns the path segment.
func (e Environment) String() string {
	return string(e)
}

// Endpoint paths, relative to the environment segment.
const (
	pathFetchModels = "fetch-models"
	pathLoadModel   = "load-model"
	pathChat        = "chat"
)

// endpoint joins an environment and a path into a request path.
func endpoint(env Environment, path string) string {
	return "/" + env.String() + "/" + path
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message is a chat message as sent on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletion is the request body for the chat endpoint.
type ChatCompletion struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// LoadModelRequest is the request body for the load-model endpoint.
type LoadModelRequest struct {
	ModelName string `json:"model_name"`
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// LanguageModel describes a model offered by the server.
//
// IsLoading and IsRunning are client-side flags; they are never sent or
// received.
type LanguageModel struct {
	Model   string       `json:"model"`
	Name    string       `json:"name"`
	Details ModelDetails `json:"details"`

	IsLoading bool `json:"-"`
	IsRunning bool `json:"-"`
}

// ModelDetails holds the descriptive fields of a model.
type ModelDetails struct {
	Family        string `json:"family"`
	ParameterSize string `json:"parameter_size"`
}

// ModelList is the envelope returned by fetch-models.
type ModelList struct {
	Models []LanguageModel `json:"models"`
}

// Family returns the model family.
func (m LanguageModel) Family() string {
	return m.Details.Family
}

// ParameterSize returns the parameter size label (e.g. "7.6B").
func (m LanguageModel) ParameterSize() string {
	return m.Details.ParameterSize
}

// Label returns a short display label for the model.
func (m LanguageModel) Label() string {
	if m.Details.ParameterSize == "" {
		return m.Name
	}
	return m.Name + " (" + m.Details.ParameterSize + ")"
}

// =============================================================================
// STREAMING TYPES
// =============================================================================

// TokenFunc receives the full accumulated answer after every visible token.
type TokenFunc func(accumulated string)

// StreamResult summarizes a finished (or aborted) completion stream.
type StreamResult struct {
	// Content is the assembled answer with thinking segments removed.
	Content string

	// Tokens is the number of visible data frames appended to Content.
	Tokens int

	// Thought is true if at least one thinking segment was opened.
	Thought bool

	// Unterminated is true if the stream ended inside a thinking segment.
	Unterminated bool

	// Done is true if the stream ended with an explicit [DONE] frame
	// rather than end of body.
	Done bool

	Elapsed time.Duration
}
