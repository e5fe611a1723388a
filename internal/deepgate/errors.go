// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package deepgate

import (
	"errors"
	"strconv"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	// ErrTypeInvalidArgument is a request rejected before any network call.
	ErrTypeInvalidArgument
	// ErrTypeNetwork is a transport or connection failure.
	ErrTypeNetwork
	// ErrTypeProtocol is an unexpected status or undecodable body.
	ErrTypeProtocol
	// ErrTypeStreamAborted is a read loop that failed mid-stream.
	ErrTypeStreamAborted
	// ErrTypeModelLoad is a model the server rejected or failed to load.
	ErrTypeModelLoad
)

// String returns the error type name.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeInvalidArgument:
		return "invalid_argument"
	case ErrTypeNetwork:
		return "network"
	case ErrTypeProtocol:
		return "protocol"
	case ErrTypeStreamAborted:
		return "stream_aborted"
	case ErrTypeModelLoad:
		return "model_load"
	default:
		return "unknown"
	}
}

// ClientError represents an error from the DeepGate client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error

	// StatusCode is the HTTP status for protocol errors, 0 otherwise.
	StatusCode int

	// Partial is the answer accumulated before a stream failed.
	Partial string
}

func (e *ClientError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg += " (status " + strconv.Itoa(e.StatusCode) + ")"
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches any *ClientError of the same Type, so the sentinels below work
// with errors.Is regardless of message or cause.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// Sentinel errors for easy checking.
var (
	ErrInvalidArgument = &ClientError{Type: ErrTypeInvalidArgument, Message: "invalid argument"}
	ErrNetwork         = &ClientError{Type: ErrTypeNetwork, Message: "cannot reach DeepGate server"}
	ErrProtocol        = &ClientError{Type: ErrTypeProtocol, Message: "unexpected response from DeepGate server"}
	ErrStreamAborted   = &ClientError{Type: ErrTypeStreamAborted, Message: "completion stream aborted"}
	ErrModelLoad       = &ClientError{Type: ErrTypeModelLoad, Message: "failed to load model"}
)

// errorTypeOf returns the type of a *ClientError in err's chain.
func errorTypeOf(err error) ErrorType {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type
	}
	return ErrTypeUnknown
}

// IsInvalidArgument checks if an error was a rejected argument.
func IsInvalidArgument(err error) bool {
	return errorTypeOf(err) == ErrTypeInvalidArgument
}

// IsNetworkError checks if an error is a transport failure.
func IsNetworkError(err error) bool {
	return errorTypeOf(err) == ErrTypeNetwork
}

// IsProtocolError checks if an error is an unexpected server response.
func IsProtocolError(err error) bool {
	return errorTypeOf(err) == ErrTypeProtocol
}

// IsStreamAborted checks if an error is a mid-stream failure.
func IsStreamAborted(err error) bool {
	return errorTypeOf(err) == ErrTypeStreamAborted
}

// IsModelLoadError checks if an error is a model load failure.
func IsModelLoadError(err error) bool {
	return errorTypeOf(err) == ErrTypeModelLoad
}

// PartialContent returns the answer accumulated before err, if err carries
// one.
func PartialContent(err error) string {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Partial
	}
	return ""
}
