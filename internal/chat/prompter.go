// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "context"

// Retry prompt text shown for a failed fetch or chat request.
const (
	RetryTitle   = "Connection Error"
	RetryMessage = "Cannot connect to host server. Please make sure you either have Host or Node server running."
)

// Prompter asks the user whether a failed operation should be retried.
type Prompter interface {
	ConfirmRetry(ctx context.Context, title, message string) bool
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, title, message string) bool

// ConfirmRetry calls f.
func (f PrompterFunc) ConfirmRetry(ctx context.Context, title, message string) bool {
	return f(ctx, title, message)
}

// NeverRetry declines every retry. Used for one-shot commands.
var NeverRetry Prompter = PrompterFunc(func(context.Context, string, string) bool { return false })
