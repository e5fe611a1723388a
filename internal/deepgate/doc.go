// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package deepgate provides the HTTP client for the DeepGate host and node
// servers.
//
// Every endpoint lives under an environment segment (host or node), so a
// request for the node's models goes to {baseURL}/node/fetch-models.
//
// # Key Types
//
//   - Client: model registry calls and streaming chat completions
//   - ChatCompletion: request payload of model plus role/content messages
//   - LanguageModel: a model descriptor with client-side loading flags
//   - StreamReader: the server-sent-event state machine behind a completion
//   - ClientError: typed failure with the partial answer of a broken stream
//
// # Usage
//
//	client := deepgate.NewClient()
//	models, err := client.FetchAvailableModels(ctx, deepgate.EnvHost)
//
//	result, err := client.StreamCompletion(ctx, deepgate.EnvHost, chat, func(answer string) {
//	    fmt.Print("\r" + answer)
//	})
//
// # Stream Format
//
// The chat endpoint answers with data lines, one token each:
//
//	data: Hel
//
//	data: lo
//
//	data: [DONE]
//
// Tokens between data: <think> and data: </think> are reasoning output and
// are dropped. An event: error frame aborts the stream with its data text.
package deepgate
