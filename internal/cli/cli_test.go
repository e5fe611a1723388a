// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/deepgate/internal/deepgate"
	"github.com/jeranaias/deepgate/internal/model"
	"github.com/jeranaias/deepgate/internal/storage"
)

// =============================================================================
// PARSING
// =============================================================================

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input    string
		wantCmd  string
		wantArgs []string
	}{
		{"/help", "/help", nil},
		{"/LOAD  llama3 ", "/load", []string{"llama3"}},
		{"/new note", "/new", []string{"note"}},
		{"", "", nil},
	}

	for _, tt := range tests {
		cmd, args := parseCommand(tt.input)
		if cmd != tt.wantCmd {
			t.Errorf("parseCommand(%q) cmd = %q, want %q", tt.input, cmd, tt.wantCmd)
		}
		if strings.Join(args, ",") != strings.Join(tt.wantArgs, ",") {
			t.Errorf("parseCommand(%q) args = %v, want %v", tt.input, args, tt.wantArgs)
		}
	}
}

func TestParseYes(t *testing.T) {
	tests := []struct {
		answer string
		def    bool
		want   bool
	}{
		{"", true, true},
		{"", false, false},
		{"y", false, true},
		{" Yes ", false, true},
		{"retry", false, true},
		{"n", true, false},
		{"cancel", true, false},
	}

	for _, tt := range tests {
		if got := parseYes(tt.answer, tt.def); got != tt.want {
			t.Errorf("parseYes(%q, %v) = %v, want %v", tt.answer, tt.def, got, tt.want)
		}
	}
}

func TestResolveSessionRef(t *testing.T) {
	sessions := []storage.Summary{
		{ID: "aaaa-1111"},
		{ID: "aaab-2222"},
		{ID: "bbbb-3333"},
	}

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{"1", "aaaa-1111", false},
		{"3", "bbbb-3333", false},
		{"4", "", true},
		{"0", "", true},
		{"bbbb", "bbbb-3333", false},
		{"aaab-2222", "aaab-2222", false},
		{"aaa", "", true},
		{"zzz", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := resolveSessionRef(tt.ref, sessions)
		if (err != nil) != tt.wantErr {
			t.Errorf("resolveSessionRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveSessionRef(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

// =============================================================================
// TERMINAL
// =============================================================================

func TestWrapText(t *testing.T) {
	got := WrapText("the quick brown fox jumps", 10)
	for _, line := range strings.Split(got, "\n") {
		if len(line) > 10 {
			t.Errorf("line %q exceeds width 10", line)
		}
	}
	if strings.Join(strings.Fields(got), " ") != "the quick brown fox jumps" {
		t.Errorf("WrapText lost words: %q", got)
	}

	if got := WrapText("keep\nlines", 80); got != "keep\nlines" {
		t.Errorf("WrapText = %q, want newlines preserved", got)
	}
}

func TestWrapText_WideRunes(t *testing.T) {
	// Each ideograph is two columns wide.
	got := WrapText("中文 中文 中文", 9)
	if got != "中文 中文\n中文" {
		t.Errorf("WrapText = %q", got)
	}
}

// =============================================================================
// RENDERING
// =============================================================================

func TestStreamRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewStreamRenderer(&buf)

	conv := model.NewConversation("sys")
	conv.SetModel("llama3")
	conv.Subscribe(r.OnChange)

	if _, err := conv.AppendUserMessage("hello"); err != nil {
		t.Fatal(err)
	}
	reply := conv.BeginAssistantReply()
	conv.UpdateAssistantReply(reply, "Hi")
	conv.UpdateAssistantReply(reply, "Hithere")
	conv.CompleteAssistantReply(reply)

	out := buf.String()
	if !strings.Contains(out, "Hithere\n") {
		t.Errorf("output = %q, want streamed reply", out)
	}
	if strings.Count(out, "Hi") != 1 {
		t.Errorf("output = %q, tokens must not be reprinted", out)
	}
	if strings.Contains(out, "hello") {
		t.Errorf("output = %q, user input is not echoed", out)
	}
}

func TestStreamRenderer_RestartAndAbort(t *testing.T) {
	var buf bytes.Buffer
	r := NewStreamRenderer(&buf)

	conv := model.NewConversation("sys")
	conv.SetModel("llama3")
	conv.Subscribe(r.OnChange)
	conv.AppendUserMessage("hello")
	reply := conv.BeginAssistantReply()

	conv.UpdateAssistantReply(reply, "par")
	conv.UpdateAssistantReply(reply, "")
	conv.UpdateAssistantReply(reply, "full")
	r.Abort()
	r.Abort()

	out := buf.String()
	if strings.Count(out, "Assistant") != 2 {
		t.Errorf("output = %q, want a fresh label after restart", out)
	}
	if !strings.HasSuffix(out, "full\n") {
		t.Errorf("output = %q, want a single newline after abort", out)
	}
}

// =============================================================================
// OUTPUT
// =============================================================================

func TestPrintModels(t *testing.T) {
	var buf bytes.Buffer
	PrintModels(&buf, []deepgate.LanguageModel{
		{Name: "llama3", Details: deepgate.ModelDetails{Family: "llama", ParameterSize: "8B"}, IsRunning: true},
		{Name: "qwen2", IsLoading: true},
	})

	out := buf.String()
	for _, want := range []string{"llama3", "llama 8B", "RUNNING", "qwen2", "LOADING"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}

	buf.Reset()
	PrintModels(&buf, nil)
	if !strings.Contains(buf.String(), "No models") {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestPrintHistoryAndTranscript(t *testing.T) {
	conv := model.NewConversation("secret system prompt")
	conv.SetModel("llama3")
	conv.AppendUserMessage("what is\nthe weather")
	reply := conv.BeginAssistantReply()
	conv.UpdateAssistantReply(reply, "sunny")

	var buf bytes.Buffer
	PrintHistory(&buf, []storage.Summary{conv.GetMeta()})
	if !strings.Contains(buf.String(), "what is the weather") {
		t.Errorf("history = %q", buf.String())
	}

	buf.Reset()
	PrintTranscript(&buf, conv)
	out := buf.String()
	if strings.Contains(out, "secret system prompt") {
		t.Error("transcript must not print the system prompt")
	}
	if !strings.Contains(out, "sunny") || !strings.Contains(out, "incomplete") {
		t.Errorf("transcript = %q", out)
	}
}

func TestTerminalPrompter_NoEditorDeclines(t *testing.T) {
	var buf bytes.Buffer
	p := NewTerminalPrompter(nil, &buf)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if p.ConfirmRetry(ctx, "Connection Error", "server down") {
		t.Error("prompter without an editor must decline")
	}
	if !strings.Contains(buf.String(), "server down") {
		t.Errorf("output = %q, want the failure message", buf.String())
	}
}
