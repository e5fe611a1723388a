// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/deepgate/internal/model"
)

func sampleConversation(t *testing.T) *model.Conversation {
	t.Helper()
	conv := model.NewConversation("You are Tinkerbell.")
	conv.SetModel("llama3:8b")

	_, err := conv.AppendUserMessage("What is a #hashtag?")
	require.NoError(t, err)
	reply := conv.BeginAssistantReply()
	require.NoError(t, conv.UpdateAssistantReply(reply, "A tag with a hash."))
	require.NoError(t, conv.CompleteAssistantReply(reply))
	return conv
}

func TestMarkdownExport(t *testing.T) {
	conv := sampleConversation(t)

	out, err := NewMarkdownExporter(&Options{}).Export(conv)
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, "title: \"What is a #hashtag?\"\n")
	assert.Contains(t, md, "model: llama3:8b\n")
	assert.Contains(t, md, "# What is a \\#hashtag?\n")
	assert.Contains(t, md, "### You\n\nWhat is a #hashtag?")
	assert.Contains(t, md, "### Assistant\n\nA tag with a hash.")
	assert.NotContains(t, md, "Tinkerbell")
	assert.NotContains(t, md, "[incomplete reply]")
}

func TestMarkdownExport_SystemAndPending(t *testing.T) {
	conv := sampleConversation(t)
	_, err := conv.AppendUserMessage("And another?")
	require.NoError(t, err)
	reply := conv.BeginAssistantReply()
	require.NoError(t, conv.UpdateAssistantReply(reply, "Well"))

	out, err := NewMarkdownExporter(&Options{IncludeSystem: true}).Export(conv)
	require.NoError(t, err)

	assert.Contains(t, string(out), "### System\n\nYou are Tinkerbell.")
	assert.Contains(t, string(out), "Well\n\n*[incomplete reply]*")
}

func TestExport_RejectsEmpty(t *testing.T) {
	conv := model.NewConversation("only a prompt")

	_, err := NewMarkdownExporter(nil).Export(conv)
	assert.ErrorIs(t, err, ErrEmptyConversation)

	_, err = NewJSONExporter().Export(nil)
	assert.ErrorIs(t, err, ErrEmptyConversation)
}

func TestJSONExport_Decodes(t *testing.T) {
	conv := sampleConversation(t)

	out, err := NewJSONExporter().Export(conv)
	require.NoError(t, err)

	var decoded model.Conversation
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, conv.ID, decoded.ID)
	assert.Len(t, decoded.Messages, 3)
	assert.NoError(t, decoded.Validate())
}

func TestForFormat(t *testing.T) {
	exp, err := ForFormat("MD", nil)
	require.NoError(t, err)
	assert.Equal(t, ".md", exp.FileExtension())

	exp, err = ForFormat("markdown", nil)
	require.NoError(t, err)
	assert.Equal(t, ".md", exp.FileExtension())

	exp, err = ForFormat("json", nil)
	require.NoError(t, err)
	assert.Equal(t, ".json", exp.FileExtension())

	_, err = ForFormat("html", nil)
	assert.Error(t, err)
}

func TestExportToFile(t *testing.T) {
	conv := sampleConversation(t)
	dir := filepath.Join(t.TempDir(), "exports")

	path, err := ExportToFile(conv, NewJSONExporter(), &Options{OutputDir: dir})
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "conversation_What_is_a_#hashtag-_"))
	assert.True(t, strings.HasSuffix(path, ".json"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello world", "hello_world"},
		{"a/b\\c:d", "a-b-c-d"},
		{"", "conversation"},
		{strings.Repeat("x", 80), strings.Repeat("x", 47)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), "input %q", tt.in)
	}
}
