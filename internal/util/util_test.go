// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	if err := AtomicWriteFile(path, []byte(`{"id":"a"}`), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != `{"id":"a"}` {
		t.Errorf("Content mismatch: got %q", string(content))
	}
}

func TestAtomicWriteFile_CreatesPrivateParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history", "sessions")
	path := filepath.Join(dir, "s.json")

	if err := AtomicWriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("parent dir not created: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != PrivateDirPerm {
		t.Errorf("dir perm = %v, want %v", info.Mode().Perm(), PrivateDirPerm)
	}
}

func TestAtomicWriteFile_OverwritesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.json")

	for _, data := range []string{"first version", "second"} {
		if err := AtomicWriteFile(path, []byte(data), 0600); err != nil {
			t.Fatalf("AtomicWriteFile failed: %v", err)
		}
	}

	content, _ := os.ReadFile(path)
	if string(content) != "second" {
		t.Errorf("Content = %q, want 'second'", string(content))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("found %d entries, want only the target file", len(entries))
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	testCases := []struct {
		input    string
		maxRunes int
		expected string
	}{
		{"hello world", 5, "he..."},
		{"hello", 5, "hello"},
		{"", 5, ""},
		{"hello world", 0, ""},
		{"abcd", 3, "abc"},
		{"héllo wörld", 8, "héllo..."},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			result := TruncateRunes(tc.input, tc.maxRunes)
			if result != tc.expected {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q",
					tc.input, tc.maxRunes, result, tc.expected)
			}
		})
	}
}

func TestFlattenLines(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"one line", "one line"},
		{"first\nsecond\r\nthird", "first second third"},
		{"  padded\t\ttabs  ", "padded tabs"},
		{"\n\n", ""},
	}

	for _, tc := range testCases {
		if got := FlattenLines(tc.input); got != tc.expected {
			t.Errorf("FlattenLines(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestRuneLen(t *testing.T) {
	if RuneLen("日本語") != 3 {
		t.Errorf("RuneLen = %d, want 3", RuneLen("日本語"))
	}
}
