package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSubstitutePrompt verifies that only the exact {prompt} token is
// replaced and the original slice is left untouched.
func TestSubstitutePrompt(t *testing.T) {
	args := []string{"-p", "{prompt}", "--output-format", "stream-json"}

	got := substitutePrompt(args, "add OAuth login")
	assert.Equal(t, []string{"-p", "add OAuth login", "--output-format", "stream-json"}, got)

	// The input slice must not be mutated — profiles are shared.
	assert.Equal(t, "{prompt}", args[1])

	// Partial matches are not substituted.
	got = substitutePrompt([]string{"--note={prompt}"}, "x")
	assert.Equal(t, []string{"--note={prompt}"}, got)

	// Empty prompt still replaces the token.
	got = substitutePrompt([]string{"{prompt}"}, "")
	assert.Equal(t, []string{""}, got)
}

// TestCompactPayload verifies the one-line truncation for text display.
func TestCompactPayload(t *testing.T) {
	short := json.RawMessage(`{"type":"result"}`)
	assert.Equal(t, `{"type":"result"}`, compactPayload(short))

	long := json.RawMessage(`{"content":"` + strings.Repeat("x", 500) + `"}`)
	got := compactPayload(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), 203)
}
