package worktree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParsePorcelain tests the parser directly with known porcelain format
// strings to verify correct parsing logic.
func TestParsePorcelain(t *testing.T) {
	input := `worktree /path/to/main
HEAD abc123def456
branch refs/heads/main

worktree /path/to/feature
HEAD def789abc012
branch refs/heads/feature

`
	result := ParsePorcelain(input)
	require.Len(t, result, 2, "should parse two worktree entries")

	assert.Equal(t, "/path/to/main", result[0].Path)
	assert.Equal(t, "abc123def456", result[0].HEAD)
	assert.Equal(t, "refs/heads/main", result[0].Branch)
	assert.Equal(t, "main", result[0].BranchName())
	assert.False(t, result[0].Bare)

	assert.Equal(t, "/path/to/feature", result[1].Path)
	assert.Equal(t, "def789abc012", result[1].HEAD)
	assert.Equal(t, "refs/heads/feature", result[1].Branch)
}

// TestParsePorcelainBare verifies that the parser correctly handles bare
// repository entries.
func TestParsePorcelainBare(t *testing.T) {
	input := `worktree /path/to/bare-repo
HEAD abc123
bare

`
	result := ParsePorcelain(input)
	require.Len(t, result, 1)

	assert.Equal(t, "/path/to/bare-repo", result[0].Path)
	assert.True(t, result[0].Bare, "bare marker should set Bare to true")
	assert.Empty(t, result[0].Branch, "bare worktree should have no branch")
}

// TestParsePorcelainDetached verifies parsing of worktrees in a detached
// HEAD state (no branch line present).
func TestParsePorcelainDetached(t *testing.T) {
	input := `worktree /path/to/detached
HEAD abc123
detached

`
	result := ParsePorcelain(input)
	require.Len(t, result, 1)

	assert.Equal(t, "/path/to/detached", result[0].Path)
	assert.True(t, result[0].Detached, "detached marker should set Detached")
	assert.Empty(t, result[0].Branch, "detached HEAD should have no branch")
	assert.Empty(t, result[0].BranchName())
}

// TestParsePorcelainLocked verifies that "locked" markers are parsed both
// with and without a reason. The reason is free text after the keyword.
func TestParsePorcelainLocked(t *testing.T) {
	input := `worktree /path/to/locked-plain
HEAD abc123
branch refs/heads/locked-plain
locked

worktree /path/to/locked-reason
HEAD def456
branch refs/heads/locked-reason
locked agent still running

`
	result := ParsePorcelain(input)
	require.Len(t, result, 2)

	assert.True(t, result[0].Locked)
	assert.Empty(t, result[0].LockReason, "bare locked marker has no reason")

	assert.True(t, result[1].Locked)
	assert.Equal(t, "agent still running", result[1].LockReason,
		"reason after the locked keyword should be captured verbatim")
}

// TestParsePorcelainPrunable verifies that "prunable" markers and their
// reasons are parsed.
func TestParsePorcelainPrunable(t *testing.T) {
	input := `worktree /path/to/gone
HEAD abc123
branch refs/heads/gone
prunable gitdir file points to non-existent location

`
	result := ParsePorcelain(input)
	require.Len(t, result, 1)

	assert.True(t, result[0].Prunable)
	assert.Equal(t, "gitdir file points to non-existent location", result[0].PruneReason)
}

// TestParsePorcelainNoTrailingBlankLine verifies that the last block is
// captured even when the output does not end with a blank line separator.
func TestParsePorcelainNoTrailingBlankLine(t *testing.T) {
	input := `worktree /path/to/main
HEAD abc123
branch refs/heads/main

worktree /path/to/last
HEAD def456
branch refs/heads/last`

	result := ParsePorcelain(input)
	require.Len(t, result, 2, "trailing block without blank line should still be parsed")
	assert.Equal(t, "/path/to/last", result[1].Path)
}

// TestParsePorcelainUnknownKeys verifies that unrecognized lines are ignored
// rather than breaking the parse. Newer git versions may add keys.
func TestParsePorcelainUnknownKeys(t *testing.T) {
	input := `worktree /path/to/main
HEAD abc123
branch refs/heads/main
somefuturekey some value

`
	result := ParsePorcelain(input)
	require.Len(t, result, 1)
	assert.Equal(t, "/path/to/main", result[0].Path)
	assert.Equal(t, "refs/heads/main", result[0].Branch)
}

// TestParsePorcelainEmpty verifies that an empty string input produces no
// results without panicking.
func TestParsePorcelainEmpty(t *testing.T) {
	result := ParsePorcelain("")
	assert.Empty(t, result, "empty input should produce empty result")
}
