package worktree

import (
	"strings"

	"github.com/knakano/atelier/internal/model"
)

// ParsePorcelain parses the output of `git worktree list --porcelain`
// into a slice of Worktree records.
//
// The porcelain format uses blank lines to separate worktree blocks.
// Each block contains key-value pairs (space-separated) and optional
// standalone markers. "locked" and "prunable" may carry a trailing
// reason after the keyword:
//
//	worktree /path/to/main
//	HEAD abc123
//	branch refs/heads/main
//
//	worktree /path/to/feature
//	HEAD def456
//	detached
//	locked agent still running
//
//	worktree /path/to/gone
//	HEAD 789abc
//	prunable gitdir file points to non-existent location
func ParsePorcelain(output string) []model.Worktree {
	var worktrees []model.Worktree

	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")

	var current *model.Worktree
	for _, line := range lines {
		// A blank line signals the end of a worktree block.
		if line == "" {
			if current != nil {
				worktrees = append(worktrees, *current)
				current = nil
			}
			continue
		}

		// The key is the first word; the value is everything after.
		// Markers like "bare" have no value; "locked"/"prunable" may
		// carry a free-text reason in the value position.
		key, value, _ := strings.Cut(line, " ")

		switch key {
		case "worktree":
			// Start a new worktree block.
			current = &model.Worktree{Path: value}
		case "HEAD":
			if current != nil {
				current.HEAD = value
			}
		case "branch":
			if current != nil {
				current.Branch = value
			}
		case "bare":
			if current != nil {
				current.Bare = true
			}
		case "detached":
			if current != nil {
				current.Detached = true
			}
		case "locked":
			if current != nil {
				current.Locked = true
				current.LockReason = value
			}
		case "prunable":
			if current != nil {
				current.Prunable = true
				current.PruneReason = value
			}
		}
	}

	// Handle the last block if the output doesn't end with a blank line.
	if current != nil {
		worktrees = append(worktrees, *current)
	}

	return worktrees
}
