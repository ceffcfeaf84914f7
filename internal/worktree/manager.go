// Package worktree provides Git worktree management operations.
//
// This package wraps Git CLI commands (via os/exec) to create, list,
// remove, lock, and inspect Git worktrees. It is the Git integration
// layer for the atelier CLI, where each worktree hosts an independent
// coding-agent session.
//
// Design decisions:
//   - We shell out to `git` rather than using a Go Git library (e.g., go-git)
//     because worktree operations require full Git CLI compatibility, and
//     go-git's worktree support is limited.
//   - Errors from Git commands are wrapped in model.CLIError with
//     ExitGitError. Known stderr patterns are additionally classified into
//     sentinel errors (model.ErrDirty, model.ErrLocked, ...) so callers can
//     branch with errors.Is instead of re-matching strings.
package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knakano/atelier/internal/model"
)

// Manager provides Git worktree operations by invoking the git CLI.
//
// It is stateless apart from the injected Runner — all methods receive the
// repository path as a parameter. The Runner indirection exists so tests
// and the reclaim package can substitute command execution.
type Manager struct {
	// run executes a git invocation and returns (stdout, stderr, error).
	// Defaults to GitRunner, which execs the real git binary.
	run Runner
}

// NewManager creates a new worktree Manager that invokes the system git.
func NewManager() *Manager {
	return &Manager{run: GitRunner}
}

// NewManagerWithRunner creates a Manager with a custom command runner.
// Used by tests to record invocations without touching a repository.
func NewManagerWithRunner(run Runner) *Manager {
	return &Manager{run: run}
}

// Add creates a new Git worktree at the specified path.
//
// This method handles two cases:
//  1. If the branch does NOT already exist: creates a new branch from
//     baseBranch using `git worktree add -b <branch> <path> <baseBranch>`.
//  2. If the branch already exists: checks out the existing branch into the
//     new worktree using `git worktree add <path> <branch>`.
//
// If baseBranch is empty, HEAD is used as the starting point for the new
// branch.
func (m *Manager) Add(repoPath, branch, worktreePath, baseBranch string) error {
	// If the branch exists, -b would fail with "already exists", so use
	// the checkout form instead.
	if m.BranchExists(repoPath, branch) {
		_, err := m.git(repoPath, "worktree", "add", worktreePath, branch)
		return err
	}

	args := []string{"worktree", "add", "-b", branch, worktreePath}
	if baseBranch != "" {
		args = append(args, baseBranch)
	}
	// When baseBranch is empty, git defaults to HEAD as the starting point.

	_, err := m.git(repoPath, args...)
	return err
}

// List returns information about all worktrees associated with the given
// repository, including lock and prunable annotations.
//
// It runs `git worktree list --porcelain` which produces machine-parseable
// output. Each worktree block is separated by a blank line. Within a block,
// each line is a space-separated key-value pair; markers like "bare",
// "detached", "locked", and "prunable" appear as standalone keywords,
// the latter two optionally followed by a reason.
func (m *Manager) List(repoPath string) ([]model.Worktree, error) {
	output, err := m.git(repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	return ParsePorcelain(output), nil
}

// Find resolves a user-supplied target — either a worktree path or a short
// branch name — to a worktree record. Paths are compared after filepath.Abs
// normalization so relative paths work from any directory.
//
// Returns model.ErrNotFound (wrapped in a CLIError) when nothing matches.
func (m *Manager) Find(repoPath, target string) (*model.Worktree, error) {
	worktrees, err := m.List(repoPath)
	if err != nil {
		return nil, err
	}

	absTarget, absErr := filepath.Abs(target)

	for i := range worktrees {
		wt := &worktrees[i]
		if wt.BranchName() == target {
			return wt, nil
		}
		if wt.Path == target {
			return wt, nil
		}
		if absErr == nil && wt.Path == absTarget {
			return wt, nil
		}
	}

	return nil, model.WrapCLIError(model.ExitWorktreeNotFound,
		fmt.Sprintf("no worktree matches %q", target), model.ErrNotFound)
}

// MainWorktree returns the repository's main working tree entry.
//
// `git worktree list` always reports the main working tree first,
// regardless of which working tree the command runs from, so this works
// even when repoPath is itself a linked worktree.
func (m *Manager) MainWorktree(repoPath string) (*model.Worktree, error) {
	worktrees, err := m.List(repoPath)
	if err != nil {
		return nil, err
	}
	if len(worktrees) == 0 {
		return nil, model.NewCLIError(model.ExitGitError, "git reported no worktrees")
	}
	return &worktrees[0], nil
}

// Remove deletes a Git worktree at the specified path.
//
// This runs `git worktree remove <worktreePath>`, which removes the worktree
// directory and its administrative files. If force is true, the --force flag
// allows removal of worktrees with uncommitted changes.
//
// Note: this only performs the Git side of removal. Dependent resources
// (agent sessions, watchers, PTYs, sandbox containers) must be released
// first; the reclaim package sequences the full teardown.
func (m *Manager) Remove(repoPath, worktreePath string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		// --force allows removing worktrees that have untracked files or
		// uncommitted changes. Without it, git refuses "dirty" worktrees.
		args = append(args, "--force")
	}
	args = append(args, worktreePath)

	_, err := m.git(repoPath, args...)
	return err
}

// Prune removes stale worktree administrative files from .git/worktrees.
// If expire is non-empty it is passed as --expire <time>, limiting pruning
// to entries older than the given age (git approxidate, e.g. "1.day.ago").
func (m *Manager) Prune(repoPath, expire string) error {
	args := []string{"worktree", "prune"}
	if expire != "" {
		args = append(args, "--expire", expire)
	}

	_, err := m.git(repoPath, args...)
	return err
}

// Lock marks a worktree as locked, preventing removal and pruning.
// The optional reason is recorded by git and surfaced in porcelain output.
func (m *Manager) Lock(repoPath, worktreePath, reason string) error {
	args := []string{"worktree", "lock"}
	if reason != "" {
		args = append(args, "--reason", reason)
	}
	args = append(args, worktreePath)

	_, err := m.git(repoPath, args...)
	return err
}

// Unlock removes the lock from a worktree.
func (m *Manager) Unlock(repoPath, worktreePath string) error {
	_, err := m.git(repoPath, "worktree", "unlock", worktreePath)
	return err
}

// IsWorktree checks whether the given path is a Git worktree (as opposed to
// a main repository working directory).
//
// Git worktrees are identified by having a .git FILE (not directory) that
// contains a "gitdir:" pointer to the main repository's .git/worktrees/<name>
// directory. In contrast, the main working directory has a .git DIRECTORY.
func (m *Manager) IsWorktree(path string) bool {
	gitPath := filepath.Join(path, ".git")

	// Lstat rather than Stat: we need to know what .git itself is,
	// not what a symlink resolves to.
	info, err := os.Lstat(gitPath)
	if err != nil {
		return false
	}

	// A .git directory means this is the main repository, not a worktree.
	if info.IsDir() {
		return false
	}

	content, err := os.ReadFile(gitPath)
	if err != nil {
		return false
	}

	return strings.HasPrefix(string(content), "gitdir:")
}

// GetRepoRoot returns the absolute path to the top-level directory of the
// Git working tree containing the given path.
//
// Uses `git rev-parse --show-toplevel`, which works for both the main
// repository and worktrees — it returns the root of whichever working
// tree contains the specified path.
func (m *Manager) GetRepoRoot(path string) (string, error) {
	output, err := m.git(path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// GetCurrentBranch returns the name of the currently checked-out branch
// at the given path. Returns "HEAD" in a detached HEAD state.
func (m *Manager) GetCurrentBranch(path string) (string, error) {
	output, err := m.git(path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// BranchExists checks whether a branch with the given name exists.
//
// Uses `git rev-parse --verify <branch>`, which exits 0 if the ref exists.
// Only the exit code matters; the output (the commit SHA) is discarded.
func (m *Manager) BranchExists(repoPath, branch string) bool {
	_, err := m.git(repoPath, "rev-parse", "--verify", branch)
	return err == nil
}

// git executes a git command in the given repository directory and wraps
// failures.
//
// On failure it returns a model.CLIError with ExitGitError. If the stderr
// text matches a known pattern, the CLIError wraps the corresponding
// sentinel (model.ErrDirty etc.) so callers can use errors.Is; the raw
// stderr is still included in the message for diagnostics.
func (m *Manager) git(repoPath string, args ...string) (string, error) {
	stdout, stderr, err := m.run(repoPath, args...)
	if err == nil {
		return stdout, nil
	}

	stderrStr := strings.TrimSpace(stderr)
	message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
	if stderrStr != "" {
		message = fmt.Sprintf("%s: %s", message, stderrStr)
	}

	// Classified failures wrap the sentinel instead of the raw exec error,
	// trading the exit status for an errors.Is-able cause. The raw stderr
	// stays in the message either way.
	if classified := model.ClassifyGitError(stderrStr); classified != nil {
		return "", model.WrapCLIError(model.ExitGitError, message, classified)
	}

	return "", model.WrapCLIError(model.ExitGitError, message, err)
}
