// Package model defines the domain types for the atelier CLI.
//
// All entities in this package are transient representations: worktree
// records are reconstructed from `git worktree list --porcelain` output
// on every invocation, and session records live only as long as the
// agent subprocess they describe. There is no persistent state file.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Worktree holds metadata about a single Git worktree entry as parsed
// from `git worktree list --porcelain` output.
//
// Example porcelain output for a single worktree block:
//
//	worktree /path/to/feature-branch
//	HEAD abc123def456
//	branch refs/heads/feature-branch
//	locked agent still running
type Worktree struct {
	// Path is the absolute filesystem path to the worktree directory.
	Path string `json:"path"`

	// HEAD is the commit SHA the worktree currently points to.
	HEAD string `json:"head"`

	// Branch is the full branch reference (e.g., "refs/heads/feature-auth").
	// Empty if the worktree is in a detached HEAD state.
	Branch string `json:"branch,omitempty"`

	// Bare indicates whether this entry represents a bare repository.
	Bare bool `json:"bare,omitempty"`

	// Detached indicates a detached HEAD state ("detached" porcelain marker).
	Detached bool `json:"detached,omitempty"`

	// Locked indicates the worktree is locked against removal and pruning.
	// Git emits a standalone "locked" marker, optionally followed by a reason.
	Locked bool `json:"locked,omitempty"`

	// LockReason is the optional reason recorded when the worktree was locked.
	LockReason string `json:"lockReason,omitempty"`

	// Prunable indicates git considers the worktree's administrative files
	// stale (e.g., the directory was deleted manually).
	Prunable bool `json:"prunable,omitempty"`

	// PruneReason is git's explanation for why the entry is prunable,
	// such as "gitdir file points to non-existent location".
	PruneReason string `json:"pruneReason,omitempty"`
}

// BranchName returns the short branch name with the "refs/heads/" prefix
// stripped. Returns an empty string for detached or bare entries.
func (w *Worktree) BranchName() string {
	return strings.TrimPrefix(w.Branch, "refs/heads/")
}

// SessionState represents the lifecycle state of an agent session.
// The state transitions are:
//
//	Starting → Running → Exited
//	Starting/Running → Failed (spawn error or non-zero exit)
type SessionState string

const (
	// StateStarting indicates the agent process has been created but its
	// output stream has not produced anything yet.
	StateStarting SessionState = "starting"

	// StateRunning indicates the agent process is alive and streaming.
	StateRunning SessionState = "running"

	// StateExited indicates the agent process terminated with exit code 0.
	StateExited SessionState = "exited"

	// StateFailed indicates the agent process could not be started or
	// terminated with a non-zero exit code.
	StateFailed SessionState = "failed"
)

// String returns the string representation of SessionState.
// This satisfies fmt.Stringer for CLI output and logging.
func (s SessionState) String() string {
	return string(s)
}

// IsValid checks whether the SessionState value is one of the
// predefined valid states.
func (s SessionState) IsValid() bool {
	switch s {
	case StateStarting, StateRunning, StateExited, StateFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state is final — the process is gone and
// the session record is about to be dropped from the registry.
func (s SessionState) Terminal() bool {
	return s == StateExited || s == StateFailed
}

// ParseSessionState converts a string to a SessionState.
// Returns an error if the string does not match any valid state.
func ParseSessionState(s string) (SessionState, error) {
	state := SessionState(strings.ToLower(s))
	if !state.IsValid() {
		return "", fmt.Errorf("invalid session state: %q (valid: starting, running, exited, failed)", s)
	}
	return state, nil
}

// SessionInfo is the externally visible snapshot of an agent session.
// The live process handle stays inside the session package; this struct
// is what list/JSON output is built from.
type SessionInfo struct {
	// ID is the unique session identifier (a UUID).
	ID string `json:"id"`

	// Agent is the agent profile name the session was spawned from.
	Agent string `json:"agent"`

	// WorkDir is the worktree directory the agent runs in.
	WorkDir string `json:"workDir"`

	// PID is the OS process ID of the agent subprocess. Zero until the
	// process has actually started.
	PID int `json:"pid,omitempty"`

	// State is the current lifecycle state of the session.
	State SessionState `json:"state"`

	// StartedAt is the timestamp when the session was spawned.
	StartedAt time.Time `json:"startedAt"`
}

// Sentinel errors for classified Git failures. The git CLI does not give
// structured error output for worktree operations, so callers match these
// via errors.Is after ClassifyGitError has inspected stderr text.
var (
	// ErrDirty indicates removal was refused because the worktree has
	// modified or untracked files (needs --force).
	ErrDirty = errors.New("worktree has uncommitted changes")

	// ErrLocked indicates the operation was refused because the worktree
	// is locked.
	ErrLocked = errors.New("worktree is locked")

	// ErrNotFound indicates the target path is not a registered worktree.
	ErrNotFound = errors.New("worktree not found")

	// ErrInUse indicates the filesystem refused a destructive operation
	// because another process holds the directory or a file in it open.
	// Seen primarily on Windows.
	ErrInUse = errors.New("worktree directory is in use")
)

// ClassifyGitError maps known substrings of git (and OS removal tool)
// stderr output to sentinel errors. Returns nil when no known pattern
// matches, in which case the caller should surface the raw error.
//
// The substring matching is deliberately ad hoc: git prints these messages
// for humans and does not version them, so the patterns below are the
// stable fragments observed across git 2.15+.
func ClassifyGitError(stderr string) error {
	msg := strings.ToLower(stderr)

	switch {
	case strings.Contains(msg, "contains modified or untracked files"),
		strings.Contains(msg, "is dirty"):
		return ErrDirty
	case strings.Contains(msg, "locked working tree"),
		strings.Contains(msg, "is locked"),
		strings.Contains(msg, "already locked"):
		return ErrLocked
	case strings.Contains(msg, "is not a working tree"),
		strings.Contains(msg, "no such file or directory"),
		strings.Contains(msg, "not a valid path"):
		return ErrNotFound
	case strings.Contains(msg, "being used by another process"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "device or resource busy"),
		strings.Contains(msg, "directory not empty"):
		return ErrInUse
	}
	return nil
}

// ExitCode defines standard CLI exit codes. These codes allow scripts
// and CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitGitError indicates a Git operation failed.
	ExitGitError ExitCode = 2

	// ExitWorktreeNotFound indicates the named worktree does not exist.
	ExitWorktreeNotFound ExitCode = 3

	// ExitAgentError indicates the agent subprocess could not be spawned
	// or exited abnormally.
	ExitAgentError ExitCode = 4

	// ExitDockerNotRunning indicates sandbox mode was requested but the
	// Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 5

	// ExitUserCancelled indicates the user cancelled an interactive prompt.
	ExitUserCancelled ExitCode = 6
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
