// Package model defines the domain types and value objects for the
// atelier CLI.
//
// This package contains pure data structures with no external dependencies.
// Worktree records are parsed from git porcelain output; session records
// mirror live agent subprocesses and are never persisted.
//
// The package also defines exit codes (ExitCode), a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling,
// and sentinel errors produced by classifying git stderr text.
package model
