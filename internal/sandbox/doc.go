// Package sandbox provides optional containerized execution for agent
// sessions and the label scheme that ties containers to worktrees.
//
// Containers are identified by "atelier.*" labels rather than any state
// file, so discovery works even across CLI invocations: reclaim can
// always find and remove a worktree's containers before deleting the
// directory they bind-mount.
package sandbox
