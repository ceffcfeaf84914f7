// Package reclaim sequences the teardown of a worktree and everything
// that depends on it.
//
// Removing a worktree directory while file watchers, PTY sessions, agent
// subprocesses, or sandbox containers still reference it fails on Windows
// (open handles) and leaves orphaned resources everywhere else. The
// Reclaimer runs a fixed best-effort sequence:
//
//  1. Release dependent resources (watchers, PTYs, sessions, containers).
//     Release errors are logged and swallowed — a watcher that fails to
//     close must not prevent the removal from being attempted.
//  2. Wait a fixed settle delay so the OS drops file handles freed by
//     the releases.
//  3. `git worktree remove` (with --force when requested).
//  4. If the failure is classified as in-use: kill lingering processes
//     whose executable path is under the worktree (Windows only, via
//     PowerShell), settle again, and retry the git removal once.
//  5. If the retried removal still fails and the directory exists: fall
//     back to direct filesystem removal (`rm -rf` on POSIX,
//     `cmd /c rmdir /s /q` on Windows), then `git worktree prune` so
//     git's bookkeeping matches the disk.
//
// The fallback is strictly the tail of the in-use path. Any other git
// failure — dirty worktree, main working tree, unknown refusals — is
// returned to the caller untouched: escalating a refusal git made on
// purpose to an `rm -rf` would destroy data git is protecting.
//
// This is deliberately not a general resource-reclamation engine. There
// is no dependency graph, no rollback, and no concurrency — just the
// sequence above, with one retry and one synchronization delay.
package reclaim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/knakano/atelier/internal/model"
	"github.com/knakano/atelier/internal/worktree"
)

// Releaser frees one category of resources attached to a worktree
// directory before it is removed.
type Releaser struct {
	// Name identifies the resource category in verbose logs
	// ("watchers", "sessions", ...).
	Name string

	// Release frees every resource of this category under dir.
	Release func(ctx context.Context, dir string) error
}

// Runner executes an external cleanup command (rm, rmdir, powershell) in
// the given directory. Mirrors worktree.Runner so tests can record the
// full command sequence without touching the system.
type Runner func(dir, name string, args ...string) (stdout, stderr string, err error)

// ExecRunner is the default Runner; it executes the real command.
func ExecRunner(dir, name string, args ...string) (string, string, error) {
	// #nosec G204 — commands are fixed strings chosen by the Reclaimer
	cmd := exec.Command(name, args...)
	cmd.Dir = dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Reclaimer removes worktrees after releasing their dependent resources.
type Reclaimer struct {
	// Worktrees performs the git side of removal.
	Worktrees *worktree.Manager

	// Releasers are invoked in order before any destructive operation.
	Releasers []Releaser

	// Run executes cleanup commands. Defaults to ExecRunner.
	Run Runner

	// Settle is the pause between releasing resources and destructive
	// filesystem operations, and again between the process kill and the
	// retry. Zero means no delay (useful in tests).
	Settle time.Duration

	// Log receives verbose diagnostics. Nil discards them.
	Log io.Writer

	// GOOS overrides runtime.GOOS for platform-specific cleanup paths.
	// Tests use it to exercise the Windows sequence on any host.
	GOOS string
}

// New creates a Reclaimer with the default runner and the given settle
// delay.
func New(wm *worktree.Manager, settle time.Duration) *Reclaimer {
	return &Reclaimer{
		Worktrees: wm,
		Run:       ExecRunner,
		Settle:    settle,
		GOOS:      runtime.GOOS,
	}
}

// AddReleaser appends a resource releaser to the teardown sequence.
// Releasers run in registration order.
func (r *Reclaimer) AddReleaser(name string, release func(ctx context.Context, dir string) error) {
	r.Releasers = append(r.Releasers, Releaser{Name: name, Release: release})
}

// Remove tears down the given worktree: releases dependent resources,
// then removes the worktree via git with an in-use retry and a direct
// filesystem fallback.
//
// A locked worktree is refused unless force is set — matching git's own
// behavior, surfaced before any resource is released so a refused removal
// has no side effects.
func (r *Reclaimer) Remove(ctx context.Context, repoRoot string, wt *model.Worktree, force bool) error {
	if wt.Locked && !force {
		reason := wt.LockReason
		if reason == "" {
			reason = "no reason given"
		}
		return model.WrapCLIError(model.ExitGitError,
			fmt.Sprintf("worktree %s is locked (%s); use --force to remove it anyway", wt.Path, reason),
			model.ErrLocked)
	}

	// Step 1: release dependent resources, best effort.
	for _, rel := range r.Releasers {
		if err := rel.Release(ctx, wt.Path); err != nil {
			r.logf("warning: releasing %s for %s: %v", rel.Name, wt.Path, err)
		} else {
			r.logf("released %s for %s", rel.Name, wt.Path)
		}
	}

	// Step 2: let the OS drop the handles the releases freed.
	r.settle()

	// Step 3: the git removal proper.
	err := r.Worktrees.Remove(repoRoot, wt.Path, force)
	if err == nil {
		return nil
	}

	// Dirty without --force is a user decision, not a cleanup problem.
	if errors.Is(err, model.ErrDirty) {
		return err
	}

	// Only in-use failures get the kill/retry/fallback treatment. Every
	// other failure is git refusing for a reason of its own (main working
	// tree, stale entry, ...) — deleting the directory anyway would turn
	// that refusal into data loss, so surface the error instead.
	if !errors.Is(err, model.ErrInUse) {
		return err
	}

	// Step 4: one kill-and-retry round.
	r.logf("removal blocked, killing processes under %s", wt.Path)
	r.killHolders(wt.Path)
	r.settle()

	if retryErr := r.Worktrees.Remove(repoRoot, wt.Path, force); retryErr == nil {
		return nil
	}
	// Fall through to the filesystem fallback with the original error.

	// Step 5: direct filesystem removal, then prune git's bookkeeping.
	if _, statErr := os.Stat(wt.Path); statErr == nil {
		r.logf("git removal failed, falling back to filesystem removal of %s", wt.Path)
		if rmErr := r.removeDir(wt.Path); rmErr != nil {
			return model.WrapCLIError(model.ExitGitError,
				fmt.Sprintf("failed to remove worktree %s", wt.Path), err)
		}
	}

	if pruneErr := r.Worktrees.Prune(repoRoot, ""); pruneErr != nil {
		r.logf("warning: worktree prune after fallback removal: %v", pruneErr)
	}
	return nil
}

// killHolders force-kills processes whose executable path lies under dir.
//
// Only Windows gets a kill pass: there an open handle from any process
// blocks directory deletion outright. On POSIX, unlinking works regardless
// of open file descriptors, so no process needs to die for rm to succeed.
func (r *Reclaimer) killHolders(dir string) {
	if r.goos() != "windows" {
		return
	}

	// Match on the process executable path. Escape single quotes for the
	// PowerShell single-quoted string literal.
	escaped := strings.ReplaceAll(dir, "'", "''")
	script := fmt.Sprintf(
		"Get-Process | Where-Object { $_.Path -like '%s*' } | Stop-Process -Force",
		escaped)

	if _, stderr, err := r.Run("", "powershell", "-NoProfile", "-Command", script); err != nil {
		r.logf("warning: process kill script failed: %v (%s)", err, strings.TrimSpace(stderr))
	}
}

// removeDir deletes a directory tree with the platform removal tool.
//
// The external tools are used instead of os.RemoveAll deliberately:
// `rmdir /s /q` copes with read-only attributes and long paths the way
// Windows users expect, and `rm -rf` matches what the removal would look
// like done by hand when reported in verbose logs.
func (r *Reclaimer) removeDir(dir string) error {
	var stderr string
	var err error

	if r.goos() == "windows" {
		_, stderr, err = r.Run("", "cmd", "/c", "rmdir", "/s", "/q", dir)
	} else {
		_, stderr, err = r.Run("", "rm", "-rf", dir)
	}

	if err != nil {
		return fmt.Errorf("%s: %s", err, strings.TrimSpace(stderr))
	}
	return nil
}

// settle pauses for the configured delay. This is the ad-hoc
// synchronization barrier between teardown and destructive removal;
// there is no event to wait on because the OS releases handles
// asynchronously after the holding processes exit.
func (r *Reclaimer) settle() {
	if r.Settle > 0 {
		time.Sleep(r.Settle)
	}
}

func (r *Reclaimer) goos() string {
	if r.GOOS != "" {
		return r.GOOS
	}
	return runtime.GOOS
}

func (r *Reclaimer) logf(format string, args ...any) {
	if r.Log != nil {
		fmt.Fprintf(r.Log, format+"\n", args...)
	}
}
