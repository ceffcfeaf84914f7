// Package cli — remove.go implements the "atelier remove" command.
//
// The remove command destroys a worktree through the reclaim sequence:
// dependent resources first (sandbox containers for this worktree; any
// watchers, PTYs, and agent sessions belong to the process being removed
// from, so at CLI level the container teardown is the live releaser),
// then a settle delay, then `git worktree remove` with an in-use retry
// and a filesystem fallback.
//
// By default, the command prompts for confirmation before proceeding.
// The --force flag both skips the prompt and forwards force to git,
// allowing removal of dirty or locked worktrees.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knakano/atelier/internal/config"
	"github.com/knakano/atelier/internal/model"
	"github.com/knakano/atelier/internal/reclaim"
	"github.com/knakano/atelier/internal/sandbox"
	"github.com/knakano/atelier/internal/worktree"
)

// removeFlags holds the flag values for the remove command.
type removeFlags struct {
	// force skips the confirmation prompt and forwards --force to git,
	// removing dirty and locked worktrees.
	force bool
}

// NewRemoveCommand creates the "remove" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewRemoveCommand() *cobra.Command {
	flags := &removeFlags{}

	cmd := &cobra.Command{
		Use:   "remove <branch-or-path>",
		Short: "Remove a worktree and its dependent resources",
		Long: `Remove a worktree, tearing down dependent resources first.

Sandbox containers mounting the worktree are removed before the
directory is deleted. Dirty or locked worktrees are refused unless
--force is given.

Unless --force is specified, the command prompts for confirmation.

Examples:
  atelier remove feature-auth
  atelier remove --force ../app-feature-auth`,

		// Exactly one positional argument (branch or path) is required.
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Remove without confirmation, even if dirty or locked")

	return cmd
}

// runRemove is the main logic function for the remove command.
func runRemove(ctx context.Context, target string, flags *removeFlags) error {
	// Step 1: locate the repository and resolve the target worktree.
	wm := worktree.NewManager()

	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
	}

	repoRoot, err := wm.GetRepoRoot(cwd)
	if err != nil {
		return model.WrapCLIError(model.ExitGitError, "not inside a Git repository", err)
	}

	wt, err := wm.Find(repoRoot, target)
	if err != nil {
		return err
	}
	VerboseLog("Resolved %q to worktree %s", target, wt.Path)

	// Refuse to remove the main working tree. The comparison goes through
	// the porcelain list (main tree first) rather than the current
	// directory's repo root — when the command runs from inside a linked
	// worktree, repoRoot is that worktree, not the main tree.
	main, err := wm.MainWorktree(repoRoot)
	if err != nil {
		return err
	}
	if wt.Path == main.Path {
		return model.NewCLIError(model.ExitGeneralError,
			"refusing to remove the main working tree")
	}

	cfg, err := config.Load(repoRoot)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to load config", err)
	}

	// Step 2: confirmation prompt unless --force.
	if !flags.force {
		confirmed, promptErr := promptConfirmation(wt)
		if promptErr != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to read user input", promptErr)
		}
		if !confirmed {
			return model.NewCLIError(model.ExitUserCancelled, "operation cancelled by user")
		}
	}

	// Step 3: build the reclaimer. Container teardown is registered only
	// when a Docker daemon is actually reachable — sandboxing is optional
	// and most removals never involved a container.
	rec := reclaim.New(wm, cfg.SettleDelay())
	if verbose {
		rec.Log = os.Stderr
	}

	if sandbox.Available(ctx) {
		rec.AddReleaser("sandbox containers", releaseContainers)
	} else {
		VerboseLog("Docker not reachable, skipping container teardown")
	}

	// Step 4: the teardown sequence proper.
	if err := rec.Remove(ctx, repoRoot, wt, flags.force); err != nil {
		return err
	}

	printRemoveResult(wt)
	return nil
}

// releaseContainers removes every sandbox container whose worktree label
// points under dir. Used as a reclaim.Releaser.
func releaseContainers(ctx context.Context, dir string) error {
	cli, err := sandbox.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	containers, err := sandbox.ContainersForWorktree(ctx, cli, dir)
	if err != nil {
		return err
	}

	var firstErr error
	for _, c := range containers {
		VerboseLog("Removing container %s (%s)...", c.Name, shortID(c.ID))
		// Running containers get their stop signal first so the agent's
		// entrypoint can flush; a failed stop is not fatal because the
		// forced removal below kills whatever ignored it.
		if c.State == "running" {
			if err := sandbox.StopContainer(ctx, cli, c.ID); err != nil {
				VerboseLog("Warning: stopping container %s: %v", shortID(c.ID), err)
			}
		}
		// force=true: a still-running agent container must not block
		// the removal it is part of.
		if err := sandbox.RemoveContainer(ctx, cli, c.ID, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// shortID truncates a container ID for display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// promptConfirmation asks the user to confirm the remove operation.
// It reads a single line from stdin and checks for "y" or "yes".
func promptConfirmation(wt *model.Worktree) (bool, error) {
	fmt.Printf("About to remove worktree %s\n", wt.Path)
	if branch := wt.BranchName(); branch != "" {
		fmt.Printf("  Branch: %s (the branch itself is kept)\n", branch)
	}
	if wt.Locked {
		fmt.Println("  Note: this worktree is locked")
	}
	fmt.Print("\nContinue? [y/N] ")

	// bufio.Scanner handles LF and CRLF line endings across platforms.
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}

	// Closed stdin or read error counts as "no".
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return false, nil
}

// printRemoveResult outputs the remove result in text or JSON format.
func printRemoveResult(wt *model.Worktree) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"action": "removed",
			"path":   wt.Path,
			"branch": wt.BranchName(),
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Removed worktree %s\n", wt.Path)
	if branch := wt.BranchName(); branch != "" {
		fmt.Printf("  Branch %q is kept; delete it with git branch -d\n", branch)
	}
}
