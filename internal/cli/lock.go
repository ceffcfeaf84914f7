// Package cli — lock.go implements the "atelier lock" and "atelier unlock"
// commands.
//
// Locking marks a worktree so that removal and pruning are refused.
// Long-running agent sessions lock their worktree to protect it from a
// concurrent `atelier remove` issued from another terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/knakano/atelier/internal/model"
	"github.com/knakano/atelier/internal/worktree"
)

// NewLockCommand creates the "lock" cobra command.
func NewLockCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "lock <branch-or-path>",
		Short: "Lock a worktree against removal",
		Long: `Lock a worktree so removal and pruning are refused until it is unlocked.

Examples:
  atelier lock feature-auth
  atelier lock --reason "agent still running" feature-auth`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runLock(args[0], reason)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason to record with the lock")

	return cmd
}

// NewUnlockCommand creates the "unlock" cobra command.
func NewUnlockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlock <branch-or-path>",
		Short: "Unlock a locked worktree",

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnlock(args[0])
		},
	}

	return cmd
}

// runLock resolves the target and locks it.
func runLock(target, reason string) error {
	wm, repoRoot, wt, err := resolveTarget(target)
	if err != nil {
		return err
	}

	if err := wm.Lock(repoRoot, wt.Path, reason); err != nil {
		return err
	}

	printLockResult("locked", wt, reason)
	return nil
}

// runUnlock resolves the target and unlocks it.
func runUnlock(target string) error {
	wm, repoRoot, wt, err := resolveTarget(target)
	if err != nil {
		return err
	}

	if err := wm.Unlock(repoRoot, wt.Path); err != nil {
		return err
	}

	printLockResult("unlocked", wt, "")
	return nil
}

// resolveTarget locates the repository and resolves a branch-or-path
// argument to a worktree. Shared by lock, unlock, and run.
func resolveTarget(target string) (*worktree.Manager, string, *model.Worktree, error) {
	wm := worktree.NewManager()

	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", nil, model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
	}

	repoRoot, err := wm.GetRepoRoot(cwd)
	if err != nil {
		return nil, "", nil, model.WrapCLIError(model.ExitGitError, "not inside a Git repository", err)
	}

	wt, err := wm.Find(repoRoot, target)
	if err != nil {
		return nil, "", nil, err
	}

	return wm, repoRoot, wt, nil
}

// printLockResult outputs the lock/unlock result in text or JSON format.
func printLockResult(action string, wt *model.Worktree, reason string) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"action": action,
			"path":   wt.Path,
		}
		if reason != "" {
			result["reason"] = reason
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if reason != "" {
		fmt.Printf("%s %s (%s)\n", capitalized(action), wt.Path, reason)
	} else {
		fmt.Printf("%s %s\n", capitalized(action), wt.Path)
	}
}

// capitalized upper-cases the first byte of an ASCII word for display.
func capitalized(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
