// Package cli — create.go implements the "atelier create" command.
//
// Orchestration steps:
//  1. Detect the source repository and load project config
//  2. Determine the worktree path (flag or config template)
//  3. Create the Git worktree (new or existing branch)
//  4. Optionally lock the new worktree
//  5. Output results (text or JSON)
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/knakano/atelier/internal/config"
	"github.com/knakano/atelier/internal/model"
	"github.com/knakano/atelier/internal/worktree"
)

// createFlags holds the flag values for the create command.
type createFlags struct {
	base   string // --base: base commit/branch for the worktree
	path   string // --path: custom worktree directory path
	lock   bool   // --lock: lock the worktree immediately
	reason string // --reason: lock reason (implies --lock)
}

// NewCreateCommand creates the "create" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewCreateCommand() *cobra.Command {
	flags := &createFlags{}

	cmd := &cobra.Command{
		Use:   "create <branch-name>",
		Short: "Create a new worktree for a branch",
		Long: `Create a new Git worktree for the specified branch.

If the branch does not exist it is created from --base (default: HEAD).
The worktree directory defaults to a sibling of the repository, named
from the worktreeDir template in .atelier.yaml.

Examples:
  atelier create feature-auth
  atelier create --base main bugfix-login
  atelier create --path ~/dev/feature-auth feature-auth
  atelier create --lock --reason "long-running agent" feature-auth`,

		// Exactly one positional argument (branch name) is required.
		Args: cobra.ExactArgs(1),

		// RunE is used instead of Run so we can return errors. Cobra
		// passes them to the Execute error handler in root.go.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.base, "base", "", "Base commit/branch for the worktree (default: HEAD)")
	cmd.Flags().StringVar(&flags.path, "path", "", "Worktree directory path (default: from config template)")
	cmd.Flags().BoolVar(&flags.lock, "lock", false, "Lock the worktree after creation")
	cmd.Flags().StringVar(&flags.reason, "reason", "", "Lock reason (implies --lock)")

	return cmd
}

// runCreate is the main orchestration function for the create command.
func runCreate(branch string, flags *createFlags) error {
	// Step 1: locate the repository and load project config.
	wm := worktree.NewManager()

	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
	}

	repoRoot, err := wm.GetRepoRoot(cwd)
	if err != nil {
		return model.WrapCLIError(model.ExitGitError, "not inside a Git repository", err)
	}
	VerboseLog("Source repository: %s", repoRoot)

	cfg, err := config.Load(repoRoot)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to load config", err)
	}

	// Step 2: determine the worktree path.
	worktreePath := flags.path
	if worktreePath == "" {
		worktreePath = cfg.WorktreePath(repoRoot, branch)
	}
	worktreePath, err = filepath.Abs(worktreePath)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to resolve worktree path", err)
	}
	VerboseLog("Worktree path: %s", worktreePath)

	// Step 3: create the worktree.
	VerboseLog("Creating Git worktree for branch %q...", branch)
	if err := wm.Add(repoRoot, branch, worktreePath, flags.base); err != nil {
		return err
	}

	// Step 4: optionally lock it. --reason implies --lock.
	locked := flags.lock || flags.reason != ""
	if locked {
		VerboseLog("Locking worktree...")
		if err := wm.Lock(repoRoot, worktreePath, flags.reason); err != nil {
			return err
		}
	}

	// Step 5: output.
	printCreateResult(branch, worktreePath, locked, flags.reason)
	return nil
}

// printCreateResult outputs the create command results in text or JSON
// format.
func printCreateResult(branch, path string, locked bool, reason string) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"branch": branch,
			"path":   path,
			"locked": locked,
		}
		if reason != "" {
			result["lockReason"] = reason
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Created worktree for branch %q\n", branch)
	fmt.Printf("  Path: %s\n", path)
	if locked {
		if reason != "" {
			fmt.Printf("  Locked: yes (%s)\n", reason)
		} else {
			fmt.Println("  Locked: yes")
		}
	}
}
