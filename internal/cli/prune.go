// Package cli — prune.go implements the "atelier prune" command.
//
// Prune delegates to `git worktree prune`, clearing administrative files
// of worktrees whose directories are gone (shown as "prunable" in list
// output). It exists as a first-class command because the reclaim
// fallback path can leave such entries behind when git removal failed
// and the directory was deleted directly.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/knakano/atelier/internal/model"
	"github.com/knakano/atelier/internal/worktree"
)

// pruneFlags holds the flag values for the prune command.
type pruneFlags struct {
	// expire limits pruning to entries older than this git approxidate
	// (e.g., "1.day.ago").
	expire string
}

// NewPruneCommand creates the "prune" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewPruneCommand() *cobra.Command {
	flags := &pruneFlags{}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune stale worktree bookkeeping",
		Long: `Remove administrative files of worktrees whose directories no longer exist.

Examples:
  atelier prune
  atelier prune --expire 1.day.ago`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(flags)
		},
	}

	cmd.Flags().StringVar(&flags.expire, "expire", "", "Only prune entries older than this age (git approxidate)")

	return cmd
}

// runPrune is the main logic function for the prune command.
func runPrune(flags *pruneFlags) error {
	wm := worktree.NewManager()

	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
	}

	repoRoot, err := wm.GetRepoRoot(cwd)
	if err != nil {
		return model.WrapCLIError(model.ExitGitError, "not inside a Git repository", err)
	}

	// Count prunable entries first so the result can say what happened.
	worktrees, err := wm.List(repoRoot)
	if err != nil {
		return err
	}
	prunable := 0
	for _, wt := range worktrees {
		if wt.Prunable {
			prunable++
		}
	}

	if err := wm.Prune(repoRoot, flags.expire); err != nil {
		return err
	}

	if IsJSONOutput() {
		result := map[string]interface{}{
			"action": "pruned",
			"count":  prunable,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Pruned %d stale worktree entr%s\n", prunable, pluralYies(prunable))
	return nil
}

// pluralYies returns "y" or "ies" for the entry/entries wording.
func pluralYies(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
