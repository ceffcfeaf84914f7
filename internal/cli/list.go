// Package cli — list.go implements the "atelier list" command.
//
// The list command shows all worktrees of the current repository as
// reported by `git worktree list --porcelain`, including lock and
// prunable annotations. Output is a text table or a JSON array.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knakano/atelier/internal/model"
	"github.com/knakano/atelier/internal/worktree"
)

// listFlags holds the flag values for the list command.
type listFlags struct {
	// locked limits output to locked worktrees.
	locked bool

	// prunable limits output to prunable worktrees.
	prunable bool
}

// NewListCommand creates the "list" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewListCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all worktrees",
		Long: `List all worktrees of the current repository.

Each worktree is shown with its branch, HEAD commit, and any lock or
prunable annotation git reports.

Examples:
  atelier list
  atelier list --locked
  atelier list --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(flags)
		},
	}

	cmd.Flags().BoolVar(&flags.locked, "locked", false, "Show only locked worktrees")
	cmd.Flags().BoolVar(&flags.prunable, "prunable", false, "Show only prunable worktrees")

	return cmd
}

// runList is the main logic function for the list command.
func runList(flags *listFlags) error {
	wm := worktree.NewManager()

	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
	}

	repoRoot, err := wm.GetRepoRoot(cwd)
	if err != nil {
		return model.WrapCLIError(model.ExitGitError, "not inside a Git repository", err)
	}

	worktrees, err := wm.List(repoRoot)
	if err != nil {
		return err
	}
	VerboseLog("Found %d worktrees", len(worktrees))

	// Apply flag filters. Both flags combine as OR — a worktree that is
	// locked or prunable survives either filter being set.
	if flags.locked || flags.prunable {
		filtered := make([]model.Worktree, 0, len(worktrees))
		for _, wt := range worktrees {
			if (flags.locked && wt.Locked) || (flags.prunable && wt.Prunable) {
				filtered = append(filtered, wt)
			}
		}
		worktrees = filtered
	}

	printListResult(worktrees)
	return nil
}

// printListResult outputs the worktree list in text or JSON format.
func printListResult(worktrees []model.Worktree) {
	if IsJSONOutput() {
		printListResultJSON(worktrees)
	} else {
		printListResultText(worktrees)
	}
}

// printListResultJSON outputs the list as structured JSON with a
// top-level "worktrees" key.
func printListResultJSON(worktrees []model.Worktree) {
	type resultJSON struct {
		Worktrees []model.Worktree `json:"worktrees"`
	}

	// An empty slice instead of nil ensures [] instead of null in output.
	result := resultJSON{Worktrees: make([]model.Worktree, 0, len(worktrees))}
	result.Worktrees = append(result.Worktrees, worktrees...)

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printListResultText outputs the list as a text table:
//
//	BRANCH          HEAD      FLAGS                      PATH
//	main            abc1234   -                          /home/u/app
//	feature-auth    def5678   locked(agent running)      /home/u/app-feature-auth
func printListResultText(worktrees []model.Worktree) {
	if len(worktrees) == 0 {
		fmt.Println("No worktrees found.")
		return
	}

	fmt.Printf("%-24s %-10s %-28s %s\n", "BRANCH", "HEAD", "FLAGS", "PATH")

	for _, wt := range worktrees {
		branch := wt.BranchName()
		if branch == "" {
			if wt.Bare {
				branch = "(bare)"
			} else {
				branch = "(detached)"
			}
		}

		head := wt.HEAD
		if len(head) > 7 {
			head = head[:7]
		}

		fmt.Printf("%-24s %-10s %-28s %s\n", branch, head, FormatFlags(&wt), wt.Path)
	}
}

// FormatFlags renders a worktree's annotations as a compact string,
// e.g. "locked(agent running),prunable". Returns "-" when there are none.
//
// Exported for testing (tested in list_test.go).
func FormatFlags(wt *model.Worktree) string {
	var flags []string

	if wt.Locked {
		if wt.LockReason != "" {
			flags = append(flags, fmt.Sprintf("locked(%s)", wt.LockReason))
		} else {
			flags = append(flags, "locked")
		}
	}
	if wt.Prunable {
		flags = append(flags, "prunable")
	}

	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
