// Package cli — doctor.go implements the "atelier doctor" command.
//
// Doctor checks the environment the other commands depend on: a git
// binary new enough to know `git worktree`, a reachable Docker daemon
// for sandbox mode, and the agent binaries named by the configured
// profiles. Only the git check is fatal — Docker and agents degrade to
// warnings because host-mode runs need neither.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knakano/atelier/internal/config"
	"github.com/knakano/atelier/internal/model"
	"github.com/knakano/atelier/internal/sandbox"
	"github.com/knakano/atelier/internal/worktree"
)

// checkResult is one doctor check outcome.
type checkResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`

	// Fatal marks checks whose failure makes the CLI unusable.
	Fatal bool `json:"-"`
}

// NewDoctorCommand creates the "doctor" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment for required tools",
		Long: `Check that git, Docker, and the configured agent binaries are available.

Git is required. Docker is only needed for --sandbox runs, and agent
binaries are only needed for the profiles you actually use, so those
failures are reported as warnings.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context())
		},
	}

	return cmd
}

// runDoctor executes every check and reports the results.
func runDoctor(ctx context.Context) error {
	var results []checkResult

	results = append(results, checkGit())
	results = append(results, checkDocker(ctx))
	results = append(results, checkAgents()...)

	printDoctorResults(results)

	for _, r := range results {
		if r.Fatal && !r.OK {
			return model.NewCLIError(model.ExitGeneralError, "environment check failed: "+r.Name)
		}
	}
	return nil
}

// checkGit verifies the git binary is on PATH and reports its version.
func checkGit() checkResult {
	r := checkResult{Name: "git", Fatal: true}

	path, err := exec.LookPath("git")
	if err != nil {
		r.Detail = "git not found on PATH"
		return r
	}

	stdout, _, err := worktree.GitRunner("", "version")
	if err != nil {
		r.Detail = fmt.Sprintf("%s found but `git version` failed: %v", path, err)
		return r
	}

	r.OK = true
	r.Detail = strings.TrimSpace(stdout)
	return r
}

// checkDocker reports whether a Docker daemon is reachable.
func checkDocker(ctx context.Context) checkResult {
	r := checkResult{Name: "docker"}

	cli, err := sandbox.NewClient()
	if err != nil {
		r.Detail = "Docker client unavailable: " + err.Error()
		return r
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		r.Detail = "daemon not reachable (sandbox mode unavailable)"
		return r
	}

	r.OK = true
	r.Detail = "daemon reachable"
	return r
}

// checkAgents looks up each configured agent profile's command on PATH.
// Profiles come from the repository config when run inside a repo, and
// fall back to the built-in defaults otherwise.
func checkAgents() []checkResult {
	profiles := loadProfilesForDoctor()

	results := make([]checkResult, 0, len(profiles))
	for _, p := range profiles {
		r := checkResult{Name: "agent: " + p.Name}

		if p.Sandbox {
			r.OK = true
			r.Detail = "sandboxed (runs in container image " + p.Image + ")"
			results = append(results, r)
			continue
		}

		path, err := exec.LookPath(p.Command)
		if err != nil {
			r.Detail = fmt.Sprintf("%q not found on PATH", p.Command)
		} else {
			r.OK = true
			r.Detail = path
		}
		results = append(results, r)
	}
	return results
}

// loadProfilesForDoctor loads agent profiles without failing the whole
// doctor run on config errors.
func loadProfilesForDoctor() []config.AgentProfile {
	wm := worktree.NewManager()

	cwd, err := os.Getwd()
	if err != nil {
		return nil
	}

	repoRoot, err := wm.GetRepoRoot(cwd)
	if err != nil {
		// Not inside a repository: check the built-in default profiles.
		repoRoot = cwd
	}

	profiles, err := config.LoadAgents(repoRoot)
	if err != nil {
		VerboseLog("Warning: could not load agent profiles: %v", err)
		return nil
	}
	return profiles
}

// printDoctorResults outputs the check results in text or JSON format.
func printDoctorResults(results []checkResult) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]interface{}{
			"checks": results,
		}, "", "  ")
		fmt.Println(string(data))
		return
	}

	for _, r := range results {
		mark := "ok"
		if !r.OK {
			mark = "FAIL"
			if !r.Fatal {
				mark = "warn"
			}
		}
		fmt.Printf("[%-4s] %-20s %s\n", mark, r.Name, r.Detail)
	}
}
