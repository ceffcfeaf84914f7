// Package cli — run.go implements the "atelier run" command.
//
// Run spawns a coding-agent session inside a worktree and streams its
// output until the agent exits or the user interrupts.
//
// Three execution modes:
//   - default: host subprocess; stdout NDJSON is relayed as structured
//     events, plain text and stderr pass through alongside.
//   - --pty: the agent gets a pseudo-terminal, for CLIs that require a
//     TTY. Output is copied raw; stdin is forwarded.
//   - --sandbox: the agent runs in a Docker container with the worktree
//     bind-mounted, labeled so reclaim can find it later.
//
// --watch additionally reports file changes in the worktree while the
// agent works, via an fsnotify watcher that is always closed before the
// command returns.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/knakano/atelier/internal/config"
	"github.com/knakano/atelier/internal/model"
	"github.com/knakano/atelier/internal/sandbox"
	"github.com/knakano/atelier/internal/session"
	"github.com/knakano/atelier/internal/term"
	"github.com/knakano/atelier/internal/watcher"
)

// stopGrace is how long a SIGTERM'd agent gets to exit before SIGKILL.
const stopGrace = 5 * time.Second

// runFlags holds the flag values for the run command.
type runFlags struct {
	agent     string // --agent: agent profile name
	prompt    string // --prompt: initial prompt text
	sandboxed bool   // --sandbox: run in a container
	pty       bool   // --pty: allocate a pseudo-terminal
	watch     bool   // --watch: report file changes in the worktree
}

// NewRunCommand creates the "run" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <branch-or-path>",
		Short: "Run a coding agent in a worktree",
		Long: `Spawn a coding-agent session in the specified worktree and stream its output.

The agent profile comes from --agent, .atelier/agents.json, or the
built-in default. Interrupting with Ctrl-C stops the agent gracefully
(SIGTERM, then SIGKILL after a grace period).

Examples:
  atelier run feature-auth --prompt "add OAuth login"
  atelier run --agent aider feature-auth --prompt "fix the tests"
  atelier run --sandbox feature-auth --prompt "refactor"
  atelier run --watch feature-auth --prompt "rename the User type"`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.agent, "agent", "", "Agent profile name (default: from config)")
	cmd.Flags().StringVar(&flags.prompt, "prompt", "", "Prompt text passed to the agent")
	cmd.Flags().BoolVar(&flags.sandboxed, "sandbox", false, "Run the agent in a Docker container")
	cmd.Flags().BoolVar(&flags.pty, "pty", false, "Attach the agent to a pseudo-terminal")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "Report file changes in the worktree")

	return cmd
}

// runRun is the main orchestration function for the run command.
func runRun(ctx context.Context, target string, flags *runFlags) error {
	// Step 1: resolve the worktree and load configuration.
	_, repoRoot, wt, err := resolveTarget(target)
	if err != nil {
		return err
	}
	VerboseLog("Running agent in %s", wt.Path)

	cfg, err := config.Load(repoRoot)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to load config", err)
	}

	profiles, err := config.LoadAgents(repoRoot)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to load agent profiles", err)
	}

	agentName := flags.agent
	if agentName == "" {
		agentName = cfg.DefaultAgent
	}
	profile, err := config.FindAgent(profiles, agentName)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "agent profile not found", err)
	}
	VerboseLog("Agent profile: %s (%s)", profile.Name, profile.Command)

	// Step 2: interrupt handling. The first Ctrl-C cancels ctx; the
	// deferred stop() restores default handling so a second Ctrl-C
	// kills the CLI outright if teardown hangs.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	// Step 3: optional file-change reporting.
	if flags.watch {
		reg := watcher.NewRegistry()
		if err := reg.Watch(wt.Path, printChangeEvent); err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to watch worktree", err)
		}
		// The watch handle must not outlive the run — an open handle
		// would block a subsequent remove on Windows.
		defer func() { _ = reg.CloseForDir(wt.Path) }()
	}

	// Step 4: dispatch on execution mode.
	switch {
	case flags.sandboxed || profile.Sandbox:
		return runSandboxed(ctx, cfg, profile, wt, flags.prompt)
	case flags.pty:
		return runWithPTY(ctx, profile, wt, flags.prompt)
	default:
		return runOnHost(ctx, profile, wt, flags.prompt)
	}
}

// runOnHost spawns the agent as a host subprocess and relays its
// event stream to stdout.
func runOnHost(ctx context.Context, profile *config.AgentProfile, wt *model.Worktree, prompt string) error {
	mgr := session.NewManager()

	s, err := mgr.Spawn(profile, wt.Path, prompt, printSessionEvent)
	if err != nil {
		return err
	}
	VerboseLog("Session %s started (pid %d)", s.ID, s.Info().PID)

	select {
	case <-ctx.Done():
		VerboseLog("Interrupted, stopping agent...")
		if err := mgr.Stop(s.ID, true, stopGrace); err != nil {
			VerboseLog("Warning: stopping session: %v", err)
		}
		return model.NewCLIError(model.ExitUserCancelled, "agent interrupted")
	case <-s.Done():
	}

	if code := s.ExitCode(); code != 0 {
		return model.NewCLIError(model.ExitAgentError,
			fmt.Sprintf("agent exited with code %d", code))
	}
	return nil
}

// runWithPTY attaches the agent to a pseudo-terminal and proxies its
// output to stdout and the user's stdin to the agent.
func runWithPTY(ctx context.Context, profile *config.AgentProfile, wt *model.Worktree, prompt string) error {
	args := substitutePrompt(profile.Args, prompt)

	reg := term.NewRegistry()
	id := uuid.NewString()

	s, err := reg.Start(id, wt.Path, profile.Command, args...)
	if err != nil {
		return model.WrapCLIError(model.ExitAgentError, "failed to start agent under pty", err)
	}
	// Always release the PTY: the open terminal fd would otherwise keep
	// the worktree directory busy after the run.
	defer func() { _ = reg.Close(id) }()

	// Keep the agent's terminal sized to ours for the whole run.
	stopResize := forwardResizes(s)
	defer stopResize()

	// Forward user input; copy agent output until the PTY closes.
	go func() { _, _ = io.Copy(s.Terminal(), os.Stdin) }()

	copyDone := make(chan struct{})
	go func() {
		_, _ = io.Copy(os.Stdout, s.Terminal())
		close(copyDone)
	}()

	select {
	case <-ctx.Done():
		return model.NewCLIError(model.ExitUserCancelled, "agent interrupted")
	case <-copyDone:
	}

	if err := s.Wait(); err != nil {
		return model.WrapCLIError(model.ExitAgentError, "agent exited abnormally", err)
	}
	return nil
}

// runSandboxed runs the agent inside a labeled Docker container with the
// worktree bind-mounted.
func runSandboxed(ctx context.Context, cfg *config.Config, profile *config.AgentProfile, wt *model.Worktree, prompt string) error {
	image := profile.Image
	if image == "" {
		image = cfg.SandboxImage
	}
	if image == "" {
		return model.NewCLIError(model.ExitGeneralError,
			"sandbox mode needs an image: set sandboxImage in .atelier.yaml or image in the agent profile")
	}

	// Verify the daemon before handing off to docker run, so the error
	// is "Docker is not running" instead of a CLI usage message.
	cli, err := sandbox.NewClient()
	if err != nil {
		return err
	}
	if err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return err
	}
	_ = cli.Close()

	args := sandbox.RunArgs{
		Image:        image,
		WorktreePath: wt.Path,
		Command:      profile.Command,
		Args:         substitutePrompt(profile.Args, prompt),
		Env:          profile.Env,
		Meta: sandbox.ContainerMeta{
			SessionID:    uuid.NewString(),
			WorktreePath: wt.Path,
			Agent:        profile.Name,
			CreatedAt:    time.Now().UTC(),
		},
	}

	VerboseLog("Running agent in container image %s", image)
	return sandbox.RunAgent(ctx, args, os.Stdout, os.Stderr)
}

// substitutePrompt copies args with the "{prompt}" token replaced.
func substitutePrompt(args []string, prompt string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "{prompt}" {
			out[i] = prompt
		} else {
			out[i] = a
		}
	}
	return out
}

// printSessionEvent renders one session event to stdout. In JSON mode,
// every event is one NDJSON line (the agent's structured messages are
// embedded verbatim in the payload). In text mode, structured messages
// are summarized by type and text lines pass through.
func printSessionEvent(msg session.Message) {
	if IsJSONOutput() {
		data, _ := json.Marshal(msg)
		fmt.Println(string(data))
		return
	}

	switch msg.Kind {
	case session.KindJSON:
		fmt.Printf("[%s] %s\n", msg.Type, compactPayload(msg.Payload))
	case session.KindText:
		fmt.Println(msg.Text)
	case session.KindStderr:
		fmt.Fprintln(os.Stderr, msg.Text)
	case session.KindExit:
		VerboseLog("Agent exited with code %d", msg.ExitCode)
	}
}

// compactPayload truncates a JSON payload for one-line text display.
func compactPayload(payload json.RawMessage) string {
	const maxLen = 200
	s := string(payload)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// printChangeEvent renders one file-change event from the watcher.
func printChangeEvent(ev watcher.Event) {
	if IsJSONOutput() {
		data, _ := json.Marshal(map[string]string{
			"kind": "change",
			"op":   ev.Op,
			"path": ev.Path,
		})
		fmt.Println(string(data))
		return
	}
	fmt.Printf("[change] %s %s\n", ev.Op, ev.Path)
}
