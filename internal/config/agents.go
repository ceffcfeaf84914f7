package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// AgentsFileName is the agent profile definition file, relative to the
// repository root. The file may contain JSONC (comments, trailing commas).
const AgentsFileName = ".atelier/agents.json"

// AgentProfile describes how to spawn a coding-agent subprocess.
//
// A profile is resolved by name at `atelier run` time. The command is
// looked up on PATH; args and env are passed through verbatim, except
// that the literal token "{prompt}" in args is replaced with the user's
// prompt text.
type AgentProfile struct {
	// Name is the profile identifier used with --agent.
	Name string `json:"name"`

	// Command is the agent binary to execute (resolved via PATH).
	Command string `json:"command"`

	// Args are the command-line arguments. The token "{prompt}" is
	// substituted with the prompt passed to `atelier run`.
	Args []string `json:"args,omitempty"`

	// Env holds extra environment variables for the subprocess,
	// merged over the inherited environment.
	Env map[string]string `json:"env,omitempty"`

	// Sandbox requests that the agent run inside a container instead of
	// directly on the host.
	Sandbox bool `json:"sandbox,omitempty"`

	// Image is the container image for sandboxed runs. Falls back to the
	// project-level sandboxImage setting when empty.
	Image string `json:"image,omitempty"`
}

// agentsFile mirrors the on-disk structure of .atelier/agents.json.
type agentsFile struct {
	Agents []AgentProfile `json:"agents"`
}

// defaultProfiles returns the built-in agent profiles used when no
// agents.json exists. The claude profile matches the stream-json
// invocation the Claude Code CLI documents for non-interactive use.
func defaultProfiles() []AgentProfile {
	return []AgentProfile{
		{
			Name:    "claude",
			Command: "claude",
			Args: []string{
				"-p", "{prompt}",
				"--output-format", "stream-json",
				"--verbose",
			},
		},
	}
}

// LoadAgents reads agent profiles from <repoRoot>/.atelier/agents.json.
//
// The file is JSONC: comments are stripped with jsonc.ToJSON before
// parsing with encoding/json, mirroring how devcontainer.json is handled
// by editors. A missing file yields the built-in defaults; a present but
// invalid file is an error.
func LoadAgents(repoRoot string) ([]AgentProfile, error) {
	path := filepath.Join(repoRoot, AgentsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaultProfiles(), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", AgentsFileName, err)
	}

	// jsonc.ToJSON replaces comments and trailing commas with whitespace,
	// preserving byte offsets so json syntax errors still point at the
	// right location in the original file.
	var file agentsFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", AgentsFileName, err)
	}

	if len(file.Agents) == 0 {
		return defaultProfiles(), nil
	}

	for i := range file.Agents {
		if file.Agents[i].Name == "" {
			return nil, fmt.Errorf("%s: agent entry %d has no name", AgentsFileName, i)
		}
		if file.Agents[i].Command == "" {
			return nil, fmt.Errorf("%s: agent %q has no command", AgentsFileName, file.Agents[i].Name)
		}
	}

	return file.Agents, nil
}

// FindAgent resolves a profile by name from the given slice.
// An empty name resolves to the first profile.
func FindAgent(profiles []AgentProfile, name string) (*AgentProfile, error) {
	if len(profiles) == 0 {
		return nil, errors.New("no agent profiles configured")
	}
	if name == "" {
		return &profiles[0], nil
	}
	for i := range profiles {
		if profiles[i].Name == name {
			return &profiles[i], nil
		}
	}
	return nil, fmt.Errorf("unknown agent profile %q", name)
}
