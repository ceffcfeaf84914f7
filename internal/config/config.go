// Package config loads atelier's project configuration.
//
// Two files are involved, both optional:
//
//   - <repo>/.atelier.yaml — project settings (worktree placement, default
//     agent, teardown timing, sandbox image), parsed with gopkg.in/yaml.v3.
//   - <repo>/.atelier/agents.json — agent profile definitions. The file
//     allows JSONC (comments and trailing commas), so it is passed through
//     github.com/tidwall/jsonc before standard encoding/json parsing —
//     the same approach editors use for devcontainer.json.
//
// Missing files yield defaults rather than errors: a repository with no
// configuration at all still gets a working `atelier run` with the built-in
// default agent profile.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when .atelier.yaml is absent or leaves
// fields unset.
const (
	// DefaultSettleDelay is the pause inserted between releasing dependent
	// resources and destructive filesystem removal. The OS (Windows in
	// particular) needs a beat to drop file handles after the holding
	// processes exit.
	DefaultSettleDelay = 500 * time.Millisecond

	// DefaultWorktreeDir is the directory template for new worktrees,
	// relative to the repository's parent directory. {repo} and {branch}
	// are substituted.
	DefaultWorktreeDir = "{repo}-{branch}"

	// DefaultAgent is the profile name used when --agent is not given
	// and the config does not set one.
	DefaultAgent = "claude"
)

// ConfigFileName is the project settings file looked up at the repo root.
const ConfigFileName = ".atelier.yaml"

// Config holds project-level settings loaded from .atelier.yaml.
type Config struct {
	// WorktreeDir is the naming template for new worktree directories,
	// resolved relative to the repository's parent directory.
	// Supported placeholders: {repo}, {branch}.
	WorktreeDir string `yaml:"worktreeDir"`

	// DefaultAgent names the agent profile used when none is specified.
	DefaultAgent string `yaml:"defaultAgent"`

	// SettleDelayMS overrides the teardown settle delay, in milliseconds.
	// Zero means DefaultSettleDelay.
	SettleDelayMS int `yaml:"settleDelayMs"`

	// SandboxImage is the container image used for sandboxed agent runs
	// when an agent profile does not specify its own.
	SandboxImage string `yaml:"sandboxImage"`
}

// Load reads .atelier.yaml from the given repository root. A missing file
// is not an error — defaults are returned. A present but malformed file is
// an error, because silently ignoring a typo'd config is worse than failing.
func Load(repoRoot string) (*Config, error) {
	cfg := &Config{}

	path := filepath.Join(repoRoot, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", ConfigFileName, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ConfigFileName, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills in zero-valued fields with package defaults.
func (c *Config) applyDefaults() {
	if c.WorktreeDir == "" {
		c.WorktreeDir = DefaultWorktreeDir
	}
	if c.DefaultAgent == "" {
		c.DefaultAgent = DefaultAgent
	}
}

// SettleDelay returns the configured settle delay as a time.Duration.
func (c *Config) SettleDelay() time.Duration {
	if c.SettleDelayMS <= 0 {
		return DefaultSettleDelay
	}
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

// WorktreePath computes the default filesystem path for a new worktree
// of the given branch, as a sibling of the repository directory.
//
// Example: repoRoot=/home/u/app, branch=feature/auth, template={repo}-{branch}
// → /home/u/app-feature-auth (slashes in branch names become hyphens).
func (c *Config) WorktreePath(repoRoot, branch string) string {
	repoName := filepath.Base(repoRoot)
	safeBranch := sanitizeBranch(branch)

	name := c.WorktreeDir
	name = strings.ReplaceAll(name, "{repo}", repoName)
	name = strings.ReplaceAll(name, "{branch}", safeBranch)

	return filepath.Join(filepath.Dir(repoRoot), name)
}

// sanitizeBranch converts a Git branch name into a filesystem-friendly
// directory component. Slashes and underscores become hyphens; anything
// outside [a-zA-Z0-9.-] is dropped.
func sanitizeBranch(branch string) string {
	var out strings.Builder
	for _, r := range branch {
		switch {
		case r == '/' || r == '_':
			out.WriteRune('-')
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '.':
			out.WriteRune(r)
		}
	}

	name := strings.Trim(out.String(), "-")
	if name == "" {
		name = "worktree"
	}
	return name
}
