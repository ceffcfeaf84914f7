package worktree

import (
	"os/exec"
	"strings"
)

// Runner executes a git invocation in the given directory and returns
// stdout, stderr, and the execution error. The indirection lets tests and
// the reclaim package observe or fake git without a real repository.
type Runner func(dir string, args ...string) (stdout, stderr string, err error)

// GitRunner is the default Runner. It executes the real git binary.
//
// The dir parameter is passed to git via the -C flag, which causes git to
// change to that directory before doing anything else. This avoids mutating
// the process working directory, which would be unsafe if callers ever run
// operations concurrently.
func GitRunner(dir string, args ...string) (string, string, error) {
	fullArgs := append([]string{"-C", dir}, args...)

	// #nosec G204 — args are constructed internally, not from user input
	cmd := exec.Command("git", fullArgs...)

	// Capture stdout and stderr separately so error classification can
	// inspect stderr while stdout is returned on success.
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
