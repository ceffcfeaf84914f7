// Package term manages pseudo-terminal sessions for interactive agents.
//
// Some agent CLIs refuse to run non-interactively or degrade their output
// without a TTY, so `atelier run --pty` allocates a real pseudo-terminal
// via github.com/creack/pty. The registry exists for the same reason the
// watcher registry does: every PTY attached to a worktree must be closed
// before the worktree directory is removed, or the open terminal fd keeps
// the directory busy.
package term

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/knakano/atelier/internal/model"
)

// Session is a process attached to a pseudo-terminal.
type Session struct {
	// ID identifies the session within the registry.
	ID string

	// WorkDir is the directory the process runs in.
	WorkDir string

	cmd  *exec.Cmd
	ptmx *os.File
}

// Terminal returns the master side of the PTY. Reads see the process's
// output; writes feed its input.
func (s *Session) Terminal() io.ReadWriter {
	return s.ptmx
}

// Resize adjusts the PTY window size. Agents re-render on SIGWINCH, so
// this should be called whenever the hosting terminal changes size.
func (s *Session) Resize(rows, cols uint16) error {
	return pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// Wait blocks until the process exits.
func (s *Session) Wait() error {
	return s.cmd.Wait()
}

// Registry tracks open PTY sessions keyed by session ID.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty PTY registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Start launches command in workDir attached to a new pseudo-terminal
// and registers the session under id.
func (r *Registry) Start(id, workDir, command string, args ...string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return nil, fmt.Errorf("pty session %q already exists", id)
	}

	// #nosec G204 — command comes from the project's own agent config
	cmd := exec.Command(command, args...)
	cmd.Dir = workDir
	cmd.Env = os.Environ()

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start %q under pty: %w", command, err)
	}

	s := &Session{ID: id, WorkDir: workDir, cmd: cmd, ptmx: ptmx}
	r.sessions[id] = s
	return s, nil
}

// Close terminates the session with the given ID: the PTY master is
// closed first (which delivers SIGHUP to the foreground process group),
// then the process is killed if it is still around. Closing an unknown
// ID is a no-op.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return closeSession(s)
}

// CloseForDir closes every PTY session whose working directory is the
// given directory or sits underneath it. Runs before worktree removal.
func (r *Registry) CloseForDir(dir string) error {
	r.mu.Lock()
	var matched []*Session
	for id, s := range r.sessions {
		if model.PathWithin(s.WorkDir, dir) {
			matched = append(matched, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	var firstErr error
	for _, s := range matched {
		if err := closeSession(s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Count returns the number of open PTY sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// closeSession releases a session's PTY and reaps the process.
func closeSession(s *Session) error {
	closeErr := s.ptmx.Close()

	if s.cmd.Process != nil {
		// SIGHUP from the PTY close usually suffices; Kill covers
		// processes that ignore it. The race with natural exit is benign.
		_ = s.cmd.Process.Kill()

		// Reap to avoid a zombie. The exit status is irrelevant here —
		// the session was torn down deliberately.
		_, _ = s.cmd.Process.Wait()
	}

	return closeErr
}
