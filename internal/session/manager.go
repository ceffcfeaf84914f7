// Package session manages coding-agent subprocesses.
//
// A Manager holds live sessions in a mutex-guarded map keyed by UUID.
// Each session owns one agent subprocess; its stdout is relayed line by
// line to a Handler, with JSON object lines decoded just enough to lift
// out the message type (see stream.go). Sessions remove themselves from
// the map when the process exits.
//
// Stopping is two-phase: SIGTERM, then SIGKILL after a grace period.
// On Windows there is no useful TERM equivalent for console subprocesses,
// so Stop kills immediately there.
package session

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/knakano/atelier/internal/config"
	"github.com/knakano/atelier/internal/model"
)

// Session is a single running agent subprocess and its relay state.
type Session struct {
	// ID is the unique session identifier (UUID v4).
	ID string

	// Agent is the profile name the session was spawned from.
	Agent string

	// WorkDir is the worktree directory the agent runs in.
	WorkDir string

	// StartedAt is the spawn timestamp.
	StartedAt time.Time

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	handler Handler

	// done is closed after the process has exited and the final
	// KindExit event has been delivered.
	done chan struct{}

	mu       sync.Mutex
	state    model.SessionState
	exitCode int
}

// Info returns a snapshot of the session for display.
func (s *Session) Info() model.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := model.SessionInfo{
		ID:        s.ID,
		Agent:     s.Agent,
		WorkDir:   s.WorkDir,
		State:     s.state,
		StartedAt: s.StartedAt,
	}
	if s.cmd.Process != nil {
		info.PID = s.cmd.Process.Pid
	}
	return info
}

// Done returns a channel closed when the session has fully terminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ExitCode returns the process exit code. Only meaningful after Done()
// is closed.
func (s *Session) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

func (s *Session) setState(state model.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// markRunning flips starting → running on the first observed output.
func (s *Session) markRunning() {
	s.mu.Lock()
	if s.state == model.StateStarting {
		s.state = model.StateRunning
	}
	s.mu.Unlock()
}

// Manager tracks all live agent sessions in a keyed map.
// All methods are safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

// Spawn starts an agent subprocess in workDir using the given profile and
// registers it in the session map.
//
// The profile's args are copied with the "{prompt}" token substituted.
// stdout lines are relayed to handler as KindJSON or KindText events,
// stderr lines as KindStderr, and process exit as a final KindExit event,
// after which the session is removed from the map and Done() is closed.
func (m *Manager) Spawn(profile *config.AgentProfile, workDir, prompt string, handler Handler) (*Session, error) {
	args := make([]string, 0, len(profile.Args))
	for _, a := range profile.Args {
		args = append(args, strings.ReplaceAll(a, "{prompt}", prompt))
	}

	// #nosec G204 — command and args come from the project's own config
	cmd := exec.Command(profile.Command, args...)
	cmd.Dir = workDir
	cmd.Env = os.Environ()
	for k, v := range profile.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stderr: %w", err)
	}

	s := &Session{
		ID:        uuid.NewString(),
		Agent:     profile.Name,
		WorkDir:   workDir,
		StartedAt: time.Now().UTC(),
		cmd:       cmd,
		stdin:     stdin,
		handler:   handler,
		done:      make(chan struct{}),
		state:     model.StateStarting,
	}

	if err := cmd.Start(); err != nil {
		s.setState(model.StateFailed)
		return nil, model.WrapCLIError(model.ExitAgentError,
			fmt.Sprintf("failed to start agent %q", profile.Command), err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	// Two reader goroutines relay output; the waiter goroutine reaps the
	// process once both streams have drained. Waiting for the readers
	// before cmd.Wait is required — Wait closes the pipes.
	var readers sync.WaitGroup
	readers.Add(2)

	go func() {
		defer readers.Done()
		_ = ScanMessages(stdout, s.ID, KindText, func(msg Message) {
			s.markRunning()
			handler(msg)
		})
	}()

	go func() {
		defer readers.Done()
		_ = ScanMessages(stderr, s.ID, KindStderr, func(msg Message) {
			// stderr lines keep their kind even when they happen to be
			// valid JSON — diagnostics are not part of the protocol.
			if msg.Kind == KindJSON {
				msg.Kind = KindStderr
				msg.Text = string(msg.Payload)
				msg.Type = ""
				msg.Payload = nil
			}
			handler(msg)
		})
	}()

	go m.reap(s, &readers)

	return s, nil
}

// reap waits for the process to exit, records the outcome, emits the
// final exit event, and removes the session from the map.
func (m *Manager) reap(s *Session, readers *sync.WaitGroup) {
	readers.Wait()
	err := s.cmd.Wait()

	code := 0
	if err != nil {
		code = 1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
	}

	s.mu.Lock()
	s.exitCode = code
	if code == 0 {
		s.state = model.StateExited
	} else {
		s.state = model.StateFailed
	}
	s.mu.Unlock()

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()

	s.handler(Message{
		SessionID: s.ID,
		Kind:      KindExit,
		ExitCode:  code,
		Time:      time.Now(),
	})
	close(s.done)
}

// Send writes a line of text to the agent's stdin.
func (m *Manager) Send(id, text string) error {
	s := m.Get(id)
	if s == nil {
		return fmt.Errorf("no session %q", id)
	}
	_, err := io.WriteString(s.stdin, text+"\n")
	return err
}

// Get returns the session with the given ID, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns snapshots of all live sessions, oldest first.
func (m *Manager) List() []model.SessionInfo {
	m.mu.RLock()
	infos := make([]model.SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Stop terminates a session. When graceful is true the process first
// receives SIGTERM and is given the grace period to exit before SIGKILL.
// Returns once the session has fully terminated.
func (m *Manager) Stop(id string, graceful bool, grace time.Duration) error {
	s := m.Get(id)
	if s == nil {
		return fmt.Errorf("no session %q", id)
	}
	return m.stop(s, graceful, grace)
}

func (m *Manager) stop(s *Session, graceful bool, grace time.Duration) error {
	if s.cmd.Process == nil {
		return nil
	}

	// Windows console processes have no deliverable TERM; kill outright,
	// matching the PowerShell force-kill behavior the desktop original used.
	if graceful && runtime.GOOS != "windows" {
		if err := s.cmd.Process.Signal(syscall.SIGTERM); err == nil {
			select {
			case <-s.done:
				return nil
			case <-time.After(grace):
				// Fall through to the hard kill.
			}
		}
	}

	// Kill can race with natural exit; "process already finished" is fine.
	if err := s.cmd.Process.Kill(); err != nil && !strings.Contains(err.Error(), "process already finished") {
		return err
	}
	<-s.done
	return nil
}

// StopForDir terminates every session whose working directory is the given
// directory or lives underneath it. Used before worktree removal so no
// agent process holds the directory open. Errors are joined; a nil return
// means every matching session is gone.
func (m *Manager) StopForDir(dir string, grace time.Duration) error {
	m.mu.RLock()
	var matched []*Session
	for _, s := range m.sessions {
		if model.PathWithin(s.WorkDir, dir) {
			matched = append(matched, s)
		}
	}
	m.mu.RUnlock()

	var firstErr error
	for _, s := range matched {
		if err := m.stop(s, true, grace); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StopAll terminates every live session.
func (m *Manager) StopAll(grace time.Duration) {
	for _, info := range m.List() {
		if s := m.Get(info.ID); s != nil {
			_ = m.stop(s, true, grace)
		}
	}
}
