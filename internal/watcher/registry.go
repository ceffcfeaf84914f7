// Package watcher maintains per-worktree filesystem watchers.
//
// Each registered root gets one fsnotify.Watcher and a relay goroutine.
// The registry's job during normal operation is to surface file-change
// events (e.g., "which files did the agent touch"); its job during
// teardown is just as important — CloseForDir must release every watch
// handle under a worktree before the directory is removed, because an
// open watch handle keeps the directory alive on Windows.
package watcher

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/knakano/atelier/internal/model"
)

// Event is a simplified filesystem event forwarded to callbacks.
type Event struct {
	// Root is the registered worktree root the event belongs to.
	Root string

	// Path is the affected file or directory.
	Path string

	// Op is the fsnotify operation string ("CREATE", "WRITE", ...).
	Op string
}

// Callback receives events for a watched root. Callbacks run on the
// relay goroutine of their watcher and must not block for long.
type Callback func(Event)

// entry pairs a watcher with its shutdown channel.
type entry struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Registry tracks active watchers keyed by worktree root path.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty watcher registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Watch registers a watcher on the given root directory and starts
// relaying its events to cb. Watching an already-watched root is an error.
//
// Only the root directory itself is watched, not the whole tree —
// recursive watches would need watch descriptors per subdirectory, and
// for the "what is the agent doing" use case the top level is enough.
func (r *Registry) Watch(root string, cb Callback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[root]; exists {
		return fmt.Errorf("already watching %s", root)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(root); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	e := &entry{watcher: w, done: make(chan struct{})}
	r.entries[root] = e

	go relay(root, e, cb)
	return nil
}

// relay forwards fsnotify events to the callback until the watcher closes.
func relay(root string, e *entry, cb Callback) {
	defer close(e.done)
	for {
		select {
		case ev, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			cb(Event{Root: root, Path: ev.Name, Op: ev.Op.String()})
		case _, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			// Watcher errors (overflow, removed roots) are not actionable
			// for callers; the teardown path handles cleanup.
		}
	}
}

// Close stops the watcher for the given root and waits for its relay
// goroutine to drain. Closing an unknown root is a no-op.
func (r *Registry) Close(root string) error {
	r.mu.Lock()
	e, ok := r.entries[root]
	if ok {
		delete(r.entries, root)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}

	err := e.watcher.Close()
	<-e.done
	return err
}

// CloseForDir stops every watcher whose root is the given directory or
// sits underneath it. This runs before destructive worktree removal.
func (r *Registry) CloseForDir(dir string) error {
	r.mu.Lock()
	var roots []string
	for root := range r.entries {
		if model.PathWithin(root, dir) {
			roots = append(roots, root)
		}
	}
	r.mu.Unlock()

	var firstErr error
	for _, root := range roots {
		if err := r.Close(root); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Roots returns the currently watched root paths.
func (r *Registry) Roots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	roots := make([]string, 0, len(r.entries))
	for root := range r.entries {
		roots = append(roots, root)
	}
	return roots
}
