//go:build windows

package cli

import (
	"github.com/knakano/atelier/internal/term"
)

// forwardResizes is a no-op on Windows: SIGWINCH does not exist there,
// and the --pty mode needs a Unix platform to allocate a terminal in the
// first place.
func forwardResizes(_ *term.Session) func() {
	return func() {}
}
