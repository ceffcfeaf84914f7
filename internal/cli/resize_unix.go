//go:build !windows

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/creack/pty"

	"github.com/knakano/atelier/internal/term"
)

// forwardResizes keeps the agent's PTY sized to the hosting terminal by
// forwarding SIGWINCH. The initial size is applied immediately; the
// returned stop function must be called before the session is closed.
//
// Resize failures are ignored: stdin may not be a terminal (piped
// invocations), in which case the PTY keeps its default size.
func forwardResizes(s *term.Session) func() {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range winch {
			rows, cols, err := pty.Getsize(os.Stdin)
			if err != nil {
				continue
			}
			_ = s.Resize(uint16(rows), uint16(cols))
		}
	}()

	// Prime the initial size without waiting for the first real resize.
	winch <- syscall.SIGWINCH

	return func() {
		signal.Stop(winch)
		close(winch)
		<-done
	}
}
