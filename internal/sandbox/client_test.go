package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDetectUnixSocket verifies that socket probing returns the first path
// that exists, formatted as a unix:// host URI, and errors when none do.
func TestDetectUnixSocket(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "missing.sock")
	present := filepath.Join(dir, "docker.sock")

	// A regular file stands in for the socket: detection only checks
	// existence, not the file type.
	require.NoError(t, os.WriteFile(present, nil, 0600))

	host, err := detectUnixSocket([]string{missing, present})
	require.NoError(t, err)
	assert.Equal(t, "unix://"+present, host)

	// Earlier paths win when both exist.
	host, err = detectUnixSocket([]string{present, missing})
	require.NoError(t, err)
	assert.Equal(t, "unix://"+present, host)

	_, err = detectUnixSocket([]string{missing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Docker socket not found")
}
