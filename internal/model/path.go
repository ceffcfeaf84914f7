package model

import (
	"path/filepath"
	"strings"
)

// PathWithin reports whether path is equal to dir or located underneath it.
// Both arguments are cleaned first; the comparison is purely lexical, which
// matches how the resource registries key their entries (they store the
// same absolute paths the worktree manager hands out, so no symlink
// resolution is needed).
func PathWithin(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)

	if path == dir {
		return true
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
