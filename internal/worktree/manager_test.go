package worktree

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knakano/atelier/internal/model"
)

// setupTestRepo creates a temporary directory with an initialized Git
// repository containing a single commit. Most git worktree commands require
// at least one commit to exist, so this is the baseline for every test here.
//
// The function uses t.TempDir() which automatically cleans up after the test.
// It also configures a local user.name and user.email so that `git commit`
// works in CI environments where global git config may not be set.
func setupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	runTestGit(t, dir, "init")

	// Configure user identity at the repo level so `git commit` works
	// even in environments without a global Git configuration (e.g., CI).
	runTestGit(t, dir, "config", "user.email", "test@example.com")
	runTestGit(t, dir, "config", "user.name", "Test User")

	initialFile := filepath.Join(dir, "README.md")
	err := os.WriteFile(initialFile, []byte("# Test Repo\n"), 0644)
	require.NoError(t, err, "failed to create initial file")

	runTestGit(t, dir, "add", ".")
	runTestGit(t, dir, "commit", "-m", "initial commit")

	return dir
}

// runTestGit runs a git command in the specified directory and fails the
// test immediately if the command exits with a non-zero status.
func runTestGit(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(output))
	return string(output)
}

// TestAdd verifies that Manager.Add creates a new worktree with a new branch.
func TestAdd(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	worktreePath := filepath.Join(t.TempDir(), "feature-branch")

	// Empty baseBranch means the new branch starts at HEAD.
	err := m.Add(repoPath, "feature-branch", worktreePath, "")
	require.NoError(t, err, "Add should succeed for a new branch")

	_, statErr := os.Stat(worktreePath)
	assert.NoError(t, statErr, "worktree directory should exist after Add")

	branch, err := m.GetCurrentBranch(worktreePath)
	require.NoError(t, err)
	assert.Equal(t, "feature-branch", branch)
}

// TestAddExistingBranch verifies that Manager.Add checks out an existing
// branch instead of failing on the -b flag.
func TestAddExistingBranch(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	runTestGit(t, repoPath, "branch", "existing-branch")

	worktreePath := filepath.Join(t.TempDir(), "existing-branch-wt")

	err := m.Add(repoPath, "existing-branch", worktreePath, "")
	require.NoError(t, err, "Add should succeed for an existing branch")

	branch, err := m.GetCurrentBranch(worktreePath)
	require.NoError(t, err)
	assert.Equal(t, "existing-branch", branch)
}

// TestAddWithBaseBranch verifies that Manager.Add creates a new branch based
// on a specified base branch rather than HEAD.
func TestAddWithBaseBranch(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	mainBranch, err := m.GetCurrentBranch(repoPath)
	require.NoError(t, err)

	worktreePath := filepath.Join(t.TempDir(), "from-base")

	err = m.Add(repoPath, "from-base", worktreePath, mainBranch)
	require.NoError(t, err, "Add with explicit baseBranch should succeed")

	branch, err := m.GetCurrentBranch(worktreePath)
	require.NoError(t, err)
	assert.Equal(t, "from-base", branch)
}

// TestList verifies that Manager.List returns all worktrees including the
// main repository and any additional worktrees.
func TestList(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	wt1 := filepath.Join(t.TempDir(), "wt1")
	wt2 := filepath.Join(t.TempDir(), "wt2")

	err := m.Add(repoPath, "branch-1", wt1, "")
	require.NoError(t, err)

	err = m.Add(repoPath, "branch-2", wt2, "")
	require.NoError(t, err)

	worktrees, err := m.List(repoPath)
	require.NoError(t, err)
	assert.Len(t, worktrees, 3, "should list main repo + 2 worktrees")

	paths := make([]string, len(worktrees))
	for i, wt := range worktrees {
		paths[i] = wt.Path
	}

	// Resolve symlinks because on macOS t.TempDir() returns a path under
	// /var which is a symlink to /private/var, and git reports the
	// resolved form.
	resolvedRepo, _ := filepath.EvalSymlinks(repoPath)
	resolvedWT1, _ := filepath.EvalSymlinks(wt1)
	resolvedWT2, _ := filepath.EvalSymlinks(wt2)

	assert.Contains(t, paths, resolvedRepo, "listing should include main repo")
	assert.Contains(t, paths, resolvedWT1, "listing should include worktree 1")
	assert.Contains(t, paths, resolvedWT2, "listing should include worktree 2")

	for _, wt := range worktrees {
		assert.NotEmpty(t, wt.HEAD, "each worktree should have a HEAD commit")
		assert.NotEmpty(t, wt.Branch, "each worktree should have a branch ref")
	}
}

// TestListLocked verifies that lock annotations from `git worktree lock`
// appear in the listing, including the recorded reason.
func TestListLocked(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	worktreePath := filepath.Join(t.TempDir(), "locked-wt")
	err := m.Add(repoPath, "locked-branch", worktreePath, "")
	require.NoError(t, err)

	err = m.Lock(repoPath, worktreePath, "agent still running")
	require.NoError(t, err, "Lock should succeed")

	wt, err := m.Find(repoPath, "locked-branch")
	require.NoError(t, err)
	assert.True(t, wt.Locked, "listing should report the worktree as locked")
	assert.Equal(t, "agent still running", wt.LockReason)

	// Unlock and verify the annotation disappears.
	err = m.Unlock(repoPath, worktreePath)
	require.NoError(t, err, "Unlock should succeed")

	wt, err = m.Find(repoPath, "locked-branch")
	require.NoError(t, err)
	assert.False(t, wt.Locked, "listing should report the worktree as unlocked")
}

// TestMainWorktree verifies that MainWorktree identifies the main repository
// regardless of which working tree it is queried from. This matters for the
// remove command's safety check: when invoked from inside a linked worktree,
// the repo root resolved from the current directory is the linked tree, not
// the main one.
func TestMainWorktree(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	worktreePath := filepath.Join(t.TempDir(), "linked")
	err := m.Add(repoPath, "linked-branch", worktreePath, "")
	require.NoError(t, err)

	resolvedRepo, _ := filepath.EvalSymlinks(repoPath)

	// Queried from the main repo.
	main, err := m.MainWorktree(repoPath)
	require.NoError(t, err)
	assert.Equal(t, resolvedRepo, main.Path)

	// Queried from inside the linked worktree: same answer.
	main, err = m.MainWorktree(worktreePath)
	require.NoError(t, err)
	assert.Equal(t, resolvedRepo, main.Path)
}

// TestFind verifies that Find resolves both branch names and paths
// (relative or absolute) to the same worktree record.
func TestFind(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	worktreePath := filepath.Join(t.TempDir(), "findable")
	err := m.Add(repoPath, "findable-branch", worktreePath, "")
	require.NoError(t, err)

	// By branch name.
	wt, err := m.Find(repoPath, "findable-branch")
	require.NoError(t, err)
	assert.Equal(t, "findable-branch", wt.BranchName())

	// By path, as git reports it.
	wt2, err := m.Find(repoPath, wt.Path)
	require.NoError(t, err)
	assert.Equal(t, wt.Path, wt2.Path)
}

// TestFindNotFound verifies that Find returns a CLIError wrapping
// model.ErrNotFound for an unknown target.
func TestFindNotFound(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	_, err := m.Find(repoPath, "no-such-branch")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound),
		"Find should wrap model.ErrNotFound")

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "Find should return a CLIError")
	assert.Equal(t, model.ExitWorktreeNotFound, cliErr.Code)
}

// TestRemove verifies that Manager.Remove deletes a worktree from both the
// filesystem and git's worktree registry.
func TestRemove(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	worktreePath := filepath.Join(t.TempDir(), "to-remove")
	err := m.Add(repoPath, "to-remove", worktreePath, "")
	require.NoError(t, err)

	_, statErr := os.Stat(worktreePath)
	require.NoError(t, statErr, "worktree should exist before removal")

	err = m.Remove(repoPath, worktreePath, false)
	require.NoError(t, err, "Remove should succeed for a clean worktree")

	_, statErr = os.Stat(worktreePath)
	assert.True(t, os.IsNotExist(statErr), "worktree directory should be deleted after removal")

	worktrees, err := m.List(repoPath)
	require.NoError(t, err)

	resolvedWT, _ := filepath.EvalSymlinks(worktreePath)
	for _, wt := range worktrees {
		assert.NotEqual(t, resolvedWT, wt.Path, "removed worktree should not appear in list")
	}
}

// TestRemoveDirty verifies that removing a worktree with untracked files
// fails without force and that the error classifies as model.ErrDirty, then
// succeeds with force=true.
func TestRemoveDirty(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	worktreePath := filepath.Join(t.TempDir(), "dirty-wt")
	err := m.Add(repoPath, "dirty-branch", worktreePath, "")
	require.NoError(t, err)

	dirtyFile := filepath.Join(worktreePath, "untracked.txt")
	err = os.WriteFile(dirtyFile, []byte("dirty"), 0644)
	require.NoError(t, err)

	// Non-forced removal must refuse the dirty worktree.
	err = m.Remove(repoPath, worktreePath, false)
	require.Error(t, err, "Remove without force should fail for a dirty worktree")
	assert.True(t, errors.Is(err, model.ErrDirty),
		"error should classify as model.ErrDirty, got: %v", err)

	// Forced removal succeeds.
	err = m.Remove(repoPath, worktreePath, true)
	require.NoError(t, err, "Remove with force should succeed")

	_, statErr := os.Stat(worktreePath)
	assert.True(t, os.IsNotExist(statErr), "worktree directory should be deleted after forced removal")
}

// TestRemoveLocked verifies that git refuses to remove a locked worktree
// and the error classifies as model.ErrLocked.
func TestRemoveLocked(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	worktreePath := filepath.Join(t.TempDir(), "locked-remove")
	err := m.Add(repoPath, "locked-remove", worktreePath, "")
	require.NoError(t, err)

	err = m.Lock(repoPath, worktreePath, "")
	require.NoError(t, err)

	err = m.Remove(repoPath, worktreePath, false)
	require.Error(t, err, "Remove should fail for a locked worktree")
	assert.True(t, errors.Is(err, model.ErrLocked),
		"error should classify as model.ErrLocked, got: %v", err)
}

// TestPrune verifies that Prune clears the administrative entry of a
// worktree whose directory was deleted out from under git.
func TestPrune(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	worktreePath := filepath.Join(t.TempDir(), "to-prune")
	err := m.Add(repoPath, "to-prune", worktreePath, "")
	require.NoError(t, err)

	// Delete the directory directly, simulating the filesystem fallback
	// path where git removal failed and the directory was removed by hand.
	err = os.RemoveAll(worktreePath)
	require.NoError(t, err)

	// The stale entry should still be listed, marked prunable.
	worktrees, err := m.List(repoPath)
	require.NoError(t, err)
	found := false
	for _, wt := range worktrees {
		if wt.BranchName() == "to-prune" {
			found = true
			assert.True(t, wt.Prunable, "entry with missing directory should be prunable")
		}
	}
	require.True(t, found, "stale entry should appear in listing before prune")

	err = m.Prune(repoPath, "")
	require.NoError(t, err, "Prune should succeed")

	worktrees, err = m.List(repoPath)
	require.NoError(t, err)
	for _, wt := range worktrees {
		assert.NotEqual(t, "to-prune", wt.BranchName(),
			"pruned entry should not appear in list")
	}
}

// TestGetRepoRoot verifies that GetRepoRoot returns the correct top-level
// directory for a Git repository.
func TestGetRepoRoot(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	root, err := m.GetRepoRoot(repoPath)
	require.NoError(t, err)

	resolvedRepo, _ := filepath.EvalSymlinks(repoPath)
	resolvedRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, resolvedRepo, resolvedRoot, "GetRepoRoot should return the repo path")
}

// TestGetRepoRootFromSubdirectory verifies that GetRepoRoot works correctly
// when called from a subdirectory within the repository.
func TestGetRepoRootFromSubdirectory(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	subDir := filepath.Join(repoPath, "sub", "dir")
	err := os.MkdirAll(subDir, 0755)
	require.NoError(t, err)

	root, err := m.GetRepoRoot(subDir)
	require.NoError(t, err)

	resolvedRepo, _ := filepath.EvalSymlinks(repoPath)
	resolvedRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, resolvedRepo, resolvedRoot,
		"GetRepoRoot from subdirectory should return the repo root")
}

// TestBranchExists verifies that BranchExists correctly detects the presence
// or absence of branches.
func TestBranchExists(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	mainBranch, err := m.GetCurrentBranch(repoPath)
	require.NoError(t, err)

	assert.True(t, m.BranchExists(repoPath, mainBranch),
		"BranchExists should return true for the default branch")

	assert.False(t, m.BranchExists(repoPath, "non-existent-branch-xyz"),
		"BranchExists should return false for a branch that doesn't exist")
}

// TestIsWorktree verifies that IsWorktree distinguishes a linked worktree
// (which has a .git file) from the main repository (a .git directory) and
// from directories outside git entirely.
func TestIsWorktree(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	assert.False(t, m.IsWorktree(repoPath),
		"main repo should not be identified as a worktree")

	worktreePath := filepath.Join(t.TempDir(), "wt-check")
	err := m.Add(repoPath, "wt-check-branch", worktreePath, "")
	require.NoError(t, err)

	assert.True(t, m.IsWorktree(worktreePath),
		"worktree path should be identified as a worktree")

	assert.False(t, m.IsWorktree(t.TempDir()),
		"non-git directory should not be identified as a worktree")
}

// TestManagerWithRunner verifies that a fake Runner sees the exact git
// arguments the Manager constructs and that its stderr output is classified.
func TestManagerWithRunner(t *testing.T) {
	var gotDir string
	var gotArgs []string

	m := NewManagerWithRunner(func(dir string, args ...string) (string, string, error) {
		gotDir = dir
		gotArgs = args
		return "", "fatal: working tree is dirty\n", errors.New("exit status 128")
	})

	err := m.Remove("/repo", "/repo-feature", true)
	require.Error(t, err)

	assert.Equal(t, "/repo", gotDir)
	assert.Equal(t, []string{"worktree", "remove", "--force", "/repo-feature"}, gotArgs)
	assert.True(t, errors.Is(err, model.ErrDirty),
		"stderr should classify as model.ErrDirty")
}
