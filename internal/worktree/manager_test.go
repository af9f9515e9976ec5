package worktree

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/autofix/internal/autofixerr"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	fpath := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(fpath, []byte("hello"), 0o644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)

	_, err = wt.Commit("initial commit", &git.CommitOptions{})
	require.NoError(t, err)

	head, err := repo.Head()
	require.NoError(t, err)
	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), head.Hash())))

	return dir
}

func TestManager_MaxConcurrentEnforced(t *testing.T) {
	repoPath := initRepo(t)
	baseDir := filepath.Join(t.TempDir(), "worktrees")
	m := NewManager(repoPath, baseDir, WithMaxConcurrent(1))

	_, err := m.Acquire("fix/a", nil, "main")
	require.NoError(t, err)

	_, err = m.Acquire("fix/b", nil, "main")
	require.Error(t, err)
	var afe *autofixerr.Error
	require.ErrorAs(t, err, &afe)
	assert.Equal(t, autofixerr.KindMaxConcurrent, afe.Kind)
}

func TestManager_ReleaseFreesSlot(t *testing.T) {
	repoPath := initRepo(t)
	baseDir := filepath.Join(t.TempDir(), "worktrees")
	m := NewManager(repoPath, baseDir, WithMaxConcurrent(1))

	lease, err := m.Acquire("fix/a", nil, "main")
	require.NoError(t, err)
	require.NoError(t, m.Release(lease.ID))
	assert.Equal(t, 0, m.ActiveCount())

	_, err = m.Acquire("fix/b", nil, "main")
	require.NoError(t, err)
}

func TestManager_ReleaseUnknownLeaseIsNotFound(t *testing.T) {
	repoPath := initRepo(t)
	baseDir := filepath.Join(t.TempDir(), "worktrees")
	m := NewManager(repoPath, baseDir)

	err := m.Release("does-not-exist")
	require.Error(t, err)
	var afe *autofixerr.Error
	require.ErrorAs(t, err, &afe)
	assert.Equal(t, autofixerr.KindWorktreeNotFound, afe.Kind)
}

func TestManager_RunAutoCleanupReclaimsStaleLeases(t *testing.T) {
	repoPath := initRepo(t)
	baseDir := filepath.Join(t.TempDir(), "worktrees")
	m := NewManager(repoPath, baseDir, WithAutoCleanupAge(time.Millisecond))

	lease, err := m.Acquire("fix/a", nil, "main")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	m.RunAutoCleanup()
	_, ok := m.Get(lease.ID)
	assert.False(t, ok)
}

func TestManager_CleanupAllReleasesEverything(t *testing.T) {
	repoPath := initRepo(t)
	baseDir := filepath.Join(t.TempDir(), "worktrees")
	m := NewManager(repoPath, baseDir, WithMaxConcurrent(4))

	_, err := m.Acquire("fix/a", nil, "main")
	require.NoError(t, err)
	_, err = m.Acquire("fix/b", nil, "main")
	require.NoError(t, err)

	m.CleanupAll()
	assert.Equal(t, 0, m.ActiveCount())
}

func TestManager_SetStatusUnknownLease(t *testing.T) {
	repoPath := initRepo(t)
	baseDir := filepath.Join(t.TempDir(), "worktrees")
	m := NewManager(repoPath, baseDir)

	err := m.SetStatus("nope", StatusReady)
	require.Error(t, err)
}
