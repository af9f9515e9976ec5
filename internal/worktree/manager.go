// Package worktree manages the lifecycle of isolated git working copies
// leased out to the pipeline, one per bundle in flight.
package worktree

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"

	"github.com/fyrsmithlabs/autofix/internal/autofixerr"
)

// Status narrates a lease's progress through the pipeline. The manager
// itself only distinguishes active from released; interpreting
// individual transitions is the pipeline's responsibility.
type Status string

const (
	StatusCreating   Status = "creating"
	StatusReady      Status = "ready"
	StatusInUse      Status = "in-use"
	StatusChecking   Status = "checking"
	StatusCommitting Status = "committing"
	StatusCleaning   Status = "cleaning"
	StatusError      Status = "error"
)

var terminalStatuses = map[Status]bool{
	StatusCleaning: true,
}

// Lease is a single isolated working copy checked out onto a proposed
// branch for the duration of one bundle's pipeline run.
type Lease struct {
	ID             string
	Path           string
	BaseBranch     string
	ProposedBranch string
	Status         Status
	IssueIDs       []string
	AcquiredAt     time.Time
	LastActivity   time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxConcurrent bounds the number of simultaneously active leases.
func WithMaxConcurrent(n int) Option {
	return func(m *Manager) { m.maxConcurrent = n }
}

// WithAutoCleanupAge bounds how long a lease may remain active before
// runAutoCleanup forcibly reclaims it.
func WithAutoCleanupAge(d time.Duration) Option {
	return func(m *Manager) { m.autoCleanupAge = d }
}

// Manager owns the active-lease table and the on-disk working copies it
// refers to.
type Manager struct {
	repoPath       string
	baseDir        string
	maxConcurrent  int
	autoCleanupAge time.Duration

	mu     sync.RWMutex
	leases map[string]*Lease
	active int64

	stopAutoCleanup chan struct{}
	cleanupOnce     sync.Once
}

// NewManager constructs a Manager rooted at repoPath, placing working
// copies under baseDir.
func NewManager(repoPath, baseDir string, opts ...Option) *Manager {
	m := &Manager{
		repoPath:        repoPath,
		baseDir:         baseDir,
		maxConcurrent:   4,
		autoCleanupAge:  30 * time.Minute,
		leases:          make(map[string]*Lease),
		stopAutoCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire creates a new working copy on branch, rooted from baseBranch,
// and returns a lease for it. It fails with MAX_CONCURRENT_EXCEEDED if
// doing so would exceed the configured concurrency limit, or
// ACQUIRE_FAILED if the underlying checkout fails.
func (m *Manager) Acquire(branch string, issueIDs []string, baseBranch string) (*Lease, error) {
	m.mu.Lock()
	if int(m.active) >= m.maxConcurrent {
		m.mu.Unlock()
		return nil, autofixerr.New(autofixerr.KindMaxConcurrent, fmt.Sprintf("max concurrent worktrees (%d) reached", m.maxConcurrent))
	}
	leaseID := uuid.NewString()
	path := filepath.Join(m.baseDir, sanitizePathSegment(branch)+"-"+leaseID[:8])
	lease := &Lease{
		ID:             leaseID,
		Path:           path,
		BaseBranch:     baseBranch,
		ProposedBranch: branch,
		Status:         StatusCreating,
		IssueIDs:       issueIDs,
		AcquiredAt:     time.Now(),
		LastActivity:   time.Now(),
	}
	m.leases[leaseID] = lease
	m.active++
	m.mu.Unlock()

	if err := m.createWorktree(lease); err != nil {
		m.mu.Lock()
		delete(m.leases, leaseID)
		m.active--
		m.mu.Unlock()
		return nil, autofixerr.Wrap(autofixerr.KindAcquireFailed, "failed to create worktree for "+branch, err)
	}

	m.mu.Lock()
	lease.Status = StatusReady
	m.mu.Unlock()

	return lease, nil
}

func (m *Manager) createWorktree(lease *Lease) error {
	repo, err := git.PlainOpen(m.repoPath)
	if err != nil {
		return fmt.Errorf("open repo %s: %w", m.repoPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(lease.Path), 0o755); err != nil {
		return fmt.Errorf("prepare worktree parent dir: %w", err)
	}

	headRef, err := repo.Reference(plumbing.NewBranchReferenceName(lease.BaseBranch), true)
	if err != nil {
		return fmt.Errorf("resolve base branch %s: %w", lease.BaseBranch, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("load primary worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(lease.ProposedBranch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRef, headRef.Hash())); err != nil {
		return fmt.Errorf("create branch ref %s: %w", lease.ProposedBranch, err)
	}

	if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef}); err != nil {
		return fmt.Errorf("checkout %s: %w", lease.ProposedBranch, err)
	}

	return copyWorktreeToPath(wt, lease.Path)
}

// copyWorktreeToPath materializes an isolated copy of the checked-out
// tree at dst. go-git does not provide a native "git worktree add"
// equivalent for bare or already-checked-out repositories, so the lease
// directory is populated by walking the checked-out worktree's billy
// filesystem and copying regular files onto the OS filesystem.
func copyWorktreeToPath(wt *git.Worktree, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return copyTree(wt.Filesystem, "", dst)
}

func copyTree(fs billy.Filesystem, srcDir, dstDir string) error {
	entries, err := fs.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("read worktree dir %s: %w", srcDir, err)
	}

	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		srcPath := filepath.Join(srcDir, entry.Name())
		dstPath := filepath.Join(dstDir, entry.Name())

		if entry.IsDir() {
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return err
			}
			if err := copyTree(fs, srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(fs, srcPath, dstPath, entry.Mode()); err != nil {
			return fmt.Errorf("copy %s: %w", srcPath, err)
		}
	}
	return nil
}

func copyFile(fs billy.Filesystem, srcPath, dstPath string, mode os.FileMode) error {
	src, err := fs.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// Release removes the on-disk working copy for leaseID but keeps the
// branch so it can be published downstream.
func (m *Manager) Release(leaseID string) error {
	return m.release(leaseID, false)
}

// ReleaseAndCleanBranch removes both the working copy and its branch.
func (m *Manager) ReleaseAndCleanBranch(leaseID string) error {
	return m.release(leaseID, true)
}

func (m *Manager) release(leaseID string, deleteBranch bool) error {
	m.mu.Lock()
	lease, ok := m.leases[leaseID]
	if !ok {
		m.mu.Unlock()
		return autofixerr.New(autofixerr.KindWorktreeNotFound, "no such lease: "+leaseID)
	}
	lease.Status = StatusCleaning
	m.mu.Unlock()

	// Cleanup failures are logged by the caller and swallowed here; the
	// lease is still removed from the active table so accounting stays
	// correct even when disk cleanup partially fails.
	_ = os.RemoveAll(lease.Path)
	if deleteBranch {
		_ = m.deleteBranch(lease.ProposedBranch)
	}

	m.mu.Lock()
	delete(m.leases, leaseID)
	m.active--
	m.mu.Unlock()

	return nil
}

func (m *Manager) deleteBranch(branch string) error {
	repo, err := git.PlainOpen(m.repoPath)
	if err != nil {
		return err
	}
	return repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(branch))
}

// RunAutoCleanup forcibly releases, with branch deletion, every lease
// older than the configured auto-cleanup age.
func (m *Manager) RunAutoCleanup() {
	cutoff := time.Now().Add(-m.autoCleanupAge)

	m.mu.RLock()
	var stale []string
	for id, l := range m.leases {
		if l.AcquiredAt.Before(cutoff) && !terminalStatuses[l.Status] {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		_ = m.ReleaseAndCleanBranch(id)
	}
}

// StartAutoCleanupLoop runs RunAutoCleanup every autoCleanupAge/2 until
// Stop is called.
func (m *Manager) StartAutoCleanupLoop() {
	interval := m.autoCleanupAge / 2
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.RunAutoCleanup()
			case <-m.stopAutoCleanup:
				return
			}
		}
	}()
}

// Stop halts the auto-cleanup loop started by StartAutoCleanupLoop.
func (m *Manager) Stop() {
	m.cleanupOnce.Do(func() { close(m.stopAutoCleanup) })
}

// CleanupAll releases every known lease. Intended for shutdown/interrupt.
func (m *Manager) CleanupAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.leases))
	for id := range m.leases {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Release(id)
	}
}

// CleanupOrphaned enumerates working copies on disk under baseDir and
// removes any that are not present in the active-lease table.
func (m *Manager) CleanupOrphaned() error {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read worktree base dir: %w", err)
	}

	m.mu.RLock()
	known := make(map[string]bool, len(m.leases))
	for _, l := range m.leases {
		known[filepath.Base(l.Path)] = true
	}
	m.mu.RUnlock()

	for _, e := range entries {
		if !known[e.Name()] {
			_ = os.RemoveAll(filepath.Join(m.baseDir, e.Name()))
		}
	}
	return nil
}

// ActiveCount returns the number of leases currently active.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.leases)
}

// SetStatus updates a lease's status field, used by the pipeline to
// narrate progress. The manager does not interpret transitions beyond
// active-vs-released accounting done elsewhere.
func (m *Manager) SetStatus(leaseID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lease, ok := m.leases[leaseID]
	if !ok {
		return autofixerr.New(autofixerr.KindWorktreeNotFound, "no such lease: "+leaseID)
	}
	lease.Status = status
	lease.LastActivity = time.Now()
	return nil
}

// Get returns the lease for leaseID, if active.
func (m *Manager) Get(leaseID string) (*Lease, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.leases[leaseID]
	return l, ok
}

func sanitizePathSegment(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '/' {
			out = append(out, '-')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
