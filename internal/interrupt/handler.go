// Package interrupt installs termination-signal hooks and guarantees
// registered cleanup runs exactly once on any shutdown path.
package interrupt

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultCleanupBudget bounds how long the signal watcher waits for
// registered cleanup callbacks after the first termination signal; once
// it elapses the watcher stops waiting, while the callbacks keep running
// and the process is not exited.
const DefaultCleanupBudget = 30 * time.Second

// Handler hooks SIGINT/SIGTERM, exposes a cancellation context, and runs
// registered cleanup callbacks in reverse registration order on first
// signal. A second signal aborts immediately without waiting for cleanup.
type Handler struct {
	CleanupBudget time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	cleanups []func()
	fired    bool
	sigCh    chan os.Signal
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHandler constructs a Handler with a fresh cancellation context
// derived from parent.
func NewHandler(parent context.Context) *Handler {
	ctx, cancel := context.WithCancel(parent)
	return &Handler{
		CleanupBudget: DefaultCleanupBudget,
		ctx:           ctx,
		cancel:        cancel,
		sigCh:         make(chan os.Signal, 2),
		stopCh:        make(chan struct{}),
	}
}

// Context returns the cancellation context; it is canceled on the first
// termination signal.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// OnCleanup registers a callback to run, in reverse registration order,
// once the first termination signal arrives.
func (h *Handler) OnCleanup(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanups = append(h.cleanups, fn)
}

// Install hooks SIGINT and SIGTERM. On the first signal it cancels the
// context and runs cleanup callbacks (bounded by CleanupBudget); a
// second signal calls os.Exit(130) immediately.
func (h *Handler) Install() {
	signal.Notify(h.sigCh, syscall.SIGINT, syscall.SIGTERM)
	go h.watch()
}

// Stop removes the signal hook, for use in tests and graceful shutdown
// paths that do not want to leak the watcher goroutine.
func (h *Handler) Stop() {
	signal.Stop(h.sigCh)
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *Handler) watch() {
	select {
	case <-h.sigCh:
	case <-h.stopCh:
		return
	}

	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		return
	}
	h.fired = true
	h.mu.Unlock()

	h.cancel()
	done := make(chan struct{})
	go func() {
		h.runCleanups()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(h.CleanupBudget):
	case <-h.sigCh:
		os.Exit(130)
	}
}

func (h *Handler) runCleanups() {
	h.mu.Lock()
	cleanups := append([]func(){}, h.cleanups...)
	h.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

// WithCleanup runs work, then runs cleanup exactly once on any exit path
// (success, panic, or error), and re-panics after cleanup if work panicked.
func WithCleanup(work func() error, cleanup func()) (err error) {
	defer func() {
		cleanup()
		if r := recover(); r != nil {
			panic(r)
		}
	}()
	return work()
}
