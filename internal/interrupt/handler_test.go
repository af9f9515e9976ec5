package interrupt

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_SignalCancelsContextAndRunsCleanupInReverseOrder(t *testing.T) {
	h := NewHandler(context.Background())
	h.CleanupBudget = time.Second
	h.Install()
	defer h.Stop()

	var mu sync.Mutex
	var order []int
	h.OnCleanup(func() { mu.Lock(); order = append(order, 1); mu.Unlock() })
	h.OnCleanup(func() { mu.Lock(); order = append(order, 2); mu.Unlock() })
	h.OnCleanup(func() { mu.Lock(); order = append(order, 3); mu.Unlock() })

	h.sigCh <- syscall.SIGINT

	select {
	case <-h.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was never cancelled")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestWithCleanup_RunsOnSuccess(t *testing.T) {
	cleaned := false
	err := WithCleanup(func() error { return nil }, func() { cleaned = true })
	require.NoError(t, err)
	assert.True(t, cleaned)
}

func TestWithCleanup_RunsOnError(t *testing.T) {
	cleaned := false
	err := WithCleanup(func() error { return errors.New("boom") }, func() { cleaned = true })
	require.Error(t, err)
	assert.True(t, cleaned)
}

func TestWithCleanup_RunsOnPanic(t *testing.T) {
	cleaned := false
	assert.Panics(t, func() {
		_ = WithCleanup(func() error { panic("boom") }, func() { cleaned = true })
	})
	assert.True(t, cleaned)
}
