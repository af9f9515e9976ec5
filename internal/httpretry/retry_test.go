package httpretry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_ExponentialWithCap(t *testing.T) {
	assert.Equal(t, 1000*time.Millisecond, Backoff(1))
	assert.Equal(t, 2000*time.Millisecond, Backoff(2))
	assert.Equal(t, 4000*time.Millisecond, Backoff(3))
	assert.Equal(t, 8000*time.Millisecond, Backoff(4))
	assert.Equal(t, 10000*time.Millisecond, Backoff(5))
	assert.Equal(t, 10000*time.Millisecond, Backoff(10))
}

func TestRetryable_StatusCodes(t *testing.T) {
	assert.True(t, Retryable(http.StatusTooManyRequests))
	assert.True(t, Retryable(http.StatusInternalServerError))
	assert.True(t, Retryable(http.StatusBadGateway))
	assert.False(t, Retryable(http.StatusUnauthorized))
	assert.False(t, Retryable(http.StatusNotFound))
	assert.False(t, Retryable(http.StatusOK))
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	code, err := Do(context.Background(), 5, func(ctx context.Context, attempt int) (int, error) {
		attempts++
		if attempt < 3 {
			return http.StatusInternalServerError, errors.New("boom")
		}
		return http.StatusOK, nil
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, attempts)
}

func TestDo_StopsOnNonRetriable(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), 5, func(ctx context.Context, attempt int) (int, error) {
		attempts++
		return http.StatusUnauthorized, errors.New("auth failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_ExhaustsMaxAttempts(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), 3, func(ctx context.Context, attempt int) (int, error) {
		attempts++
		return http.StatusInternalServerError, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	_, err := Do(ctx, 5, func(ctx context.Context, attempt int) (int, error) {
		attempts++
		return http.StatusInternalServerError, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 0, attempts)
}
