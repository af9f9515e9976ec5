package pipeline

import (
	"time"

	"github.com/fyrsmithlabs/autofix/internal/httpretry"
)

// shouldRetry decides whether a fix attempt should be retried: false if
// the attempt succeeded, attempts are exhausted, or the last check run
// produced no results at all (nothing meaningful to retry); true if at
// least one check in the last result failed.
func shouldRetry(attempt, maxRetries int, succeeded bool, last *CheckResult) bool {
	if succeeded {
		return false
	}
	if attempt >= maxRetries {
		return false
	}
	if last == nil || len(last.Runs) == 0 {
		return false
	}
	for _, run := range last.Runs {
		if run.Status == CheckFailed {
			return true
		}
	}
	return false
}

// backoffDelay is the delay before retry attempt k: min(1000*2^(k-1), 10000)ms,
// the same law used by the HTTP client retry helper.
func backoffDelay(attempt int) time.Duration {
	return httpretry.Backoff(attempt)
}

// recoverable applies the recoverability heuristic: if the passing-check
// count decreased between the last two attempts, the failure is labeled
// non-recoverable so the summary does not suggest further retries.
func recoverable(prev, last *CheckResult) bool {
	if prev == nil || last == nil {
		return true
	}
	return last.PassingCount() >= prev.PassingCount()
}
