package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry_FalseOnSuccess(t *testing.T) {
	assert.False(t, shouldRetry(1, 3, true, &CheckResult{Runs: []CheckRun{{Status: CheckFailed}}}))
}

func TestShouldRetry_FalseWhenAttemptsExhausted(t *testing.T) {
	assert.False(t, shouldRetry(3, 3, false, &CheckResult{Runs: []CheckRun{{Status: CheckFailed}}}))
}

func TestShouldRetry_FalseWhenNoCheckResults(t *testing.T) {
	assert.False(t, shouldRetry(1, 3, false, &CheckResult{}))
	assert.False(t, shouldRetry(1, 3, false, nil))
}

func TestShouldRetry_TrueOnFailedCheck(t *testing.T) {
	assert.True(t, shouldRetry(1, 3, false, &CheckResult{Runs: []CheckRun{{Status: CheckFailed}}}))
}

func TestBackoffDelay_MatchesLaw(t *testing.T) {
	assert.Equal(t, 1000*time.Millisecond, backoffDelay(1))
	assert.Equal(t, 10000*time.Millisecond, backoffDelay(20))
}

func TestRecoverable_DecreasingPassCountIsNonRecoverable(t *testing.T) {
	prev := &CheckResult{Runs: []CheckRun{{Status: CheckPassed}, {Status: CheckPassed}}}
	last := &CheckResult{Runs: []CheckRun{{Status: CheckPassed}, {Status: CheckFailed}}}
	assert.False(t, recoverable(prev, last))
}

func TestRecoverable_SteadyOrImprovingIsRecoverable(t *testing.T) {
	prev := &CheckResult{Runs: []CheckRun{{Status: CheckFailed}, {Status: CheckFailed}}}
	last := &CheckResult{Runs: []CheckRun{{Status: CheckPassed}, {Status: CheckFailed}}}
	assert.True(t, recoverable(prev, last))
}

func TestRecoverable_NilPreviousIsRecoverable(t *testing.T) {
	assert.True(t, recoverable(nil, &CheckResult{}))
}
