package autofixerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := Wrap(KindAIBudgetExceeded, "bundle b1 over budget", errors.New("boom"))
	assert.True(t, errors.Is(err, New(KindAIBudgetExceeded, "")))
	assert.False(t, errors.Is(err, New(KindAITimeout, "")))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindWorktreeCreation, "create failed", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestError_Terminal(t *testing.T) {
	assert.True(t, New(KindAIBudgetExceeded, "").Terminal())
	assert.True(t, New(KindAICLINotFound, "").Terminal())
	assert.False(t, New(KindCheckFailed, "").Terminal())
	assert.False(t, New(KindExternalAPIRateLimit, "").Terminal())
}

func TestActionHint_NonEmpty(t *testing.T) {
	for _, k := range []Kind{KindExternalAPIAuth, KindCheckFailed, KindAIBudgetExceeded, KindInterrupted} {
		assert.NotEmpty(t, ActionHint(k))
	}
}
