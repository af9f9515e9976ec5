package logging

import (
	"context"
	"testing"
)

func TestIntegration_BundleCorrelationAndRedaction(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithBundle(context.Background(), "bundle-42", "fix")
	ctx = WithSessionID(ctx, "session-7")

	tl.Info(ctx, "invoking agent", Secret("token", "super-secret-value"))
	tl.AssertBundleCorrelation(t, "invoking agent")
	tl.AssertNoSecrets(t)
}

func TestIntegration_AssertNoSecrets(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithBundle(context.Background(), "bundle-1", "analysis")
	tl.Info(ctx, "plain message")
	tl.AssertNoSecrets(t)
	tl.AssertBundleCorrelation(t, "plain message")
}
