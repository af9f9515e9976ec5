package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordBundleResult(t *testing.T) {
	m := New()
	m.RecordBundleResult("completed")
	m.RecordBundleResult("completed")
	m.RecordBundleResult("failed")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.bundlesTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.bundlesTotal.WithLabelValues("failed")))
}

func TestMetrics_RecordStageDuration(t *testing.T) {
	m := New()
	m.RecordStageDuration("checks", 2*time.Second)

	count := testutil.CollectAndCount(m.stageDuration)
	assert.Equal(t, 1, count)
}

func TestMetrics_SetBudgetUtilizationAndActiveBundles(t *testing.T) {
	m := New()
	m.SetBudgetUtilization("bundle", 0.42)
	m.SetActiveBundles(3)

	assert.Equal(t, 0.42, testutil.ToFloat64(m.budgetUtilization.WithLabelValues("bundle")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.activeBundles))
}

func TestMetrics_RecordRetry(t *testing.T) {
	m := New()
	m.RecordRetry("component")
	m.RecordRetry("component")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.retriesTotal.WithLabelValues("component")))
}
