package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReporter_DeliversToAllListeners(t *testing.T) {
	r := NewReporter()
	var mu sync.Mutex
	var got []string

	r.On(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Kind)
		mu.Unlock()
	})
	r.On(func(ev Event) {
		mu.Lock()
		got = append(got, "second:"+ev.Kind)
		mu.Unlock()
	})

	r.Emit(Event{Kind: "stage_changed", BundleID: "b1", Stage: "analysis"})

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, got, "stage_changed")
	assert.Contains(t, got, "second:stage_changed")
}

func TestReporter_PanickingListenerIsolated(t *testing.T) {
	r := NewReporter()
	called := false

	r.On(func(ev Event) { panic("boom") })
	r.On(func(ev Event) { called = true })

	assert.NotPanics(t, func() {
		r.Emit(Event{Kind: "stage_changed", BundleID: "b1"})
	})
	assert.True(t, called)
}

func TestReporter_UnsubscribeStopsDelivery(t *testing.T) {
	r := NewReporter()
	calls := 0
	unsub := r.On(func(ev Event) { calls++ })

	r.Emit(Event{Kind: "x", BundleID: "b1"})
	unsub()
	r.Emit(Event{Kind: "x", BundleID: "b1"})

	assert.Equal(t, 1, calls)
}

func TestReporter_SnapshotTracksStatus(t *testing.T) {
	r := NewReporter()
	r.Emit(Event{Kind: "stage_changed", BundleID: "b1", Stage: "analysis", Attempt: 1})
	r.Emit(Event{Kind: "item_completed", BundleID: "b1"})

	snap := r.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, "completed", snap[0].Status)
	assert.Equal(t, "analysis", snap[0].Stage)
}

func TestReporter_FormatConsoleIncludesBundleID(t *testing.T) {
	r := NewReporter()
	r.Emit(Event{Kind: "stage_changed", BundleID: "b1", Stage: "checks", Attempt: 2})
	out := r.FormatConsole()
	assert.Contains(t, out, "b1")
	assert.Contains(t, out, "checks")
}
