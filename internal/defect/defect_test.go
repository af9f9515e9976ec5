package defect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDefect(id int) *Defect {
	return &Defect{
		ID:     id,
		Title:  "panic on nil pointer",
		State:  StateOpen,
		Kind:   KindBug,
		Labels: []string{"autofix", "backend"},
		Context: Context{
			Component: "api",
			Priority:  PriorityHigh,
			Origin:    OriginTracker,
		},
	}
}

func TestDefect_Validate(t *testing.T) {
	d := sampleDefect(1)
	require.NoError(t, d.Validate())

	d.State = ""
	assert.Error(t, d.Validate())
}

func TestDefect_HasLabelHelpers(t *testing.T) {
	d := sampleDefect(1)
	assert.True(t, d.HasLabel("autofix"))
	assert.False(t, d.HasLabel("frontend"))
	assert.True(t, d.HasAllLabels([]string{"autofix", "backend"}))
	assert.False(t, d.HasAllLabels([]string{"autofix", "frontend"}))
	assert.True(t, d.HasAnyLabel([]string{"frontend", "backend"}))
}

func TestPriority_Rank(t *testing.T) {
	assert.Greater(t, PriorityCritical.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank())
}

func TestIndex_GetAndDuplicateRejection(t *testing.T) {
	idx, err := NewIndex([]*Defect{sampleDefect(1), sampleDefect(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	d, ok := idx.Get(1)
	require.True(t, ok)
	assert.Equal(t, 1, d.ID)

	_, ok = idx.Get(999)
	assert.False(t, ok)

	_, err = NewIndex([]*Defect{sampleDefect(1), sampleDefect(1)})
	assert.Error(t, err)
}

func TestIndex_RejectsInvalidDefect(t *testing.T) {
	invalid := sampleDefect(1)
	invalid.Kind = ""
	_, err := NewIndex([]*Defect{invalid})
	assert.Error(t, err)
}
