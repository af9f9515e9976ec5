package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/autofix/internal/autofixerr"
	"github.com/fyrsmithlabs/autofix/internal/defect"
)

func mkDefect(id int, component string, priority defect.Priority, labels ...string) *defect.Defect {
	return &defect.Defect{
		ID:     id,
		State:  defect.StateOpen,
		Kind:   defect.KindBug,
		Labels: labels,
		Context: defect.Context{
			Component: component,
			Priority:  priority,
		},
	}
}

func TestGrouper_EmptyInputIsNotAnError(t *testing.T) {
	g := NewGrouper()
	bundles, residue, err := g.Group(nil, GroupOptions{Policy: PolicyComponent})
	require.NoError(t, err)
	assert.Empty(t, bundles)
	assert.Empty(t, residue)
}

func TestGrouper_UnknownPolicyIsInvalidArg(t *testing.T) {
	g := NewGrouper()
	_, _, err := g.Group([]*defect.Defect{mkDefect(1, "api", defect.PriorityHigh)}, GroupOptions{Policy: "bogus"})
	require.Error(t, err)
	var afe *autofixerr.Error
	require.ErrorAs(t, err, &afe)
	assert.Equal(t, autofixerr.KindInvalidArg, afe.Kind)
}

func TestGrouper_PartitionsByComponent(t *testing.T) {
	g := NewGrouper()
	defects := []*defect.Defect{
		mkDefect(1, "api", defect.PriorityHigh),
		mkDefect(2, "api", defect.PriorityLow),
		mkDefect(3, "worker", defect.PriorityMedium),
	}
	bundles, residue, err := g.Group(defects, GroupOptions{Policy: PolicyComponent})
	require.NoError(t, err)
	assert.Empty(t, residue)
	require.Len(t, bundles, 2)

	for _, b := range bundles {
		assert.Contains(t, []string{"api", "worker"}, b.Value)
	}
}

func TestGrouper_OrdersDefectsWithinBundleByPriorityThenID(t *testing.T) {
	g := NewGrouper()
	defects := []*defect.Defect{
		mkDefect(3, "api", defect.PriorityLow),
		mkDefect(1, "api", defect.PriorityHigh),
		mkDefect(2, "api", defect.PriorityHigh),
	}
	bundles, _, err := g.Group(defects, GroupOptions{Policy: PolicyComponent})
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	ids := []int{bundles[0].Defects[0].ID, bundles[0].Defects[1].ID, bundles[0].Defects[2].ID}
	assert.Equal(t, []int{1, 2, 3}, ids)
}

func TestGrouper_SplitsByMaxBundleSize(t *testing.T) {
	g := NewGrouper()
	defects := []*defect.Defect{
		mkDefect(1, "api", defect.PriorityHigh),
		mkDefect(2, "api", defect.PriorityHigh),
		mkDefect(3, "api", defect.PriorityHigh),
	}
	bundles, _, err := g.Group(defects, GroupOptions{Policy: PolicyComponent, MaxBundleSize: 2})
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.LessOrEqual(t, len(bundles[0].Defects), 2)
}

func TestGrouper_DropsBucketsBelowMinBundleSize(t *testing.T) {
	g := NewGrouper()
	defects := []*defect.Defect{
		mkDefect(1, "api", defect.PriorityHigh),
		mkDefect(2, "worker", defect.PriorityHigh),
		mkDefect(3, "worker", defect.PriorityHigh),
	}
	bundles, residue, err := g.Group(defects, GroupOptions{Policy: PolicyComponent, MinBundleSize: 2})
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	assert.Equal(t, "worker", bundles[0].Value)
	require.Len(t, residue, 1)
	assert.Equal(t, 1, residue[0].ID)
}

func TestGrouper_LabelFiltersIncludeAndExclude(t *testing.T) {
	g := NewGrouper()
	defects := []*defect.Defect{
		mkDefect(1, "api", defect.PriorityHigh, "autofix"),
		mkDefect(2, "api", defect.PriorityHigh, "manual-only"),
	}
	bundles, _, err := g.Group(defects, GroupOptions{
		Policy:        PolicyComponent,
		IncludeLabels: []string{"autofix"},
		ExcludeLabels: []string{"manual-only"},
	})
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	require.Len(t, bundles[0].Defects, 1)
	assert.Equal(t, 1, bundles[0].Defects[0].ID)
}

func TestGrouper_FilePolicyFansDefectToMultipleBuckets(t *testing.T) {
	g := NewGrouper()
	d := mkDefect(1, "api", defect.PriorityHigh)
	d.Context.RelatedFiles = []string{"a.go", "b.go"}
	bundles, _, err := g.Group([]*defect.Defect{d}, GroupOptions{Policy: PolicyFile})
	require.NoError(t, err)
	assert.Len(t, bundles, 2)
}

func TestGrouper_ProposedBranchIsValidAndNotReserved(t *testing.T) {
	g := NewGrouper()
	defects := []*defect.Defect{mkDefect(1, "api", defect.PriorityHigh)}
	bundles, _, err := g.Group(defects, GroupOptions{Policy: PolicyComponent})
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	branch := bundles[0].ProposedBranch
	assert.NotEmpty(t, branch)
	assert.False(t, reservedBranchNames[branch])
	assert.Regexp(t, `^[A-Za-z0-9._/-]+$`, branch)
}

func TestGrouper_DeterministicAcrossRuns(t *testing.T) {
	g := NewGrouper()
	defects := []*defect.Defect{
		mkDefect(1, "api", defect.PriorityHigh),
		mkDefect(2, "api", defect.PriorityMedium),
	}
	b1, _, err := g.Group(defects, GroupOptions{Policy: PolicyComponent})
	require.NoError(t, err)
	b2, _, err := g.Group(defects, GroupOptions{Policy: PolicyComponent})
	require.NoError(t, err)
	require.Len(t, b1, 1)
	require.Len(t, b2, 1)
	assert.Equal(t, b1[0].ID, b2[0].ID)
	assert.Equal(t, b1[0].ProposedBranch, b2[0].ProposedBranch)
}
