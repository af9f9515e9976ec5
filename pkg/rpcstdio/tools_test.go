package rpcstdio

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/autofix/internal/bundle"
	"github.com/fyrsmithlabs/autofix/internal/defect"
	"github.com/fyrsmithlabs/autofix/internal/pipeline"
)

type fakeDefectStore struct {
	defects map[int]*defect.Defect
	nextID  int
}

func newFakeDefectStore(seed ...*defect.Defect) *fakeDefectStore {
	f := &fakeDefectStore{defects: make(map[int]*defect.Defect), nextID: 1}
	for _, d := range seed {
		f.defects[d.ID] = d
		if d.ID >= f.nextID {
			f.nextID = d.ID + 1
		}
	}
	return f
}

func (f *fakeDefectStore) FetchDefects(ctx context.Context) ([]*defect.Defect, error) {
	out := make([]*defect.Defect, 0, len(f.defects))
	for _, d := range f.defects {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDefectStore) GetDefect(ctx context.Context, id int) (*defect.Defect, error) {
	d, ok := f.defects[id]
	if !ok {
		return nil, fmt.Errorf("defect %d not found", id)
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDefectStore) CreateDefect(ctx context.Context, d *defect.Defect) (*defect.Defect, error) {
	cp := *d
	cp.ID = f.nextID
	f.nextID++
	f.defects[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeDefectStore) UpdateDefect(ctx context.Context, d *defect.Defect) (*defect.Defect, error) {
	if _, ok := f.defects[d.ID]; !ok {
		return nil, fmt.Errorf("defect %d not found", d.ID)
	}
	cp := *d
	f.defects[cp.ID] = &cp
	return &cp, nil
}

type fakePublisher struct {
	handle *pipeline.PublicationHandle
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, b *bundle.Bundle, branch, baseBranch, title, body string) (*pipeline.PublicationHandle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.handle, nil
}

func newTestServer(t *testing.T, store *fakeDefectStore, pub *fakePublisher) *Server {
	t.Helper()
	s, err := NewServer(nil, store, pub)
	require.NoError(t, err)
	return s
}

func TestServer_ListDefects(t *testing.T) {
	store := newFakeDefectStore(
		&defect.Defect{ID: 1, Title: "crash", Context: defect.Context{Priority: defect.PriorityHigh}},
		&defect.Defect{ID: 2, Title: "typo", Context: defect.Context{Priority: defect.PriorityLow}},
	)
	s := newTestServer(t, store, &fakePublisher{})

	out, err := s.listDefects(context.Background(), defectListInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
}

func TestServer_ListDefectsAppliesLimit(t *testing.T) {
	store := newFakeDefectStore(
		&defect.Defect{ID: 1, Title: "a"},
		&defect.Defect{ID: 2, Title: "b"},
		&defect.Defect{ID: 3, Title: "c"},
	)
	s := newTestServer(t, store, &fakePublisher{})

	out, err := s.listDefects(context.Background(), defectListInput{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
}

func TestServer_GetDefectNotFound(t *testing.T) {
	s := newTestServer(t, newFakeDefectStore(), &fakePublisher{})
	_, err := s.getDefect(context.Background(), defectGetInput{ID: 99})
	assert.Error(t, err)
}

func TestServer_CreateDefectDefaultsKindAndPriority(t *testing.T) {
	s := newTestServer(t, newFakeDefectStore(), &fakePublisher{})

	out, err := s.createDefect(context.Background(), defectCreateInput{Title: "new bug"})
	require.NoError(t, err)
	assert.Equal(t, "bug", out.Kind)
	assert.Equal(t, "medium", out.Priority)
	assert.NotZero(t, out.ID)
}

func TestServer_UpdateDefectAppliesOnlySetFields(t *testing.T) {
	store := newFakeDefectStore(&defect.Defect{
		ID: 1, Title: "original", Body: "body", State: defect.StateOpen,
		Context: defect.Context{Priority: defect.PriorityLow},
	})
	s := newTestServer(t, store, &fakePublisher{})

	out, err := s.updateDefect(context.Background(), defectUpdateInput{ID: 1, Priority: "high"})
	require.NoError(t, err)
	assert.Equal(t, "original", out.Title)
	assert.Equal(t, "high", out.Priority)
}

func TestServer_CreatePublication(t *testing.T) {
	s := newTestServer(t, newFakeDefectStore(), &fakePublisher{
		handle: &pipeline.PublicationHandle{URL: "https://example.test/pr/1", Number: 1},
	})

	out, err := s.createPublication(context.Background(), publicationCreateInput{
		Branch: "fix/auth-1", Title: "fix(auth): nil check",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/pr/1", out.URL)
	assert.Equal(t, 1, out.Number)
}

func TestServer_CreatePublicationPropagatesError(t *testing.T) {
	s := newTestServer(t, newFakeDefectStore(), &fakePublisher{err: fmt.Errorf("boom")})

	_, err := s.createPublication(context.Background(), publicationCreateInput{Branch: "b", Title: "t"})
	assert.Error(t, err)
}
