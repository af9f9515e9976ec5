package tracker

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/autofix/internal/pipeline"
)

func TestClient_FetchDefectsParsesIssues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"title":"crash","state":"open","kind":"bug","component":"api","priority":"high"}]`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 1})
	defects, err := c.FetchDefects(t.Context())
	require.NoError(t, err)
	require.Len(t, defects, 1)
	assert.Equal(t, 1, defects[0].ID)
	assert.Equal(t, "api", defects[0].Context.Component)
}

func TestClient_AnnotateSendsPatch(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 1, SyncedTag: "autofix-synced"})
	err := c.Annotate(t.Context(), 1, &pipeline.PublicationHandle{URL: "https://example.test/pr/1"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
}
