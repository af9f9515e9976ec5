package host

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gh := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base

	return &Client{cfg: Config{Owner: "acme", Repo: "widgets", DefaultBranch: "main", MaxRetries: 1}, gh: gh}
}

func TestClient_PublishReturnsHandle(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&github.PullRequest{
			Number:  github.Int(42),
			HTMLURL: github.String("https://example.test/pr/42"),
		})
	})

	handle, err := c.Publish(context.Background(), nil, "fix/auth-1", "", "fix(auth): nil check", "body")
	require.NoError(t, err)
	assert.Equal(t, 42, handle.Number)
	assert.Equal(t, "https://example.test/pr/42", handle.URL)
}

func TestClient_PublishFailsOnServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Publish(context.Background(), nil, "fix/auth-1", "", "title", "body")
	require.Error(t, err)
}
