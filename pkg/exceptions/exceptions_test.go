package exceptions

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/autofix/internal/defect"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHandler_VerifyRejectsBadSignature(t *testing.T) {
	h := NewHandler(Config{WebhookSecret: "s3cr3t"})
	assert.False(t, h.Verify([]byte(`{}`), "bogus"))
	assert.True(t, h.Verify([]byte(`{}`), sign("s3cr3t", []byte(`{}`))))
}

func TestHandler_VerifyDisabledWithEmptySecret(t *testing.T) {
	h := NewHandler(Config{})
	assert.True(t, h.Verify([]byte(`{}`), "anything"))
}

func TestHandler_ParseMapsLevelToPriority(t *testing.T) {
	h := NewHandler(Config{})
	d, err := h.Parse([]byte(`{"id":7,"title":"panic","level":"fatal","component":"api"}`))
	require.NoError(t, err)
	assert.Equal(t, 7, d.ID)
	assert.Equal(t, "high", string(d.Context.Priority))
}

func TestHandler_ServeHTTPRejectsBadSignature(t *testing.T) {
	h := NewHandler(Config{WebhookSecret: "s3cr3t"})

	srv := httptest.NewServer(h.ServeHTTP(func(d *defect.Defect) {}))
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(`{"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_ServeHTTPAcceptsValidSignature(t *testing.T) {
	h := NewHandler(Config{WebhookSecret: "s3cr3t"})
	var got *defect.Defect

	srv := httptest.NewServer(h.ServeHTTP(func(d *defect.Defect) { got = d }))
	defer srv.Close()

	body := `{"id":9,"title":"oops","level":"error"}`
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Webhook-Signature", sign("s3cr3t", []byte(body)))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NotNil(t, got)
	assert.Equal(t, 9, got.ID)
}
