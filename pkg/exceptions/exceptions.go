// Package exceptions adapts an optional exception-tracking service's
// webhook payloads into defects, verifying the webhook signature before
// trusting the payload.
package exceptions

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/fyrsmithlabs/autofix/internal/autofixerr"
	"github.com/fyrsmithlabs/autofix/internal/defect"
)

// Config configures a webhook Handler.
type Config struct {
	DSN           string
	Organization  string
	Project       string
	WebhookSecret string
}

type webhookPayload struct {
	ID        int      `json:"id"`
	Title     string   `json:"title"`
	Culprit   string   `json:"culprit"`
	Component string   `json:"component"`
	Level     string   `json:"level"`
	Tags      []string `json:"tags"`
	URL       string   `json:"url"`
}

// Handler receives exception webhooks and converts them into defects.
type Handler struct {
	cfg Config
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg}
}

// Verify checks the webhook's HMAC-SHA256 signature against the
// configured secret, in constant time. An empty configured secret
// disables verification, useful for local development.
func (h *Handler) Verify(body []byte, signatureHeader string) bool {
	if h.cfg.WebhookSecret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(h.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// Parse converts a verified webhook body into a Defect.
func (h *Handler) Parse(body []byte) (*defect.Defect, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, autofixerr.Wrap(autofixerr.KindAIParseError, "failed to parse exception webhook payload", err)
	}

	priority := defect.PriorityMedium
	switch p.Level {
	case "fatal", "error":
		priority = defect.PriorityHigh
	case "warning":
		priority = defect.PriorityLow
	}

	return &defect.Defect{
		ID:     p.ID,
		Title:  p.Title,
		Body:   p.Culprit,
		State:  defect.StateOpen,
		Kind:   defect.KindBug,
		Labels: p.Tags,
		Context: defect.Context{
			Component: p.Component,
			Priority:  priority,
			Origin:    defect.OriginExceptionTracker,
		},
		URL: p.URL,
	}, nil
}

// ServeHTTP implements a ready-to-mount webhook endpoint: it verifies
// the signature, parses the payload, and hands the defect to onDefect.
func (h *Handler) ServeHTTP(onDefect func(*defect.Defect)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		if !h.Verify(body, r.Header.Get("X-Webhook-Signature")) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		d, err := h.Parse(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		onDefect(d)
		w.WriteHeader(http.StatusAccepted)
	}
}
