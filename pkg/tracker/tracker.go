// Package tracker adapts a generic REST-shaped issue tracker to the
// orchestrator's defect fetch and source-annotation needs.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/autofix/internal/autofixerr"
	"github.com/fyrsmithlabs/autofix/internal/defect"
	"github.com/fyrsmithlabs/autofix/internal/httpretry"
	"github.com/fyrsmithlabs/autofix/internal/pipeline"
)

// Config configures a Client.
type Config struct {
	Token          string
	BaseURL        string
	WorkspaceID    string
	ProjectIDs     []string
	TriageSection  string
	DoneSection    string
	SyncedTag      string
	MaxRetries     int
	RequestTimeout time.Duration
}

// Client adapts a REST-shaped defect tracker.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient constructs a Client.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.RequestTimeout}}
}

type issueDTO struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	Body         string   `json:"body"`
	State        string   `json:"state"`
	Kind         string   `json:"kind"`
	Labels       []string `json:"labels"`
	Component    string   `json:"component"`
	Priority     string   `json:"priority"`
	RelatedFiles []string `json:"relatedFiles"`
	URL          string   `json:"url"`
}

// FetchDefects lists the defects in the configured triage section. It
// applies no project or state filter of its own.
func (c *Client) FetchDefects(ctx context.Context) ([]*defect.Defect, error) {
	var dtos []issueDTO
	_, err := httpretry.Do(ctx, c.cfg.MaxRetries, func(ctx context.Context, attempt int) (int, error) {
		code, body, err := c.do(ctx, http.MethodGet, "/issues?section="+c.cfg.TriageSection, nil)
		if err != nil {
			return code, err
		}
		if code >= 300 {
			return code, fmt.Errorf("unexpected status %d", code)
		}
		return code, json.Unmarshal(body, &dtos)
	})
	if err != nil {
		return nil, autofixerr.Wrap(autofixerr.KindExternalAPIGeneric, "failed to fetch defects", err)
	}

	out := make([]*defect.Defect, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, dtoToDefect(d))
	}
	return out, nil
}

// GetDefect fetches a single defect by id.
func (c *Client) GetDefect(ctx context.Context, id int) (*defect.Defect, error) {
	var dto issueDTO
	_, err := httpretry.Do(ctx, c.cfg.MaxRetries, func(ctx context.Context, attempt int) (int, error) {
		code, body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/issues/%d", id), nil)
		if err != nil {
			return code, err
		}
		if code >= 300 {
			return code, fmt.Errorf("unexpected status %d", code)
		}
		return code, json.Unmarshal(body, &dto)
	})
	if err != nil {
		return nil, autofixerr.Wrap(autofixerr.KindExternalAPIGeneric, fmt.Sprintf("failed to fetch defect %d", id), err)
	}
	return dtoToDefect(dto), nil
}

// CreateDefect files a new defect against the tracker.
func (c *Client) CreateDefect(ctx context.Context, d *defect.Defect) (*defect.Defect, error) {
	body, _ := json.Marshal(defectToDTO(d))

	var dto issueDTO
	_, err := httpretry.Do(ctx, c.cfg.MaxRetries, func(ctx context.Context, attempt int) (int, error) {
		code, respBody, err := c.do(ctx, http.MethodPost, "/issues", body)
		if err != nil {
			return code, err
		}
		if code >= 300 {
			return code, fmt.Errorf("unexpected status %d", code)
		}
		return code, json.Unmarshal(respBody, &dto)
	})
	if err != nil {
		return nil, autofixerr.Wrap(autofixerr.KindExternalAPIGeneric, "failed to create defect", err)
	}
	return dtoToDefect(dto), nil
}

// UpdateDefect persists changes to an existing defect.
func (c *Client) UpdateDefect(ctx context.Context, d *defect.Defect) (*defect.Defect, error) {
	body, _ := json.Marshal(defectToDTO(d))

	var dto issueDTO
	_, err := httpretry.Do(ctx, c.cfg.MaxRetries, func(ctx context.Context, attempt int) (int, error) {
		code, respBody, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/issues/%d", d.ID), body)
		if err != nil {
			return code, err
		}
		if code >= 300 {
			return code, fmt.Errorf("unexpected status %d", code)
		}
		return code, json.Unmarshal(respBody, &dto)
	})
	if err != nil {
		return nil, autofixerr.Wrap(autofixerr.KindExternalAPIGeneric, fmt.Sprintf("failed to update defect %d", d.ID), err)
	}
	return dtoToDefect(dto), nil
}

func dtoToDefect(d issueDTO) *defect.Defect {
	return &defect.Defect{
		ID:     d.ID,
		Title:  d.Title,
		Body:   d.Body,
		State:  defect.State(d.State),
		Kind:   defect.Kind(d.Kind),
		Labels: d.Labels,
		Context: defect.Context{
			Component:    d.Component,
			Priority:     defect.Priority(d.Priority),
			RelatedFiles: d.RelatedFiles,
			Origin:       defect.OriginTracker,
		},
		URL: d.URL,
	}
}

func defectToDTO(d *defect.Defect) issueDTO {
	return issueDTO{
		ID:           d.ID,
		Title:        d.Title,
		Body:         d.Body,
		State:        string(d.State),
		Kind:         string(d.Kind),
		Labels:       d.Labels,
		Component:    d.Context.Component,
		Priority:     string(d.Context.Priority),
		RelatedFiles: d.Context.RelatedFiles,
		URL:          d.URL,
	}
}

// Annotate records a publication outcome on a defect, implementing
// pipeline.SourceAnnotator; it moves the issue to the configured done
// section and tags it with the synced tag, if set.
func (c *Client) Annotate(ctx context.Context, defectID int, handle *pipeline.PublicationHandle) error {
	payload := map[string]any{
		"section": c.cfg.DoneSection,
		"comment": fmt.Sprintf("Automated fix published: %s", handle.URL),
	}
	if c.cfg.SyncedTag != "" {
		payload["addTags"] = []string{c.cfg.SyncedTag}
	}
	body, _ := json.Marshal(payload)

	_, err := httpretry.Do(ctx, c.cfg.MaxRetries, func(ctx context.Context, attempt int) (int, error) {
		code, _, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/issues/%d", defectID), body)
		return code, err
	})
	if err != nil {
		return autofixerr.Wrap(autofixerr.KindExternalAPIGeneric, fmt.Sprintf("failed to annotate defect %d", defectID), err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}
