package approlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Approline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model (partial).
type Project struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Authority  string     `json:"authority"`
	Stage      string     `json:"stage"`
	StageLabel string     `json:"stage_label"`
	Phase      string     `json:"phase,omitempty"`
	Progress   int        `json:"progress"`
	History    []Decision `json:"history,omitempty"`
}

// Decision is one approval-log entry.
type Decision struct {
	TS        string `json:"ts"`
	Action    string `json:"action"`
	ActorRole string `json:"actor_role"`
	ActorName string `json:"actor_name"`
	Comment   string `json:"comment"`
	NewStage  string `json:"new_stage"`
}

// Stage is one catalog entry.
type Stage struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Phase      string `json:"phase"`
	GatingRole string `json:"gating_role"`
}

// Event represents an audit-log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SubmitProject submits a new dossier.
func (c *Client) SubmitProject(ctx context.Context, title, authority string) (Project, error) {
	body := map[string]any{
		"title":     title,
		"authority": authority,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// GetProject fetches a dossier with its history.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListProjects lists dossiers, optionally filtered by phase.
func (c *Client) ListProjects(ctx context.Context, phase string) ([]Project, error) {
	endpoint := "v0/projects"
	if phase != "" {
		endpoint += "?phase=" + url.QueryEscape(phase)
	}
	var resp []Project
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Decide records a review decision on the dossier's current stage.
func (c *Client) Decide(ctx context.Context, projectID, action, comment string) (Project, error) {
	body := map[string]any{
		"action":  action,
		"comment": comment,
	}
	var resp Project
	endpoint := "v0/projects/" + url.PathEscape(projectID) + "/decisions"
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Pending returns the dossiers awaiting the caller's decision.
func (c *Client) Pending(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v0/pending", nil, &resp)
	return resp, err
}

// Stages returns the review stage catalog.
func (c *Client) Stages(ctx context.Context) ([]Stage, error) {
	var resp []Stage
	err := c.do(ctx, http.MethodGet, "v0/catalog/stages", nil, &resp)
	return resp, err
}

// Events returns recent audit events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
