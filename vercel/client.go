// Package vercel is a small client for the Vercel REST API covering
// project lookup, deployment listing, and build log retrieval.
package vercel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://api.vercel.com"

// Client calls the Vercel REST API. A non-empty teamID scopes every
// request to that team.
type Client struct {
	token      string
	teamID     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithTeamID scopes requests to a team.
func WithTeamID(id string) Option {
	return func(c *Client) { c.teamID = id }
}

// NewClient builds a client authenticating with token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the Vercel API.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s HTTP %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	return c.do(ctx, op, http.MethodGet, path, query, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	if c.teamID != "" {
		query.Set("teamId", c.teamID)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{Operation: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Project is a Vercel project.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Framework string `json:"framework,omitempty"`
	Link      *struct {
		Type string `json:"type"`
		Repo string `json:"repo"`
		Org  string `json:"org"`
	} `json:"link,omitempty"`
}

type projectsResponse struct {
	Projects []Project `json:"projects"`
}

// ListProjects returns the projects visible to the token.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var result projectsResponse
	if err := c.get(ctx, "list projects", "/v9/projects", nil, &result); err != nil {
		return nil, err
	}
	return result.Projects, nil
}

// GetProject fetches one project by ID or name.
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var project Project
	path := fmt.Sprintf("/v9/projects/%s", url.PathEscape(projectID))
	if err := c.get(ctx, "get project", path, nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// ProjectForRepo finds the project linked to the given GitHub
// repository, or nil if none is linked.
func (c *Client) ProjectForRepo(ctx context.Context, owner, repo string) (*Project, error) {
	projects, err := c.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	want := owner + "/" + repo
	for i := range projects {
		link := projects[i].Link
		if link != nil && link.Org+"/"+link.Repo == want {
			return &projects[i], nil
		}
	}
	return nil, nil
}

// Deployment is one deployment of a project.
type Deployment struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	State   string `json:"state"`
	Created int64  `json:"created"`
}

type deploymentsResponse struct {
	Deployments []Deployment `json:"deployments"`
}

// ListDeployments returns the most recent deployments for a project,
// newest first, capped at limit.
func (c *Client) ListDeployments(ctx context.Context, projectID string, limit int) ([]Deployment, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{
		"projectId": {projectID},
		"limit":     {strconv.Itoa(limit)},
	}
	var result deploymentsResponse
	if err := c.get(ctx, "list deployments", "/v6/deployments", q, &result); err != nil {
		return nil, err
	}
	return result.Deployments, nil
}

// LatestDeployment returns the newest deployment for a project, or nil
// when the project has none.
func (c *Client) LatestDeployment(ctx context.Context, projectID string) (*Deployment, error) {
	deployments, err := c.ListDeployments(ctx, projectID, 1)
	if err != nil {
		return nil, err
	}
	if len(deployments) == 0 {
		return nil, nil
	}
	return &deployments[0], nil
}

// CancelDeployment cancels a queued or building deployment.
func (c *Client) CancelDeployment(ctx context.Context, deploymentID string) error {
	path := fmt.Sprintf("/v12/deployments/%s/cancel", url.PathEscape(deploymentID))
	return c.do(ctx, "cancel deployment", http.MethodPatch, path, nil, nil)
}

// LogLine is one line of build output.
type LogLine struct {
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Text    string `json:"text"`
}

type buildEvent struct {
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Payload struct {
		Text string `json:"text"`
	} `json:"payload"`
	Text string `json:"text"`
}

// BuildLogs returns the stdout and stderr lines of a deployment's
// build. Other event types (state changes, metadata) are dropped.
func (c *Client) BuildLogs(ctx context.Context, deploymentID string) ([]LogLine, error) {
	var events []buildEvent
	path := fmt.Sprintf("/v2/deployments/%s/events", url.PathEscape(deploymentID))
	if err := c.get(ctx, "build logs", path, nil, &events); err != nil {
		return nil, err
	}

	lines := make([]LogLine, 0, len(events))
	for _, ev := range events {
		if ev.Type != "stdout" && ev.Type != "stderr" {
			continue
		}
		text := ev.Payload.Text
		if text == "" {
			text = ev.Text
		}
		lines = append(lines, LogLine{Type: ev.Type, Created: ev.Created, Text: text})
	}
	return lines, nil
}
