// Package actionboardsdk is a minimal client for the Actionboard HTTP API.
package actionboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Client talks to an Actionboard server. Select a user once with
// SelectUser; the session cookie is kept in the client's jar.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Jar: jar, Timeout: 10 * time.Second},
		Timeout:    10 * time.Second,
	}, nil
}

// PersonStatus is one responsible person's view of an activity.
type PersonStatus struct {
	Status                string `json:"status"`
	StatusLabel           string `json:"status_label"`
	Comment               string `json:"comment"`
	Justification         string `json:"justification"`
	JustificationApproved bool   `json:"justification_approved"`
}

// HistoryEntry is one audit record.
type HistoryEntry struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	User      string `json:"user"`
	Comment   string `json:"comment,omitempty"`
}

// Activity is the API activity model.
type Activity struct {
	ID                int                     `json:"id"`
	Title             string                  `json:"title"`
	Description       string                  `json:"description"`
	Deadline          string                  `json:"deadline"`
	Overall           string                  `json:"overall_status"`
	OverallLabel      string                  `json:"overall_status_label"`
	Responsible       []string                `json:"responsible"`
	ResponsibleStatus map[string]PersonStatus `json:"responsible_status"`
	CreatedBy         string                  `json:"created_by"`
	CreatedAt         string                  `json:"created_at"`
	History           []HistoryEntry          `json:"history"`
}

// Session describes the current user selection.
type Session struct {
	User     string `json:"user"`
	Director bool   `json:"director"`
	Selected bool   `json:"selected"`
}

// PendingJustification is one item on the director's review queue.
type PendingJustification struct {
	ActivityID    int    `json:"activity_id"`
	Title         string `json:"title"`
	Person        string `json:"person"`
	Justification string `json:"justification"`
	Comment       string `json:"comment,omitempty"`
}

// Manager is one registry entry.
type Manager struct {
	Name       string `json:"name"`
	Director   bool   `json:"director"`
	Activities int    `json:"activities"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SelectUser sets the session to the given registered manager.
func (c *Client) SelectUser(ctx context.Context, user string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPut, "v0/session", map[string]string{"user": user}, &resp)
	return resp, err
}

// CurrentSession reports the active user selection.
func (c *Client) CurrentSession(ctx context.Context) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodGet, "v0/session", nil, &resp)
	return resp, err
}

// ListActivities returns the activities visible to the selected user.
func (c *Client) ListActivities(ctx context.Context) ([]Activity, error) {
	var resp struct {
		Activities []Activity `json:"activities"`
	}
	err := c.do(ctx, http.MethodGet, "v0/activities", nil, &resp)
	return resp.Activities, err
}

// GetActivity fetches one activity.
func (c *Client) GetActivity(ctx context.Context, id int) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/activities/%d", id), nil, &resp)
	return resp, err
}

// CreateActivity creates an activity with the selected user as creator.
func (c *Client) CreateActivity(ctx context.Context, title, description, deadline string, responsible []string) (Activity, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
		"deadline":    deadline,
		"responsible": responsible,
	}
	var resp Activity
	err := c.do(ctx, http.MethodPost, "v0/activities", body, &resp)
	return resp, err
}

// EditActivity replaces the activity's fields. Director only.
func (c *Client) EditActivity(ctx context.Context, id int, title, description, deadline string, responsible []string) (Activity, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
		"deadline":    deadline,
		"responsible": responsible,
	}
	var resp Activity
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("v0/activities/%d", id), body, &resp)
	return resp, err
}

// DeleteActivity removes an activity for good. Director only.
func (c *Client) DeleteActivity(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("v0/activities/%d", id), nil, nil)
}

// SetStatus changes a person's status. An empty person targets the
// selected user.
func (c *Client) SetStatus(ctx context.Context, id int, person, status, comment, justification string) (Activity, error) {
	body := map[string]any{
		"person":        person,
		"status":        status,
		"comment":       comment,
		"justification": justification,
	}
	var resp Activity
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("v0/activities/%d/status", id), body, &resp)
	return resp, err
}

// Review approves or rejects a pending justification. Director only.
func (c *Client) Review(ctx context.Context, id int, person, decision, comment string) (Activity, error) {
	body := map[string]any{
		"decision": decision,
		"comment":  comment,
	}
	endpoint := fmt.Sprintf("v0/activities/%d/justifications/%s/review", id, url.PathEscape(person))
	var resp Activity
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Dashboard lists justifications awaiting review. Director only.
func (c *Client) Dashboard(ctx context.Context) ([]PendingJustification, error) {
	var resp struct {
		Pending []PendingJustification `json:"pending_justifications"`
	}
	err := c.do(ctx, http.MethodGet, "v0/dashboard", nil, &resp)
	return resp.Pending, err
}

// ListResponsibles returns the registry with per-manager activity counts.
func (c *Client) ListResponsibles(ctx context.Context) ([]Manager, string, error) {
	var resp struct {
		Managers []Manager `json:"managers"`
		Director string    `json:"director"`
	}
	err := c.do(ctx, http.MethodGet, "v0/responsibles", nil, &resp)
	return resp.Managers, resp.Director, err
}

// AddResponsible registers a manager. Director only.
func (c *Client) AddResponsible(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "v0/responsibles", map[string]string{"name": name}, nil)
}

// RemoveResponsible deregisters a manager. Director only.
func (c *Client) RemoveResponsible(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "v0/responsibles/"+url.PathEscape(name), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return err
		}
		c.HTTPClient = &http.Client{Jar: jar, Timeout: c.Timeout}
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
