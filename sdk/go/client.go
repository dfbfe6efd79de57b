package chorelinesdk

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

// Client is a minimal Choreline HTTP API client.
type Client struct {
	BaseURL     string
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

type User struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at,omitempty"`
	Message   string `json:"message,omitempty"`
}

type Task struct {
	TaskID      int64  `json:"task_id"`
	TaskName    string `json:"task_name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Assignment is one task given to one user. Users and Tasks are only set
// when requested with select=*,users(...),tasks(...).
type Assignment struct {
	AssignmentID int64   `json:"assignment_id"`
	TaskID       int64   `json:"task_id"`
	UserID       int64   `json:"user_id"`
	AssignedAt   string  `json:"assigned_at"`
	CompletedAt  *string `json:"completed_at"`
	IsApproved   *bool   `json:"is_approved"`
	Notes        *string `json:"notes,omitempty"`
	State        string  `json:"state"`
	Users        *User   `json:"users,omitempty"`
	Tasks        *Task   `json:"tasks,omitempty"`
}

type Login struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message"`
}

type Transition struct {
	Message    string     `json:"message"`
	Assignment Assignment `json:"assignment"`
}

type Rotation struct {
	Rotated     int          `json:"rotated"`
	Assignments []Assignment `json:"assignments"`
	Message     string       `json:"message"`
}

type WhoAmI struct {
	UserID      int64    `json:"user_id"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   *int64 `json:"entity_id,omitempty"`
	ActorID    *int64 `json:"actor_id,omitempty"`
	Payload    any    `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code is the machine-readable reason
// from the error envelope when the body carried one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// RegisterUser creates a household member.
func (c *Client) RegisterUser(ctx context.Context, username, password string) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodPost, "rpc/register_user", map[string]any{
		"p_username": username,
		"p_password": password,
	}, &resp)
	return resp, err
}

// Login verifies credentials and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, username, password string) (Login, error) {
	var resp Login
	err := c.do(ctx, http.MethodPost, "rpc/login", map[string]any{
		"p_username": username,
		"p_password": password,
	}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// CreateTask creates a chore.
func (c *Client) CreateTask(ctx context.Context, name, description string) (Task, error) {
	body := map[string]any{"p_task_name": name}
	if description != "" {
		body["p_description"] = description
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "rpc/create_task", body, &resp)
	return resp, err
}

// AssignTask claims a chore for userID. With a token set, userID may be zero.
func (c *Client) AssignTask(ctx context.Context, taskID, userID int64) (Assignment, error) {
	body := map[string]any{"p_task_id": taskID}
	if userID != 0 {
		body["p_user_id"] = userID
	}
	var resp Assignment
	err := c.do(ctx, http.MethodPost, "rpc/assign_task", body, &resp)
	return resp, err
}

// CompleteTask submits an assignment for review.
func (c *Client) CompleteTask(ctx context.Context, assignmentID, userID int64, notes string) (Transition, error) {
	body := map[string]any{"p_assignment_id": assignmentID}
	if userID != 0 {
		body["p_user_id"] = userID
	}
	if notes != "" {
		body["p_notes"] = notes
	}
	var resp Transition
	err := c.do(ctx, http.MethodPost, "rpc/complete_task", body, &resp)
	return resp, err
}

// RejectTask rejects an assignment pending review.
func (c *Client) RejectTask(ctx context.Context, assignmentID, reviewerID int64, reason string) (Transition, error) {
	body := map[string]any{"p_assignment_id": assignmentID, "p_reason": reason}
	if reviewerID != 0 {
		body["p_reviewer_id"] = reviewerID
	}
	var resp Transition
	err := c.do(ctx, http.MethodPost, "rpc/reject_task", body, &resp)
	return resp, err
}

// RotateTasks assigns every unassigned chore. Requires a token for a user
// allowed to rotate.
func (c *Client) RotateTasks(ctx context.Context) (Rotation, error) {
	var resp Rotation
	err := c.do(ctx, http.MethodPost, "rpc/rotate_tasks", nil, &resp)
	return resp, err
}

// WhoAmI describes the token holder.
func (c *Client) WhoAmI(ctx context.Context) (WhoAmI, error) {
	var resp WhoAmI
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// ListUsers reads users. params use column=op.value filters, order, limit
// and offset.
func (c *Client) ListUsers(ctx context.Context, params url.Values) ([]User, error) {
	var resp []User
	err := c.do(ctx, http.MethodGet, withQuery("users", params), nil, &resp)
	return resp, err
}

func (c *Client) ListTasks(ctx context.Context, params url.Values) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, withQuery("tasks", params), nil, &resp)
	return resp, err
}

func (c *Client) ListAssignments(ctx context.Context, params url.Values) ([]Assignment, error) {
	var resp []Assignment
	err := c.do(ctx, http.MethodGet, withQuery("task_assignments", params), nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", params), nil, &resp)
	return resp, err
}

func withQuery(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}
	return endpoint + "?" + params.Encode()
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
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
