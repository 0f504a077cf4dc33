// Package client talks to the timeblocker REST API and keeps optimistic local
// copies of tasks and time blocks.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"timeblocker/internal/model"
	"timeblocker/internal/service"
)

// ErrNetwork wraps every failure to reach the server or read its answer.
var ErrNetwork = errors.New("network error, please check your connection")

// APIError is an error answered by the server.
type APIError struct {
	Status  int
	Message string
	Fields  []service.FieldError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// AuthResult is returned by register, login and demo login.
type AuthResult struct {
	User   model.User `json:"user"`
	Token  string     `json:"token"`
	IsDemo bool       `json:"isDemo"`
}

// TaskFilter narrows task listings. Roots selects tasks without a parent.
type TaskFilter struct {
	Status   model.TaskStatus
	Priority model.TaskPriority
	ParentID string
	Roots    bool
}

// Client is a thin REST client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New returns a client for the API at baseURL. Requests go through
// http.DefaultClient unless WithHTTPClient is given.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Register(ctx context.Context, in service.RegisterInput) (*AuthResult, error) {
	return c.authenticate(ctx, "/api/auth/register", in)
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.authenticate(ctx, "/api/auth/login", map[string]string{"email": email, "password": password})
}

func (c *Client) DemoLogin(ctx context.Context) (*AuthResult, error) {
	return c.authenticate(ctx, "/api/auth/demo", struct{}{})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*AuthResult, error) {
	var res AuthResult
	if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return &res, nil
}

func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ListTasks(ctx context.Context, f TaskFilter) ([]model.Task, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Priority != "" {
		q.Set("priority", string(f.Priority))
	}
	if f.Roots {
		q.Set("parentId", "")
	} else if f.ParentID != "" {
		q.Set("parentId", f.ParentID)
	}
	path := "/api/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var tasks []model.Task
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) CreateTask(ctx context.Context, in service.TaskInput) (*model.Task, error) {
	var task model.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", in, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) UpdateTask(ctx context.Context, id string, patch service.TaskPatch) (*model.Task, error) {
	var task model.Task
	if err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), taskPatchBody(patch), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

// DayView returns the blocks of a local date formatted YYYY-MM-DD.
func (c *Client) DayView(ctx context.Context, date string) ([]model.TimeBlock, error) {
	var blocks []model.TimeBlock
	if err := c.do(ctx, http.MethodGet, "/api/day-view?date="+url.QueryEscape(date), nil, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (c *Client) CreateTimeBlock(ctx context.Context, in service.TimeBlockInput) (*model.TimeBlock, error) {
	var block model.TimeBlock
	if err := c.do(ctx, http.MethodPost, "/api/timeblocks", in, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (c *Client) UpdateTimeBlock(ctx context.Context, id string, patch service.TimeBlockPatch) (*model.TimeBlock, error) {
	var block model.TimeBlock
	if err := c.do(ctx, http.MethodPatch, "/api/timeblocks/"+url.PathEscape(id), blockPatchBody(patch), &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (c *Client) DeleteTimeBlock(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/timeblocks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := c.do(ctx, http.MethodGet, "/api/categories", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error  string               `json:"error"`
			Errors []service.FieldError `json:"errors"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Fields = payload.Errors
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// The patch types marshal unset fields as null, so only set keys are sent.
func put[T any](body map[string]any, key string, o service.Optional[T]) {
	if o.Set {
		body[key] = o
	}
}

func taskPatchBody(p service.TaskPatch) map[string]any {
	body := map[string]any{}
	put(body, "title", p.Title)
	put(body, "notes", p.Notes)
	put(body, "status", p.Status)
	put(body, "priority", p.Priority)
	put(body, "category", p.Category)
	put(body, "deadline", p.Deadline)
	put(body, "estimatedMinutes", p.EstimatedMinutes)
	put(body, "recurrence", p.Recurrence)
	put(body, "parentTaskId", p.ParentTaskID)
	return body
}

func blockPatchBody(p service.TimeBlockPatch) map[string]any {
	body := map[string]any{}
	put(body, "title", p.Title)
	put(body, "start", p.Start)
	put(body, "end", p.End)
	put(body, "actualEnd", p.ActualEnd)
	put(body, "taskId", p.TaskID)
	put(body, "category", p.Category)
	put(body, "notes", p.Notes)
	put(body, "notification", p.Notification)
	return body
}
