package todosdk

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

// Client is a minimal Todo HTTP API client.
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

// Todo represents the API todo model.
type Todo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TodoUpdate is a partial update; nil fields are not sent.
type TodoUpdate struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// APIError reports a failed call. Message is the server's envelope message
// when one was returned.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// envelope is the shape shared by every API response.
type envelope struct {
	OK      *bool  `json:"ok"`
	Message string `json:"message"`
	Todo    *Todo  `json:"todo"`
	Todos   []Todo `json:"todos"`
}

// Health returns the liveness message served at the API root.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp envelope
	err := c.do(ctx, http.MethodGet, "", nil, &resp)
	return resp.Message, err
}

// ListTodos returns every todo.
func (c *Client) ListTodos(ctx context.Context) ([]Todo, error) {
	var resp envelope
	if err := c.do(ctx, http.MethodGet, "todos", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Todos == nil {
		return []Todo{}, nil
	}
	return resp.Todos, nil
}

// GetTodo fetches a todo by id.
func (c *Client) GetTodo(ctx context.Context, id string) (Todo, error) {
	return c.todo(ctx, http.MethodGet, todoPath(id), nil)
}

// CreateTodo creates a todo.
func (c *Client) CreateTodo(ctx context.Context, title string) (Todo, error) {
	return c.todo(ctx, http.MethodPost, "todos", map[string]any{"title": title})
}

// UpdateTodo applies a partial update.
func (c *Client) UpdateTodo(ctx context.Context, id string, upd TodoUpdate) (Todo, error) {
	return c.todo(ctx, http.MethodPut, todoPath(id), upd)
}

// ToggleTodo flips the completion state, given the state the caller last saw.
func (c *Client) ToggleTodo(ctx context.Context, id string, completed bool) (Todo, error) {
	next := !completed
	return c.UpdateTodo(ctx, id, TodoUpdate{Completed: &next})
}

// DeleteTodo removes a todo.
func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, todoPath(id), nil, nil)
}

func (c *Client) todo(ctx context.Context, method, endpoint string, body any) (Todo, error) {
	var resp envelope
	if err := c.do(ctx, method, endpoint, body, &resp); err != nil {
		return Todo{}, err
	}
	if resp.Todo == nil {
		return Todo{}, fmt.Errorf("response missing todo")
	}
	return *resp.Todo, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out *envelope) error {
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
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env envelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil || env.OK == nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Body: string(raw)}
		}
		return fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode, string(raw))
	}
	// ok:false is authoritative regardless of the status code.
	if !*env.OK {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message, Body: string(raw)}
	}
	if out != nil {
		*out = env
	}
	return nil
}

func todoPath(id string) string {
	return "todos/" + url.PathEscape(id)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
