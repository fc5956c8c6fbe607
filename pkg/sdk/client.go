// Package sdk provides a Go client for the botflow workflow API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const apiPrefix = "/api/v1"

// APIError is an error response from the server.
type APIError struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}

// Client talks to a workflow service instance.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sets the API key for authentication
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = apiPrefix + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		bodyReader = bytes.NewReader(b)
		contentType = "application/yaml"
	default:
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return c.httpClient.Do(req)
}

// do performs the request and decodes the enveloped response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.request(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := env.Error
		if apiErr == nil {
			apiErr = &APIError{Code: "UNKNOWN", Message: resp.Status}
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}
	if out == nil || env.Data == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// CreateWorkflow creates a draft workflow.
func (c *Client) CreateWorkflow(ctx context.Context, req *CreateWorkflowRequest) (*Workflow, error) {
	var w Workflow
	if err := c.do(ctx, http.MethodPost, "/workflows", nil, req, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWorkflow fetches a workflow by id.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var w Workflow
	if err := c.do(ctx, http.MethodGet, "/workflows/"+id, nil, nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWorkflows lists workflows, optionally filtered.
func (c *Client) ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) ([]*Workflow, error) {
	query := url.Values{}
	if opts.BotID != "" {
		query.Set("bot_id", opts.BotID)
	}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}
	var out []*Workflow
	if err := c.do(ctx, http.MethodGet, "/workflows", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateWorkflow applies a partial update and returns the new revision.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, req *UpdateWorkflowRequest) (*Workflow, error) {
	var w Workflow
	if err := c.do(ctx, http.MethodPut, "/workflows/"+id, nil, req, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// DeleteWorkflow removes a workflow and its execution history.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/workflows/"+id, nil, nil, nil)
}

// ActivateWorkflow makes the workflow runnable.
func (c *Client) ActivateWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var w Workflow
	if err := c.do(ctx, http.MethodPost, "/workflows/"+id+"/activate", nil, struct{}{}, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// DeactivateWorkflow takes the workflow out of service.
func (c *Client) DeactivateWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var w Workflow
	if err := c.do(ctx, http.MethodPost, "/workflows/"+id+"/deactivate", nil, struct{}{}, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// BindBot routes a bot's message events to the workflow.
func (c *Client) BindBot(ctx context.Context, id, botID string) (*Workflow, error) {
	var w Workflow
	body := map[string]string{"bot_id": botID}
	if err := c.do(ctx, http.MethodPost, "/workflows/"+id+"/bind", nil, body, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// UnbindBot clears the workflow's bot association.
func (c *Client) UnbindBot(ctx context.Context, id string) (*Workflow, error) {
	var w Workflow
	if err := c.do(ctx, http.MethodPost, "/workflows/"+id+"/unbind", nil, struct{}{}, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ExecuteWorkflow runs the workflow synchronously.
func (c *Client) ExecuteWorkflow(ctx context.Context, id string, req *ExecuteRequest) (*ExecutionResult, error) {
	if req == nil {
		req = &ExecuteRequest{}
	}
	var res ExecutionResult
	if err := c.do(ctx, http.MethodPost, "/workflows/"+id+"/execute", nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListExecutions returns recent runs of the workflow, newest first.
func (c *Client) ListExecutions(ctx context.Context, id string, limit int) ([]*ExecutionRecord, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}
	var out []*ExecutionRecord
	if err := c.do(ctx, http.MethodGet, "/workflows/"+id+"/executions", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ImportWorkflow creates a draft workflow from a YAML document.
func (c *Client) ImportWorkflow(ctx context.Context, document []byte) (*Workflow, error) {
	var w Workflow
	if err := c.do(ctx, http.MethodPost, "/workflows/import", nil, document, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ExportWorkflow fetches the workflow as a YAML document.
func (c *Client) ExportWorkflow(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.request(ctx, http.MethodGet, "/workflows/"+id+"/export", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error == nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Code: "UNKNOWN", Message: resp.Status}
		}
		env.Error.StatusCode = resp.StatusCode
		return nil, env.Error
	}
	return io.ReadAll(resp.Body)
}

// SendMessageEvent delivers a chat event to every active workflow bound
// to the bot and returns their results.
func (c *Client) SendMessageEvent(ctx context.Context, botID string, req *MessageEventRequest) ([]*ExecutionResult, error) {
	var out []*ExecutionResult
	if err := c.do(ctx, http.MethodPost, "/bots/"+botID+"/events", nil, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartDebugSession begins a debugged run of the workflow.
func (c *Client) StartDebugSession(ctx context.Context, id string, req *DebugRequest) (*DebugSession, error) {
	if req == nil {
		req = &DebugRequest{}
	}
	var s DebugSession
	if err := c.do(ctx, http.MethodPost, "/workflows/"+id+"/debug", nil, req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DebugSessionSnapshot returns the session's current execution state.
func (c *Client) DebugSessionSnapshot(ctx context.Context, sessionID string) (*DebugSnapshot, error) {
	var s DebugSnapshot
	if err := c.do(ctx, http.MethodGet, "/debug-sessions/"+sessionID, nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// StepDebugSession advances a paused session by one node.
func (c *Client) StepDebugSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/debug-sessions/"+sessionID+"/step", nil, struct{}{}, nil)
}

// ContinueDebugSession resumes a paused session.
func (c *Client) ContinueDebugSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/debug-sessions/"+sessionID+"/continue", nil, struct{}{}, nil)
}

// StopDebugSession cancels and removes the session.
func (c *Client) StopDebugSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/debug-sessions/"+sessionID, nil, nil, nil)
}

// NodeManifests lists the node types the server supports.
func (c *Client) NodeManifests(ctx context.Context) ([]NodeManifest, error) {
	var out []NodeManifest
	if err := c.do(ctx, http.MethodGet, "/nodes", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
