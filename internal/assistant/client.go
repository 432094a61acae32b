// Package assistant drives turn-based conversations against the OpenAI
// Assistants API: durable threads, runs polled to a terminal state, and
// reply extraction.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RunStatus is the lifecycle state of one assistant run.
type RunStatus string

const (
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
	RunExpired    RunStatus = "expired"
)

// Terminal reports whether the run has left the queued/in_progress states.
func (s RunStatus) Terminal() bool {
	return s != RunQueued && s != RunInProgress
}

// Run is one assistant invocation over a thread.
type Run struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id"`
	Status   RunStatus `json:"status"`
}

// APIError is a non-2xx Assistants API response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("assistant api status %d: %s", e.Status, e.Body)
}

// Client calls the Assistants v2 endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an Assistants API client.
func NewClient(log *slog.Logger, baseURL, apiKey string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("client", "assistant")),
	}
}

// CreateThreadAndRun creates a thread seeded with the user message and
// starts the first run on it.
func (c *Client) CreateThreadAndRun(ctx context.Context, assistantID, message string) (Run, error) {
	payload := map[string]any{
		"assistant_id": assistantID,
		"thread": map[string]any{
			"messages": []map[string]any{
				{"role": "user", "content": message},
			},
		},
	}
	var run Run
	if err := c.post(ctx, "/threads/runs", payload, &run); err != nil {
		return Run{}, fmt.Errorf("create thread and run: %w", err)
	}
	return run, nil
}

// AppendMessage posts a user message to an existing thread.
func (c *Client) AppendMessage(ctx context.Context, threadID, message string) error {
	payload := map[string]any{"role": "user", "content": message}
	if err := c.post(ctx, "/threads/"+threadID+"/messages", payload, nil); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// CreateRun starts a new run on an existing thread.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (Run, error) {
	payload := map[string]any{"assistant_id": assistantID}
	var run Run
	if err := c.post(ctx, "/threads/"+threadID+"/runs", payload, &run); err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	var run Run
	if err := c.get(ctx, "/threads/"+threadID+"/runs/"+runID, &run); err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

type messageList struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// LatestAssistantText returns the text of the most recent message on the
// thread. The list endpoint returns newest-first, so the first entry is
// the assistant's reply after a completed run. Empty content yields "".
func (c *Client) LatestAssistantText(ctx context.Context, threadID string) (string, error) {
	var list messageList
	if err := c.get(ctx, "/threads/"+threadID+"/messages", &list); err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	if len(list.Data) == 0 || len(list.Data[0].Content) == 0 {
		return "", nil
	}
	return list.Data[0].Content[0].Text.Value, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
