// Package recorder provides the HTTP client for the external browser
// recorder service. The service drives a model-guided browser session; this
// client only manages sessions and moves payloads and results across the
// wire.
package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tkassel/actionforge/internal/task"
)

// Client implements task.Recorder over the recorder service's session API.
// A Client is owned by exactly one executor slot, so the session id needs
// only light guarding against the executor's salvage/close paths.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	mu        sync.Mutex
	sessionID string
}

// NewClient creates a recorder client for the service at baseURL. The
// http.Client carries no timeout of its own; deadlines come from the caller's
// context.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{},
	}
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

type runRequest struct {
	SessionID string                  `json:"session_id"`
	StartURL  string                  `json:"start_url"`
	Payload   task.InstructionPayload `json:"payload"`
}

// Initialize opens a recording session.
func (c *Client) Initialize(ctx context.Context) error {
	var resp sessionResponse
	if err := c.post(ctx, "/v1/sessions", nil, &resp); err != nil {
		return fmt.Errorf("failed to open recorder session: %w", err)
	}
	if resp.SessionID == "" {
		return fmt.Errorf("recorder returned an empty session id")
	}

	c.mu.Lock()
	c.sessionID = resp.SessionID
	c.mu.Unlock()
	return nil
}

// Run executes the instruction payload in the current session and returns
// the discovered elements.
func (c *Client) Run(
	ctx context.Context,
	startURL string,
	payload task.InstructionPayload,
) (*task.RecorderResult, error) {
	sessionID, err := c.currentSession()
	if err != nil {
		return nil, err
	}

	req := runRequest{SessionID: sessionID, StartURL: startURL, Payload: payload}
	var result task.RecorderResult
	if err := c.post(ctx, "/v1/sessions/"+sessionID+"/run", req, &result); err != nil {
		return nil, fmt.Errorf("recorder run failed: %w", err)
	}
	return &result, nil
}

// SalvagePartial asks the service for whatever the session produced before an
// aborted run. A session with nothing to report yields (nil, nil).
func (c *Client) SalvagePartial(ctx context.Context) (*task.PartialResult, error) {
	sessionID, err := c.currentSession()
	if err != nil {
		return nil, err
	}

	var partial task.PartialResult
	err = c.get(ctx, "/v1/sessions/"+sessionID+"/partial", &partial)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch partial result: %w", err)
	}
	if len(partial.Elements) == 0 {
		return nil, nil
	}
	return &partial, nil
}

// Close tears down the current session. Closing an already-closed or
// never-opened session is a no-op.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()

	if sessionID == "" {
		return nil
	}

	// Session teardown gets its own short deadline so a dead caller context
	// cannot leak browser sessions on the service side.
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.delete(ctx, "/v1/sessions/"+sessionID); err != nil {
		return fmt.Errorf("failed to close recorder session: %w", err)
	}
	return nil
}

func (c *Client) currentSession() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == "" {
		return "", fmt.Errorf("recorder session not initialized")
	}
	return c.sessionID, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	return c.do(ctx, http.MethodPost, path, reader, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Bounded read keeps a misbehaving service from flooding the error.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("recorder service returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
