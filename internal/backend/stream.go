package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ChatRequest opens a chat or task run against an agent.
type ChatRequest struct {
	Message     string `json:"message"`
	SessionID   string `json:"sessionId,omitempty"`
	ProjectPath string `json:"projectPath,omitempty"`
}

// OpenStream POSTs a chat request and returns the raw event stream body.
// The caller owns the reader; cancelling ctx aborts the stream. Streamed
// requests bypass the client timeout, which would otherwise kill
// long-running runs mid-flight.
func (c *Client) OpenStream(ctx context.Context, agentID string, req ChatRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	path := fmt.Sprintf("/api/agents/%s/chat", url.PathEscape(agentID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	c.setAuth(httpReq)

	streamClient := &http.Client{
		Transport: c.httpClient.Transport,
		// No timeout: the stream stays open for the run's lifetime.
	}

	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, ParseAPIError(resp.StatusCode, body)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/event-stream") {
		resp.Body.Close()
		return nil, ErrStreamUnsupported
	}

	return resp.Body, nil
}
