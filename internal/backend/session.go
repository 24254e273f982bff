package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"agentdeck/internal/stream"
)

// HeartbeatPayload identifies the session a ping extends.
type HeartbeatPayload struct {
	AgentID     string `json:"agentId"`
	SessionID   string `json:"sessionId"`
	ProjectPath string `json:"projectPath"`
}

// SessionExists asks the server whether a session is known. Used before
// arming heartbeats for resumed sessions.
func (c *Client) SessionExists(ctx context.Context, agentID, sessionID string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	path := fmt.Sprintf("/api/agents/%s/sessions/%s/exists",
		url.PathEscape(agentID), url.PathEscape(sessionID))
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// Ping extends a session's liveness. Idempotent; no payload returned.
func (c *Client) Ping(ctx context.Context, payload HeartbeatPayload) error {
	path := fmt.Sprintf("/api/agents/%s/sessions/%s/heartbeat",
		url.PathEscape(payload.AgentID), url.PathEscape(payload.SessionID))
	return c.call(ctx, http.MethodPost, path, payload, nil)
}

// History fetches the persisted replay log for a session: the same frame
// shapes the live stream carries, in order.
func (c *Client) History(ctx context.Context, agentID, sessionID string) ([]stream.Frame, error) {
	var frames []stream.Frame
	path := fmt.Sprintf("/api/agents/%s/sessions/%s/history",
		url.PathEscape(agentID), url.PathEscape(sessionID))
	if err := c.call(ctx, http.MethodGet, path, nil, &frames); err != nil {
		return nil, err
	}
	return frames, nil
}
