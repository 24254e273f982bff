package backend

import (
	"context"
	"net/http"
)

// RefreshResult is the outcome of a refresh request. Refreshed false
// means the server judged the current token young enough to keep.
type RefreshResult struct {
	Token     string `json:"token"`
	Refreshed bool   `json:"refreshed"`
}

// Login exchanges the backend password for a bearer token.
func (c *Client) Login(ctx context.Context, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	req := map[string]string{"password": password}
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", req, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Verify asks the server whether a token is still accepted. A transport
// failure is returned as an error, distinct from an explicit rejection.
func (c *Client) Verify(ctx context.Context, token string) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	req := map[string]string{"token": token}
	if err := c.call(ctx, http.MethodPost, "/api/auth/verify", req, &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// Refresh asks the server for a replacement token.
func (c *Client) Refresh(ctx context.Context, token string) (RefreshResult, error) {
	var resp struct {
		Success   bool   `json:"success"`
		Token     string `json:"token"`
		Refreshed bool   `json:"refreshed"`
	}
	req := map[string]string{"token": token}
	if err := c.call(ctx, http.MethodPost, "/api/auth/refresh", req, &resp); err != nil {
		return RefreshResult{}, err
	}
	return RefreshResult{Token: resp.Token, Refreshed: resp.Refreshed}, nil
}

// Logout invalidates a token server-side. Best effort; the local
// credential is removed regardless of the outcome.
func (c *Client) Logout(ctx context.Context, token string) error {
	req := map[string]string{"token": token}
	return c.call(ctx, http.MethodPost, "/api/auth/logout", req, nil)
}

// HealthInfo is the backend health response.
type HealthInfo struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health checks backend reachability. Any 2xx means reachable.
func (c *Client) Health(ctx context.Context) (HealthInfo, error) {
	var resp HealthInfo
	if err := c.call(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return HealthInfo{}, err
	}
	return resp, nil
}
