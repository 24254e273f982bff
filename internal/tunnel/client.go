// Package tunnel talks to the subdomain proxy service that exposes a
// local service on a public URL through a managed tunnel. Used by the
// `services expose` flow.
package tunnel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrInvalidAPIKey is returned when the proxy rejects the API key.
var ErrInvalidAPIKey = errors.New("tunnel proxy rejected API key")

// Client calls the subdomain proxy API. Auth is a static API key sent
// on every request.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a client for the proxy at baseURL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateRequest asks for a new public subdomain. Subdomain is optional;
// the proxy generates one when empty.
type CreateRequest struct {
	Subdomain   string `json:"subdomain,omitempty"`
	LocalPort   int    `json:"localPort"`
	Description string `json:"description,omitempty"`
}

// Subdomain is one provisioned tunnel.
type Subdomain struct {
	Subdomain   string `json:"subdomain"`
	PublicURL   string `json:"publicUrl"`
	TunnelID    string `json:"tunnelId"`
	TunnelToken string `json:"tunnelToken,omitempty"`
	CreatedAt   string `json:"createdAt"`
	Status      string `json:"status,omitempty"`
}

// Create provisions a subdomain and returns the tunnel credentials the
// local connector needs.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*Subdomain, error) {
	if req.LocalPort == 0 {
		req.LocalPort = 4936
	}
	var resp Subdomain
	if err := c.call(ctx, http.MethodPost, "/api/subdomain/create", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Check reports whether a subdomain is still available.
func (c *Client) Check(ctx context.Context, subdomain string) (bool, error) {
	var resp struct {
		Available bool   `json:"available"`
		Message   string `json:"message"`
	}
	path := "/api/subdomain/check/" + url.PathEscape(subdomain)
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Available, nil
}

// List returns all subdomains provisioned under this API key.
func (c *Client) List(ctx context.Context) ([]Subdomain, error) {
	var resp struct {
		Success    bool        `json:"success"`
		Subdomains []Subdomain `json:"subdomains"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/subdomain/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Subdomains, nil
}

// Delete tears down a subdomain and its tunnel.
func (c *Client) Delete(ctx context.Context, subdomain string) error {
	path := "/api/subdomain/" + url.PathEscape(subdomain)
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

// Health checks proxy reachability.
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tunnel proxy request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrInvalidAPIKey
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Detail string `json:"detail"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Detail != "" {
			return fmt.Errorf("tunnel proxy: %s (status %d)", apiErr.Detail, resp.StatusCode)
		}
		return fmt.Errorf("tunnel proxy: status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
