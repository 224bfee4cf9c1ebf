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
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/claude-rss-reader/app/feed"
)

var ErrNotFound = errors.New("not found")

// Client talks to a running reader server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

func New(baseURL string, httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

type FeedPage struct {
	Items   []feed.Item `json:"items"`
	HasMore bool        `json:"hasMore"`
}

type ProviderInfo struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type ProvidersResponse struct {
	Providers []ProviderInfo `json:"providers"`
	Available []string       `json:"available"`
}

type Health struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Clients   int    `json:"clients"`
	Providers int    `json:"providers"`
}

func (c *Client) Feed(ctx context.Context, provider string, limit, offset int) (*FeedPage, error) {
	params := url.Values{}
	if provider != "" {
		params.Set("provider", provider)
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	var page FeedPage
	if err := c.do(ctx, http.MethodGet, "/api/feed?"+params.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) Item(ctx context.Context, id string, full bool) (*feed.Item, error) {
	target := "/api/feed/" + url.PathEscape(id)
	if full {
		target += "?full=1"
	}

	var item feed.Item
	if err := c.do(ctx, http.MethodGet, target, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) MarkAsRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/feed/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *Client) Refresh(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/feed/refresh", nil, nil)
}

func (c *Client) Providers(ctx context.Context) (*ProvidersResponse, error) {
	var resp ProvidersResponse
	if err := c.do(ctx, http.MethodGet, "/api/providers", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) TestProviders(ctx context.Context) (map[string]bool, error) {
	var resp struct {
		Results map[string]bool `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/providers/test", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Notify posts a hook event and returns the number of connected clients.
func (c *Client) Notify(ctx context.Context, event, cwd string) (int, error) {
	body := map[string]string{"event": event}
	if cwd != "" {
		body["cwd"] = cwd
	}

	var resp struct {
		Success bool `json:"success"`
		Clients int  `json:"clients"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/claude-ready", body, &resp); err != nil {
		return 0, err
	}
	return resp.Clients, nil
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, target, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: HTTP error: %d", method, target, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
