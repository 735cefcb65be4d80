// Package userconfig fetches the chrome-service user configuration the console shell
// bootstraps with.
package userconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const Path = "/api/chrome-service/v1/user"

type Config struct {
	Data Data `json:"data"`
}

type Data struct {
	UIPreview     bool `json:"uiPreview"     yaml:"uiPreview"`
	UIPreviewSeen bool `json:"uiPreviewSeen" yaml:"uiPreviewSeen"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Get fetches the user config for the owner of token, bypassing the identity cache.
func (c *Client) Get(ctx context.Context, token string) (*Config, error) {
	u, err := url.Parse(c.baseURL + Path)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("skip-identity-cache", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching user config: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching user config: unexpected status %d", resp.StatusCode)
	}

	var config Config
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		return nil, fmt.Errorf("decoding user config: %w", err)
	}
	return &config, nil
}
