// Package supabase is a client for the hosted Supabase project: PostgREST
// database access, GoTrue auth, storage buckets and realtime change feeds.
package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	maxResponseBytes  = 8 << 20  // 8 MiB
	maxErrorBodyBytes = 32 << 10 // 32 KiB
)

// Config holds client configuration.
type Config struct {
	// URL is the project URL, e.g. https://xyz.supabase.co.
	URL string
	// AnonKey is the public API key used for user-scoped requests.
	AnonKey string
	// ServiceKey is the service-role key; bypasses row level security.
	ServiceKey string
	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration
	// HTTPClient overrides the default client. Used by tests.
	HTTPClient *http.Client
}

// Client is the Supabase API client.
type Client struct {
	baseURL     string
	restURL     string
	authURL     string
	storageURL  string
	realtimeURL string
	anonKey     string
	serviceKey  string
	httpClient  *http.Client

	auth     *AuthClient
	database *DatabaseClient
	storage  *StorageClient
	realtime *RealtimeClient
}

// New creates a Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("project URL is required")
	}
	if cfg.ServiceKey == "" && cfg.AnonKey == "" {
		return nil, fmt.Errorf("an API key is required")
	}

	baseURL := strings.TrimRight(cfg.URL, "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid project URL: %q", cfg.URL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	wsURL := strings.Replace(baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)

	c := &Client{
		baseURL:     baseURL,
		restURL:     baseURL + "/rest/v1",
		authURL:     baseURL + "/auth/v1",
		storageURL:  baseURL + "/storage/v1",
		realtimeURL: wsURL + "/realtime/v1/websocket",
		anonKey:     cfg.AnonKey,
		serviceKey:  cfg.ServiceKey,
		httpClient:  httpClient,
	}

	c.auth = &AuthClient{client: c}
	c.database = &DatabaseClient{client: c}
	c.storage = &StorageClient{client: c}
	c.realtime = &RealtimeClient{client: c}

	return c, nil
}

// Auth returns the auth client.
func (c *Client) Auth() *AuthClient { return c.auth }

// Database returns the database client.
func (c *Client) Database() *DatabaseClient { return c.database }

// Storage returns the storage client.
func (c *Client) Storage() *StorageClient { return c.storage }

// Realtime returns the realtime client.
func (c *Client) Realtime() *RealtimeClient { return c.realtime }

// apiKey returns the key used when no per-request token applies: the service
// role key when configured, the anon key otherwise.
func (c *Client) apiKey() string {
	if c.serviceKey != "" {
		return c.serviceKey
	}
	return c.anonKey
}

// request performs a request authenticated with the service key.
func (c *Client) request(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) ([]byte, int, error) {
	return c.do(ctx, method, urlStr, body, headers, c.apiKey())
}

// requestWithToken performs a request on behalf of a user. The access token
// goes into Authorization so row level security applies.
func (c *Client) requestWithToken(ctx context.Context, method, urlStr string, body []byte, headers map[string]string, accessToken string) ([]byte, int, error) {
	if headers == nil {
		headers = make(map[string]string)
	}
	headers["Authorization"] = "Bearer " + accessToken
	key := c.anonKey
	if key == "" {
		key = c.serviceKey
	}
	return c.do(ctx, method, urlStr, body, headers, key)
}

func (c *Client) do(ctx context.Context, method, urlStr string, body []byte, headers map[string]string, apiKey string) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("apikey", apiKey)
	if req.Header.Get("Authorization") == "" && headers["Authorization"] == "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}
