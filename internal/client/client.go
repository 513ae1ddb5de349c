// Package client is a typed HTTP client for the shutterscope API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shutterscope/shutterscope/internal/models"
)

// Client handles HTTP communication with the shutterscope server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
}

const (
	defaultMaxRetries = 3
	maxRetryWait      = 30 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries sets how many times a rate limited (429) request is
// retried. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error (%d)", e.StatusCode)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	return c.doRetry(ctx, c.maxRetries, method, path, body, result)
}

// doRetry performs a request, retrying up to retries times while the
// server answers 429.
func (c *Client) doRetry(ctx context.Context, retries int, method, path string, body interface{}, result interface{}) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = b
	}

	u := c.baseURL + path
	for attempt := 0; ; attempt++ {
		status, header, respBody, err := c.send(ctx, method, u, payload)
		if err != nil {
			return err
		}

		if status == http.StatusTooManyRequests && attempt < retries {
			if err := sleepCtx(ctx, retryAfter(header.Get("Retry-After"), time.Now())); err != nil {
				return err
			}
			continue
		}

		if status < 200 || status >= 300 {
			apiErr := &APIError{StatusCode: status}
			_ = json.Unmarshal(respBody, apiErr)
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(status)
			}
			return apiErr
		}

		if result != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
		}
		return nil
	}
}

func (c *Client) send(ctx context.Context, method, u string, payload []byte) (int, http.Header, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("request to %s failed: %w", u, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, resp.Header, respBody, nil
}

// retryAfter interprets a Retry-After header given as seconds or an HTTP
// date. Missing or malformed values wait one second; waits are capped.
func retryAfter(v string, now time.Time) time.Duration {
	wait := time.Second
	if v = strings.TrimSpace(v); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			wait = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(v); err == nil {
			wait = at.Sub(now)
		}
	}
	if wait < 0 {
		wait = 0
	}
	if wait > maxRetryWait {
		wait = maxRetryWait
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LoginResponse is the token issued by Login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
}

// Login exchanges a username and password for a token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("server returned empty token")
	}
	return &resp, nil
}

// Identity is the caller as seen by the server.
type Identity struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Me returns the identity behind the current token.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var resp Identity
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health is the body of GET /health.
type Health struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Database struct {
		Driver string `json:"driver"`
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	} `json:"database"`
	Cache string `json:"cache"`
}

// Health queries the unauthenticated health endpoint. A degraded server
// answers 503, which surfaces as an *APIError.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Statistics fetches the aggregate statistics snapshot in a single request.
// A rate limited answer is returned as an error, not retried.
func (c *Client) Statistics(ctx context.Context) (*models.Statistics, error) {
	var resp models.Statistics
	if err := c.doRetry(ctx, 0, http.MethodGet, "/api/v1/statistics", nil, &resp); err != nil {
		return nil, err
	}
	if resp.ResponseCodeStats == nil {
		resp.ResponseCodeStats = []models.ResponseCodeStat{}
	}
	return &resp, nil
}

// ListResults returns a page of results, newest first.
func (c *Client) ListResults(ctx context.Context, limit, offset int) ([]models.Result, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/v1/results"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Results []models.Result `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetResult fetches one result with its headers and logs.
func (c *Client) GetResult(ctx context.Context, id int64) (*models.Result, error) {
	var resp models.Result
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/results/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateResult ingests a result and returns its id.
func (c *Client) CreateResult(ctx context.Context, r *models.Result) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/results", r, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// DeleteResult removes a result.
func (c *Client) DeleteResult(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/results/%d", id), nil, nil)
}
