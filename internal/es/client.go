// Package es is a minimal REST client for the slice of the Elasticsearch
// API the bench touches: bulk writes, alias/data-stream resolution, index
// settings, cluster limits, and the provisioning/teardown endpoints.
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// maxErrBody bounds how much of an error response body is kept in errors.
const maxErrBody = 800

// Config holds connection settings for a Client.
type Config struct {
	BaseURL  string
	Username string
	Password string

	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	Logger zerolog.Logger
}

// Client talks to one backend cluster. All requests go through a
// retrying HTTP client that backs off on overloaded/gateway statuses
// (429, 502, 503, 504) and connection errors.
type Client struct {
	baseURL  string
	username string
	password string
	http     *retryablehttp.Client
	log      zerolog.Logger
}

// NewClient creates a client for the given backend.
func NewClient(cfg Config) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 600 * time.Second
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 500 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 10 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = nil
	rc.CheckRetry = retryPolicy
	// Keep the final response so callers can classify it themselves.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.HTTPClient = &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	return &Client{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		http:     rc,
		log:      cfg.Logger,
	}
}

// retryStatuses are transient overload/gateway conditions worth retrying
// before the caller ever sees them. 413 is deliberately absent: an
// oversized request never succeeds on retry.
var retryStatuses = map[int]struct{}{
	http.StatusTooManyRequests:    {},
	http.StatusBadGateway:         {},
	http.StatusServiceUnavailable: {},
	http.StatusGatewayTimeout:     {},
}

func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp != nil {
		if _, ok := retryStatuses[resp.StatusCode]; ok {
			return true, nil
		}
	}
	return false, nil
}

// APIError is a non-success backend response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s -> %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

func truncateBody(b []byte) string {
	if len(b) > maxErrBody {
		b = b[:maxErrBody]
	}
	return string(b)
}

func (c *Client) auth(req *retryablehttp.Request) {
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

// Do issues a JSON request. body (if non-nil) is marshaled as the request
// body; out (if non-nil) receives the decoded response. Any status >= 300
// is returned as an *APIError carrying a truncated response body.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s body: %w", method, path, err)
		}
		payload = b
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: truncateBody(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}

// Exists issues a HEAD request and reports whether the target exists.
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("HEAD %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, &APIError{Method: http.MethodHead, Path: path, StatusCode: resp.StatusCode}
	}
}

// Text issues a GET and returns the raw response body, for _cat endpoints.
func (c *Client) Text(ctx context.Context, path string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("GET %s: read body: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		return "", &APIError{Method: http.MethodGet, Path: path, StatusCode: resp.StatusCode, Body: truncateBody(raw)}
	}
	return string(raw), nil
}
