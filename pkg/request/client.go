package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/blingblang/atlas-fluvial/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("atlaspdf/%s", version.Version)

// Client performs single HTTP attempts against the external providers.
// Retry policy lives with the callers: each pipeline stage owns its own
// attempt ceiling and backoff.
type Client struct {
	httpClient *http.Client
}

// New creates a new Client with the given per-request timeout.
func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Get performs a GET request and returns the response body.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil, headers)
}

// Post performs a POST request with the given body.
func (c *Client) Post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, body, headers)
}

// Put performs a PUT request with the given body.
func (c *Client) Put(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodPut, url, body, headers)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", defaultUserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(data, 256)}
	}

	return data, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Transient reports whether the status indicates a retryable failure.
func (e *StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// IsTransient classifies an error from Client as retryable. Network-level
// failures and 5xx responses are transient; 4xx responses, context
// cancellation and protocol errors are not.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		return string(data[:n]) + "..."
	}
	return string(data)
}
