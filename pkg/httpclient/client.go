// Package httpclient provides a small retrying HTTP client used for every
// outbound HTTP dependency (upstream candidate API, embedding server, ANN
// store). Retries use exponential backoff with a configurable cap and honor
// request context cancellation between attempts.
package httpclient

import (
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func WithMaxDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.maxDelay = delay
	}
}

func New(opts ...Option) *Client {
	client := &Client{
		client:     &http.Client{Timeout: 20 * time.Second},
		maxRetries: 3,
		baseDelay:  time.Second,
		maxDelay:   10 * time.Second,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

func retryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Do executes the request, retrying transport errors and retryable status
// codes. maxRetries counts attempts, not re-attempts: maxRetries=3 means at
// most three requests leave the process.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
				}
				req.Body = body
			}

			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(c.delay(attempt)):
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)

		if attempt == c.maxRetries-1 {
			// Last attempt: hand the response back so callers can read
			// the error body.
			return resp, &RetryableError{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("max HTTP retries (%d) exceeded", c.maxRetries),
				Err:        lastErr,
			}
		}
		resp.Body.Close()
	}

	return nil, &RetryableError{
		Message: fmt.Sprintf("max HTTP retries (%d) exceeded", c.maxRetries),
		Err:     lastErr,
	}
}

// delay grows 1x, 2x, 4x ... of baseDelay, capped at maxDelay. attempt is
// 1-based here since no delay precedes the first attempt.
func (c *Client) delay(attempt int) time.Duration {
	d := c.baseDelay << (attempt - 1)
	if d > c.maxDelay {
		return c.maxDelay
	}
	return d
}
