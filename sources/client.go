package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxAttempts = 5
	maxBackoff         = 60 * time.Second
)

// Client is the shared HTTP layer for every provider: one GET at a time
// through a per-client rate limiter, transient and rate-limit failures
// retried with exponential backoff (1s, doubling, capped at 60s, 5 attempts),
// auth failures surfaced immediately.
type Client struct {
	name        string
	http        *http.Client
	limiter     *rate.Limiter
	retryWait   time.Duration
	maxAttempts int
}

func NewClient(name string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		name:        name,
		http:        &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(4), 8),
		retryWait:   time.Second,
		maxAttempts: defaultMaxAttempts,
	}
}

// GetJSON fetches rawURL and decodes the response body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, v any) error {
	body, err := c.get(ctx, rawURL, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return newError(ErrorKindProtocol, c.name, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// FetchBytes fetches rawURL and returns the raw response body.
func (c *Client) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	return c.get(ctx, rawURL, nil)
}

func (c *Client) get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	wait := c.retryWait

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, newError(ErrorKindTransientNetwork, c.name, err)
		}

		body, err := c.doOnce(ctx, rawURL, header)
		if err == nil {
			return body, nil
		}

		kind := KindOf(err)
		retryable := kind == ErrorKindTransientNetwork || kind == ErrorKindRateLimit
		if !retryable || attempt >= c.maxAttempts {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, newError(ErrorKindTransientNetwork, c.name, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

func (c *Client) doOnce(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, newError(ErrorKindProtocol, c.name, fmt.Errorf("failed to create request: %w", err))
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, newError(ErrorKindTransientNetwork, c.name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, newError(ErrorKindTransientNetwork, c.name, err)
		}
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, newError(ErrorKindAuth, c.name, fmt.Errorf("provider returned status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return nil, newError(ErrorKindNotFound, c.name, fmt.Errorf("provider returned status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newError(ErrorKindRateLimit, c.name, fmt.Errorf("provider returned status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, newError(ErrorKindTransientNetwork, c.name, fmt.Errorf("provider returned status %d", resp.StatusCode))
	default:
		return nil, newError(ErrorKindProtocol, c.name, fmt.Errorf("provider returned status %d", resp.StatusCode))
	}
}

// BuildQueryURL builds a URL with query parameters.
func BuildQueryURL(baseURL string, params map[string]string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
