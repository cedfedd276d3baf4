package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 30 * time.Second
	maxErrorBodyLen = 512
	userAgent       = "OpenArchive-RetentionService/1.0"
)

// ClientConfig holds rate limiting and timeout settings for collaborator calls
type ClientConfig struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// DefaultClientConfig returns the default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:           defaultTimeout,
		RequestsPerSecond: 5,
		Burst:             5,
	}
}

// StatusError is returned for a non-2xx collaborator response
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	msg := "request to " + e.URL + " failed (HTTP " + strconv.Itoa(e.StatusCode) + ")"
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// RetryAfterDelay is the wait the collaborator asked for, zero when none
func (e *StatusError) RetryAfterDelay() time.Duration {
	return e.RetryAfter
}

// Retryable reports whether the same request may succeed later.
// Retryable: 408, 429, 5xx
func (e *StatusError) Retryable() bool {
	return IsRetryableStatus(e.StatusCode)
}

func IsRetryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= 500
}

// Client is a JSON-over-HTTP client shared by every collaborator. Requests
// wait on a token bucket; retries are left to the task queue.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultClientConfig().RequestsPerSecond
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// PostJSON sends body as JSON and decodes a JSON response into out, which
// may be nil.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		serr := &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
			serr.RetryAfter = time.Duration(s) * time.Second
		}
		return serr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}
