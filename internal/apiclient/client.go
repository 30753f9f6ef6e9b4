// Package apiclient is the outbound JSON client used for search and summarization calls.
// Every call carries bearer auth, retries transient failures with jittered exponential
// backoff and turns error payloads into typed errors.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/retry"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 8 << 20
)

type Options struct {
	BaseURL     string
	APIKey      string
	HTTPReferer string // optional client identification
	XTitle      string // optional client identification
	Timeout     time.Duration
	Retry       retry.RetryConfig
	HTTPClient  *http.Client
}

type Client struct {
	baseURL     string
	apiKey      string
	httpReferer string
	xTitle      string
	timeout     time.Duration
	retry       retry.RetryConfig
	http        *http.Client
}

func New(opts Options) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		httpReferer: opts.HTTPReferer,
		xTitle:      opts.XTitle,
		timeout:     opts.Timeout,
		retry:       opts.Retry,
		http:        opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *Client) headers(req *http.Request, accept string) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if c.httpReferer != "" {
		req.Header.Set("HTTP-Referer", c.httpReferer)
	}
	if c.xTitle != "" {
		req.Header.Set("X-Title", c.xTitle)
	}
}

// Post sends body as JSON and decodes the response into out (which may be nil).
// path may be relative to the base URL or an absolute URL.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	var raw []byte
	err = retry.WithRetry(ctx, c.retry, func(attempt int) error {
		data, err := c.postOnce(ctx, path, payload)
		if err != nil {
			if IsRetryable(err) && attempt < c.retry.MaxRetries {
				logger.Warn("api call failed, retrying", "path", path, "attempt", attempt+1, "error", err)
			}
			if !IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		raw = data
		return nil
	})
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) postOnce(ctx context.Context, path string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	c.headers(req, "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload := decodePayload(raw)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(payload, resp.Status),
			Payload:    payload,
		}
	}

	if apiErr := bodyError(resp.StatusCode, raw, "api error"); apiErr != nil {
		return nil, apiErr
	}
	return raw, nil
}
