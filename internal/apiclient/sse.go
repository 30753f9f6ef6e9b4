package apiclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/retry"
)

const doneMarker = "[DONE]"

// PostStream posts body and yields each JSON frame of the server-sent event stream.
// Only connecting is retried; once frames flow, a failure ends the sequence with an error.
func (c *Client) PostStream(ctx context.Context, path string, body any) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		payload, err := json.Marshal(body)
		if err != nil {
			yield(nil, fmt.Errorf("encode request: %w", err))
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var resp *http.Response
		err = retry.WithRetry(ctx, c.retry, func(attempt int) error {
			r, err := c.connect(ctx, path, payload)
			if err != nil {
				if !IsRetryable(err) {
					return retry.Permanent(err)
				}
				logger.Warn("stream connect failed", "path", path, "attempt", attempt+1, "error", err)
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		readEvents(resp.Body, yield)
	}
}

// connect opens the stream. The timeout covers headers only; the body may run longer.
func (c *Client) connect(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	connCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(c.timeout, cancel)

	req, err := http.NewRequestWithContext(connCtx, http.MethodPost, c.url(path), bytes.NewReader(payload))
	if err != nil {
		timer.Stop()
		cancel()
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	c.headers(req, "text/event-stream")

	resp, err := c.http.Do(req)
	if !timer.Stop() {
		// headers arrived after the deadline fired
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		return nil, &NetworkError{Err: context.DeadlineExceeded}
	}
	if err != nil {
		cancel()
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		cancel()
		payload := decodePayload(raw)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(payload, resp.Status),
			Payload:    payload,
		}
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// readEvents splits r into SSE frames. data: lines accumulate until a blank line,
// [DONE] ends the stream, malformed frames are skipped and an error frame is fatal.
func readEvents(r io.Reader, yield func(json.RawMessage, error) bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	var data []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if line == "" {
			if len(data) == 0 {
				continue
			}
			chunk := strings.TrimSpace(strings.Join(data, "\n"))
			data = data[:0]

			if chunk == doneMarker {
				return
			}
			raw := []byte(chunk)
			if !json.Valid(raw) {
				logger.Debug("skipping malformed stream frame", "frame", chunk)
				continue
			}
			if apiErr := bodyError(0, raw, "stream error"); apiErr != nil {
				apiErr.InBody = true
				yield(nil, apiErr)
				return
			}
			if !yield(json.RawMessage(raw), nil) {
				return
			}
			continue
		}

		if strings.HasPrefix(line, "data:") {
			data = append(data, strings.TrimSpace(line[len("data:"):]))
		}
	}

	if err := scanner.Err(); err != nil {
		yield(nil, &NetworkError{Err: err})
	}
}
