package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a failed call with an HTTP status and the decoded error payload, if any.
type APIError struct {
	StatusCode int
	Message    string
	Payload    map[string]any

	// InBody is set when the status was successful but the body carried an error object.
	InBody bool
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("api error: %s", e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Temporary reports whether the status is one the client retries.
func (e *APIError) Temporary() bool {
	return !e.InBody && retryableStatus(e.StatusCode)
}

// NetworkError wraps a transport-level failure (dial, TLS, timeout, broken body).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient status or a transport failure.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// errorMessage pulls a readable message out of an error payload.
func errorMessage(payload map[string]any, fallback string) string {
	if payload == nil {
		return fallback
	}
	if obj, ok := payload["error"].(map[string]any); ok {
		if msg, ok := obj["message"].(string); ok && msg != "" {
			return msg
		}
		return fallback
	}
	if msg, ok := payload["message"]; ok && msg != nil {
		if s := fmt.Sprint(msg); s != "" {
			return s
		}
	}
	return fallback
}

// bodyError returns an APIError when a successful body carries a truthy "error" field.
func bodyError(status int, raw []byte, fallback string) *APIError {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || !truthy(envelope.Error) {
		return nil
	}
	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)
	return &APIError{
		StatusCode: status,
		Message:    errorMessage(payload, fallback),
		Payload:    payload,
		InBody:     true,
	}
}

func truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return false
	}
	switch string(v) {
	case "null", "false", "0", `""`, "{}", "[]":
		return false
	}
	return true
}

func decodePayload(raw []byte) map[string]any {
	var payload map[string]any
	if len(raw) == 0 {
		return map[string]any{}
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return map[string]any{}
	}
	return payload
}
