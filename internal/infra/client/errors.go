package client

import (
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx backend response.
type APIError struct {
	Status     int
	StatusText string
	Method     string
	Path       string
	// Payload is the decoded body (map, slice, string) or nil.
	Payload any
	Raw     []byte
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
}

func newAPIError(resp *http.Response, method, path string, raw []byte, payload any) *APIError {
	statusText := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode)))
	if statusText == "" {
		statusText = http.StatusText(resp.StatusCode)
	}
	return &APIError{
		Status:     resp.StatusCode,
		StatusText: statusText,
		Method:     method,
		Path:       path,
		Payload:    payload,
		Raw:        raw,
		Message:    errorMessage(payload, resp.StatusCode, statusText),
	}
}

// errorMessage prefers the payload's "message", then "error".
func errorMessage(payload any, status int, statusText string) string {
	if obj, ok := payload.(map[string]any); ok {
		for _, key := range []string{"message", "error"} {
			if msg := messageText(obj[key]); msg != "" {
				return msg
			}
		}
	}
	return strings.TrimSpace(fmt.Sprintf("HTTP %d %s", status, statusText))
}

// messageText accepts a string or a list of strings (validation pipes
// report one message per field).
func messageText(v any) string {
	switch m := v.(type) {
	case string:
		return strings.TrimSpace(m)
	case []any:
		parts := make([]string, 0, len(m))
		for _, item := range m {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}
