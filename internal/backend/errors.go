package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrTransport wraps failures where no HTTP response arrived
	ErrTransport = errors.New("backend unreachable")

	// ErrAIUnavailable is returned by Preview when the AI-backed endpoint
	// answers 403; callers publish the original text instead.
	ErrAIUnavailable = errors.New("AI preview temporarily unavailable")

	// ErrNoToken is returned for authenticated calls made before login
	ErrNoToken = errors.New("no session token")
)

// Error is an HTTP error status returned by the backend
type Error struct {
	Status  int
	Message string
	Body    json.RawMessage
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a backend 404
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsUnauthorized reports whether err is a backend 401
func IsUnauthorized(err error) bool {
	return statusOf(err) == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0
func StatusOf(err error) int {
	return statusOf(err)
}

func statusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// newError builds an Error from a non-2xx response body. The backend is not
// consistent about where it puts the message, so several shapes are tried.
func newError(status int, body []byte) *Error {
	e := &Error{Status: status, Message: http.StatusText(status)}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return e
	}
	if json.Valid(body) {
		e.Body = json.RawMessage(body)
	}

	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		e.Message = truncate(trimmed, 200)
		return e
	}

	switch {
	case len(envelope.Detail) > 0:
		var s string
		if json.Unmarshal(envelope.Detail, &s) == nil {
			e.Message = s
		} else {
			e.Message = detailMessage(envelope.Detail)
		}
	case envelope.Message != "":
		e.Message = envelope.Message
	case envelope.Error != "":
		e.Message = envelope.Error
	}
	return e
}

// detailMessage flattens validation-style details ([{"loc":..,"msg":..}]).
func detailMessage(raw json.RawMessage) string {
	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(raw, &items) == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return truncate(string(raw), 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
