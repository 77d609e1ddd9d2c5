package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrNetwork means no response was received: transport failure or timeout.
	ErrNetwork = errors.New("network error")
	// ErrUnauthorized means the backend rejected the session token (401).
	// The session is already purged by the time a caller sees it.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	// ErrConflict is a 409, e.g. applying twice to the same audition.
	ErrConflict = errors.New("conflict")
	// ErrValidation is a 400 or 422, Error.Fields carries per-field messages when the backend sent them.
	ErrValidation = errors.New("validation failed")
	ErrServer     = errors.New("server error")
	// ErrNotImplemented is returned by client-side stubs for capabilities the backend does not offer yet.
	ErrNotImplemented = errors.New("not implemented")
)

// Error is a non-2xx backend response.
type Error struct {
	StatusCode int
	Method     string
	Path       string
	// Message is the backend's human readable message, possibly empty.
	Message string
	// Fields maps request field names to validation messages.
	Fields map[string]string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString(" (")
		for i, name := range names {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(name + ": " + e.Fields[name])
		}
		b.WriteString(")")
	}
	return b.String()
}

// Is maps the status code onto the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrValidation:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	case ErrServer:
		return e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// IsClientError reports whether err is a 4xx response. Those are not worth retrying.
func IsClientError(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// StatusCode returns the HTTP status carried by err, 0 when there is none.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Errors  json.RawMessage `json:"errors"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func decodeError(method, path string, status int, body []byte) *Error {
	apiErr := &Error{StatusCode: status, Method: method, Path: path}

	var envelope errorBody
	if len(body) == 0 || json.Unmarshal(body, &envelope) != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	apiErr.Message = envelope.Message
	if apiErr.Message == "" {
		apiErr.Message = envelope.Error
	}

	if len(envelope.Errors) == 0 {
		return apiErr
	}

	fields := map[string]string{}
	var asMap map[string]string
	var asList []fieldError
	switch {
	case json.Unmarshal(envelope.Errors, &asMap) == nil:
		fields = asMap
	case json.Unmarshal(envelope.Errors, &asList) == nil:
		for _, fe := range asList {
			if fe.Field != "" {
				fields[fe.Field] = fe.Message
			}
		}
	}
	if len(fields) > 0 {
		apiErr.Fields = fields
	}
	return apiErr
}
