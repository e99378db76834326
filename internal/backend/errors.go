package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// StatusError is a non-2xx backend response. It carries the backend's
// status code so the gateway's error handler can pass it through, and the
// backend's message/error code for conditional inclusion in the response.
type StatusError struct {
	Status  int
	Message string
	Code    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend responded with status %d", e.Status)
}

// StatusCode returns the backend's HTTP status code.
func (e *StatusError) StatusCode() int { return e.Status }

// ErrorCode returns the backend's machine-readable error code, if any.
func (e *StatusError) ErrorCode() string { return e.Code }

// IsNotFound reports whether the error is a backend 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// newStatusError builds a StatusError from an error response, picking up
// the backend's JSON error envelope when present.
func newStatusError(res *http.Response) *StatusError {
	se := &StatusError{Status: res.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil || len(raw) == 0 {
		return se
	}

	var envelope struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		se.Message = envelope.Message
		se.Code = envelope.ErrorCode
	}
	return se
}
