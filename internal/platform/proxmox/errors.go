package proxmox

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrTaskFailed is matched by tasks that stopped with a status other than OK.
var ErrTaskFailed = errors.New("task failed")

// APIError is a non-2xx response of the API. Err is the error go-proxmox
// returned for it.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// isInvalidRequest reports client errors that will not succeed on retry.
// Authentication errors are retried once with a fresh ticket instead.
func isInvalidRequest(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusTooManyRequests:
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// IsNotFound reports whether err is a missing resource. Proxmox answers
// unknown VMs and interfaces with 500 and a "does not exist" message.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound ||
		(apiErr.StatusCode == http.StatusInternalServerError && containsNotExist(apiErr.Message))
}

func containsNotExist(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "no such")
}
