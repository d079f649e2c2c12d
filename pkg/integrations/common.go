package integrations

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the requested resource doesn't exist.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (connection errors, non-2xx responses).
	ErrNetwork = errors.New("network error")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// Unwrap maps 404 to ErrNotFound and every other status to ErrNetwork.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return ErrNetwork
}

// NewHTTPClient creates an HTTP client. A zero timeout means requests wait
// as long as the server and the request context allow.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// JoinURL appends path to origin, collapsing a duplicated slash.
func JoinURL(origin, path string) string {
	return strings.TrimRight(origin, "/") + "/" + strings.TrimLeft(path, "/")
}
