// Package fault normalizes arbitrary failures into a closed taxonomy with a
// retryability verdict, so retry and caller code never inspect raw transport
// errors directly.
package fault

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Kind identifies the failure category. Kinds are string-based for
// debuggability and natural JSON serialization.
type Kind string

const (
	KindConnection     Kind = "connection"
	KindTimeout        Kind = "timeout"
	KindRateLimited    Kind = "rate_limited"
	KindServerFault    Kind = "server_fault"
	KindAuthFailure    Kind = "auth_failure"
	KindForbidden      Kind = "forbidden"
	KindNotFound       Kind = "not_found"
	KindInvalidRequest Kind = "invalid_request"
	KindCancelled      Kind = "cancelled"
	KindUnknown        Kind = "unknown"
)

// Error is a classified failure. Only Connection, Timeout, RateLimited and
// ServerFault may carry Retryable == true; every other kind is terminal.
// Values are created once per failed attempt and never mutated. RetryAfter
// carries an upstream-directed wait (zero when absent), set for rate-limited
// failures from the Retry-After header or a default.
type Error struct {
	Kind       Kind
	Retryable  bool
	RetryAfter time.Duration
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Offline is the terminal error handed to callers when the current policy
// forbids any attempt; it tells them to stay on cached data.
func Offline() *Error {
	return &Error{
		Kind:      KindConnection,
		Retryable: false,
		Message:   "network offline, no attempts permitted",
	}
}

// HTTPError carries a non-2xx upstream response so classification can see the
// real status code. Transports construct it; nothing else does.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	// RetryAfter is parsed from the Retry-After response header when present.
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("upstream returned %s for %s", e.Status, e.URL)
	}
	return fmt.Sprintf("upstream returned %s", e.Status)
}

// NewHTTPError builds an HTTPError from an upstream response, parsing the
// Retry-After header in both delta-seconds and HTTP-date forms.
func NewHTTPError(resp *http.Response) *HTTPError {
	e := &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		e.URL = resp.Request.URL.Redacted()
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				e.RetryAfter = d
			}
		}
	}
	return e
}

// statusCoder matches errors from other transports that expose their HTTP
// status without using HTTPError.
type statusCoder interface {
	StatusCode() int
}
