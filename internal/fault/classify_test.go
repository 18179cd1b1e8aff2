package fault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

// fakeNetError implements net.Error for timeout and non-timeout paths.
type fakeNetError struct {
	msg     string
	timeout bool
}

func (e *fakeNetError) Error() string   { return e.msg }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

// codedError exposes a status code without being an HTTPError.
type codedError struct{ code int }

func (e *codedError) Error() string   { return "coded upstream failure" }
func (e *codedError) StatusCode() int { return e.code }

func httpErr(status int) *HTTPError {
	return &HTTPError{StatusCode: status, Status: fmt.Sprintf("%d %s", status, http.StatusText(status))}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{"cancellation", context.Canceled, KindCancelled, false},
		{"wrapped cancellation", fmt.Errorf("fetch: %w", context.Canceled), KindCancelled, false},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout, true},
		{"net timeout", &fakeNetError{msg: "i/o timeout", timeout: true}, KindTimeout, true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "api.example.com"}, KindConnection, true},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, KindConnection, true},
		{"connection reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, KindConnection, true},
		{"host unreachable", &net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}, KindConnection, true},
		{"unexpected eof", io.ErrUnexpectedEOF, KindConnection, true},
		{"breaker open", gobreaker.ErrOpenState, KindConnection, true},
		{"breaker half-open saturated", gobreaker.ErrTooManyRequests, KindConnection, true},
		{"stringly refused", errors.New("dial tcp 10.0.0.1:443: connection refused"), KindConnection, true},
		{"generic net error", &fakeNetError{msg: "link wobble"}, KindConnection, true},
		{"http 401", httpErr(http.StatusUnauthorized), KindAuthFailure, false},
		{"http 403", httpErr(http.StatusForbidden), KindForbidden, false},
		{"http 404", httpErr(http.StatusNotFound), KindNotFound, false},
		{"http 422", httpErr(http.StatusUnprocessableEntity), KindInvalidRequest, false},
		{"http 429", httpErr(http.StatusTooManyRequests), KindRateLimited, true},
		{"http 500", httpErr(http.StatusInternalServerError), KindServerFault, true},
		{"http 502", httpErr(http.StatusBadGateway), KindServerFault, true},
		{"http 503", httpErr(http.StatusServiceUnavailable), KindServerFault, true},
		{"http 418 falls through", httpErr(http.StatusTeapot), KindUnknown, false},
		{"status via interface", &codedError{code: http.StatusBadGateway}, KindServerFault, true},
		{"plain error", errors.New("boom"), KindUnknown, false},
	}

	retryableKinds := map[Kind]bool{
		KindConnection:  true,
		KindTimeout:     true,
		KindRateLimited: true,
		KindServerFault: true,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.kind {
				t.Errorf("Classify(%v).Kind = %v, want %v", tt.err, got.Kind, tt.kind)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Classify(%v).Retryable = %v, want %v", tt.err, got.Retryable, tt.retryable)
			}
			if got.Retryable && !retryableKinds[got.Kind] {
				t.Errorf("retryable error carries disallowed kind %v", got.Kind)
			}
			if !errors.Is(got, tt.err) && got.Cause == nil {
				t.Errorf("classified error lost its cause")
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	if got := Classify(nil); got != nil {
		t.Errorf("Classify(nil) = %v, want nil", got)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	orig := &Error{Kind: KindServerFault, Retryable: true, Message: "upstream server fault"}
	if got := Classify(orig); got != orig {
		t.Errorf("Classify(*Error) = %v, want the same value back", got)
	}

	wrapped := fmt.Errorf("fetch current: %w", orig)
	if got := Classify(wrapped); got != orig {
		t.Errorf("Classify(wrapped *Error) = %v, want the inner classified error", got)
	}
}

func TestClassifyRetryAfter(t *testing.T) {
	withHeader := &HTTPError{
		StatusCode: http.StatusTooManyRequests,
		Status:     "429 Too Many Requests",
		RetryAfter: 42 * time.Second,
	}
	got := Classify(withHeader)
	if got.RetryAfter != 42*time.Second {
		t.Errorf("RetryAfter = %v, want 42s", got.RetryAfter)
	}

	got = Classify(httpErr(http.StatusTooManyRequests))
	if got.RetryAfter != defaultRetryAfter {
		t.Errorf("RetryAfter default = %v, want %v", got.RetryAfter, defaultRetryAfter)
	}
}

func TestNewHTTPErrorRetryAfter(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Status:     "429 Too Many Requests",
		Header:     http.Header{"Retry-After": []string{"17"}},
	}
	e := NewHTTPError(resp)
	if e.RetryAfter != 17*time.Second {
		t.Errorf("delta-seconds RetryAfter = %v, want 17s", e.RetryAfter)
	}

	at := time.Now().Add(90 * time.Second).UTC()
	resp = &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Status:     "429 Too Many Requests",
		Header:     http.Header{"Retry-After": []string{at.Format(http.TimeFormat)}},
	}
	e = NewHTTPError(resp)
	if e.RetryAfter < 80*time.Second || e.RetryAfter > 90*time.Second {
		t.Errorf("http-date RetryAfter = %v, want ~90s", e.RetryAfter)
	}

	resp = &http.Response{
		StatusCode: http.StatusServiceUnavailable,
		Status:     "503 Service Unavailable",
		Header:     http.Header{},
	}
	if e := NewHTTPError(resp); e.RetryAfter != 0 {
		t.Errorf("missing header RetryAfter = %v, want 0", e.RetryAfter)
	}
}

func TestOffline(t *testing.T) {
	e := Offline()
	if e.Kind != KindConnection || e.Retryable {
		t.Errorf("Offline() = %+v, want non-retryable connection error", e)
	}
}
