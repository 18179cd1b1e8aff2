package fault

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
)

// defaultRetryAfter is applied to rate-limited failures whose response did
// not carry a usable Retry-After header.
const defaultRetryAfter = 30 * time.Second

// Classify maps an arbitrary failure into the closed taxonomy. First match
// wins: cancellation, then transport-level failures, then timeouts, then HTTP
// status codes, then the unknown fallback. Classifying an already classified
// error returns it unchanged, and a nil error classifies to nil.
//
// Cancellation is deliberately non-retryable so a caller abandoning a request
// never triggers another attempt, and Unknown is deliberately non-retryable
// so unclassifiable failures fail fast instead of consuming the retry budget.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.Canceled) {
		return &Error{
			Kind:    KindCancelled,
			Message: "operation cancelled by caller",
			Cause:   err,
		}
	}

	if isTransportFailure(err) {
		return &Error{
			Kind:      KindConnection,
			Retryable: true,
			Message:   "transport failure",
			Cause:     err,
		}
	}

	if isTimeout(err) {
		return &Error{
			Kind:      KindTimeout,
			Retryable: true,
			Message:   "operation timed out",
			Cause:     err,
		}
	}

	// Remaining net.Error values (neither a known transport signal nor a
	// timeout) still indicate a broken link.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{
			Kind:      KindConnection,
			Retryable: true,
			Message:   "network error",
			Cause:     err,
		}
	}

	if status, retryAfter, ok := httpStatus(err); ok {
		return classifyStatus(status, retryAfter, err)
	}

	return &Error{
		Kind:    KindUnknown,
		Message: "unclassified failure",
		Cause:   err,
	}
}

func isTransportFailure(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.ENETDOWN) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	// A tripped breaker is a connection-level refusal; a half-open probe on a
	// later attempt may succeed, so it stays retryable.
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}

	return hasAny(err.Error(),
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
	)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

func httpStatus(err error) (status int, retryAfter time.Duration, ok bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, httpErr.RetryAfter, true
	}

	var coder statusCoder
	if errors.As(err, &coder) && coder.StatusCode() > 0 {
		return coder.StatusCode(), 0, true
	}

	return 0, 0, false
}

func classifyStatus(status int, retryAfter time.Duration, cause error) *Error {
	switch {
	case status == http.StatusUnauthorized:
		return &Error{Kind: KindAuthFailure, Message: "upstream rejected credentials", Cause: cause}
	case status == http.StatusForbidden:
		return &Error{Kind: KindForbidden, Message: "upstream denied access", Cause: cause}
	case status == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Message: "upstream resource not found", Cause: cause}
	case status == http.StatusUnprocessableEntity:
		return &Error{Kind: KindInvalidRequest, Message: "upstream rejected request parameters", Cause: cause}
	case status == http.StatusTooManyRequests:
		if retryAfter <= 0 {
			retryAfter = defaultRetryAfter
		}
		return &Error{
			Kind:       KindRateLimited,
			Retryable:  true,
			RetryAfter: retryAfter,
			Message:    "rate limited by upstream",
			Cause:      cause,
		}
	case status >= http.StatusInternalServerError:
		return &Error{Kind: KindServerFault, Retryable: true, Message: "upstream server fault", Cause: cause}
	default:
		return &Error{Kind: KindUnknown, Message: "unexpected upstream status", Cause: cause}
	}
}

// hasAny reports whether s contains any of the substrings.
func hasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
