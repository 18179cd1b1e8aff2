package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/corvid-labs/weathervane/internal/fault"
)

// newBreaker builds the per-provider circuit breaker. Repeated transport
// failures or upstream faults open it; while open, calls fail immediately
// and classification treats them as connection problems.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doRequest executes a single HTTP request through the circuit breaker.
// Responses outside 2xx become *fault.HTTPError so the classifier sees the
// real status and any Retry-After header. Retrying is the caller's concern;
// exactly one request is sent per call.
func doRequest(ctx context.Context, client *http.Client, cb *gobreaker.CircuitBreaker, req *http.Request) (*http.Response, error) {
	result, err := cb.Execute(func() (interface{}, error) {
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			httpErr := fault.NewHTTPError(resp)
			resp.Body.Close()
			return nil, httpErr
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return resp, nil
}
