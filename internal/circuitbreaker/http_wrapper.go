package circuitbreaker

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// HTTPWrapper wraps an http.Client with a circuit breaker. 5xx responses are
// counted as breaker failures; 4xx do not trip the breaker.
type HTTPWrapper struct {
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger
}

// NewHTTPWrapper creates a breaker-wrapped HTTP client for a named upstream.
func NewHTTPWrapper(client *http.Client, name string, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &HTTPWrapper{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(settings),
		name:   name,
		logger: logger,
	}
}

// Do executes an HTTP request through the circuit breaker.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	out, err := hw.cb.Execute(func() (interface{}, error) {
		resp, err := hw.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			// Count the failure but hand the response back to the caller.
			return resp, &httpStatusError{code: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		if _, ok := err.(*httpStatusError); ok {
			return out.(*http.Response), nil
		}
		return nil, err
	}
	return out.(*http.Response), nil
}

// State exposes the underlying breaker state for health reporting.
func (hw *HTTPWrapper) State() gobreaker.State { return hw.cb.State() }

// httpStatusError marks 5xx responses for breaker accounting
type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }
