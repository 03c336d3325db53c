package vendors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
)

// BackoffConfig controls retry pacing for one vendor transport.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
	errCircuitOpen = errors.New("circuit breaker open")
)

// transport is the shared outbound path of every vendor client: retries with
// exponential backoff behind a per-vendor circuit breaker. The request is
// rebuilt on every attempt so time-derived parameters (signed hashes, signed
// query strings) stay fresh across retries.
type transport struct {
	client  *http.Client
	backoff BackoffConfig
	breaker *gobreaker.CircuitBreaker
}

func newTransport(client *http.Client, vendor string) transport {
	return transport{
		client: client,
		backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        vendor,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
	}
}

// do runs buildRequest until a 2xx response, exhausted retries or an open
// breaker. Non-2xx statuses are turned into errors before the breaker sees
// them, so rate limiting and server faults count against it.
func (t transport) do(ctx context.Context, buildRequest func() (*http.Request, error)) (*http.Response, error) {
	if t.client == nil {
		return nil, errors.New("http client not configured")
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}

		result, err := t.breaker.Execute(func() (interface{}, error) {
			resp, doErr := t.client.Do(req.WithContext(ctx))
			if doErr != nil {
				return nil, doErr
			}
			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				resp.Body.Close()
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				resp.Body.Close()
				return nil, errServerError
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}
			return resp, nil
		})
		if err == nil {
			return result.(*http.Response), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= t.backoff.MaxRetries {
			return nil, lastErr
		}

		delay := t.backoff.InitialInterval << attempt
		if t.backoff.MaxInterval > 0 && delay > t.backoff.MaxInterval {
			delay = t.backoff.MaxInterval
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// classifyTransport maps a transport error onto the failure taxonomy:
// status-code errors are vendor failures, everything else (connect, timeout,
// circuit open) counts as a network failure.
func classifyTransport(err error) airdata.FailureKind {
	if errors.Is(err, errRateLimited) || errors.Is(err, errServerError) || errors.Is(err, errUnexpected) {
		return airdata.FailureVendor
	}
	return airdata.FailureNetwork
}
