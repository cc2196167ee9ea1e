package client

import (
	"errors"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shoplens/gql-client/pkg/graphql"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gqlclient_retries_total",
		Help: "Total number of retry attempts by classification kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gqlclient_retry_backoff_seconds",
		Help:    "Backoff duration before retries by classification kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gqlclient_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by classification kind",
	}, []string{"kind"})
)

// RetryConfig holds the backoff parameters for the retry loop.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt, so a
	// call makes at most MaxRetries+1 attempts.
	MaxRetries int

	// BaseDelay is the backoff for the first retry, doubled each attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential component.
	MaxDelay time.Duration

	// Jitter is the upper bound of the uniformly random addend applied on
	// top of the exponential component.
	Jitter time.Duration
}

// DefaultRetryConfig returns the default backoff parameters.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Jitter:     250 * time.Millisecond,
	}
}

// backoffDelay computes the wait before the next attempt:
// min(MaxDelay, 2^attempt * BaseDelay) plus a uniformly random addend in
// [0, Jitter), so concurrent retriers desynchronize. When the server sent a
// Retry-After hint the larger of hint and computed delay wins.
func backoffDelay(cfg RetryConfig, attempt int, hint time.Duration) time.Duration {
	if attempt > 30 {
		attempt = 30
	}

	delay := cfg.BaseDelay << uint(attempt)
	if delay <= 0 || delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(cfg.Jitter)))
	}

	if hint > delay {
		return hint
	}
	return delay
}

// retryAfterHint extracts the server's Retry-After hint from a failure, or
// zero when none was sent.
func retryAfterHint(err error) time.Duration {
	var apiErr *graphql.ErrorResponse
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}

	var httpErr *graphql.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.RetryAfter
	}

	return 0
}
