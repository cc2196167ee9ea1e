package client

import (
	"fmt"
	"testing"
	"time"

	"github.com/shoplens/gql-client/pkg/graphql"
)

func TestBackoffDelay(t *testing.T) {
	// Jitter is zero so delays are exact.
	cfg := RetryConfig{
		MaxRetries: 5,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
	}

	tests := []struct {
		name    string
		attempt int
		hint    time.Duration
		want    time.Duration
	}{
		{"first retry", 0, 0, 500 * time.Millisecond},
		{"second retry doubles", 1, 0, time.Second},
		{"third retry doubles again", 2, 0, 2 * time.Second},
		{"capped at max delay", 10, 0, 30 * time.Second},
		{"huge attempt stays capped", 40, 0, 30 * time.Second},
		{"smaller hint loses", 1, 200 * time.Millisecond, time.Second},
		{"larger hint wins", 1, 5 * time.Second, 5 * time.Second},
		{"hint above cap still wins", 2, time.Minute, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backoffDelay(cfg, tt.attempt, tt.hint); got != tt.want {
				t.Errorf("backoffDelay(attempt=%d, hint=%v) = %v, want %v", tt.attempt, tt.hint, got, tt.want)
			}
		})
	}
}

func TestBackoffDelay_Jitter(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  30 * time.Second,
		Jitter:    50 * time.Millisecond,
	}

	for i := 0; i < 100; i++ {
		got := backoffDelay(cfg, 0, 0)
		if got < 100*time.Millisecond || got >= 150*time.Millisecond {
			t.Fatalf("backoffDelay = %v, want in [100ms, 150ms)", got)
		}
	}
}

func TestRetryAfterHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{
			name: "api error with hint",
			err:  &graphql.ErrorResponse{RetryAfter: 3 * time.Second},
			want: 3 * time.Second,
		},
		{
			name: "http error with hint",
			err:  &graphql.HTTPError{StatusCode: 429, RetryAfter: 7 * time.Second},
			want: 7 * time.Second,
		},
		{
			name: "wrapped http error",
			err:  fmt.Errorf("invoke: %w", &graphql.HTTPError{StatusCode: 429, RetryAfter: time.Second}),
			want: time.Second,
		},
		{
			name: "no hint",
			err:  &graphql.HTTPError{StatusCode: 500},
			want: 0,
		},
		{
			name: "unrelated error",
			err:  fmt.Errorf("boom"),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryAfterHint(tt.err); got != tt.want {
				t.Errorf("retryAfterHint = %v, want %v", got, tt.want)
			}
		})
	}
}
