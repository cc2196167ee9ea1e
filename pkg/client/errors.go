package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shoplens/gql-client/pkg/graphql"
	"github.com/shoplens/gql-client/pkg/ratelimit"
)

// Kind partitions failures into a closed taxonomy. Only KindThrottled,
// KindNetwork, and KindInternalServer are retryable.
type Kind string

const (
	KindThrottled       Kind = "throttled"
	KindAuthentication  Kind = "authentication"
	KindAuthorization   Kind = "authorization"
	KindNotFound        Kind = "not_found"
	KindQueryComplexity Kind = "query_complexity"
	KindUserError       Kind = "user_error"
	KindNetwork         Kind = "network"
	KindInternalServer  Kind = "internal_server"
	KindUnknown         Kind = "unknown"
)

// API-level error codes recognized by the classifier.
const (
	codeThrottled       = "THROTTLED"
	codeAccessDenied    = "ACCESS_DENIED"
	codeQueryComplexity = "QUERY_COMPLEXITY_EXCEEDED"
)

// Classification describes one failed attempt. It is created fresh per
// attempt and consumed immediately by the retry loop.
type Classification struct {
	Kind            Kind
	Retryable       bool
	Message         string
	SuggestedAction string
}

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during
	// a backoff wait.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrQueueFull mirrors the limiter's backpressure signal.
	ErrQueueFull = ratelimit.ErrQueueFull

	// ErrAcquireTimeout mirrors the limiter's queue timeout.
	ErrAcquireTimeout = ratelimit.ErrAcquireTimeout
)

// QueryError is the typed error surfaced to callers. It carries the final
// classification and the attempt count.
type QueryError struct {
	Classification Classification
	Attempts       int
	MaxRetries     int
	Err            error
}

func (e *QueryError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("query failed after %d attempts: %s: %s",
			e.Attempts, e.Classification.Kind, e.Classification.Message)
	}
	return fmt.Sprintf("query failed: %s: %s", e.Classification.Kind, e.Classification.Message)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Classify maps a raw failure to its classification. It is pure, total, and
// deterministic: any input, including nil, yields a classification.
//
// Structured API-level errors are examined first, then HTTP statuses, then
// connectivity failures, then a timeout hint in the message. Anything left
// is unknown and not retryable.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown, Retryable: false, Message: "no failure information"}
	}

	var apiErr *graphql.ErrorResponse
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	var httpErr *graphql.HTTPError
	if errors.As(err, &httpErr) {
		return classifyHTTPStatus(httpErr)
	}

	var connErr *graphql.ConnectivityError
	if errors.As(err, &connErr) {
		return Classification{
			Kind:      KindNetwork,
			Retryable: true,
			Message:   connErr.Error(),
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || containsTimeoutHint(err.Error()) {
		return Classification{
			Kind:      KindNetwork,
			Retryable: true,
			Message:   err.Error(),
		}
	}

	return Classification{Kind: KindUnknown, Retryable: false, Message: err.Error()}
}

func classifyAPIError(apiErr *graphql.ErrorResponse) Classification {
	switch {
	case apiErr.HasCode(codeThrottled):
		return Classification{
			Kind:            KindThrottled,
			Retryable:       true,
			Message:         apiErr.Error(),
			SuggestedAction: "reduce request rate or query cost",
		}
	case apiErr.HasCode(codeAccessDenied):
		return Classification{
			Kind:            KindAuthorization,
			Retryable:       false,
			Message:         apiErr.Error(),
			SuggestedAction: "verify the access token has the required scopes",
		}
	case apiErr.HasCode(codeQueryComplexity):
		return Classification{
			Kind:            KindQueryComplexity,
			Retryable:       false,
			Message:         apiErr.Error(),
			SuggestedAction: "split the query or request fewer fields",
		}
	default:
		return Classification{
			Kind:      KindUserError,
			Retryable: false,
			Message:   apiErr.Error(),
		}
	}
}

func classifyHTTPStatus(httpErr *graphql.HTTPError) Classification {
	switch {
	case httpErr.StatusCode == 401:
		return Classification{
			Kind:            KindAuthentication,
			Retryable:       false,
			Message:         httpErr.Error(),
			SuggestedAction: "check credentials",
		}
	case httpErr.StatusCode == 403:
		return Classification{
			Kind:            KindAuthorization,
			Retryable:       false,
			Message:         httpErr.Error(),
			SuggestedAction: "verify the access token has the required scopes",
		}
	case httpErr.StatusCode == 404:
		return Classification{
			Kind:      KindNotFound,
			Retryable: false,
			Message:   httpErr.Error(),
		}
	case httpErr.StatusCode == 429:
		return Classification{
			Kind:            KindThrottled,
			Retryable:       true,
			Message:         httpErr.Error(),
			SuggestedAction: "reduce request rate",
		}
	case httpErr.StatusCode >= 500:
		return Classification{
			Kind:      KindInternalServer,
			Retryable: true,
			Message:   httpErr.Error(),
		}
	default:
		return Classification{Kind: KindUnknown, Retryable: false, Message: httpErr.Error()}
	}
}

func containsTimeoutHint(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded")
}
