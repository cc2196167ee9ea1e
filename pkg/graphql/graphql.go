// Package graphql defines the transport boundary to the remote GraphQL API:
// request/response types, the closed set of failure shapes, and the HTTP
// transport that performs a single round trip per invocation.
package graphql

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Request is a single GraphQL operation to execute against the API.
type Request struct {
	// Query is the GraphQL document.
	Query string `json:"query"`

	// Variables are the operation variables (may be nil).
	Variables map[string]any `json:"variables,omitempty"`

	// OperationName selects the operation when the document contains several.
	OperationName string `json:"operationName,omitempty"`
}

// APIError is one structured error element returned in the response body.
type APIError struct {
	// Message is the human-readable error text.
	Message string `json:"message"`

	// Code is the machine-readable error code from the extensions block
	// (e.g. "THROTTLED", "ACCESS_DENIED", "QUERY_COMPLEXITY_EXCEEDED").
	Code string `json:"code,omitempty"`

	// Path locates the failing field, when the API reports one.
	Path []string `json:"path,omitempty"`
}

func (e APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// ErrorResponse wraps the structured API-level errors of one response.
// It is one of the three failure shapes the executor classifies over.
type ErrorResponse struct {
	Errors []APIError

	// RetryAfter is the server's retry hint for throttled responses, zero
	// when the server did not send one.
	RetryAfter time.Duration
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) == 0 {
		return "graphql: empty error response"
	}
	msgs := make([]string, len(e.Errors))
	for i, apiErr := range e.Errors {
		msgs[i] = apiErr.Error()
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// HasCode reports whether any error element carries the given code.
func (e *ErrorResponse) HasCode(code string) bool {
	for _, apiErr := range e.Errors {
		if apiErr.Code == code {
			return true
		}
	}
	return false
}

// ThrottleStatus is the server's authoritative view of the caller's
// rate-limit bucket, reported in the extensions.cost block.
type ThrottleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"` // tokens per second
}

// CostInfo is the per-request cost accounting from the extensions block.
type CostInfo struct {
	RequestedQueryCost float64         `json:"requestedQueryCost"`
	ActualQueryCost    float64         `json:"actualQueryCost"`
	ThrottleStatus     *ThrottleStatus `json:"throttleStatus,omitempty"`
}

// RateLimitInfo is the rate-limit feedback parsed from response headers.
type RateLimitInfo struct {
	Available float64
	Maximum   float64
	Present   bool
}

// Response is the outcome of one successful round trip. A response may still
// carry API-level errors; Err exposes them as an *ErrorResponse.
type Response struct {
	Data      json.RawMessage
	Errors    []APIError
	Cost      *CostInfo
	RateLimit RateLimitInfo

	// RetryAfter is the parsed Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

// Err returns the structured API errors as an error value, or nil when the
// response carries none.
func (r *Response) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &ErrorResponse{Errors: r.Errors, RetryAfter: r.RetryAfter}
}

// Throttle merges header and extensions feedback into one view. Extensions
// win when both are present since they carry the restore rate.
func (r *Response) Throttle() (available, maximum, restoreRate float64, ok bool) {
	if r.Cost != nil && r.Cost.ThrottleStatus != nil {
		ts := r.Cost.ThrottleStatus
		return ts.CurrentlyAvailable, ts.MaximumAvailable, ts.RestoreRate, true
	}
	if r.RateLimit.Present {
		return r.RateLimit.Available, r.RateLimit.Maximum, 0, true
	}
	return 0, 0, 0, false
}
