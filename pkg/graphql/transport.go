package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Rate-limit feedback headers. The API reports remaining and maximum bucket
// capacity on every response; Retry-After accompanies 429s.
const (
	HeaderRateLimitAvailable = "X-RateLimit-Available"
	HeaderRateLimitMaximum   = "X-RateLimit-Maximum"
	HeaderRetryAfter         = "Retry-After"
)

// HTTPError is a transport failure carrying an HTTP status. It is one of the
// three failure shapes the executor classifies over.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte

	// RetryAfter is the parsed Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("graphql: http status %d (%s)", e.StatusCode, e.Status)
}

// ConnectivityError is a transport failure before any HTTP status was
// received (DNS, connect, TLS, timeout). It is one of the three failure
// shapes the executor classifies over.
type ConnectivityError struct {
	Message string
	Err     error
}

func (e *ConnectivityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("graphql: connectivity: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("graphql: connectivity: %s", e.Message)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Transport performs exactly one network round trip per Invoke call.
// Cancellation and deadlines arrive through the context.
type Transport interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// HTTPTransport sends GraphQL operations as JSON POST requests.
type HTTPTransport struct {
	// Endpoint is the full URL of the GraphQL endpoint.
	Endpoint string

	// Token is sent as the access token header when non-empty.
	Token string

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// NewHTTPTransport creates a transport for the given endpoint.
func NewHTTPTransport(endpoint, token string, logger zerolog.Logger) *HTTPTransport {
	return &HTTPTransport{
		Endpoint: endpoint,
		Token:    token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Logger: logger,
	}
}

// wireResponse is the JSON shape of a GraphQL response body.
type wireResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []wireError     `json:"errors"`
	Ext    *wireExtensions `json:"extensions"`
}

type wireError struct {
	Message    string `json:"message"`
	Path       []any  `json:"path"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type wireExtensions struct {
	Cost *CostInfo `json:"cost"`
}

// Invoke performs one round trip. It returns *HTTPError for non-2xx
// statuses, *ConnectivityError for failures below HTTP, and a *Response
// (possibly carrying API-level errors) otherwise.
func (t *HTTPTransport) Invoke(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if t.Token != "" {
		httpReq.Header.Set("X-Access-Token", t.Token)
	}

	httpResp, err := t.HTTPClient.Do(httpReq)
	if err != nil {
		// Context errors keep their identity so callers can detect
		// cancellation; everything else is a connectivity failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ConnectivityError{Message: "request failed", Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &ConnectivityError{Message: "read response body", Err: err}
	}

	retryAfter := parseRetryAfter(httpResp.Header.Get(HeaderRetryAfter))

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		t.Logger.Debug().
			Int("status", httpResp.StatusCode).
			Dur("retry_after", retryAfter).
			Msg("Transport returned error status")
		return nil, &HTTPError{
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Body:       body,
			RetryAfter: retryAfter,
		}
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &ConnectivityError{Message: "decode response body", Err: err}
	}

	resp := &Response{
		Data:       wire.Data,
		Cost:       nil,
		RateLimit:  parseRateLimitHeaders(httpResp.Header),
		RetryAfter: retryAfter,
	}
	if wire.Ext != nil {
		resp.Cost = wire.Ext.Cost
	}
	for _, we := range wire.Errors {
		resp.Errors = append(resp.Errors, APIError{
			Message: we.Message,
			Code:    we.Extensions.Code,
			Path:    pathStrings(we.Path),
		})
	}

	return resp, nil
}

// parseRateLimitHeaders extracts bucket feedback from response headers.
func parseRateLimitHeaders(headers http.Header) RateLimitInfo {
	availStr := headers.Get(HeaderRateLimitAvailable)
	maxStr := headers.Get(HeaderRateLimitMaximum)
	if availStr == "" || maxStr == "" {
		return RateLimitInfo{}
	}

	avail, err := strconv.ParseFloat(availStr, 64)
	if err != nil {
		return RateLimitInfo{}
	}
	maximum, err := strconv.ParseFloat(maxStr, 64)
	if err != nil {
		return RateLimitInfo{}
	}

	return RateLimitInfo{Available: avail, Maximum: maximum, Present: true}
}

// parseRetryAfter parses a Retry-After value in either delay-seconds or
// HTTP-date form. The result is capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds <= 0 {
			return 0
		}
		delay := time.Duration(seconds) * time.Second
		if delay > time.Hour {
			delay = time.Hour
		}
		return delay
	}

	if at, err := http.ParseTime(value); err == nil {
		delay := time.Until(at)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}

func pathStrings(path []any) []string {
	if len(path) == 0 {
		return nil
	}
	out := make([]string, 0, len(path))
	for _, p := range path {
		out = append(out, fmt.Sprint(p))
	}
	return out
}
