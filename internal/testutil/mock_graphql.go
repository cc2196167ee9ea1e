// Package testutil provides testing utilities for the GraphQL client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior of the mock API for one request.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock GraphQL server. Responses are served from a
// script (one per request, last one repeating) or a custom handler.
type MockAPI struct {
	server *httptest.Server

	mu           sync.Mutex
	script       []MockResponse
	handler      func(w http.ResponseWriter, r *http.Request)
	requestCount int
	lastRequest  *RecordedRequest
}

// RecordedRequest captures one request the mock received.
type RecordedRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
	Header    http.Header    `json:"-"`
}

// NewMockAPI creates a mock server. With an empty script every request gets
// a healthy default response.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var recorded RecordedRequest
		_ = json.NewDecoder(r.Body).Decode(&recorded)
		recorded.Header = r.Header.Clone()

		mock.mu.Lock()
		mock.requestCount++
		mock.lastRequest = &recorded
		handler := mock.handler
		var resp MockResponse
		hasResp := false
		if handler == nil {
			if len(mock.script) > 0 {
				resp = mock.script[0]
				if len(mock.script) > 1 {
					mock.script = mock.script[1:]
				}
				hasResp = true
			}
		}
		mock.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}
		if !hasResp {
			resp = NewDataResponse(`{"status":"ok"}`)
		}

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			fmt.Fprint(w, resp.Body)
		}
	}))

	return mock
}

// URL returns the mock endpoint URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Script sets the response sequence. The last response repeats once the
// script is exhausted.
func (m *MockAPI) Script(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = responses
	m.handler = nil
}

// SetHandler installs a custom handler, bypassing the script.
func (m *MockAPI) SetHandler(handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// RequestCount returns the number of requests received.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// LastRequest returns the most recently received request, or nil.
func (m *MockAPI) LastRequest() *RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// Reset clears the script and tracking state.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = nil
	m.handler = nil
	m.requestCount = 0
	m.lastRequest = nil
}

// NewDataResponse creates a 200 response with the given data payload and
// healthy rate-limit feedback.
func NewDataResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"data":%s}`, data),
		Headers: map[string]string{
			"X-RateLimit-Available": "39",
			"X-RateLimit-Maximum":   "40",
		},
	}
}

// NewCostedResponse creates a 200 response carrying a cost extensions block
// with the given throttle status.
func NewCostedResponse(data string, requested, actual, available, maximum, restoreRate float64) MockResponse {
	body := fmt.Sprintf(
		`{"data":%s,"extensions":{"cost":{"requestedQueryCost":%g,"actualQueryCost":%g,"throttleStatus":{"maximumAvailable":%g,"currentlyAvailable":%g,"restoreRate":%g}}}}`,
		data, requested, actual, maximum, available, restoreRate)
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
	}
}

// NewThrottledResponse creates a 200 response whose body carries a THROTTLED
// API error, the shape the API uses for cost-based throttling.
func NewThrottledResponse(retryAfterSeconds int) MockResponse {
	headers := map[string]string{}
	if retryAfterSeconds > 0 {
		headers["Retry-After"] = fmt.Sprintf("%d", retryAfterSeconds)
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}]}`,
		Headers:    headers,
	}
}

// NewErrorCodeResponse creates a 200 response carrying one structured API
// error with the given code.
func NewErrorCodeResponse(code, message string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"errors":[{"message":%q,"extensions":{"code":%q}}]}`, message, code),
	}
}

// NewHTTPErrorResponse creates a plain HTTP error response.
func NewHTTPErrorResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       fmt.Sprintf(`{"error":"status %d"}`, status),
	}
}

// NewRateLimitedResponse creates a 429 with a Retry-After hint.
func NewRateLimitedResponse(retryAfterSeconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":"rate limited"}`,
		Headers: map[string]string{
			"Retry-After": fmt.Sprintf("%d", retryAfterSeconds),
		},
	}
}
