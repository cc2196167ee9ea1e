package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shoplens/gql-client/internal/testutil"
	"github.com/shoplens/gql-client/pkg/client"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
server:
  addr: ":9090"
observability:
  log_level: debug
  prometheus_path: /prom
api:
  endpoint: https://api.example.com/graphql
  token: secret
  request_cost: 2
rate_limit:
  capacity: 80
  refill_rate: 100
  refill_interval_ms: 1000
  max_queue_depth: 200
cache:
  ttl_ms: 60000
retry:
  max_retries: 5
  base_delay_ms: 100
  max_delay_ms: 10000
  jitter_ms: 50
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Observability.LogLevel)
	}
	if cfg.API.Endpoint != "https://api.example.com/graphql" {
		t.Errorf("Endpoint = %q", cfg.API.Endpoint)
	}
	if cfg.RateLimit.Capacity != 80 {
		t.Errorf("Capacity = %d, want 80", cfg.RateLimit.Capacity)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Backend = %q, want memory default", cfg.Cache.Backend)
	}

	clientCfg := cfg.clientConfig()
	if clientCfg.RequestCost != 2 {
		t.Errorf("RequestCost = %v, want 2", clientCfg.RequestCost)
	}
	if clientCfg.RateLimit.Capacity != 80 {
		t.Errorf("client Capacity = %d, want 80", clientCfg.RateLimit.Capacity)
	}
	if clientCfg.CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v, want 1m", clientCfg.CacheTTL)
	}
	if clientCfg.Retry.MaxRetries != 5 || clientCfg.Retry.BaseDelay != 100*time.Millisecond {
		t.Errorf("Retry = %+v", clientCfg.Retry)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("GQL_API_ENDPOINT", "https://api.example.com/graphql")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
	if cfg.Observability.PrometheusPath != "/metrics" {
		t.Errorf("PrometheusPath = %q, want /metrics", cfg.Observability.PrometheusPath)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
api:
  endpoint: https://file.example.com/graphql
  token: from-file
`)
	t.Setenv("GQL_PROXY_ADDR", ":7070")
	t.Setenv("GQL_API_ENDPOINT", "https://env.example.com/graphql")
	t.Setenv("GQL_API_TOKEN", "from-env")
	t.Setenv("GQL_REDIS_ADDR", "localhost:6379")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Addr != ":7070" {
		t.Errorf("Addr = %q, want env override :7070", cfg.Server.Addr)
	}
	if cfg.API.Endpoint != "https://env.example.com/graphql" {
		t.Errorf("Endpoint = %q, want env override", cfg.API.Endpoint)
	}
	if cfg.API.Token != "from-env" {
		t.Errorf("Token = %q, want from-env", cfg.API.Token)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("Cache = %+v, want redis backend from env", cfg.Cache)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing endpoint",
			content: `server: {addr: ":8080"}`,
			wantErr: "api.endpoint",
		},
		{
			name: "redis backend without addr",
			content: `
api:
  endpoint: https://api.example.com/graphql
cache:
  backend: redis
`,
			wantErr: "redis_addr",
		},
		{
			name:    "malformed yaml",
			content: "api: [not a map",
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			_, err := LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadConfig error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"queue full", client.ErrQueueFull, http.StatusServiceUnavailable},
		{"acquire timeout", client.ErrAcquireTimeout, http.StatusServiceUnavailable},
		{
			"authentication",
			&client.QueryError{Classification: client.Classification{Kind: client.KindAuthentication}},
			http.StatusUnauthorized,
		},
		{
			"authorization",
			&client.QueryError{Classification: client.Classification{Kind: client.KindAuthorization}},
			http.StatusForbidden,
		},
		{
			"not found",
			&client.QueryError{Classification: client.Classification{Kind: client.KindNotFound}},
			http.StatusNotFound,
		},
		{
			"throttled",
			&client.QueryError{Classification: client.Classification{Kind: client.KindThrottled}},
			http.StatusTooManyRequests,
		},
		{
			"user error",
			&client.QueryError{Classification: client.Classification{Kind: client.KindUserError}},
			http.StatusBadRequest,
		},
		{
			"query complexity",
			&client.QueryError{Classification: client.Classification{Kind: client.KindQueryComplexity}},
			http.StatusBadRequest,
		},
		{
			"network",
			&client.QueryError{Classification: client.Classification{Kind: client.KindNetwork}},
			http.StatusBadGateway,
		},
		{"opaque", errors.New("boom"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError = %d, want %d", got, tt.want)
			}
		})
	}
}

func newProxyRouter(t *testing.T) (*testutil.MockAPI, http.Handler) {
	t.Helper()

	mock := testutil.NewMockAPI()
	t.Cleanup(mock.Close)

	cfg := client.DefaultConfig(mock.URL(), "test-token")
	cfg.Logger = zerolog.Nop()
	cfg.Retry = client.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	gql, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return mock, newRouter(gql, "/metrics")
}

func TestRouter_Health(t *testing.T) {
	_, router := newProxyRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	_, router := newProxyRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gqlclient_") {
		t.Error("metrics output missing gqlclient_ series")
	}
}

func TestRouter_Query(t *testing.T) {
	mock, router := newProxyRouter(t)

	body := strings.NewReader(`{"query":"query { status }","variables":{"id":"1"}}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data      json.RawMessage `json:"data"`
		FromCache bool            `json:"from_cache"`
		Attempts  int             `json:"attempts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if resp.Attempts != 1 || resp.FromCache {
		t.Errorf("resp = %+v, want one fresh attempt", resp)
	}
	if mock.LastRequest() == nil || mock.LastRequest().Query != "query { status }" {
		t.Errorf("upstream request = %+v", mock.LastRequest())
	}
}

func TestRouter_QueryValidation(t *testing.T) {
	_, router := newProxyRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"missing query", `{"variables":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRouter_QueryUpstreamError(t *testing.T) {
	mock, router := newProxyRouter(t)
	mock.Script(testutil.NewHTTPErrorResponse(401))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"query { status }"}`)))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 mapped from authentication failure", rec.Code)
	}
}

func TestRouter_RateLimitState(t *testing.T) {
	_, router := newProxyRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ratelimit", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var state struct {
		Tokens   float64 `json:"Tokens"`
		Capacity float64 `json:"Capacity"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if state.Capacity != 40 {
		t.Errorf("Capacity = %v, want the default 40", state.Capacity)
	}
}

func TestRouter_CacheClear(t *testing.T) {
	mock, router := newProxyRouter(t)

	post := func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"query { status }"}`)))
		if rec.Code != http.StatusOK {
			t.Fatalf("query status = %d", rec.Code)
		}
	}

	post()
	post()
	if mock.RequestCount() != 1 {
		t.Fatalf("requests = %d, want 1 before cache clear", mock.RequestCount())
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/cache", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d, want 204", rec.Code)
	}

	post()
	if mock.RequestCount() != 2 {
		t.Errorf("requests = %d, want 2 after cache clear", mock.RequestCount())
	}
}
