// gql-proxy exposes a rate-limited GraphQL client over a small HTTP API, so
// sidecar consumers share one budget and one cache per upstream target.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shoplens/gql-client/pkg/cache"
	"github.com/shoplens/gql-client/pkg/client"
	"github.com/shoplens/gql-client/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		fatalLogger := logging.NewLogger("gql-proxy")
		fatalLogger.Fatal().Err(err).Msg("Configuration error")
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Observability.LogLevel),
		Pretty: cfg.Observability.Pretty,
	}).With().Str("component", "gql-proxy").Logger()

	clientCfg := cfg.clientConfig()
	clientCfg.Logger = logging.NewLogger("gql-client")

	if cfg.Cache.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_addr", cfg.Cache.RedisAddr).Msg("Redis unavailable")
		}
		clientCfg.Cache = cache.NewRedisStore(rdb)
		logger.Info().Str("redis_addr", cfg.Cache.RedisAddr).Msg("Using Redis cache backend")
	}

	gql, err := client.New(clientCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create client")
	}

	router := newRouter(gql, cfg.Observability.PrometheusPath)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
	}

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("endpoint", cfg.API.Endpoint).
		Msg("Starting gql-proxy")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// queryRequest is the proxy's wire format for POST /query.
type queryRequest struct {
	Query     string               `json:"query"`
	Variables map[string]any       `json:"variables,omitempty"`
	Options   *client.QueryOptions `json:"options,omitempty"`
}

func newRouter(gql *client.Client, prometheusPath string) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if prometheusPath != "" {
		router.Handle(prometheusPath, promhttp.Handler())
	}

	router.Post("/query", queryHandler(gql))

	router.Get("/ratelimit", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, gql.RateLimitState())
	})

	router.Delete("/cache", func(w http.ResponseWriter, r *http.Request) {
		if err := gql.ClearCache(r.Context()); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return router
}

func queryHandler(gql *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Query == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
			return
		}

		result, err := gql.Query(r.Context(), req.Query, req.Variables, req.Options)
		if err != nil {
			writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"data":       json.RawMessage(result.Data),
			"from_cache": result.FromCache,
			"attempts":   result.Attempts,
		})
	}
}

// statusForError maps client failures to proxy status codes. Admission
// control failures become 503 so callers back off locally.
func statusForError(err error) int {
	if errors.Is(err, client.ErrQueueFull) || errors.Is(err, client.ErrAcquireTimeout) {
		return http.StatusServiceUnavailable
	}

	var queryErr *client.QueryError
	if errors.As(err, &queryErr) {
		switch queryErr.Classification.Kind {
		case client.KindAuthentication:
			return http.StatusUnauthorized
		case client.KindAuthorization:
			return http.StatusForbidden
		case client.KindNotFound:
			return http.StatusNotFound
		case client.KindThrottled:
			return http.StatusTooManyRequests
		case client.KindQueryComplexity, client.KindUserError:
			return http.StatusBadRequest
		}
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
