// Package client provides the resilient GraphQL API client: response
// caching, cost-based rate limiting, and classification-driven retries.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shoplens/gql-client/pkg/cache"
	"github.com/shoplens/gql-client/pkg/graphql"
	"github.com/shoplens/gql-client/pkg/ratelimit"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gqlclient_requests_total",
		Help: "Total queries by outcome (success, cache_hit, shared, error)",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gqlclient_request_duration_seconds",
		Help:    "Query duration in seconds, cache hits included",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gqlclient_errors_total",
		Help: "Total failed attempts by classification kind",
	}, []string{"kind"})
)

// Config holds the client configuration.
type Config struct {
	// Endpoint is the GraphQL endpoint URL. Required unless Transport is
	// provided.
	Endpoint string

	// Token is the access token sent by the default HTTP transport.
	Token string

	// Transport overrides the default HTTP transport (used in tests and
	// for non-HTTP invocation).
	Transport graphql.Transport

	// RateLimit configures the local token bucket; live server feedback
	// reconciles it after each successful call.
	RateLimit ratelimit.Config

	// RequestCost is the flat local cost estimate charged per attempt.
	RequestCost float64

	// Cache overrides the default private in-memory store. Injecting a
	// RedisStore makes the cache survive restarts.
	Cache cache.Store

	// CacheTTL is the default freshness window for successful results.
	CacheTTL time.Duration

	// Retry configures the backoff policy.
	Retry RetryConfig

	Logger zerolog.Logger
}

// DefaultConfig returns a safe default configuration for the endpoint.
func DefaultConfig(endpoint, token string) Config {
	return Config{
		Endpoint:    endpoint,
		Token:       token,
		RateLimit:   ratelimit.DefaultConfig(),
		RequestCost: 1,
		CacheTTL:    DefaultCacheTTL,
		Retry:       DefaultRetryConfig(),
		Logger:      log.With().Str("component", "gql-client").Logger(),
	}
}

// Result is the outcome of one successful logical call.
type Result struct {
	// Data is the raw GraphQL data payload.
	Data json.RawMessage

	// FromCache reports whether the result was served without a network
	// round trip.
	FromCache bool

	// Shared reports whether the result came from a coalesced concurrent
	// execution of the same query.
	Shared bool

	// Attempts is the number of network attempts made (zero for cache
	// hits).
	Attempts int

	// Cost is the server-reported cost accounting, when present.
	Cost *graphql.CostInfo
}

// Client bundles one rate limiter, one response cache, and one transport,
// all bound to a single remote target and credential scope. Independent
// clients never share budget or cache state.
type Client struct {
	transport graphql.Transport
	limiter   *ratelimit.Limiter
	store     cache.Store
	inflight  *inflightGroup
	cfg       Config
	logger    zerolog.Logger
}

// New creates a client. Each client owns its limiter and cache; nothing is
// shared through package state.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" && cfg.Transport == nil {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.RateLimit.Capacity == 0 {
		cfg.RateLimit = ratelimit.DefaultConfig()
	}
	if cfg.RequestCost <= 0 {
		cfg.RequestCost = 1
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	def := DefaultRetryConfig()
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = def.MaxRetries
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = def.BaseDelay
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = def.MaxDelay
	}
	if cfg.Retry.Jitter < 0 {
		cfg.Retry.Jitter = def.Jitter
	}

	logger := cfg.Logger
	cfg.RateLimit.Logger = logger

	limiter, err := ratelimit.New(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = graphql.NewHTTPTransport(cfg.Endpoint, cfg.Token, logger)
	}

	store := cfg.Cache
	if store == nil {
		store = cache.NewMemoryStore()
	}

	return &Client{
		transport: transport,
		limiter:   limiter,
		store:     store,
		inflight:  newInflightGroup(),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Query executes one logical GraphQL call: cache lookup, budget acquisition,
// invocation, classification-driven retries with backoff, budget
// reconciliation from server feedback, and cache population on success.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, opts *QueryOptions) (*Result, error) {
	resolved := opts.withDefaults(c.cfg)

	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	key := resolved.CacheKey
	if key == "" {
		key = cache.Key(c.cfg.Endpoint, query, variables)
	}

	// Cache is consulted before spending rate budget, so hits are free
	// with respect to the limiter.
	if resolved.useCache() {
		if entry, err := c.store.Get(ctx, key); err == nil {
			c.logger.Debug().Str("cache_key", key).Msg("Cache hit")
			requestsTotal.WithLabelValues("cache_hit").Inc()
			return &Result{Data: entry.Data, FromCache: true}, nil
		} else if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("cache_key", key).Msg("Cache get error")
		}
	}

	exec := func() (*Result, error) {
		return c.execute(ctx, query, variables, resolved, key)
	}

	// Identical concurrent queries share one in-flight execution; identity
	// follows the cache key, so dedup applies only to cacheable calls.
	if !resolved.useCache() {
		return exec()
	}

	result, shared, err := c.inflight.Do(ctx, key, exec)
	if shared && result != nil {
		requestsTotal.WithLabelValues("shared").Inc()
		dup := *result
		dup.Shared = true
		return &dup, err
	}
	return result, err
}

// execute runs the attempt loop for one logical call.
func (c *Client) execute(ctx context.Context, query string, variables map[string]any, opts QueryOptions, key string) (*Result, error) {
	req := graphql.Request{Query: query, Variables: variables}

	var lastCls Classification
	attempts := 0

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		// Each attempt re-acquires budget; a retried call competes like a
		// new one and holds no reservation across the backoff sleep.
		if err := c.limiter.Acquire(ctx, c.cfg.RequestCost, opts.Priority, opts.Timeout); err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Budget acquisition failed")
			return nil, fmt.Errorf("acquire rate budget: %w", err)
		}

		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		resp, err := c.transport.Invoke(attemptCtx, req)
		cancel()

		failure := err
		if failure == nil {
			failure = resp.Err()
		}

		if failure == nil {
			c.reconcileBudget(resp)

			if opts.useCache() {
				entry := cache.NewEntry(resp.Data, opts.CacheTTL)
				if cacheErr := c.store.Set(ctx, key, entry); cacheErr != nil {
					c.logger.Warn().Err(cacheErr).Str("cache_key", key).Msg("Cache set error")
				}
			}

			if attempts > 1 {
				c.logger.Info().Int("attempts", attempts).Msg("Query succeeded after retry")
			}
			requestsTotal.WithLabelValues("success").Inc()
			return &Result{Data: resp.Data, Attempts: attempts, Cost: resp.Cost}, nil
		}

		lastCls = Classify(failure)
		errorsTotal.WithLabelValues(string(lastCls.Kind)).Inc()

		c.logger.Warn().
			Str("kind", string(lastCls.Kind)).
			Bool("retryable", lastCls.Retryable).
			Int("attempt", attempts).
			Int("max_attempts", opts.MaxRetries+1).
			Msg("Query attempt failed")

		// Terminal classifications surface immediately, regardless of the
		// remaining retry budget.
		if !lastCls.Retryable {
			requestsTotal.WithLabelValues("error").Inc()
			return nil, &QueryError{
				Classification: lastCls,
				Attempts:       attempts,
				MaxRetries:     opts.MaxRetries,
				Err:            failure,
			}
		}

		if attempt >= opts.MaxRetries {
			break
		}

		delay := backoffDelay(c.cfg.Retry, attempt, retryAfterHint(failure))
		retriesTotal.WithLabelValues(string(lastCls.Kind)).Inc()
		retryBackoffSeconds.WithLabelValues(string(lastCls.Kind)).Observe(delay.Seconds())

		c.logger.Debug().
			Str("kind", string(lastCls.Kind)).
			Int("attempt", attempts).
			Dur("backoff", delay).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(delay):
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastCls.Kind)).Inc()
	requestsTotal.WithLabelValues("error").Inc()
	return nil, &QueryError{
		Classification: lastCls,
		Attempts:       attempts,
		MaxRetries:     opts.MaxRetries,
		Err:            fmt.Errorf("%w after %d attempts: %s", ErrRetryExhausted, attempts, lastCls.Message),
	}
}

// reconcileBudget replaces local accounting with the authoritative values a
// successful response reported. Server-side cost of different operations may
// differ from the flat local estimate, so this keeps the bucket honest.
func (c *Client) reconcileBudget(resp *graphql.Response) {
	available, maximum, restorePerSec, ok := resp.Throttle()
	if !ok {
		return
	}

	refillRate := restorePerSec * c.cfg.RateLimit.RefillInterval.Seconds()
	c.limiter.UpdateLimits(available, maximum, refillRate)
}

// ClearCache drops all cached results for this client.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// RateLimitState returns a live snapshot of the limiter for diagnostics.
func (c *Client) RateLimitState() ratelimit.State {
	return c.limiter.State()
}
