// Package metrics documents the Prometheus metrics exported by the client.
// Metrics are defined in their respective packages (client, cache,
// ratelimit) via promauto to keep modularity and avoid circular imports;
// this package is the single reference for what exists.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer used by all packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limiter Metrics (pkg/ratelimit):
//   - gqlclient_ratelimit_acquires_total{outcome} (Counter): Budget
//     acquisitions by outcome (fast, queued, timeout, queue_full, cancelled)
//   - gqlclient_ratelimit_wait_seconds (Histogram): Time spent queued
//   - gqlclient_ratelimit_tokens (Gauge): Tokens after the latest operation
//
// Cache Metrics (pkg/cache):
//   - gqlclient_cache_hits_total{backend} (Counter): Hits by backend
//   - gqlclient_cache_misses_total (Counter): Misses
//   - gqlclient_cache_sets_total{backend} (Counter): Writes by backend
//   - gqlclient_cache_errors_total{operation} (Counter): Operation errors
//
// Request Metrics (pkg/client):
//   - gqlclient_requests_total{outcome} (Counter): Queries by outcome
//     (success, cache_hit, shared, error)
//   - gqlclient_request_duration_seconds (Histogram): Query duration
//   - gqlclient_errors_total{kind} (Counter): Failed attempts by kind
//
// Retry Metrics (pkg/client):
//   - gqlclient_retries_total{kind} (Counter): Retry attempts by kind
//   - gqlclient_retry_backoff_seconds{kind} (Histogram): Backoff durations
//   - gqlclient_retry_exhausted_total{kind} (Counter): Exhausted calls
//
// Example Prometheus Queries:
//
//   # Cache hit rate
//   sum(rate(gqlclient_cache_hits_total[5m])) /
//   (sum(rate(gqlclient_cache_hits_total[5m])) + sum(rate(gqlclient_cache_misses_total[5m])))
//
//   # Throttle pressure
//   rate(gqlclient_errors_total{kind="throttled"}[5m])
//
//   # P95 query latency
//   histogram_quantile(0.95, rate(gqlclient_request_duration_seconds_bucket[5m]))
//
//   # Backpressure rejections
//   rate(gqlclient_ratelimit_acquires_total{outcome="queue_full"}[5m])
