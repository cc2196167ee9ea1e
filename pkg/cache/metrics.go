package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqlclient_cache_hits_total",
			Help: "Total number of cache hits by backend",
		},
		[]string{"backend"}, // "memory", "redis"
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gqlclient_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	cacheSets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqlclient_cache_sets_total",
			Help: "Total number of cache writes by backend",
		},
		[]string{"backend"},
	)

	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqlclient_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "clear"
	)
)
