// Package cache provides TTL-based response caching for query results.
//
// Two backends implement the Store interface:
//
//   - MemoryStore: sharded in-memory map with lazy expiry at read time.
//     The default; each client owns a private instance, so cache state is
//     never shared between independent clients.
//   - RedisStore: Redis-backed, for callers that want the cache to survive
//     process restarts. TTL is enforced by Redis expiry and re-checked
//     against the entry's own ExpiresAt on read.
//
// Keys are deterministic hashes of (endpoint, query, variables), so
// identical logical requests always share an entry; see Key.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore()
//	key := cache.Key("https://api.example.com/graphql", query, variables)
//
//	entry, err := store.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from the API, then:
//		store.Set(ctx, key, cache.NewEntry(data, 5*time.Minute))
//	}
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - gqlclient_cache_hits_total{backend} - Cache hits
//   - gqlclient_cache_misses_total - Cache misses
//   - gqlclient_cache_sets_total{backend} - Cache writes
//   - gqlclient_cache_errors_total{operation} - Operation errors
package cache
