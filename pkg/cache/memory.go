package cache

import (
	"context"
	"hash/fnv"
	"sync"
)

const numShards = 16

// MemoryStore is a sharded in-memory store with lazy TTL expiry. It is the
// default backend; each client owns a private instance.
type MemoryStore struct {
	shards [numShards]*memoryShard
}

type memoryShard struct {
	mu    sync.RWMutex
	store map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &memoryShard{store: make(map[string]*Entry)}
	}
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%numShards]
}

// Get returns the entry for key, or ErrCacheMiss when absent or expired.
// Expired entries are deleted on the way out.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	shard := s.shard(key)

	shard.mu.RLock()
	entry, ok := shard.store[key]
	shard.mu.RUnlock()

	if !ok {
		cacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	if entry.Expired() {
		shard.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// replaced the expired entry.
		if current, ok := shard.store[key]; ok && current == entry {
			delete(shard.store, key)
		}
		shard.mu.Unlock()
		cacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	cacheHits.WithLabelValues("memory").Inc()
	return entry, nil
}

// Set stores the entry under key, replacing any previous value.
func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry) error {
	if entry == nil {
		return ErrInvalidEntry
	}

	shard := s.shard(key)
	shard.mu.Lock()
	shard.store[key] = entry
	shard.mu.Unlock()

	cacheSets.WithLabelValues("memory").Inc()
	return nil
}

// Delete removes the entry under key, if present.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	shard := s.shard(key)
	shard.mu.Lock()
	delete(shard.store, key)
	shard.mu.Unlock()
	return nil
}

// Clear drops every entry.
func (s *MemoryStore) Clear(_ context.Context) error {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*Entry)
		shard.mu.Unlock()
	}
	return nil
}

// Len returns the number of stored entries, counting expired ones that have
// not been lazily evicted yet.
func (s *MemoryStore) Len() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		n += len(shard.store)
		shard.mu.RUnlock()
	}
	return n
}
