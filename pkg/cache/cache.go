package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found or is expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Entry is one cached query result.
type Entry struct {
	// Data is the raw result payload.
	Data json.RawMessage `json:"data"`

	// StoredAt is when the entry was written.
	StoredAt time.Time `json:"stored_at"`

	// ExpiresAt is when the entry becomes stale.
	ExpiresAt time.Time `json:"expires_at"`
}

// NewEntry creates an entry valid for ttl from now.
func NewEntry(data json.RawMessage, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Data:      data,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the entry is past its TTL.
func (e *Entry) Expired() bool {
	return time.Now().After(e.ExpiresAt)
}

// TTL returns the remaining time until expiration, zero when expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Store is a TTL key-value store for query results. Expiry is enforced at
// read time; implementations must return ErrCacheMiss for absent and expired
// keys alike. Writes need only per-key atomicity (last write wins).
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
