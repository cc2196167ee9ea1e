package client

import "time"

// Default values applied by QueryOptions when fields are left zero.
const (
	DefaultCacheTTL = 5 * time.Minute
	DefaultTimeout  = 30 * time.Second
	DefaultPriority = 10
)

// QueryOptions tune one logical call. The zero value means "use defaults";
// pass nil to Query for the same effect.
type QueryOptions struct {
	// UseCache consults the cache before spending rate budget and stores
	// successful results. Defaults to true.
	UseCache *bool

	// CacheTTL is how long a successful result stays fresh.
	CacheTTL time.Duration

	// MaxRetries overrides the client's retry budget for this call when
	// positive. Set NoRetries to disable retries entirely.
	MaxRetries int

	// NoRetries disables the retry loop for this call.
	NoRetries bool

	// Timeout bounds both the wait for rate budget and each network
	// attempt.
	Timeout time.Duration

	// Priority orders queued callers when budget is exhausted; lower
	// values are served first.
	Priority int

	// CacheKey overrides the derived deterministic key.
	CacheKey string
}

// withDefaults resolves zero fields against the client configuration.
func (o *QueryOptions) withDefaults(cfg Config) QueryOptions {
	resolved := QueryOptions{
		CacheTTL:   cfg.CacheTTL,
		MaxRetries: cfg.Retry.MaxRetries,
		Timeout:    DefaultTimeout,
		Priority:   DefaultPriority,
	}
	if o == nil {
		return resolved
	}

	resolved.CacheKey = o.CacheKey
	resolved.UseCache = o.UseCache
	if o.CacheTTL > 0 {
		resolved.CacheTTL = o.CacheTTL
	}
	if o.MaxRetries > 0 {
		resolved.MaxRetries = o.MaxRetries
	}
	if o.NoRetries {
		resolved.MaxRetries = 0
	}
	if o.Timeout > 0 {
		resolved.Timeout = o.Timeout
	}
	if o.Priority != 0 {
		resolved.Priority = o.Priority
	}
	return resolved
}

func (o QueryOptions) useCache() bool {
	if o.UseCache == nil {
		return true
	}
	return *o.UseCache
}

// Bool is a helper for the UseCache field.
func Bool(v bool) *bool { return &v }
