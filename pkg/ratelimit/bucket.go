// Package ratelimit implements cost-based token-bucket admission control with
// a bounded priority queue for callers contending over the shared budget.
package ratelimit

import (
	"time"
)

// Bucket holds token-bucket accounting: available tokens, capacity, and the
// refill rate. It is pure accounting with no locking of its own; the owning
// Limiter serializes all access.
type Bucket struct {
	tokens         float64
	capacity       float64
	refillRate     float64 // tokens added per refill interval
	refillInterval time.Duration
	lastRefill     time.Time
}

// NewBucket creates a full bucket.
func NewBucket(capacity int, refillRate float64, refillInterval time.Duration, now time.Time) *Bucket {
	return &Bucket{
		tokens:         float64(capacity),
		capacity:       float64(capacity),
		refillRate:     refillRate,
		refillInterval: refillInterval,
		lastRefill:     now,
	}
}

// Refill credits tokens accrued since the last refill. Only whole tokens are
// credited, and lastRefill advances by exactly the elapsed time those tokens
// consumed, so fractional accrual is never lost to frequent small calls.
func (b *Bucket) Refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 || b.refillRate <= 0 || b.refillInterval <= 0 {
		return
	}

	accrued := elapsed.Seconds() / b.refillInterval.Seconds() * b.refillRate
	tokensToAdd := float64(int64(accrued))
	if tokensToAdd <= 0 {
		return
	}

	b.tokens += tokensToAdd
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}

	consumed := time.Duration(tokensToAdd / b.refillRate * float64(b.refillInterval))
	b.lastRefill = b.lastRefill.Add(consumed)
}

// Take deducts cost if enough tokens are available.
func (b *Bucket) Take(cost float64) bool {
	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}

// Deduct removes cost unconditionally, flooring at zero. Used by the
// dispatch loop when a queued request is served from a full bucket whose
// capacity shrank below the request's cost.
func (b *Bucket) Deduct(cost float64) {
	b.tokens -= cost
	if b.tokens < 0 {
		b.tokens = 0
	}
}

// Tokens returns the currently available tokens.
func (b *Bucket) Tokens() float64 { return b.tokens }

// Capacity returns the bucket capacity.
func (b *Bucket) Capacity() float64 { return b.capacity }

// SetLimits replaces capacity and refill rate with server-reported values
// and clamps tokens to the (possibly reduced) new capacity. Non-positive
// arguments leave the corresponding field unchanged.
func (b *Bucket) SetLimits(capacity, refillRate float64) {
	if capacity > 0 {
		b.capacity = capacity
	}
	if refillRate > 0 {
		b.refillRate = refillRate
	}
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

// SetTokens overwrites the token count, clamped to [0, capacity]. Used to
// reconcile local accounting with the server-reported remaining budget.
func (b *Bucket) SetTokens(tokens float64) {
	if tokens < 0 {
		tokens = 0
	}
	if tokens > b.capacity {
		tokens = b.capacity
	}
	b.tokens = tokens
}

// TimeToNextToken returns the theoretical wait until one more whole token
// accrues. The dispatch loop sleeps this long when the bucket is empty.
func (b *Bucket) TimeToNextToken() time.Duration {
	if b.refillRate <= 0 || b.refillInterval <= 0 {
		return b.refillInterval
	}
	return time.Duration(float64(b.refillInterval) / b.refillRate)
}
