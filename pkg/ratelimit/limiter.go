package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limiter operations.
var (
	acquiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gqlclient_ratelimit_acquires_total",
		Help: "Total budget acquisitions by outcome (fast, queued, timeout, queue_full, cancelled)",
	}, []string{"outcome"})

	acquireWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gqlclient_ratelimit_wait_seconds",
		Help:    "Time spent queued waiting for budget",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})

	tokensGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gqlclient_ratelimit_tokens",
		Help: "Tokens available after the most recent budget operation",
	})
)

// Errors returned by Acquire. Both are local admission-control decisions and
// must never be retried against the remote API.
var (
	// ErrQueueFull is returned when the waiting list is at capacity.
	ErrQueueFull = errors.New("ratelimit: queue full")

	// ErrAcquireTimeout is returned when a queued request is not served
	// within its timeout.
	ErrAcquireTimeout = errors.New("ratelimit: acquire timeout")
)

// Config holds limiter configuration.
type Config struct {
	// Capacity is the bucket size in tokens.
	Capacity int

	// RefillRate is the number of tokens restored per RefillInterval.
	RefillRate float64

	// RefillInterval is the accounting interval for RefillRate.
	RefillInterval time.Duration

	// MaxQueueDepth bounds the waiting list; Acquire fails fast with
	// ErrQueueFull beyond it. Zero means unbounded.
	MaxQueueDepth int

	Logger zerolog.Logger
}

// DefaultConfig returns a limiter configuration matching the API's
// documented default bucket (40 points, 50 restored per second).
func DefaultConfig() Config {
	return Config{
		Capacity:       40,
		RefillRate:     50,
		RefillInterval: 1000 * time.Millisecond,
		MaxQueueDepth:  100,
	}
}

// State is a read-only snapshot of the limiter, computed with a fresh refill
// at read time.
type State struct {
	Tokens         float64
	Capacity       float64
	QueuedRequests int
}

// Limiter owns one token bucket and one request queue. All budget mutation
// happens under a single mutex, and at most one dispatch goroutine drains
// the queue as the bucket refills.
type Limiter struct {
	mu          sync.Mutex
	bucket      *Bucket
	queue       *requestQueue
	dispatching bool
	nextID      uint64
	nextSeq     uint64
	logger      zerolog.Logger
	now         func() time.Time
}

// New creates a limiter with a full bucket.
func New(cfg Config) (*Limiter, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be > 0 (got %d)", cfg.Capacity)
	}
	if cfg.RefillRate <= 0 {
		return nil, fmt.Errorf("refill rate must be > 0 (got %v)", cfg.RefillRate)
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}

	now := time.Now
	return &Limiter{
		bucket: NewBucket(cfg.Capacity, cfg.RefillRate, cfg.RefillInterval, now()),
		queue:  newRequestQueue(cfg.MaxQueueDepth),
		logger: cfg.Logger,
		now:    now,
	}, nil
}

// Acquire obtains cost tokens at the given priority (lower is served first),
// failing with ErrAcquireTimeout after timeout or ErrQueueFull when the
// waiting list is at capacity. The fast path never blocks: when the refilled
// bucket covers the cost the deduction happens synchronously, bypassing any
// queued lower-priority callers by design.
func (l *Limiter) Acquire(ctx context.Context, cost float64, priority int, timeout time.Duration) error {
	if cost <= 0 {
		cost = 1
	}

	l.mu.Lock()
	l.bucket.Refill(l.now())

	if l.bucket.Take(cost) {
		tokensGauge.Set(l.bucket.Tokens())
		l.mu.Unlock()
		acquiresTotal.WithLabelValues("fast").Inc()
		return nil
	}

	if l.queue.full() {
		l.mu.Unlock()
		acquiresTotal.WithLabelValues("queue_full").Inc()
		l.logger.Warn().
			Int("queue_depth", l.queue.max).
			Msg("Budget queue full, rejecting request")
		return ErrQueueFull
	}

	l.nextID++
	l.nextSeq++
	w := &waiter{
		id:         l.nextID,
		priority:   priority,
		seq:        l.nextSeq,
		cost:       cost,
		enqueuedAt: l.now(),
		done:       make(chan acquireResult, 1),
	}
	l.queue.push(w)

	if !l.dispatching {
		l.dispatching = true
		go l.dispatch()
	}
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-w.done:
		acquireWaitSeconds.Observe(time.Since(w.enqueuedAt).Seconds())
		acquiresTotal.WithLabelValues("queued").Inc()
		return res.err
	case <-timer.C:
		if l.claim(w.id) {
			acquiresTotal.WithLabelValues("timeout").Inc()
			l.logger.Debug().
				Int("priority", priority).
				Dur("timeout", timeout).
				Msg("Queued request timed out waiting for budget")
			return ErrAcquireTimeout
		}
		// Lost the race: the dispatch loop resolved us between the timer
		// firing and the claim. The tokens are spent, so report success.
		res := <-w.done
		acquiresTotal.WithLabelValues("queued").Inc()
		return res.err
	case <-ctx.Done():
		if l.claim(w.id) {
			acquiresTotal.WithLabelValues("cancelled").Inc()
			return ctx.Err()
		}
		res := <-w.done
		acquiresTotal.WithLabelValues("queued").Inc()
		return res.err
	}
}

// claim removes the waiter from the queue if it is still queued. Exactly one
// of claim and the dispatch loop's pop wins for any given waiter.
func (l *Limiter) claim(id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.remove(id)
}

// dispatch drains the queue as the bucket refills. Only one instance runs
// per limiter; it exits once the queue is empty.
func (l *Limiter) dispatch() {
	for {
		l.mu.Lock()
		l.bucket.Refill(l.now())

		if l.queue.len() == 0 {
			l.dispatching = false
			l.mu.Unlock()
			return
		}

		w := l.queue.peek()
		// A full bucket serves any request even when shrunken capacity no
		// longer covers the cost; the deduction then floors at zero.
		if l.bucket.Tokens() >= w.cost || l.bucket.Tokens() >= l.bucket.Capacity() {
			l.queue.pop()
			l.bucket.Deduct(w.cost)
			tokensGauge.Set(l.bucket.Tokens())
			w.done <- acquireResult{}
			l.mu.Unlock()
			continue
		}

		wait := l.bucket.TimeToNextToken()
		l.mu.Unlock()
		time.Sleep(wait)
	}
}

// UpdateLimits reconciles local accounting with server-reported truth after
// a successful call: capacity and refill rate are replaced atomically,
// available tokens are overwritten when the server reported them (pass a
// negative available to keep the local estimate), and tokens are clamped to
// the new capacity either way.
func (l *Limiter) UpdateLimits(available, capacity, refillRate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.bucket.Refill(l.now())
	l.bucket.SetLimits(capacity, refillRate)
	if available >= 0 {
		l.bucket.SetTokens(available)
	}
	tokensGauge.Set(l.bucket.Tokens())

	l.logger.Debug().
		Float64("tokens", l.bucket.Tokens()).
		Float64("capacity", l.bucket.Capacity()).
		Float64("refill_rate", refillRate).
		Msg("Rate limits reconciled from server feedback")
}

// State returns a fresh snapshot. The refill computation is the only
// mutation it performs.
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.bucket.Refill(l.now())
	return State{
		Tokens:         l.bucket.Tokens(),
		Capacity:       l.bucket.Capacity(),
		QueuedRequests: l.queue.len(),
	}
}
