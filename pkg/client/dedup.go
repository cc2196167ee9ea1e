package client

import (
	"context"
	"sync"
)

// inflightCall is one in-flight execution shared between callers issuing the
// same logical query concurrently.
type inflightCall struct {
	result *Result
	err    error
	done   chan struct{}
}

// inflightGroup coalesces identical concurrent queries so only one spends
// rate budget; the rest wait for its outcome. Identity is the cache key.
type inflightGroup struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

func newInflightGroup() *inflightGroup {
	return &inflightGroup{calls: make(map[string]*inflightCall)}
}

// Do executes fn under key, or waits for an execution already in flight.
// The second return reports whether this caller shared another's result.
func (g *inflightGroup) Do(ctx context.Context, key string, fn func() (*Result, error)) (*Result, bool, error) {
	g.mu.Lock()
	if call, ok := g.calls[key]; ok {
		g.mu.Unlock()
		select {
		case <-call.done:
			return call.result, true, call.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	g.calls[key] = call
	g.mu.Unlock()

	call.result, call.err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(call.done)

	return call.result, false, call.err
}
