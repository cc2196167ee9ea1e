// Package batch runs many GraphQL queries through one client with a bounded
// worker pool. The client's rate limiter remains the actual throttle; the
// pool only bounds in-process concurrency.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shoplens/gql-client/pkg/client"
)

// Config holds batch runner configuration.
type Config struct {
	// MaxConcurrency is the maximum number of queries in flight at once.
	MaxConcurrency int

	// Timeout bounds each individual query.
	Timeout time.Duration
}

// DefaultConfig returns safe defaults for a single rate-limited target.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		Timeout:        30 * time.Second,
	}
}

// QueryRunner is the part of the client the runner needs. *client.Client
// implements it.
type QueryRunner interface {
	Query(ctx context.Context, query string, variables map[string]any, opts *client.QueryOptions) (*client.Result, error)
}

// Query is one unit of work.
type Query struct {
	// ID identifies the query in the result map.
	ID string

	Text      string
	Variables map[string]any
	Options   *client.QueryOptions
}

// Outcome is the result of one query in the batch.
type Outcome struct {
	ID     string
	Result *client.Result
	Err    error
}

// Runner executes query batches against one client.
type Runner struct {
	runner QueryRunner
	config Config
}

// NewRunner creates a batch runner.
func NewRunner(runner QueryRunner, config Config) *Runner {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Runner{runner: runner, config: config}
}

// Run executes all queries and returns an outcome per query ID. Individual
// failures do not stop the batch; callers inspect each Outcome's Err.
func (r *Runner) Run(ctx context.Context, queries []Query) map[string]Outcome {
	start := time.Now()

	work := make(chan Query, len(queries))
	outcomes := make(chan Outcome, len(queries))

	for _, q := range queries {
		work <- q
	}
	close(work)

	workers := r.config.MaxConcurrency
	if workers > len(queries) {
		workers = len(queries)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go r.worker(ctx, work, outcomes, &wg)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make(map[string]Outcome, len(queries))
	failed := 0
	for outcome := range outcomes {
		if outcome.Err != nil {
			failed++
		}
		results[outcome.ID] = outcome
	}

	log.Info().
		Int("queries", len(queries)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return results
}

// worker drains the work channel until it closes or the context ends.
func (r *Runner) worker(ctx context.Context, work <-chan Query, outcomes chan<- Outcome, wg *sync.WaitGroup) {
	defer wg.Done()

	for q := range work {
		select {
		case <-ctx.Done():
			outcomes <- Outcome{ID: q.ID, Err: ctx.Err()}
			continue
		default:
		}

		queryCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		result, err := r.runner.Query(queryCtx, q.Text, q.Variables, q.Options)
		cancel()

		if err != nil {
			log.Warn().
				Err(err).
				Str("query_id", q.ID).
				Msg("Batch query failed")
		}

		outcomes <- Outcome{ID: q.ID, Result: result, Err: err}
	}
}
