// Package batch provides parallel fetching of many paths through one
// speedcast client with a bounded worker pool. The client's own rate limiter
// still governs the aggregate request rate; the pool only bounds in-process
// concurrency.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/virtualheet/speedcast-api/pkg/client"
)

// Getter is the single-path fetch capability, satisfied by *client.Client.
type Getter interface {
	Get(ctx context.Context, path string, opts *client.RequestOptions) (*client.Response, error)
}

// Config holds fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel fetches.
	MaxConcurrency int

	// Options are applied to every fetch.
	Options *client.RequestOptions
}

// DefaultConfig returns a conservative default configuration.
func DefaultConfig() Config {
	return Config{MaxConcurrency: 8}
}

// Result is the outcome of fetching a single path.
type Result struct {
	Path     string
	Response *client.Response
	Err      error
}

// Fetcher fans a list of paths out over a worker pool.
type Fetcher struct {
	getter Getter
	config Config
}

// NewFetcher creates a batch fetcher.
func NewFetcher(getter Getter, config Config) *Fetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	return &Fetcher{getter: getter, config: config}
}

// FetchAll fetches every path and returns one Result per path, in input
// order. Individual failures are reported per path; FetchAll itself only
// fails when ctx is cancelled before all work is dispatched.
func (f *Fetcher) FetchAll(ctx context.Context, paths []string) ([]Result, error) {
	start := time.Now()
	results := make([]Result, len(paths))
	for i := range paths {
		// Pre-mark as not dispatched; workers overwrite on fetch. Entries
		// keep this error when ctx cancels before their job is handed out.
		results[i] = Result{Path: paths[i], Err: context.Canceled}
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := f.config.MaxConcurrency
	if workers > len(paths) {
		workers = len(paths)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				resp, err := f.getter.Get(ctx, paths[i], f.config.Options)
				results[i] = Result{Path: paths[i], Response: resp, Err: err}
			}
		}()
	}

	var dispatchErr error
dispatch:
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			dispatchErr = ctx.Err()
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Debug().
		Int("paths", len(paths)).
		Int("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("Batch fetch finished")

	return results, dispatchErr
}
