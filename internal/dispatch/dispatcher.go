package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/mentionscan/internal/config"
	"github.com/nao1215/mentionscan/internal/model"
)

// Resolver resolves one query to a count. Implementations must be safe
// for concurrent use and must express failure through the returned
// Count's Unavailable flag rather than panicking or blocking forever.
type Resolver interface {
	Resolve(ctx context.Context, query model.Query) model.Count
}

// Progress is invoked after each query resolves. completed counts
// finished queries including this one. Calls are serialized by the
// dispatcher, so implementations need no locking of their own.
type Progress func(completed, total int, query model.Query, count model.Count)

// Dispatcher runs roster queries concurrently with a bounded worker
// count.
//
// Design decision: We use errgroup.SetLimit rather than a hand-rolled
// worker pool because it's simpler and errgroup releases slots correctly
// on every exit path. Each query gets its own goroutine, but only
// 'concurrency' of them run simultaneously.
type Dispatcher struct {
	// resolver resolves individual queries.
	resolver Resolver

	// concurrency is the maximum number of in-flight queries.
	concurrency int

	// logger is used for dispatch-level logging.
	logger *slog.Logger

	// mu serializes result writes and progress callbacks.
	mu sync.Mutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConcurrency sets the maximum number of in-flight queries. Values
// outside [1, config.MaxConcurrency] are clamped.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		switch {
		case n < 1:
			d.concurrency = 1
		case n > config.MaxConcurrency:
			d.concurrency = config.MaxConcurrency
		default:
			d.concurrency = n
		}
	}
}

// WithLogger sets a custom logger for dispatch processing.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a Dispatcher around the given resolver.
func NewDispatcher(resolver Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver:    resolver,
		concurrency: config.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Dispatch resolves all queries and returns their counts in input order.
//
// Every query runs to completion, success or not, before Dispatch
// returns; a query that could not be resolved occupies its slot as an
// unavailable count. The returned error is non-nil only when the context
// was cancelled, in which case queries not yet started are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, queries []model.Query) ([]model.Count, error) {
	return d.dispatch(ctx, queries, nil)
}

// DispatchWithProgress behaves like Dispatch and additionally reports
// each completed query through progress.
func (d *Dispatcher) DispatchWithProgress(ctx context.Context, queries []model.Query, progress Progress) ([]model.Count, error) {
	return d.dispatch(ctx, queries, progress)
}

func (d *Dispatcher) dispatch(ctx context.Context, queries []model.Query, progress Progress) ([]model.Count, error) {
	if len(queries) == 0 {
		return []model.Count{}, nil
	}

	d.logger.Info("dispatching queries",
		"total", len(queries),
		"concurrency", d.concurrency,
	)
	startTime := time.Now()

	// Pre-allocate results so output order matches input order no matter
	// which worker finishes first.
	counts := make([]model.Count, len(queries))
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i, query := range queries {
		g.Go(func() error {
			// Don't start new work once the run is cancelled.
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			count := d.resolver.Resolve(gctx, query)

			d.mu.Lock()
			counts[i] = count
			completed++
			done := completed
			if progress != nil {
				progress(done, len(queries), query, count)
			}
			d.mu.Unlock()

			if count.Unavailable {
				d.logger.Warn("query unresolved",
					"subject", query.Subject.Handle(),
					"reason", count.Reason,
					"attempts", count.Attempts,
				)
			} else {
				d.logger.Debug("query resolved",
					"subject", query.Subject.Handle(),
					"count", count.Value,
					"source", string(count.Source),
				)
			}

			// Failures live in the count; returning an error here would
			// cancel sibling queries.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return counts, fmt.Errorf("dispatch aborted: %w", err)
	}

	d.logger.Info("dispatch complete",
		"total", len(queries),
		"elapsed", time.Since(startTime).String(),
	)
	return counts, nil
}
