package runner

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBatchSize is the number of requests between accumulator flushes.
const DefaultBatchSize = 10

// Outcome describes one completed request.
type Outcome struct {
	Status  int
	Latency time.Duration
	Err     error // non-nil marks the request as an error
}

// Requester abstracts executing a single request.
type Requester interface {
	Do(ctx context.Context) Outcome
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(ctx context.Context) Outcome

func (f RequesterFunc) Do(ctx context.Context) Outcome { return f(ctx) }

// Options configure a Worker.
type Options struct {
	Concurrency    int                         // number of request cycles
	BatchSize      int                         // requests per Result flush
	RatePerSecond  int                         // pacing across all cycles (0 means unlimited)
	Requester      Requester                   // request executor (required)
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	Logger         *slog.Logger
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst equal to rps to smooth pacing under concurrency.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}
