// Package runner provides the worker-side request engine for pipebench.
//
// A [Worker] runs inside each spawned process. It owns a fixed number of
// request cycles, each repeatedly executing its [Requester] and handing the
// [Outcome] to a single aggregator goroutine. The aggregator folds outcomes
// into the worker's accumulator and, every [Options.BatchSize] requests,
// sends a Result message to the coordinator and resets the accumulator.
//
// # Basic Usage
//
//	w := runner.New(runner.Options{
//		Concurrency: 10,
//		BatchSize:   10,
//		Requester:   prober,
//	})
//	err := w.Run(ctx, commands, results)
//
// # Lifecycle
//
// A worker moves Running -> Draining -> Terminated. It drains when an Exit
// command arrives, when the command channel ends or breaks, or when ctx is
// cancelled. Draining cancels in-flight requests without awaiting them and
// starts no new cycles. Commands other than Exit are ignored.
//
// A request that never completes never flushes; there is no per-request
// timeout here. The HTTP client may impose one.
//
// # Middleware
//
//   - [WithLogging]: log failed requests
//
// # Error Handling
//
// Request failures never stop a cycle. They surface as [Outcome.Err], for
// example [HTTPError] for a non-success status or [BodyError] for an
// undersized body, and count towards the accumulator's error total.
package runner
