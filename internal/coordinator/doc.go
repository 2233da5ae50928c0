// Package coordinator runs the parent side of a benchmark.
//
// A [Coordinator] spawns one process per worker, reads framed Result batches
// from each worker's pipe on a dedicated goroutine, and merges them into a
// global accumulator on a single event loop that also owns rendering.
//
// Shutdown is cooperative. [Coordinator.RequestShutdown] only sets a flag;
// the loop notices it on its next tick, sends Exit to every worker, joins
// every process and returns a [Summary]. No Result is merged once shutdown
// has begun. A worker whose channel breaks is marked gone and logged; when
// no workers remain the coordinator shuts itself down on the next tick.
package coordinator
