// Package metrics provides the request statistics exchanged between workers
// and the coordinator.
//
// # Accumulator
//
// An [Accumulator] holds running counters for one stream of completed
// requests: request and error counts, a per-status-code histogram, and
// total/min/max latency plus a latency distribution for percentiles.
//
//	acc := metrics.NewAccumulator()
//	acc.Record(200, 12*time.Millisecond, false)
//	if acc.ShouldFlush(10) {
//		send(acc.Clone())
//		acc.Reset()
//	}
//
// # Merging
//
// [Accumulator.Merge] is commutative and associative. Counts and histograms
// add, extrema are kept, and the average is always derived from the merged
// totals rather than averaged from the operands' averages:
//
//	a: 1 request, 10ms total
//	b: 3 requests, 90ms total
//	merged: 4 requests, 100ms total, 25ms average
//
// Latency is held as integer durations so merge order never changes totals.
//
// # Thread Safety
//
// An Accumulator is owned by a single goroutine. Workers funnel outcomes to
// one aggregator; the coordinator merges on its event loop.
package metrics
