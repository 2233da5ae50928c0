package metrics

import (
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// Latencies are tracked in microseconds from 1µs up to 60s.
	histLowest  = 1
	histHighest = 60_000_000
	histSigFigs = 2

	noLatency = time.Duration(math.MaxInt64)
)

// Accumulator holds running counters for one stream of completed requests.
//
// An Accumulator is not safe for concurrent use; each worker and the
// coordinator own theirs exclusively.
type Accumulator struct {
	requests uint64
	errors   uint64
	statuses map[int]uint64
	total    time.Duration
	min      time.Duration
	max      time.Duration
	hist     *hdrhistogram.Histogram
}

// HistogramBar is one populated latency bucket: Count samples whose value
// falls in the bucket containing ValueUs.
type HistogramBar struct {
	ValueUs int64
	Count   int64
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		statuses: make(map[int]uint64),
		min:      noLatency,
		hist:     hdrhistogram.New(histLowest, histHighest, histSigFigs),
	}
}

// Record folds one completed request into the accumulator.
func (a *Accumulator) Record(status int, latency time.Duration, isError bool) {
	if latency < 0 {
		latency = 0
	}
	a.requests++
	if isError {
		a.errors++
	}
	a.statuses[status]++
	a.total += latency
	if latency < a.min {
		a.min = latency
	}
	if latency > a.max {
		a.max = latency
	}
	_ = a.hist.RecordValue(clampMicros(latency))
}

// Merge adds other into a. Counts and histograms add, extrema are kept and
// the average is derived from the merged totals.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil || other.requests == 0 {
		return
	}
	a.requests += other.requests
	a.errors += other.errors
	for code, n := range other.statuses {
		a.statuses[code] += n
	}
	a.total += other.total
	if other.min < a.min {
		a.min = other.min
	}
	if other.max > a.max {
		a.max = other.max
	}
	a.hist.Merge(other.hist)
}

// ShouldFlush reports whether the request count is a positive multiple of batchSize.
func (a *Accumulator) ShouldFlush(batchSize int) bool {
	if batchSize <= 0 {
		batchSize = 1
	}
	return a.requests > 0 && a.requests%uint64(batchSize) == 0
}

// Reset returns the accumulator to its empty state, keeping allocations.
func (a *Accumulator) Reset() {
	a.requests = 0
	a.errors = 0
	clear(a.statuses)
	a.total = 0
	a.min = noLatency
	a.max = 0
	a.hist.Reset()
}

func (a *Accumulator) Clone() *Accumulator {
	c := NewAccumulator()
	c.Merge(a)
	return c
}

// Equal reports whether both accumulators hold identical counters and distributions.
func (a *Accumulator) Equal(other *Accumulator) bool {
	if a == nil || other == nil {
		return a == other
	}
	if a.requests != other.requests || a.errors != other.errors ||
		a.total != other.total || a.min != other.min || a.max != other.max {
		return false
	}
	if len(a.statuses) != len(other.statuses) {
		return false
	}
	for code, n := range a.statuses {
		if other.statuses[code] != n {
			return false
		}
	}
	return a.hist.Equals(other.hist)
}

func (a *Accumulator) Requests() uint64 { return a.requests }
func (a *Accumulator) Errors() uint64   { return a.errors }

func (a *Accumulator) TotalLatency() time.Duration { return a.total }

// MinLatency returns zero for an empty accumulator.
func (a *Accumulator) MinLatency() time.Duration {
	if a.requests == 0 {
		return 0
	}
	return a.min
}

func (a *Accumulator) MaxLatency() time.Duration { return a.max }

// AvgLatency is TotalLatency / Requests, or zero when empty.
func (a *Accumulator) AvgLatency() time.Duration {
	if a.requests == 0 {
		return 0
	}
	return time.Duration(int64(a.total) / int64(a.requests))
}

func (a *Accumulator) TotalLatencyMs() float64 { return toMillis(a.total) }
func (a *Accumulator) MinLatencyMs() float64   { return toMillis(a.MinLatency()) }
func (a *Accumulator) MaxLatencyMs() float64   { return toMillis(a.max) }

func (a *Accumulator) AvgLatencyMs() float64 {
	if a.requests == 0 {
		return 0
	}
	return toMillis(a.total) / float64(a.requests)
}

// StatusCount returns how many responses carried the given status code.
func (a *Accumulator) StatusCount(code int) uint64 {
	return a.statuses[code]
}

// Statuses returns a copy of the status histogram.
func (a *Accumulator) Statuses() map[int]uint64 {
	out := make(map[int]uint64, len(a.statuses))
	for code, n := range a.statuses {
		out[code] = n
	}
	return out
}

// Quantile returns the latency at percentile q (0-100).
func (a *Accumulator) Quantile(q float64) time.Duration {
	if a.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(a.hist.ValueAtQuantile(q)) * time.Microsecond
}

// HistogramBars lists the populated latency buckets, lowest first.
func (a *Accumulator) HistogramBars() []HistogramBar {
	if a.hist.TotalCount() == 0 {
		return nil
	}
	var bars []HistogramBar
	for _, bar := range a.hist.Distribution() {
		if bar.Count == 0 {
			continue
		}
		bars = append(bars, HistogramBar{ValueUs: bar.From, Count: bar.Count})
	}
	return bars
}

// Restore rebuilds an accumulator from decoded wire fields. Counters are
// taken as given; bars repopulate the latency distribution.
func Restore(requests, errors uint64, statuses map[int]uint64, total, min, max time.Duration, bars []HistogramBar) *Accumulator {
	a := NewAccumulator()
	a.requests = requests
	a.errors = errors
	for code, n := range statuses {
		a.statuses[code] = n
	}
	a.total = total
	a.max = max
	if requests > 0 {
		a.min = min
	}
	for _, bar := range bars {
		if bar.Count <= 0 {
			continue
		}
		_ = a.hist.RecordValues(clampMicros(time.Duration(bar.ValueUs)*time.Microsecond), bar.Count)
	}
	return a
}

func clampMicros(latency time.Duration) int64 {
	us := latency.Microseconds()
	if us < histLowest {
		us = histLowest
	}
	if us > histHighest {
		us = histHighest
	}
	return us
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
