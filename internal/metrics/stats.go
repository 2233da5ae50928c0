package metrics

import "time"

// Stats represents an accumulator rendered for reports.
type Stats struct {
	Requests       uint64        `json:"requests" yaml:"requests"`
	Errors         uint64        `json:"errors" yaml:"errors"`
	Successes      uint64        `json:"successes" yaml:"successes"`
	MinLatency     time.Duration `json:"-" yaml:"-"`
	MaxLatency     time.Duration `json:"-" yaml:"-"`
	AvgLatency     time.Duration `json:"-" yaml:"-"`
	P50Latency     time.Duration `json:"-" yaml:"-"`
	P90Latency     time.Duration `json:"-" yaml:"-"`
	P95Latency     time.Duration `json:"-" yaml:"-"`
	P99Latency     time.Duration `json:"-" yaml:"-"`
	Duration       time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	TotalLatencyMs float64     `json:"total_latency_ms" yaml:"total_latency_ms"`
	MinLatencyMs   float64     `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs   float64     `json:"max_latency_ms" yaml:"max_latency_ms"`
	AvgLatencyMs   float64     `json:"avg_latency_ms" yaml:"avg_latency_ms"`
	P50LatencyMs   float64     `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs   float64     `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs   float64     `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs   float64     `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs     float64     `json:"duration_ms" yaml:"duration_ms"`
	Statuses       []StatusRow `json:"statuses,omitempty" yaml:"statuses,omitempty"`
}

// Stats computes report statistics for the given elapsed run time.
func (a *Accumulator) Stats(elapsed time.Duration) Stats {
	stats := Stats{
		Requests:   a.requests,
		Errors:     a.errors,
		Successes:  a.requests - a.errors,
		MinLatency: a.MinLatency(),
		MaxLatency: a.max,
		AvgLatency: a.AvgLatency(),
		P50Latency: a.Quantile(50),
		P90Latency: a.Quantile(90),
		P95Latency: a.Quantile(95),
		P99Latency: a.Quantile(99),
		Duration:   elapsed,
		Statuses:   a.StatusRows(),
	}

	stats.TotalLatencyMs = toMillis(a.total)
	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.AvgLatencyMs = a.AvgLatencyMs()
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P90LatencyMs = toMillis(stats.P90Latency)
	stats.P95LatencyMs = toMillis(stats.P95Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)
	stats.DurationMs = toMillis(elapsed)

	if elapsed > 0 && a.requests > 0 {
		stats.RequestsPerSec = float64(a.requests) / elapsed.Seconds()
	}
	return stats
}
