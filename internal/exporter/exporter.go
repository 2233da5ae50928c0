// Package exporter publishes coordinator totals as Prometheus metrics.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/pipebench/internal/metrics"
)

const namespace = "pipebench"

// LatencyBuckets are the upper bounds, in seconds, of the exported latency histogram.
var LatencyBuckets = []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Exporter accumulates merged batches and serves them from a private registry.
type Exporter struct {
	registry  *prometheus.Registry
	requests  prometheus.Counter
	errors    prometheus.Counter
	responses *prometheus.CounterVec
	latency   *latencyCollector

	logger *slog.Logger
	server *http.Server
}

func New(runID string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"run_id": runID}

	e := &Exporter{
		registry: reg,
		requests: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "requests_total",
			Help:        "Completed requests reported by workers.",
			ConstLabels: labels,
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "errors_total",
			Help:        "Completed requests classified as errors.",
			ConstLabels: labels,
		}),
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "responses_total",
			Help:        "Completed requests by response status code (599 for transport failures).",
			ConstLabels: labels,
		}, []string{"code"}),
		latency: &latencyCollector{
			desc: prometheus.NewDesc(
				prometheus.BuildFQName(namespace, "", "request_duration_seconds"),
				"Request latency including the response body.",
				nil, labels,
			),
			acc: metrics.NewAccumulator(),
		},
		logger: logger,
	}
	reg.MustRegister(e.latency)
	return e
}

// Observe adds one merged Result batch.
func (e *Exporter) Observe(batch *metrics.Accumulator) {
	if batch == nil || batch.Requests() == 0 {
		return
	}
	e.requests.Add(float64(batch.Requests()))
	e.errors.Add(float64(batch.Errors()))
	for code, n := range batch.Statuses() {
		e.responses.WithLabelValues(strconv.Itoa(code)).Add(float64(n))
	}
	e.latency.merge(batch)
}

// Registry exposes the private registry, e.g. for tests.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Start serves /metrics on addr and returns the bound address.
func (e *Exporter) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	e.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server stopped", "error", err)
		}
	}()
	e.logger.Info("serving metrics", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}

// Shutdown stops the metrics server if it was started.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}

// latencyCollector emits the merged latency distribution as a constant
// histogram at scrape time.
type latencyCollector struct {
	desc *prometheus.Desc
	mu   sync.Mutex
	acc  *metrics.Accumulator
}

func (c *latencyCollector) merge(batch *metrics.Accumulator) {
	c.mu.Lock()
	c.acc.Merge(batch)
	c.mu.Unlock()
}

func (c *latencyCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *latencyCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	count := c.acc.Requests()
	sum := c.acc.TotalLatency().Seconds()
	bars := c.acc.HistogramBars()
	c.mu.Unlock()

	ch <- prometheus.MustNewConstHistogram(c.desc, count, sum, cumulativeBuckets(bars))
}

func cumulativeBuckets(bars []metrics.HistogramBar) map[float64]uint64 {
	buckets := make(map[float64]uint64, len(LatencyBuckets))
	for _, upper := range LatencyBuckets {
		var n uint64
		for _, bar := range bars {
			if float64(bar.ValueUs)/1e6 <= upper {
				n += uint64(bar.Count)
			}
		}
		buckets[upper] = n
	}
	return buckets
}
