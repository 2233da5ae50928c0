package exporter

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/torosent/pipebench/internal/logging"
	"github.com/torosent/pipebench/internal/metrics"
)

func batch(statuses map[int]int, latency time.Duration) *metrics.Accumulator {
	acc := metrics.NewAccumulator()
	for code, n := range statuses {
		for i := 0; i < n; i++ {
			acc.Record(code, latency, code >= 400)
		}
	}
	return acc
}

func TestObserveCounters(t *testing.T) {
	e := New("run-1", logging.Discard())
	e.Observe(batch(map[int]int{200: 8, 503: 2}, 20*time.Millisecond))
	e.Observe(batch(map[int]int{200: 10}, 5*time.Millisecond))
	e.Observe(nil)
	e.Observe(metrics.NewAccumulator())

	if got := testutil.ToFloat64(e.requests); got != 20 {
		t.Errorf("requests_total = %v, want 20", got)
	}
	if got := testutil.ToFloat64(e.errors); got != 2 {
		t.Errorf("errors_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(e.responses.WithLabelValues("200")); got != 18 {
		t.Errorf(`responses_total{code="200"} = %v, want 18`, got)
	}
	if got := testutil.ToFloat64(e.responses.WithLabelValues("503")); got != 2 {
		t.Errorf(`responses_total{code="503"} = %v, want 2`, got)
	}
}

func TestLatencyHistogram(t *testing.T) {
	e := New("run-2", logging.Discard())
	e.Observe(batch(map[int]int{200: 4}, 2*time.Millisecond))
	e.Observe(batch(map[int]int{200: 6}, 200*time.Millisecond))

	expected := `
# HELP pipebench_request_duration_seconds Request latency including the response body.
# TYPE pipebench_request_duration_seconds histogram
pipebench_request_duration_seconds_bucket{run_id="run-2",le="0.001"} 0
pipebench_request_duration_seconds_bucket{run_id="run-2",le="0.0025"} 4
pipebench_request_duration_seconds_bucket{run_id="run-2",le="0.005"} 4
pipebench_request_duration_seconds_bucket{run_id="run-2",le="0.01"} 4
pipebench_request_duration_seconds_bucket{run_id="run-2",le="0.025"} 4
pipebench_request_duration_seconds_bucket{run_id="run-2",le="0.05"} 4
pipebench_request_duration_seconds_bucket{run_id="run-2",le="0.1"} 4
pipebench_request_duration_seconds_bucket{run_id="run-2",le="0.25"} 10
pipebench_request_duration_seconds_bucket{run_id="run-2",le="0.5"} 10
pipebench_request_duration_seconds_bucket{run_id="run-2",le="1"} 10
pipebench_request_duration_seconds_bucket{run_id="run-2",le="2.5"} 10
pipebench_request_duration_seconds_bucket{run_id="run-2",le="5"} 10
pipebench_request_duration_seconds_bucket{run_id="run-2",le="10"} 10
pipebench_request_duration_seconds_bucket{run_id="run-2",le="+Inf"} 10
pipebench_request_duration_seconds_sum{run_id="run-2"} 1.208
pipebench_request_duration_seconds_count{run_id="run-2"} 10
`
	if err := testutil.CollectAndCompare(e.latency, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
}

func TestServeMetrics(t *testing.T) {
	e := New("run-3", logging.Discard())
	addr, err := e.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	e.Observe(batch(map[int]int{200: 3}, time.Millisecond))

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`pipebench_requests_total{run_id="run-3"} 3`,
		`pipebench_responses_total{code="200",run_id="run-3"} 3`,
		`pipebench_request_duration_seconds_count{run_id="run-3"} 3`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	if err := New("", nil).Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
