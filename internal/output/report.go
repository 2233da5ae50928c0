package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/pipebench/internal/coordinator"
	"github.com/torosent/pipebench/internal/metrics"
	"github.com/torosent/pipebench/internal/threshold"
)

// Report is the final summary of one run.
type Report struct {
	RunID       string             `json:"run_id" yaml:"run_id"`
	Target      string             `json:"target" yaml:"target"`
	Workers     int                `json:"workers" yaml:"workers"`
	Concurrency int                `json:"concurrency" yaml:"concurrency"`
	StartedAt   time.Time          `json:"started_at" yaml:"started_at"`
	Stats       metrics.Stats      `json:"stats" yaml:"stats"`
	PerWorker   []WorkerRow        `json:"per_worker,omitempty" yaml:"per_worker,omitempty"`
	Thresholds  []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Latency feeds the HTML chart only.
	Latency []metrics.HistogramBar `json:"-" yaml:"-"`
}

// WorkerRow is one worker's share of the run.
type WorkerRow struct {
	ID       int    `json:"id" yaml:"id"`
	Pid      int    `json:"pid" yaml:"pid"`
	Requests uint64 `json:"requests" yaml:"requests"`
	Errors   uint64 `json:"errors" yaml:"errors"`
}

// WorkerRows converts coordinator worker statuses to report rows.
func WorkerRows(workers []coordinator.WorkerStatus) []WorkerRow {
	rows := make([]WorkerRow, 0, len(workers))
	for _, w := range workers {
		rows = append(rows, WorkerRow{ID: w.ID, Pid: w.Pid, Requests: w.Requests, Errors: w.Errors})
	}
	return rows
}

// Write renders r in the named format: text, json, yaml or html.
func Write(w io.Writer, format string, r Report) error {
	switch format {
	case "", "text":
		PrintReport(w, r)
		return nil
	case "json":
		return PrintJSONReport(w, r)
	case "yaml":
		return PrintYAMLReport(w, r)
	case "html":
		return PrintHTMLReport(w, r)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	stats := r.Stats
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if r.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Requests)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Errors)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.AvgLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)
	if len(stats.Statuses) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		for _, row := range stats.Statuses {
			fmt.Fprintf(w, "  %d: %d\n", row.Code, row.Count)
		}
	}
	if len(r.PerWorker) > 1 {
		fmt.Fprintln(w, "\nWorkers:")
		for _, row := range r.PerWorker {
			fmt.Fprintf(w, "  - #%d (pid %d): requests=%d, errors=%d\n", row.ID, row.Pid, row.Requests, row.Errors)
		}
	}
	if len(r.Thresholds) > 0 {
		fmt.Fprintf(w, "\nThresholds: %d/%d passed\n", len(r.Thresholds)-threshold.Failed(r.Thresholds), len(r.Thresholds))
		for _, res := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
