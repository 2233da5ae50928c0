package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/pipebench/internal/coordinator"
	"github.com/torosent/pipebench/internal/metrics"
)

func TestFormatStatusRows(t *testing.T) {
	rows := formatStatusRows([]metrics.StatusRow{
		{Code: 200, Count: 90},
		{Code: 503, Count: 6},
		{Code: 599, Count: 3},
		{Code: 404, Count: 1},
	})
	want := []string{
		"[200](fg:green) 90",
		"[503](fg:red) 6",
		"[599](fg:magenta) 3",
		"[404](fg:yellow) 1",
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %q, want %q", i, rows[i], want[i])
		}
	}

	if empty := formatStatusRows(nil); len(empty) != 1 || !strings.Contains(empty[0], "No responses") {
		t.Errorf("empty rows = %v", empty)
	}
}

func TestFormatStatusRowsCapped(t *testing.T) {
	var rows []metrics.StatusRow
	for code := 200; code < 220; code++ {
		rows = append(rows, metrics.StatusRow{Code: code, Count: 1})
	}
	if got := formatStatusRows(rows); len(got) != 10 {
		t.Errorf("len = %d, want 10", len(got))
	}
}

func TestFormatWorkerRows(t *testing.T) {
	rows := formatWorkerRows([]coordinator.WorkerStatus{
		{ID: 0, Pid: 4242, Requests: 75, Errors: 1, Alive: true},
		{ID: 1, Pid: 4243, Requests: 25, Alive: false},
	}, 100)

	if !strings.Contains(rows[0], "#0 pid 4242") || !strings.Contains(rows[0], " 75.0%") || !strings.Contains(rows[0], "[up]") {
		t.Errorf("row 0 = %q", rows[0])
	}
	if !strings.Contains(rows[1], "[gone]") || !strings.Contains(rows[1], " 25.0%") {
		t.Errorf("row 1 = %q", rows[1])
	}
}

func TestFormatRunParams(t *testing.T) {
	tests := []struct {
		name string
		cfg  RunConfig
		want string
	}{
		{
			name: "unlimited",
			cfg:  RunConfig{Workers: 2, Concurrency: 10},
			want: "Processes: 2 | Concurrency: 10 | Rate: unlimited",
		},
		{
			name: "full",
			cfg:  RunConfig{Workers: 4, Concurrency: 5, Rate: 200, Timeout: 3 * time.Second, RunID: "01J", ConfigFile: "bench.yaml"},
			want: "Processes: 4 | Concurrency: 5 | Rate: 200/s | Timeout: 3s | Run: 01J | Config: bench.yaml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatRunParams(tt.cfg); got != tt.want {
				t.Errorf("formatRunParams() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderThenUpdate(t *testing.T) {
	var shutdowns int
	d := newDashboard(RunConfig{TargetURL: "http://bench.local/", Workers: 1, Concurrency: 4}, func() { shutdowns++ })
	defer d.cancel()

	acc := metrics.NewAccumulator()
	for i := 0; i < 8; i++ {
		acc.Record(200, 20*time.Millisecond, false)
	}
	acc.Record(500, 40*time.Millisecond, true)
	acc.Record(500, 40*time.Millisecond, true)

	d.Render(coordinator.Snapshot{
		Elapsed: 2 * time.Second,
		Total:   acc,
		Workers: []coordinator.WorkerStatus{{ID: 0, Pid: 99, Requests: 10, Errors: 2, Alive: true}},
	})
	// The snapshot is not retained.
	acc.Reset()
	d.update()

	if !strings.Contains(d.summaryPara.Text, "Target: http://bench.local/") ||
		!strings.Contains(d.summaryPara.Text, "Total: 10 | Success Rate: 80.0%") {
		t.Errorf("summary = %q", d.summaryPara.Text)
	}
	if !strings.Contains(d.metricsPara.Text, "Failed:            2") {
		t.Errorf("metrics = %q", d.metricsPara.Text)
	}
	if !strings.Contains(d.latencyPara.Text, "Mean: 24.00ms") {
		t.Errorf("latency = %q", d.latencyPara.Text)
	}
	if d.rpsGauge.Label != "5.0 RPS" || d.rpsGauge.Percent != 5 {
		t.Errorf("gauge = %q / %d%%", d.rpsGauge.Label, d.rpsGauge.Percent)
	}
	if len(d.latencyHistory) != 1 || d.latencyHistory[0] != 24 {
		t.Errorf("latency history = %v", d.latencyHistory)
	}
	if d.statusList.Rows[0] != "[200](fg:green) 8" || d.statusList.Rows[1] != "[500](fg:red) 2" {
		t.Errorf("status rows = %v", d.statusList.Rows)
	}
	if len(d.workerList.Rows) != 1 || !strings.Contains(d.workerList.Rows[0], "pid 99") {
		t.Errorf("worker rows = %v", d.workerList.Rows)
	}
	if shutdowns != 0 {
		t.Errorf("shutdown called %d times without input", shutdowns)
	}
}

func TestLatencyHistoryBounded(t *testing.T) {
	d := newDashboard(RunConfig{}, nil)
	defer d.cancel()

	acc := metrics.NewAccumulator()
	acc.Record(200, time.Millisecond, false)
	d.Render(coordinator.Snapshot{Elapsed: time.Second, Total: acc})
	for i := 0; i < historySize+20; i++ {
		d.update()
	}
	if len(d.latencyHistory) != historySize {
		t.Errorf("history length = %d, want %d", len(d.latencyHistory), historySize)
	}
}
