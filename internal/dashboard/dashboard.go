package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/pipebench/internal/coordinator"
	"github.com/torosent/pipebench/internal/metrics"
)

const historySize = 100

// RunConfig holds the run parameters shown in the summary panel.
type RunConfig struct {
	TargetURL   string
	Workers     int
	Concurrency int
	Rate        int // total requests per second (0 = unlimited)
	Timeout     time.Duration
	RunID       string
	ConfigFile  string
}

// Dashboard renders a live terminal UI fed by coordinator snapshots.
type Dashboard struct {
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	rpsGauge       *widgets.Gauge
	statusList     *widgets.List
	workerList     *widgets.List
	summaryPara    *widgets.Paragraph
	metricsPara    *widgets.Paragraph

	// Latest snapshot, converted while the coordinator still owns it.
	stats          metrics.Stats
	workers        []coordinator.WorkerStatus
	elapsed        time.Duration
	latencyHistory []float64
	runConfig      RunConfig
}

var _ coordinator.Renderer = (*Dashboard)(nil)

// New initialises the terminal. shutdownFunc is called when the user presses
// q or Ctrl-C.
func New(cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}
	d := newDashboard(cfg, shutdownFunc)
	termWidth, termHeight := ui.TerminalDimensions()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	return d, nil
}

func newDashboard(cfg RunConfig, shutdownFunc func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, historySize),
		runConfig:      cfg,
	}
	d.initWidgets()
	d.setupGrid()
	return d
}

func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Mean latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Real-time Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Min: 0ms\nMean: 0ms\nP50: 0ms\nP90: 0ms\nP99: 0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.rpsGauge = widgets.NewGauge()
	d.rpsGauge.Title = "Requests Per Second"
	d.rpsGauge.BarColor = ui.ColorBlue
	d.rpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.rpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.statusList = widgets.NewList()
	d.statusList.Title = "Response Status"
	d.statusList.Rows = []string{"Awaiting data"}
	d.statusList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.statusList.BorderStyle.Fg = ui.ColorCyan

	d.workerList = widgets.NewList()
	d.workerList.Title = "Workers"
	d.workerList.Rows = []string{"Awaiting data"}
	d.workerList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.workerList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run Summary"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Metrics"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	d.grid = ui.NewGrid()
	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.22,
			ui.NewCol(0.5, d.rpsGauge),
			ui.NewCol(0.5, d.metricsPara),
		),
		ui.NewRow(0.30,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.32,
			ui.NewCol(0.5, d.workerList),
			ui.NewCol(0.5, d.statusList),
		),
	)
}

// Render stores the snapshot; the update loop draws it.
func (d *Dashboard) Render(s coordinator.Snapshot) {
	stats := s.Total.Stats(s.Elapsed)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = stats
	d.workers = append(d.workers[:0], s.Workers...)
	d.elapsed = s.Elapsed
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop() ends the loop once the coordinator has shut down.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update copies the latest snapshot into the widgets.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := d.stats

	if stats.Requests > 0 {
		d.latencyHistory = append(d.latencyHistory, stats.AvgLatencyMs)
		if len(d.latencyHistory) > historySize {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Real-time Latency | Mean: %.2fms | Min: %.2fms | Max: %.2fms",
			stats.AvgLatencyMs,
			stats.MinLatencyMs,
			stats.MaxLatencyMs,
		)
	}

	currentRPS := stats.RequestsPerSec
	maxRPS := 100.0
	if currentRPS > maxRPS {
		maxRPS = currentRPS
	}
	d.rpsGauge.Percent = int((currentRPS / maxRPS) * 100)
	d.rpsGauge.Label = fmt.Sprintf("%.1f RPS", currentRPS)

	success := successRate(stats)

	d.summaryPara.Text = fmt.Sprintf(
		"Target: %s\n%s\nElapsed: %s | Total: %d | Success Rate: %.1f%%",
		d.runConfig.TargetURL,
		formatRunParams(d.runConfig),
		d.elapsed.Round(time.Second),
		stats.Requests,
		success,
	)

	d.metricsPara.Text = fmt.Sprintf(
		"Total Requests:    %d\nSuccessful:        %d\nFailed:            %d\nCurrent RPS:       %.2f\nSuccess Rate:      %.1f%%",
		stats.Requests,
		stats.Successes,
		stats.Errors,
		currentRPS,
		success,
	)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nMax:  %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms",
		stats.MinLatencyMs,
		stats.AvgLatencyMs,
		stats.MaxLatencyMs,
		stats.P50LatencyMs,
		stats.P90LatencyMs,
		stats.P99LatencyMs,
	)

	d.statusList.Rows = formatStatusRows(stats.Statuses)
	d.workerList.Rows = formatWorkerRows(d.workers, stats.Requests)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func successRate(stats metrics.Stats) float64 {
	if stats.Requests == 0 {
		return 0
	}
	return (float64(stats.Successes) / float64(stats.Requests)) * 100
}

func formatStatusRows(rows []metrics.StatusRow) []string {
	if len(rows) == 0 {
		return []string{"[No responses yet](fg:green)"}
	}
	if len(rows) > 10 {
		rows = rows[:10]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		color := "green"
		switch {
		case row.Code == metrics.StatusTransportError:
			color = "magenta"
		case row.Code >= 500:
			color = "red"
		case row.Code >= 300 || row.Code < 200:
			color = "yellow"
		}
		formatted = append(formatted, fmt.Sprintf("[%d](fg:%s) %d", row.Code, color, row.Count))
	}
	return formatted
}

func formatWorkerRows(workers []coordinator.WorkerStatus, total uint64) []string {
	if len(workers) == 0 {
		return []string{"Awaiting data"}
	}
	formatted := make([]string, 0, len(workers))
	for _, w := range workers {
		share := 0.0
		if total > 0 {
			share = (float64(w.Requests) / float64(total)) * 100
		}
		state := "[up](fg:green)"
		if !w.Alive {
			state = "[gone](fg:red)"
		}
		formatted = append(formatted, fmt.Sprintf("#%d pid %d | %s | %5.1f%% | Req %d | Err %d",
			w.ID, w.Pid, state, share, w.Requests, w.Errors))
	}
	return formatted
}

func formatRunParams(cfg RunConfig) string {
	var parts []string

	if cfg.Workers > 0 {
		parts = append(parts, fmt.Sprintf("Processes: %d", cfg.Workers))
	}
	if cfg.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Concurrency: %d", cfg.Concurrency))
	}
	if cfg.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/s", cfg.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}
	if cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", cfg.Timeout))
	}
	if cfg.RunID != "" {
		parts = append(parts, fmt.Sprintf("Run: %s", cfg.RunID))
	}
	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
