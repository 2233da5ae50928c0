package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/pipebench/internal/threshold"
)

// htmlReportData is everything the HTML template reads.
type htmlReportData struct {
	GeneratedAt  string
	Report       Report
	Passed       int
	Distribution string
}

// latencyPoint is one bar of the embedded latency chart.
type latencyPoint struct {
	LatencyMs float64 `json:"latency_ms"`
	Count     int64   `json:"count"`
}

// PrintHTMLReport writes a standalone HTML page with a latency
// distribution chart, per-worker and status tables and threshold results.
func PrintHTMLReport(w io.Writer, r Report) error {
	points := make([]latencyPoint, 0, len(r.Latency))
	for _, bar := range r.Latency {
		points = append(points, latencyPoint{LatencyMs: float64(bar.ValueUs) / 1000, Count: bar.Count})
	}
	distribution, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("failed to marshal latency distribution: %w", err)
	}

	data := htmlReportData{
		GeneratedAt:  time.Now().Format(time.RFC3339),
		Report:       r,
		Passed:       len(r.Thresholds) - threshold.Failed(r.Thresholds),
		Distribution: string(distribution),
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Microsecond).String()
		},
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatPercent": func(part, total uint64) string {
			if total == 0 {
				return "0.0"
			}
			return fmt.Sprintf("%.1f", float64(part)/float64(total)*100)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>pipebench report {{.Report.RunID}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background: #f4f6f8;
            color: #1f2933;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header { background: #1f4e79; color: white; padding: 24px 32px; }
        header h1 { font-size: 1.8rem; margin-bottom: 6px; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        header a { color: white; }
        .content { padding: 32px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 16px;
            margin-bottom: 32px;
        }
        .card { background: #f8f9fa; border-radius: 8px; padding: 16px; border-left: 4px solid #1f4e79; }
        .card h3 { font-size: 0.8rem; color: #6c757d; text-transform: uppercase; margin-bottom: 8px; }
        .card .value { font-size: 1.8rem; font-weight: bold; }
        .card .subvalue { font-size: 0.85rem; color: #6c757d; }
        .card.success { border-left-color: #10b981; }
        .card.error { border-left-color: #ef4444; }
        .section { margin-bottom: 32px; }
        .section h2 { font-size: 1.3rem; margin-bottom: 16px; padding-bottom: 8px; border-bottom: 2px solid #e5e7eb; }
        .chart { width: 100%; height: 300px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 10px; border-bottom: 1px solid #e5e7eb; }
        th { background: #f8f9fa; font-size: 0.85rem; text-transform: uppercase; color: #4b5563; }
        .latency-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(130px, 1fr));
            gap: 12px;
        }
        .latency-item { background: #f8f9fa; padding: 12px; border-radius: 6px; text-align: center; }
        .latency-item .label { font-size: 0.8rem; color: #6c757d; }
        .latency-item .value { font-size: 1.2rem; font-weight: bold; }
        .badge { display: inline-block; padding: 2px 10px; border-radius: 12px; font-size: 0.85rem; font-weight: 600; }
        .badge-success { background: #d1fae5; color: #065f46; }
        .badge-error { background: #fee2e2; color: #991b1b; }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>pipebench report</h1>
            <div class="meta">Target: <a href="{{.Report.Target}}">{{.Report.Target}}</a></div>
            <div class="meta">Run {{.Report.RunID}} | {{.Report.Workers}} processes x {{.Report.Concurrency}} concurrent requests</div>
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Report.Stats.Duration}}</div>
        </header>

        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Total Requests</h3>
                    <div class="value">{{.Report.Stats.Requests}}</div>
                </div>
                <div class="card success">
                    <h3>Successful</h3>
                    <div class="value">{{.Report.Stats.Successes}}</div>
                    <div class="subvalue">{{formatPercent .Report.Stats.Successes .Report.Stats.Requests}}%</div>
                </div>
                <div class="card error">
                    <h3>Failed</h3>
                    <div class="value">{{.Report.Stats.Errors}}</div>
                    <div class="subvalue">{{formatPercent .Report.Stats.Errors .Report.Stats.Requests}}%</div>
                </div>
                <div class="card">
                    <h3>Requests/sec</h3>
                    <div class="value">{{formatFloat .Report.Stats.RequestsPerSec}}</div>
                </div>
            </div>

            <div class="section">
                <h2>Latency</h2>
                <div class="latency-grid">
                    <div class="latency-item"><div class="label">Min</div><div class="value">{{formatDuration .Report.Stats.MinLatency}}</div></div>
                    <div class="latency-item"><div class="label">Max</div><div class="value">{{formatDuration .Report.Stats.MaxLatency}}</div></div>
                    <div class="latency-item"><div class="label">Mean</div><div class="value">{{formatDuration .Report.Stats.AvgLatency}}</div></div>
                    <div class="latency-item"><div class="label">P50</div><div class="value">{{formatDuration .Report.Stats.P50Latency}}</div></div>
                    <div class="latency-item"><div class="label">P90</div><div class="value">{{formatDuration .Report.Stats.P90Latency}}</div></div>
                    <div class="latency-item"><div class="label">P95</div><div class="value">{{formatDuration .Report.Stats.P95Latency}}</div></div>
                    <div class="latency-item"><div class="label">P99</div><div class="value">{{formatDuration .Report.Stats.P99Latency}}</div></div>
                </div>
                {{if .Report.Latency}}
                <div id="latency-chart" class="chart"></div>
                {{end}}
            </div>

            {{if .Report.Thresholds}}
            <div class="section">
                <h2>Thresholds ({{.Passed}}/{{len .Report.Thresholds}} Passed)</h2>
                <table>
                    <thead>
                        <tr><th>Threshold</th><th>Expected</th><th>Actual</th><th>Status</th></tr>
                    </thead>
                    <tbody>
                        {{range .Report.Thresholds}}
                        <tr>
                            <td>{{.Threshold.Raw}}</td>
                            <td>{{.Threshold.Operator}} {{formatFloat .Threshold.Value}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>{{if .Pass}}<span class="badge badge-success">PASS</span>{{else}}<span class="badge badge-error">FAIL</span>{{end}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Report.Stats.Statuses}}
            <div class="section">
                <h2>Status Codes</h2>
                <table>
                    <thead><tr><th>Code</th><th>Count</th><th>Share</th></tr></thead>
                    <tbody>
                        {{range .Report.Stats.Statuses}}
                        <tr><td>{{.Code}}</td><td>{{.Count}}</td><td>{{formatPercent .Count $.Report.Stats.Requests}}%</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Report.PerWorker}}
            <div class="section">
                <h2>Workers</h2>
                <table>
                    <thead><tr><th>Worker</th><th>PID</th><th>Requests</th><th>Errors</th></tr></thead>
                    <tbody>
                        {{range .Report.PerWorker}}
                        <tr><td>#{{.ID}}</td><td>{{.Pid}}</td><td>{{.Requests}} ({{formatPercent .Requests $.Report.Stats.Requests}}%)</td><td>{{.Errors}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if .Report.Latency}}
    <script>
        const distribution = JSON.parse({{.Distribution}});
        const el = document.getElementById('latency-chart');
        new uPlot({
            title: "Latency distribution",
            width: el.offsetWidth,
            height: 300,
            scales: { x: { time: false } },
            series: [
                { label: "Latency (ms)" },
                { label: "Requests", stroke: "#1f4e79", fill: "rgba(31, 78, 121, 0.15)", width: 2 }
            ],
            axes: [
                { label: "Latency (ms)" },
                { label: "Requests" }
            ]
        }, [distribution.map(p => p.latency_ms), distribution.map(p => p.count)], el);
    </script>
    {{end}}
</body>
</html>
`
