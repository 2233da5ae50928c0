package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/torosent/pipebench/internal/metrics"
	"github.com/torosent/pipebench/internal/threshold"
)

func TestPrintHTMLReport(t *testing.T) {
	r := sampleReport()
	parsed, err := threshold.ParseAll([]string{"errors:count < 10", "latency:max < 50"})
	if err != nil {
		t.Fatal(err)
	}
	r.Thresholds = threshold.Evaluate(parsed, r.Stats)
	r.Latency = []metrics.HistogramBar{{ValueUs: 1000, Count: 60}, {ValueUs: 50000, Count: 40}}

	var buf bytes.Buffer
	if err := PrintHTMLReport(&buf, r); err != nil {
		t.Fatalf("PrintHTMLReport failed: %v", err)
	}

	html := buf.String()
	expected := []string{
		"<!DOCTYPE html>",
		"http://localhost:8080/",
		"01J2ABCDEF0000000000000000",
		"2 processes x 10 concurrent requests",
		"Total Requests",
		"50.00",
		"Thresholds (1/2 Passed)",
		"latency:max &lt; 50",
		"badge-error",
		"<td>500</td><td>5</td><td>5.0%</td>",
		"<td>#1</td><td>102</td><td>40 (40.0%)</td><td>2</td>",
		"latency-chart",
		"uPlot",
	}
	for _, want := range expected {
		if !strings.Contains(html, want) {
			t.Errorf("HTML report missing %q", want)
		}
	}
}

func TestPrintHTMLReportWithoutOptionalSections(t *testing.T) {
	r := sampleReport()
	r.PerWorker = nil

	var buf bytes.Buffer
	if err := PrintHTMLReport(&buf, r); err != nil {
		t.Fatalf("PrintHTMLReport failed: %v", err)
	}

	html := buf.String()
	for _, absent := range []string{"Thresholds (", "<h2>Workers</h2>", `id="latency-chart"`} {
		if strings.Contains(html, absent) {
			t.Errorf("HTML report should not contain %q", absent)
		}
	}
	if !strings.Contains(html, "Status Codes") {
		t.Error("HTML report missing status codes")
	}
}
