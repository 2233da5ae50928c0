package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/torosent/pipebench/internal/logging"
	"github.com/torosent/pipebench/internal/threshold"
)

type ReportFormat string

const (
	ReportFormatText ReportFormat = "text"
	ReportFormatJSON ReportFormat = "json"
	ReportFormatYAML ReportFormat = "yaml"
	ReportFormatHTML ReportFormat = "html"
)

// Config describes one coordinator run.
type Config struct {
	TargetURL       string
	Workers         int
	Concurrency     int
	MinBodyBytes    int64
	Timeout         time.Duration // 0 disables the per-request timeout
	Rate            int           // total requests per second across workers (0 means unlimited)
	BatchSize       int
	TickInterval    time.Duration
	ShutdownTimeout time.Duration
	Dashboard       bool
	ReportFormat    ReportFormat
	HistoryFile     string
	MetricsAddr     string
	LogLevel        string
	LogFailures     bool
	ConfigFile      string
	RunID           string
	Thresholds      []string // e.g. "latency:p99 < 250", checked against the final report
	Tracing         TracingConfig
}

// TracingConfig configures OTLP span export from workers.
type TracingConfig struct {
	Endpoint    string
	Protocol    string // "grpc" or "http"
	Insecure    bool
	ServiceName string
	SampleRate  float64
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// WorkerConfig is the subset of Config a worker process needs.
type WorkerConfig struct {
	TargetURL    string
	Concurrency  int
	MinBodyBytes int64
	Timeout      time.Duration
	Rate         int
	BatchSize    int
	WorkerID     int
	RunID        string
	LogLevel     string
	LogFailures  bool
	Tracing      TracingConfig
}

// Worker derives the configuration for worker id. The total rate is split
// across workers, earlier workers taking the remainder.
func (c Config) Worker(id int) WorkerConfig {
	return WorkerConfig{
		TargetURL:    c.TargetURL,
		Concurrency:  c.Concurrency,
		MinBodyBytes: c.MinBodyBytes,
		Timeout:      c.Timeout,
		Rate:         splitRate(c.Rate, c.Workers, id),
		BatchSize:    c.BatchSize,
		WorkerID:     id,
		RunID:        c.RunID,
		LogLevel:     c.LogLevel,
		LogFailures:  c.LogFailures,
		Tracing:      c.Tracing,
	}
}

// Level is the slog level named by LogLevel. Validate rejects unknown names.
func (c Config) Level() slog.Level {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

// Level is the slog level named by LogLevel. Validate rejects unknown names.
func (w WorkerConfig) Level() slog.Level {
	level, _ := logging.ParseLevel(w.LogLevel)
	return level
}

func splitRate(total, workers, id int) int {
	if total <= 0 || workers <= 0 {
		return 0
	}
	share := total / workers
	if id < total%workers {
		share++
	}
	return share
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	issues = append(issues, validateTarget(c.TargetURL)...)

	if c.Workers < 1 {
		issues = append(issues, "workers must be at least 1")
	}
	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be at least 1")
	}
	if c.MinBodyBytes < 0 {
		issues = append(issues, "min-body must be non-negative")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be non-negative")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be non-negative")
	} else if c.Rate > 0 && c.Workers > 0 && c.Rate < c.Workers {
		issues = append(issues, fmt.Sprintf("rate %d is below the worker count %d", c.Rate, c.Workers))
	}
	if c.BatchSize < 1 {
		issues = append(issues, "batch-size must be at least 1")
	}
	if c.TickInterval <= 0 {
		issues = append(issues, "tick-interval must be positive")
	}
	if c.ShutdownTimeout < 0 {
		issues = append(issues, "shutdown-timeout must be non-negative")
	}
	switch c.ReportFormat {
	case ReportFormatText, ReportFormatJSON, ReportFormatYAML, ReportFormatHTML:
	default:
		issues = append(issues, fmt.Sprintf("report format %q must be text, json, yaml or html", c.ReportFormat))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, err.Error())
	}
	if _, err := threshold.ParseAll(c.Thresholds); err != nil {
		issues = append(issues, err.Error())
	}
	issues = append(issues, c.Tracing.validate()...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Warnings lists settings that are valid but worth flagging to the operator.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("high rate limit configured (%d RPS); ensure you have authorization to test the target system", c.Rate))
	}
	if total := c.Workers * c.Concurrency; total > 500 {
		warnings = append(warnings, fmt.Sprintf("high concurrency configured (%d request cycles); ensure you have authorization to test the target system", total))
	}
	return warnings
}

// Validate checks the settings a worker process was started with.
func (w WorkerConfig) Validate() error {
	var issues []string
	issues = append(issues, validateTarget(w.TargetURL)...)
	if w.Concurrency < 1 {
		issues = append(issues, "concurrency must be at least 1")
	}
	if w.BatchSize < 1 {
		issues = append(issues, "batch-size must be at least 1")
	}
	if w.WorkerID < 0 {
		issues = append(issues, "worker-id must be non-negative")
	}
	if _, err := logging.ParseLevel(w.LogLevel); err != nil {
		issues = append(issues, err.Error())
	}
	issues = append(issues, w.Tracing.validate()...)
	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func (t TracingConfig) validate() []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("otlp-protocol %q must be grpc or http", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("otlp-sample-rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}

func validateTarget(target string) []string {
	if strings.TrimSpace(target) == "" {
		return []string{"target URL is required (use --help for usage information)"}
	}
	u, err := url.Parse(target)
	if err != nil {
		return []string{fmt.Sprintf("target URL: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return []string{fmt.Sprintf("target URL scheme %q must be http or https", u.Scheme)}
	}
	if u.Host == "" {
		return []string{"target URL must include a host"}
	}
	return nil
}
