package config

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	DefaultWorkers         = 1
	DefaultConcurrency     = 10
	DefaultBatchSize       = 10
	DefaultTickInterval    = time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// RegisterFlags registers the coordinator flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// RegisterWorkerFlags registers the flags understood by the worker subcommand.
func RegisterWorkerFlags(cmd *cobra.Command) {
	configureWorkerFlags(cmd.Flags())
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pipebench [flags] URL",
		Short:         "Multi-process HTTP GET load generator",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	// Load shape
	flags.String("target", "", "Target URL (alternative to the positional argument)")
	flags.IntP("workers", "f", DefaultWorkers, "Number of worker processes")
	flags.IntP("concurrency", "c", DefaultConcurrency, "Concurrent request cycles per worker process")
	flags.IntP("rate", "r", 0, "Total requests per second across all workers (0 means unlimited)")
	flags.Int64("min-body", 0, "Minimum response body size in bytes; smaller bodies count as errors")
	flags.Duration("timeout", 0, "Per-request timeout (0 disables it)")

	// Coordination
	flags.Int("batch-size", DefaultBatchSize, "Requests folded into each result batch a worker sends")
	flags.Duration("tick-interval", DefaultTickInterval, "How often the coordinator checks for shutdown")
	flags.Duration("shutdown-timeout", DefaultShutdownTimeout, "How long to wait for workers to exit before killing them")

	// Output
	flags.Bool("dashboard", false, "Show live terminal dashboard instead of the three-line summary")
	flags.String("report", string(ReportFormatText), "Final report format: text, json, yaml or html")
	flags.String("history-file", "", "Append a JSON line per run to this file")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.Bool("log-failures", false, "Log each failed request from the workers")
	flags.String("config", "", "Path to configuration file (YAML, JSON or TOML)")
	flags.StringArray("threshold", nil, "Assertion on the final report, e.g. 'latency:p99 < 250' (repeatable; a failure exits 1)")

	configureTracingFlags(flags)
}

func configureWorkerFlags(flags *pflag.FlagSet) {
	flags.String("target", "", "Target URL")
	flags.Int("concurrency", DefaultConcurrency, "Concurrent request cycles")
	flags.Int("rate", 0, "Requests per second for this worker (0 means unlimited)")
	flags.Int64("min-body", 0, "Minimum response body size in bytes")
	flags.Duration("timeout", 0, "Per-request timeout")
	flags.Int("batch-size", DefaultBatchSize, "Requests per result batch")
	flags.Int("worker-id", 0, "Worker index assigned by the coordinator")
	flags.String("run-id", "", "Run identifier assigned by the coordinator")
	flags.String("log-level", "info", "Log level")
	flags.Bool("log-failures", false, "Log each failed request")

	configureTracingFlags(flags)
}

func configureTracingFlags(flags *pflag.FlagSet) {
	flags.String("otlp-endpoint", "", "OTLP collector endpoint; enables request tracing when set")
	flags.String("otlp-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("otlp-insecure", false, "Disable TLS for the OTLP exporter")
	flags.String("otlp-service-name", "pipebench", "Service name reported on exported spans")
	flags.Float64("otlp-sample-rate", 1.0, "Fraction of request cycles to trace (0.0-1.0)")
}
