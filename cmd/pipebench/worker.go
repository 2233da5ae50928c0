package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/pipebench/internal/config"
	"github.com/torosent/pipebench/internal/httpclient"
	"github.com/torosent/pipebench/internal/ipc"
	"github.com/torosent/pipebench/internal/logging"
	"github.com/torosent/pipebench/internal/procs"
	"github.com/torosent/pipebench/internal/runner"
	"github.com/torosent/pipebench/internal/tracing"
)

const tracingShutdownTimeout = 5 * time.Second

func newWorkerCommand(stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:    workerCommand,
		Short:  "Run one load worker on the pipes inherited from the coordinator",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wc, err := config.NewLoader().LoadWorker(cmd.Flags())
			if err != nil {
				return err
			}
			commands, results, err := procs.WorkerPipes()
			if err != nil {
				return err
			}
			return runWorker(cmd.Context(), wc, commands, results, stderr)
		},
	}
	config.RegisterWorkerFlags(cmd)
	return cmd
}

func runWorker(ctx context.Context, wc *config.WorkerConfig, commands io.ReadCloser, results io.WriteCloser, stderr io.Writer) error {
	logger := logging.New(stderr, wc.Level()).With("worker", wc.WorkerID, "run_id", wc.RunID)

	provider, err := tracing.Init(ctx, wc.Tracing,
		attribute.Int("pipebench.worker", wc.WorkerID),
		attribute.String("pipebench.run_id", wc.RunID),
	)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	var tracer trace.Tracer
	if provider.Enabled() {
		tracer = provider.Tracer()
	}
	prober, err := httpclient.NewProber(httpclient.NewClient(wc.Timeout), httpclient.ProberOptions{
		URL:          wc.TargetURL,
		MinBodyBytes: wc.MinBodyBytes,
		Tracer:       tracer,
	})
	if err != nil {
		return err
	}

	var requester runner.Requester = prober
	if wc.LogFailures {
		requester = runner.WithLogging(requester, &slogFailureLogger{logger: logger})
	}

	w := runner.New(runner.Options{
		Concurrency:   wc.Concurrency,
		BatchSize:     wc.BatchSize,
		RatePerSecond: wc.Rate,
		Requester:     requester,
		Logger:        logger,
	})
	logger.Debug("worker started", "pid", os.Getpid(), "concurrency", wc.Concurrency, "rate", wc.Rate)

	resultCh := ipc.NewWriter(ipc.DirectionResults, results)
	err = w.Run(ctx, ipc.NewReader(ipc.DirectionCommands, commands), resultCh)
	_ = resultCh.Close()
	if err != nil {
		logger.Error("worker stopped", "error", err)
		return err
	}
	logger.Debug("worker exiting", "flushes", w.Flushes())
	return nil
}

type slogFailureLogger struct {
	logger *slog.Logger
}

func (l *slogFailureLogger) LogFailure(o runner.Outcome) {
	l.logger.Warn("request failed", "status", o.Status, "latency", o.Latency, "error", o.Err)
}
