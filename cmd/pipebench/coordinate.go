package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/pipebench/internal/config"
	"github.com/torosent/pipebench/internal/coordinator"
	"github.com/torosent/pipebench/internal/dashboard"
	"github.com/torosent/pipebench/internal/exporter"
	"github.com/torosent/pipebench/internal/logging"
	"github.com/torosent/pipebench/internal/output"
	"github.com/torosent/pipebench/internal/procs"
	"github.com/torosent/pipebench/internal/threshold"
)

const metricsShutdownTimeout = 2 * time.Second

func runCoordinator(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseAll(cfg.Thresholds)
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		fmt.Fprintf(stderr, "Warning: %s\n", w)
	}
	if cfg.RunID == "" {
		cfg.RunID = ulid.Make().String()
	}

	// Machine-readable reports keep stdout clean.
	display := stdout
	if cfg.ReportFormat != config.ReportFormatText {
		display = stderr
	}
	logOut, workerErr := stderr, stderr
	if cfg.Dashboard {
		// The dashboard owns the terminal.
		logOut, workerErr = io.Discard, nil
	}
	logger := logging.Setup(logOut, cfg.Level()).With("run_id", cfg.RunID)

	spawner, err := procs.NewSelfSpawner(func(id int) []string {
		return append([]string{workerCommand}, cfg.Worker(id).Args()...)
	})
	if err != nil {
		return err
	}
	spawner.Stderr = workerErr

	var coord *coordinator.Coordinator
	opts := coordinator.Options{
		Workers:         cfg.Workers,
		TickInterval:    cfg.TickInterval,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Spawner:         spawner,
		Logger:          logger,
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(dashboard.RunConfig{
			TargetURL:   cfg.TargetURL,
			Workers:     cfg.Workers,
			Concurrency: cfg.Concurrency,
			Rate:        cfg.Rate,
			Timeout:     cfg.Timeout,
			RunID:       cfg.RunID,
			ConfigFile:  cfg.ConfigFile,
		}, func() { coord.RequestShutdown() })
		if err != nil {
			return err
		}
		opts.Renderer = dash
	} else {
		output.PrintHeader(display, output.Header{
			URL:         cfg.TargetURL,
			Processes:   cfg.Workers,
			Concurrency: cfg.Concurrency,
			RunID:       cfg.RunID,
		})
		live := output.NewLiveSummary(display)
		opts.Renderer = live
		opts.OnStop = func() {
			live.Note("\nWaiting for children to exit...")
		}
	}

	if cfg.MetricsAddr != "" {
		exp := exporter.New(cfg.RunID, logger)
		if _, err := exp.Start(cfg.MetricsAddr); err != nil {
			if dash != nil {
				dash.Stop()
			}
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			_ = exp.Shutdown(shutdownCtx)
		}()
		opts.Observer = exp
	}

	coord = coordinator.New(opts)
	stopSignals := watchInterrupt(coord)
	defer stopSignals()

	if dash != nil {
		dash.Start()
	}
	startedAt := time.Now()
	summary, err := coord.Run(ctx)
	if dash != nil {
		dash.Stop()
	}
	if err != nil {
		return err
	}

	report := output.Report{
		RunID:       cfg.RunID,
		Target:      cfg.TargetURL,
		Workers:     cfg.Workers,
		Concurrency: cfg.Concurrency,
		StartedAt:   startedAt,
		Stats:       summary.Total.Stats(summary.Elapsed),
		PerWorker:   output.WorkerRows(summary.Workers),
		Latency:     summary.Total.HistogramBars(),
	}
	report.Thresholds = threshold.Evaluate(thresholds, report.Stats)
	if err := output.Write(stdout, string(cfg.ReportFormat), report); err != nil {
		return err
	}
	if cfg.HistoryFile != "" {
		if err := output.AppendHistory(cfg.HistoryFile, report); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}
	fmt.Fprintln(display, "Bye")
	if failed := threshold.Failed(report.Thresholds); failed > 0 {
		return fmt.Errorf("%d of %d thresholds failed", failed, len(report.Thresholds))
	}
	return nil
}

// watchInterrupt flags shutdown on os.Interrupt. The coordinator acts on the
// flag at its next tick.
func watchInterrupt(coord *coordinator.Coordinator) (stop func()) {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigs, os.Interrupt)
	go func() {
		for {
			select {
			case <-sigs:
				coord.RequestShutdown()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
