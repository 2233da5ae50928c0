package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/torosent/pipebench/internal/config"
	"github.com/torosent/pipebench/internal/ipc"
	"github.com/torosent/pipebench/internal/runner"
)

func TestRunWorkerStreamsBatchesUntilExit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	cmdR, cmdW := io.Pipe()
	resR, resW := io.Pipe()
	wc := &config.WorkerConfig{
		TargetURL:   server.URL,
		Concurrency: 2,
		BatchSize:   5,
		LogLevel:    "error",
	}

	var stderr bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- runWorker(context.Background(), wc, cmdR, resW, &stderr) }()

	results := ipc.NewReader(ipc.DirectionResults, resR)
	msg, err := results.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if msg.Kind != ipc.KindResult {
		t.Fatalf("first message kind = %v, want Result", msg.Kind)
	}
	if got := msg.Result.Requests(); got != 5 {
		t.Errorf("batch requests = %d, want 5", got)
	}

	// Keep draining so the worker is never blocked on the pipe.
	kinds := make(chan ipc.Kind, 64)
	go func() {
		defer close(kinds)
		for {
			m, err := results.Receive()
			if err != nil {
				return
			}
			kinds <- m.Kind
		}
	}()

	commands := ipc.NewWriter(ipc.DirectionCommands, cmdW)
	if err := commands.Send(ipc.ExitMessage()); err != nil {
		t.Fatalf("Send(Exit) error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runWorker() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after Exit")
	}

	var sawWillExit bool
	for k := range kinds {
		if k == ipc.KindWillExit {
			sawWillExit = true
		}
	}
	if !sawWillExit {
		t.Error("worker did not announce its exit")
	}
}

func TestRunWorkerRejectsBadTarget(t *testing.T) {
	cmdR, _ := io.Pipe()
	_, resW := io.Pipe()
	wc := &config.WorkerConfig{TargetURL: "://nope", Concurrency: 1, BatchSize: 1}
	if err := runWorker(context.Background(), wc, cmdR, resW, io.Discard); err == nil {
		t.Fatal("runWorker() error = nil, want invalid target")
	}
}

func TestSlogFailureLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := &slogFailureLogger{logger: slog.New(slog.NewTextHandler(&buf, nil))}
	logger.LogFailure(runner.Outcome{
		Status:  503,
		Latency: 12 * time.Millisecond,
		Err:     &runner.HTTPError{StatusCode: 503},
	})
	logger.LogFailure(runner.Outcome{Status: 599, Err: errors.New("connection refused")})

	out := buf.String()
	for _, want := range []string{"request failed", "status=503", "error=\"HTTP 503\"", "status=599", "connection refused"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}
