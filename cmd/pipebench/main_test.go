package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/torosent/pipebench/internal/config"
	"github.com/torosent/pipebench/internal/ipc"
	"github.com/torosent/pipebench/internal/output"
	"github.com/torosent/pipebench/internal/procs"
)

const helperEnv = "PIPEBENCH_CLI_HELPER"

// TestMain lets the test binary stand in for pipebench when the coordinator
// re-executes itself to start workers.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		if err := run(os.Args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// lockedBuffer is shared by the coordinator logger and worker stderr copies.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestExecuteWithoutArgsPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), nil, &stdout, &stderr)
	if !errors.Is(err, config.ErrUsage) {
		t.Fatalf("execute() error = %v, want ErrUsage", err)
	}
	if !strings.Contains(stdout.String(), "pipebench [flags] URL") {
		t.Errorf("usage not printed:\n%s", stdout.String())
	}
}

func TestExecuteHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := execute(context.Background(), []string{"--help"}, &stdout, &stderr); err != nil {
		t.Fatalf("execute(--help) error = %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"--workers", "--concurrency", "--batch-size"} {
		if !strings.Contains(out, want) {
			t.Errorf("help missing %s", want)
		}
	}
	if strings.Contains(out, "worker-id") {
		t.Error("help lists the hidden worker subcommand flags")
	}
}

func TestExecuteRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad scheme", []string{"ftp://example.com"}, "http or https"},
		{"zero workers", []string{"--workers=0", "http://example.com"}, "workers must be at least 1"},
		{"rate below workers", []string{"-f", "4", "-r", "2", "http://example.com"}, "below the worker count"},
		{"two urls", []string{"http://a.example", "http://b.example"}, "accepts at most 1 arg"},
		{"bad threshold", []string{"--threshold=latency:p12 < 5", "http://example.com"}, "unsupported aggregate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := execute(context.Background(), tt.args, &stdout, &stderr)
			if err == nil {
				t.Fatal("execute() error = nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestWorkerCommandRejectsMissingTarget(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), []string{workerCommand, "--concurrency=1"}, &stdout, &stderr)
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("execute(worker) error = %v, want ValidationError", err)
	}
}

func TestEndToEndRun(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns worker processes")
	}
	t.Setenv(helperEnv, "1")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	history := filepath.Join(t.TempDir(), "history.jsonl")
	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	var stdout bytes.Buffer
	stderr := &lockedBuffer{}
	args := []string{
		"--workers=2",
		"--concurrency=3",
		"--min-body=5",
		"--tick-interval=50ms",
		"--report=json",
		"--log-level=error",
		"--history-file=" + history,
		"--threshold=errors:count == 0",
		server.URL,
	}
	done := make(chan error, 1)
	go func() { done <- execute(ctx, args, &stdout, stderr) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("execute() error = %v\nstderr:\n%s", err, stderr.String())
		}
	case <-time.After(20 * time.Second):
		t.Fatal("run did not finish after its context expired")
	}

	report := stdout.String()
	if !gjson.Valid(report) {
		t.Fatalf("stdout is not a JSON report:\n%s", report)
	}
	requests := gjson.Get(report, "stats.requests").Uint()
	if requests == 0 || requests%10 != 0 {
		t.Errorf("stats.requests = %d, want a positive multiple of the batch size", requests)
	}
	if got := gjson.Get(report, "stats.errors").Uint(); got != 0 {
		t.Errorf("stats.errors = %d, want 0", got)
	}
	if got := gjson.Get(report, "per_worker.#").Int(); got != 2 {
		t.Errorf("per_worker has %d rows, want 2", got)
	}
	var perWorker uint64
	for _, row := range gjson.Get(report, "per_worker").Array() {
		perWorker += row.Get("requests").Uint()
	}
	if perWorker != requests {
		t.Errorf("per-worker sum = %d, want %d", perWorker, requests)
	}

	if !gjson.Get(report, "thresholds.0.pass").Bool() {
		t.Errorf("errors:count == 0 threshold did not pass: %s", gjson.Get(report, "thresholds").Raw)
	}

	display := stderr.String()
	for _, want := range []string{"Processes:", "Waiting for children to exit...", "Bye"} {
		if !strings.Contains(display, want) {
			t.Errorf("display missing %q:\n%s", want, display)
		}
	}

	runs, err := output.ReadHistory(history)
	if err != nil {
		t.Fatalf("ReadHistory() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Stats.Requests != requests {
		t.Errorf("history = %+v, want one run with %d requests", runs, requests)
	}
}

func TestWorkerProcessIgnoresInterrupt(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns worker processes")
	}
	if runtime.GOOS == "windows" {
		t.Skip("interrupt cannot be sent to a child process on windows")
	}
	t.Setenv(helperEnv, "1")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	cfg, err := config.NewLoader().Load([]string{"--batch-size=1", "--log-level=error", server.URL})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	spawner, err := procs.NewSelfSpawner(func(id int) []string {
		return append([]string{workerCommand}, cfg.Worker(id).Args()...)
	})
	if err != nil {
		t.Fatal(err)
	}
	spawner.Stderr = nil

	proc, err := spawner.Spawn(context.Background(), 0)
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	commands := ipc.NewWriter(ipc.DirectionCommands, proc.Commands())
	results := ipc.NewReader(ipc.DirectionResults, proc.Results())

	first := make(chan struct{})
	announced := make(chan bool, 1)
	go func() {
		var once sync.Once
		sawWillExit := false
		for {
			msg, err := results.Receive()
			if err != nil {
				announced <- sawWillExit
				return
			}
			switch msg.Kind {
			case ipc.KindResult:
				once.Do(func() { close(first) })
			case ipc.KindWillExit:
				sawWillExit = true
			}
		}
	}()

	select {
	case <-first:
	case <-time.After(10 * time.Second):
		_ = proc.Kill()
		t.Fatal("worker sent no result")
	}

	target, err := os.FindProcess(proc.Pid())
	if err != nil {
		t.Fatal(err)
	}
	if err := target.Signal(os.Interrupt); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if err := commands.Send(ipc.ExitMessage()); err != nil {
		t.Errorf("Send(Exit) error = %v; worker died on interrupt", err)
	}
	_ = commands.Close()

	waited := make(chan error, 1)
	go func() { waited <- proc.Wait() }()
	select {
	case err := <-waited:
		if err != nil {
			t.Errorf("worker exit = %v, want clean exit after interrupt", err)
		}
	case <-time.After(10 * time.Second):
		_ = proc.Kill()
		t.Fatal("worker did not exit after Exit")
	}
	if !<-announced {
		t.Error("worker did not announce its exit")
	}
	_ = results.Close()
}
