package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/torosent/pipebench/internal/runner"
)

type recordingLogger struct{ failures []runner.Outcome }

func (l *recordingLogger) LogFailure(o runner.Outcome) { l.failures = append(l.failures, o) }

func TestWithLoggingReportsOnlyFailures(t *testing.T) {
	calls := 0
	inner := runner.RequesterFunc(func(ctx context.Context) runner.Outcome {
		calls++
		if calls == 2 {
			return runner.Outcome{Status: 503, Err: &runner.HTTPError{StatusCode: 503}}
		}
		return runner.Outcome{Status: 200}
	})
	logger := &recordingLogger{}
	wrapped := runner.WithLogging(inner, logger)

	for i := 0; i < 3; i++ {
		wrapped.Do(context.Background())
	}

	if len(logger.failures) != 1 {
		t.Fatalf("expected 1 logged failure, got %d", len(logger.failures))
	}
	var httpErr *runner.HTTPError
	if !errors.As(logger.failures[0].Err, &httpErr) || httpErr.StatusCode != 503 {
		t.Fatalf("unexpected logged error %v", logger.failures[0].Err)
	}
}

func TestWithLoggingNilLoggerReturnsInner(t *testing.T) {
	inner := runner.RequesterFunc(func(ctx context.Context) runner.Outcome { return runner.Outcome{} })
	if got := runner.WithLogging(inner, nil); got == nil {
		t.Fatal("expected requester")
	}
}

func TestErrorMessages(t *testing.T) {
	if got := (&runner.HTTPError{StatusCode: 404}).Error(); got != "HTTP 404" {
		t.Errorf("HTTPError = %q", got)
	}
	if got := (&runner.BodyError{Size: 3, Min: 10}).Error(); got != "response body 3 bytes, want at least 10" {
		t.Errorf("BodyError = %q", got)
	}
}
