package runner

import (
	"context"
	"fmt"
)

// HTTPError represents a response with a non-success status.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// BodyError represents a response body shorter than the required minimum.
type BodyError struct {
	Size int64
	Min  int64
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("response body %d bytes, want at least %d", e.Size, e.Min)
}

// FailureLogger logs failed requests.
type FailureLogger interface {
	LogFailure(o Outcome)
}

// loggingRequester wraps a Requester with failure logging.
type loggingRequester struct {
	inner  Requester
	logger FailureLogger
}

// WithLogging wraps a Requester to log failures.
func WithLogging(req Requester, logger FailureLogger) Requester {
	if logger == nil {
		return req
	}
	return &loggingRequester{
		inner:  req,
		logger: logger,
	}
}

func (l *loggingRequester) Do(ctx context.Context) Outcome {
	o := l.inner.Do(ctx)
	if o.Err != nil && ctx.Err() == nil {
		l.logger.LogFailure(o)
	}
	return o
}
