package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/pipebench/internal/metrics"
	"github.com/torosent/pipebench/internal/runner"
	"github.com/torosent/pipebench/internal/tracing"
)

// ProberOptions configure a Prober.
type ProberOptions struct {
	URL          string
	MinBodyBytes int64        // bodies shorter than this are errors
	Tracer       trace.Tracer // optional; enables a client span and trace headers per request
}

// Prober issues one GET per call and classifies the response.
type Prober struct {
	client  *http.Client
	target  string
	minBody int64
	tracer  trace.Tracer
}

var _ runner.Requester = (*Prober)(nil)

func NewProber(client *http.Client, opts ProberOptions) (*Prober, error) {
	if client == nil {
		return nil, errors.New("http client cannot be nil")
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("target URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("target URL %q must be absolute", opts.URL)
	}
	minBody := opts.MinBodyBytes
	if minBody < 0 {
		minBody = 0
	}
	return &Prober{
		client:  client,
		target:  u.String(),
		minBody: minBody,
		tracer:  opts.Tracer,
	}, nil
}

// Do fetches the target and reads the whole body. Latency covers the full
// exchange. Transport failures report metrics.StatusTransportError.
func (p *Prober) Do(ctx context.Context) runner.Outcome {
	if p.tracer != nil {
		var span trace.Span
		ctx, span = tracing.StartRequestSpan(ctx, p.tracer, p.target)
		o := p.fetch(ctx, true)
		tracing.EndSpan(span, o.Status, o.Err)
		return o
	}
	return p.fetch(ctx, false)
}

func (p *Prober) fetch(ctx context.Context, propagate bool) runner.Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return runner.Outcome{Status: metrics.StatusTransportError, Err: err}
	}
	if propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return runner.Outcome{
			Status:  metrics.StatusTransportError,
			Latency: time.Since(start),
			Err:     err,
		}
	}
	size, readErr := io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	latency := time.Since(start)

	outcome := runner.Outcome{Status: resp.StatusCode, Latency: latency}
	switch {
	case readErr != nil:
		outcome.Err = fmt.Errorf("read body: %w", readErr)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		outcome.Err = &runner.HTTPError{StatusCode: resp.StatusCode}
	case size < p.minBody:
		outcome.Err = &runner.BodyError{Size: size, Min: p.minBody}
	}
	return outcome
}
