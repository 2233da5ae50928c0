package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/torosent/pipebench/internal/ipc"
	"github.com/torosent/pipebench/internal/metrics"
)

// State is a worker's lifecycle stage.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var errExitRequested = errors.New("exit requested")

// Worker drives concurrent request cycles and streams accumulator batches
// over a results channel until told to exit.
type Worker struct {
	opt     Options
	state   atomic.Int32
	flushes atomic.Int64
}

func New(opt Options) *Worker {
	opt.normalize()
	return &Worker{opt: opt}
}

func (w *Worker) State() State { return State(w.state.Load()) }

// Flushes returns how many Result messages were sent.
func (w *Worker) Flushes() int64 { return w.flushes.Load() }

// Run starts the request cycles and blocks until an Exit command arrives,
// the command channel breaks, or ctx is cancelled; all three drain the
// worker and return nil. In-flight requests are abandoned, not awaited.
// A failure to deliver results is returned as an error.
func (w *Worker) Run(ctx context.Context, commands, results *ipc.Channel) error {
	w.state.Store(int32(StateRunning))
	defer w.state.Store(int32(StateTerminated))

	g, ctx := errgroup.WithContext(ctx)
	cyclesCtx, stopCycles := context.WithCancel(ctx)
	defer stopCycles()

	outcomes := make(chan Outcome, w.opt.Concurrency)
	limiter := w.opt.LimiterFactory(w.opt.RatePerSecond)
	for i := 0; i < w.opt.Concurrency; i++ {
		go w.cycle(cyclesCtx, limiter, outcomes)
	}

	g.Go(func() error { return w.listen(commands) })
	g.Go(func() error { return w.aggregate(ctx, outcomes, results) })
	g.Go(func() error {
		<-ctx.Done()
		w.state.Store(int32(StateDraining))
		stopCycles()
		// Unblocks the listener when draining started elsewhere.
		_ = commands.Close()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, errExitRequested) {
		err = nil
	}
	if err == nil {
		// Best effort; the coordinator may already be gone.
		_ = results.Send(ipc.WillExitMessage())
	}
	return err
}

func (w *Worker) listen(commands *ipc.Channel) error {
	log := w.opt.Logger.With("channel", commands.Direction())
	for {
		msg, err := commands.Receive()
		switch {
		case errors.Is(err, io.EOF):
			log.Debug("command channel closed")
			return errExitRequested
		case err != nil:
			log.Warn("command channel broken", "error", err)
			return errExitRequested
		case msg.Kind == ipc.KindExit:
			log.Debug("exit command received")
			return errExitRequested
		default:
			log.Debug("ignoring command", "kind", msg.Kind)
		}
	}
}

// aggregate owns the accumulator: every outcome is folded here, so batches
// leave in the order they crossed the flush threshold.
func (w *Worker) aggregate(ctx context.Context, outcomes <-chan Outcome, results *ipc.Channel) error {
	acc := metrics.NewAccumulator()
	for {
		select {
		case <-ctx.Done():
			return nil
		case o := <-outcomes:
			acc.Record(o.Status, o.Latency, o.Err != nil)
			if !acc.ShouldFlush(w.opt.BatchSize) {
				continue
			}
			if err := results.Send(ipc.ResultMessage(acc)); err != nil {
				return fmt.Errorf("flush results: %w", err)
			}
			w.flushes.Add(1)
			acc.Reset()
		}
	}
}

func (w *Worker) cycle(ctx context.Context, limiter *rate.Limiter, out chan<- Outcome) {
	for ctx.Err() == nil {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		o := w.opt.Requester.Do(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- o:
		case <-ctx.Done():
			return
		}
	}
}
