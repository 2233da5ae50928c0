package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/pipebench/internal/ipc"
	"github.com/torosent/pipebench/internal/metrics"
	"github.com/torosent/pipebench/internal/procs"
)

const (
	DefaultTickInterval    = time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// Renderer draws the coordinator's view after merges and on every tick.
// The snapshot's accumulators are owned by the coordinator and must not be
// retained or modified.
type Renderer interface {
	Render(s Snapshot)
}

// Observer receives every merged Result batch.
type Observer interface {
	Observe(batch *metrics.Accumulator)
}

// Options configure a Coordinator.
type Options struct {
	Workers         int
	TickInterval    time.Duration
	ShutdownTimeout time.Duration // 0 waits for workers indefinitely
	Spawner         procs.Spawner // required
	Renderer        Renderer      // optional
	Observer        Observer      // optional
	OnStop          func()        // called once the loop ends, before workers are told to exit
	Logger          *slog.Logger
}

func (o *Options) normalize() {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.ShutdownTimeout < 0 {
		o.ShutdownTimeout = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Snapshot is the state handed to a Renderer.
type Snapshot struct {
	Elapsed time.Duration
	Total   *metrics.Accumulator
	Workers []WorkerStatus
}

// WorkerStatus summarises one worker handle.
type WorkerStatus struct {
	ID       int
	Pid      int
	Requests uint64
	Errors   uint64
	Alive    bool // results channel still open
}

// Summary is returned by Run once every worker has been joined.
type Summary struct {
	Elapsed time.Duration
	Total   *metrics.Accumulator
	Workers []WorkerStatus
}

// Handle is the coordinator's record of one worker.
type Handle struct {
	ID  int
	Pid int

	proc      procs.Process
	commands  *ipc.Channel
	results   *ipc.Channel
	stats     *metrics.Accumulator
	alive     bool
	announced bool
}

func (h *Handle) status() WorkerStatus {
	return WorkerStatus{
		ID:       h.ID,
		Pid:      h.Pid,
		Requests: h.stats.Requests(),
		Errors:   h.stats.Errors(),
		Alive:    h.alive,
	}
}

type event struct {
	handle *Handle
	msg    ipc.Message
	err    error
}

// Coordinator spawns workers, merges their results and shuts them down.
type Coordinator struct {
	opt      Options
	shutdown atomic.Bool
	total    *metrics.Accumulator
	handles  []*Handle
	start    time.Time
}

func New(opt Options) *Coordinator {
	opt.normalize()
	return &Coordinator{
		opt:   opt,
		total: metrics.NewAccumulator(),
	}
}

// RequestShutdown flags the run for shutdown. It is safe to call from any
// goroutine; the next tick acts on it.
func (c *Coordinator) RequestShutdown() {
	c.shutdown.Store(true)
}

// ShutdownRequested reports whether RequestShutdown has been called.
func (c *Coordinator) ShutdownRequested() bool {
	return c.shutdown.Load()
}

// Run spawns the workers and processes their results until shutdown is
// requested, ctx is cancelled, or every worker has gone away. Either way the
// check happens on a tick. Run returns after all workers have been joined.
func (c *Coordinator) Run(ctx context.Context) (*Summary, error) {
	if c.opt.Spawner == nil {
		return nil, errors.New("coordinator requires a spawner")
	}
	log := c.opt.Logger

	if err := c.spawn(ctx); err != nil {
		// Nothing is merged; readers only keep the started workers unblocked.
		stopped := make(chan struct{})
		close(stopped)
		c.stop(c.startReaders(nil, stopped))
		return nil, err
	}
	c.start = time.Now()
	log.Info("workers started", "workers", len(c.handles))

	events := make(chan event, len(c.handles)*4)
	stopReaders := make(chan struct{})
	readers := c.startReaders(events, stopReaders)

	ticker := time.NewTicker(c.opt.TickInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case ev := <-events:
			c.handle(ev)
		case <-ticker.C:
			c.render()
			if c.shouldStop(ctx) {
				break loop
			}
		}
	}

	elapsed := time.Since(c.start)
	if c.opt.OnStop != nil {
		c.opt.OnStop()
	}
	close(stopReaders)
	c.stop(readers)

	return &Summary{
		Elapsed: elapsed,
		Total:   c.total,
		Workers: c.statuses(),
	}, nil
}

func (c *Coordinator) spawn(ctx context.Context) error {
	for id := 0; id < c.opt.Workers; id++ {
		proc, err := c.opt.Spawner.Spawn(ctx, id)
		if err != nil {
			return fmt.Errorf("spawn worker %d: %w", id, err)
		}
		c.handles = append(c.handles, &Handle{
			ID:       id,
			Pid:      proc.Pid(),
			proc:     proc,
			commands: ipc.NewWriter(ipc.DirectionCommands, proc.Commands()),
			results:  ipc.NewReader(ipc.DirectionResults, proc.Results()),
			stats:    metrics.NewAccumulator(),
			alive:    true,
		})
		c.opt.Logger.Debug("worker spawned", "worker", id, "pid", proc.Pid())
	}
	return nil
}

func (c *Coordinator) startReaders(events chan<- event, stop <-chan struct{}) *sync.WaitGroup {
	var readers sync.WaitGroup
	for _, h := range c.handles {
		readers.Add(1)
		go func(h *Handle) {
			defer readers.Done()
			forward(h, events, stop)
		}(h)
	}
	return &readers
}

// forward relays decoded messages until the channel ends. Once stop is
// closed messages are still read, so a worker is never blocked on a full
// pipe, but they are dropped. A failed channel is closed on return so the
// worker's next write fails instead of blocking.
func forward(h *Handle, events chan<- event, stop <-chan struct{}) {
	defer func() { _ = h.results.Close() }()
	for {
		msg, err := h.results.Receive()
		select {
		case <-stop:
			if err != nil {
				return
			}
			continue
		default:
		}
		select {
		case events <- event{handle: h, msg: msg, err: err}:
		case <-stop:
		}
		if err != nil {
			return
		}
	}
}

func (c *Coordinator) handle(ev event) {
	h := ev.handle
	log := c.opt.Logger.With("worker", h.ID, "pid", h.Pid)
	if ev.err != nil {
		h.alive = false
		var frameErr *ipc.FrameError
		switch {
		case errors.Is(ev.err, io.EOF):
			if h.announced {
				log.Info("worker exited")
			} else {
				log.Warn("worker result channel closed unexpectedly")
			}
		case errors.As(ev.err, &frameErr):
			log.Error("corrupt frame from worker; dropping it", "error", ev.err)
		default:
			log.Error("worker result channel failed", "error", ev.err)
		}
		return
	}

	switch ev.msg.Kind {
	case ipc.KindResult:
		if c.shutdown.Load() {
			return
		}
		c.total.Merge(ev.msg.Result)
		h.stats.Merge(ev.msg.Result)
		if c.opt.Observer != nil {
			c.opt.Observer.Observe(ev.msg.Result)
		}
		c.render()
	case ipc.KindWillExit:
		h.announced = true
		log.Debug("worker announced exit")
	default:
		log.Debug("ignoring message from worker", "kind", ev.msg.Kind)
	}
}

func (c *Coordinator) shouldStop(ctx context.Context) bool {
	if c.shutdown.Load() {
		return true
	}
	if ctx.Err() != nil {
		c.opt.Logger.Info("context cancelled; shutting down")
		c.shutdown.Store(true)
		return true
	}
	for _, h := range c.handles {
		if h.alive {
			return false
		}
	}
	c.opt.Logger.Warn("no workers left; shutting down")
	c.shutdown.Store(true)
	return true
}

func (c *Coordinator) render() {
	if c.opt.Renderer == nil {
		return
	}
	c.opt.Renderer.Render(Snapshot{
		Elapsed: time.Since(c.start),
		Total:   c.total,
		Workers: c.statuses(),
	})
}

func (c *Coordinator) statuses() []WorkerStatus {
	out := make([]WorkerStatus, 0, len(c.handles))
	for _, h := range c.handles {
		out = append(out, h.status())
	}
	return out
}

// stop runs the two-phase exit: every worker is told to exit, then every
// worker is joined. Workers still running after ShutdownTimeout are killed.
func (c *Coordinator) stop(readers *sync.WaitGroup) {
	c.shutdown.Store(true)
	log := c.opt.Logger

	for _, h := range c.handles {
		if err := h.commands.Send(ipc.ExitMessage()); err != nil {
			log.Debug("exit not delivered", "worker", h.ID, "error", err)
		}
		_ = h.commands.Close()
	}

	var joined sync.WaitGroup
	for _, h := range c.handles {
		joined.Add(1)
		go func(h *Handle) {
			defer joined.Done()
			c.join(h)
		}(h)
	}
	joined.Wait()

	for _, h := range c.handles {
		_ = h.results.Close()
	}
	readers.Wait()
	log.Info("all workers joined", "workers", len(c.handles))
}

func (c *Coordinator) join(h *Handle) {
	log := c.opt.Logger.With("worker", h.ID, "pid", h.Pid)
	done := make(chan error, 1)
	go func() { done <- h.proc.Wait() }()

	var timeout <-chan time.Time
	if c.opt.ShutdownTimeout > 0 {
		timer := time.NewTimer(c.opt.ShutdownTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-done:
		if err != nil {
			log.Warn("worker exited with error", "error", err)
		}
	case <-timeout:
		log.Warn("worker did not exit in time; killing it", "timeout", c.opt.ShutdownTimeout)
		if err := h.proc.Kill(); err != nil {
			log.Error("kill worker", "error", err)
		}
		<-done
	}
}
