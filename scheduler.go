package mandel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// State of a render.
type State int32

const (
	Idle State = iota
	Rendering
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Rendering:
		return "rendering"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var errCancelled = errors.New("render cancelled")

// Scheduler owns a viewport and runs progressive renders of it, one at a time.
type Scheduler struct {
	cfg config

	m        sync.Mutex
	viewport Viewport
	active   *Render
}

// NewScheduler validates the options and the initial viewport.
func NewScheduler(vp Viewport, opts ...Option) (*Scheduler, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := vp.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{cfg: cfg, viewport: vp}, nil
}

// Threads returns the worker pool size.
func (s *Scheduler) Threads() int {
	return s.cfg.threads
}

// Evaluator returns the evaluator every render uses.
func (s *Scheduler) Evaluator() Evaluator {
	return s.cfg.eval
}

// Viewport returns the viewport of the current or last render.
func (s *Scheduler) Viewport() Viewport {
	s.m.Lock()
	defer s.m.Unlock()
	return s.viewport
}

// SetViewport replaces the viewport between renders.
func (s *Scheduler) SetViewport(vp Viewport) error {
	if err := vp.Validate(); err != nil {
		return err
	}
	s.m.Lock()
	defer s.m.Unlock()
	if s.rendering() {
		return ErrRenderActive
	}
	s.viewport = vp
	return nil
}

// State returns the state of the current or last render, Idle if there was none.
func (s *Scheduler) State() State {
	s.m.Lock()
	r := s.active
	s.m.Unlock()
	if r == nil {
		return Idle
	}
	return r.State()
}

// Start begins a progressive render of vp into sink and returns without waiting for it.
// The render stops early when ctx ends or the returned Render is cancelled.
func (s *Scheduler) Start(ctx context.Context, vp Viewport, sink Sink) (*Render, error) {
	if err := vp.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, &ConfigError{Field: "sink", Reason: "nil"}
	}

	s.m.Lock()
	defer s.m.Unlock()
	if s.rendering() {
		return nil, ErrRenderActive
	}

	s.viewport = vp
	s.active = s.launch(ctx, vp, sink)
	return s.active, nil
}

// Restart cancels and joins the running render, if any, then starts a new one.
func (s *Scheduler) Restart(ctx context.Context, vp Viewport, sink Sink) (*Render, error) {
	for {
		s.m.Lock()
		prev := s.active
		s.m.Unlock()
		if prev != nil {
			prev.Cancel()
			prev.Wait()
		}

		r, err := s.Start(ctx, vp, sink)
		if errors.Is(err, ErrRenderActive) {
			// lost the race against another Start
			continue
		}
		return r, err
	}
}

// rendering must be called with s.m held.
func (s *Scheduler) rendering() bool {
	return s.active != nil && s.active.State() == Rendering
}

func (s *Scheduler) launch(ctx context.Context, vp Viewport, sink Sink) *Render {
	log := s.cfg.log()
	block := s.cfg.blockSize(vp.Width)
	rc := newRenderContext(vp, s.cfg, block, sink, log)

	renderCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(renderCtx)
	stopHalt := context.AfterFunc(egCtx, rc.halt)
	if egCtx.Err() != nil {
		// ctx already done, stop before the first claim
		rc.halt()
	}

	r := &Render{
		rc:     rc,
		cancel: cancel,
		done:   make(chan struct{}),
		start:  time.Now(),
	}
	r.state.Store(int32(Rendering))

	log.Info("render started",
		slog.String("viewport", vp.String()),
		slog.Int("threads", s.cfg.threads),
		slog.Int("block", block),
		slog.Int("phases", Phases(block)),
	)

	for id := range s.cfg.threads {
		eg.Go(func() error {
			return rc.work(id)
		})
	}

	go func() {
		err := eg.Wait()
		stopHalt()
		cancel(nil)
		r.finish(err)
	}()

	return r
}

// Stats describes the progress of a render.
type Stats struct {
	State     State
	Phases    int // completed phases
	BlockSize int // block size of the phase in progress, or of the last one
	Results   int64
	Elapsed   time.Duration
}

// Render is the handle of one progressive render.
type Render struct {
	rc     *renderContext
	cancel context.CancelCauseFunc
	done   chan struct{}
	start  time.Time

	state   atomic.Int32
	err     error         // set before done is closed
	elapsed time.Duration // set before done is closed
}

// Cancel asks the workers to stop at their next row boundary and returns immediately.
func (r *Render) Cancel() {
	r.cancel(errCancelled)
	r.rc.halt()
}

// Wait blocks until every worker has exited and returns the final state,
// Completed or Cancelled. The error is a *WorkerFault if a worker panicked;
// a cancellation alone is not an error.
func (r *Render) Wait() (State, error) {
	<-r.done
	return r.State(), r.err
}

// Done is closed when the render has finished.
func (r *Render) Done() <-chan struct{} {
	return r.done
}

// State returns Rendering until the workers are joined.
func (r *Render) State() State {
	return State(r.state.Load())
}

// Viewport returns the viewport being rendered.
func (r *Render) Viewport() Viewport {
	return r.rc.vp
}

// Stats returns the render's progress so far.
func (r *Render) Stats() Stats {
	phases, block, _ := r.rc.barrier.snapshot()
	st := Stats{
		State:     r.State(),
		Phases:    phases,
		BlockSize: block,
		Results:   r.rc.results.Load(),
	}
	select {
	case <-r.done:
		st.Elapsed = r.elapsed
	default:
		st.Elapsed = time.Since(r.start)
	}
	return st
}

func (r *Render) finish(err error) {
	phases, _, terminal := r.rc.barrier.snapshot()
	r.elapsed = time.Since(r.start)

	state := Cancelled
	switch {
	case err != nil:
		r.err = err
		r.rc.log.Error("render failed", slog.Any("err", err), slog.Int("phases", phases), slog.Duration("elapsed", r.elapsed))
	case terminal:
		state = Completed
		r.rc.log.Info("render completed", slog.Int("phases", phases), slog.Int64("results", r.rc.results.Load()), slog.Duration("elapsed", r.elapsed))
	default:
		r.rc.log.Info("render cancelled", slog.Int("phases", phases), slog.Int64("results", r.rc.results.Load()), slog.Duration("elapsed", r.elapsed))
	}

	r.state.Store(int32(state))
	close(r.done)
}

// renderContext is the state shared by the workers of one render.
type renderContext struct {
	vp   Viewport
	eval Evaluator
	sink Sink
	log  *slog.Logger

	mu      sync.Mutex // guards cursor and barrier
	cursor  *workCursor
	barrier *phaseBarrier

	stop    atomic.Bool
	results atomic.Int64

	onClaim func(worker, blockSize, start, end int)
}

func newRenderContext(vp Viewport, cfg config, block int, sink Sink, log *slog.Logger) *renderContext {
	rc := &renderContext{
		vp:      vp,
		eval:    cfg.eval,
		sink:    sink,
		log:     log,
		onClaim: cfg.onClaim,
	}
	rc.cursor = newWorkCursor(&rc.mu, block, cfg.rowSpan, vp.Height)
	rc.barrier = newPhaseBarrier(&rc.mu, rc.cursor, cfg.threads)
	rc.barrier.onPhase = func(finished int, next phaseAction) {
		if next.kind == actionRefine {
			rc.log.Debug("phase completed", slog.Int("block", finished), slog.Int("next", next.blockSize), slog.Int64("results", rc.results.Load()))
			return
		}
		rc.log.Debug("final phase completed", slog.Int("block", finished), slog.Int64("results", rc.results.Load()))
	}
	return rc
}

// halt raises the cancellation flag and releases workers parked at the barrier.
func (rc *renderContext) halt() {
	rc.stop.Store(true)
	rc.barrier.abort()
}

// work is the loop of worker id. It returns a *WorkerFault if the worker panicked.
func (rc *renderContext) work(id int) (err error) {
	defer func() {
		if v := recover(); v != nil {
			fault := &WorkerFault{Worker: id, Value: v, Stack: debug.Stack()}
			rc.log.Error("worker fault", slog.Int("worker", id), slog.Any("panic", v), slog.String("stack", string(fault.Stack)))
			rc.halt()
			err = fault
		}
	}()

	for {
		if rc.stop.Load() {
			return nil
		}

		start, end, block, ok := rc.cursor.claim()
		if !ok {
			if act := rc.barrier.arriveAndWait(id); act.kind != actionRefine {
				return nil
			}
			continue
		}
		if rc.onClaim != nil {
			rc.onClaim(id, block, start, end)
		}

		for y := start; y < end; y += block {
			if rc.stop.Load() {
				return nil
			}
			rc.renderRow(y, block)
		}
	}
}

// renderRow evaluates one cell every block pixels along row y.
func (rc *renderContext) renderRow(y, block int) {
	n := 0
	for x := 0; x < rc.vp.Width; x += block {
		x0, y0 := rc.vp.PixelToComplex(x, y)
		rc.sink.Accept(PixelResult{
			X:         x,
			Y:         y,
			BlockSize: block,
			Iteration: rc.eval.Escape(x0, y0),
		})
		n++
	}
	rc.results.Add(int64(n))
}
