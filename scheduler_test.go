package mandel

import (
	"context"
	"errors"
	"image"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// collectSink stores every result it receives.
type collectSink struct {
	mu      sync.Mutex
	results []PixelResult
}

func (s *collectSink) Accept(r PixelResult) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
}

func (s *collectSink) all() []PixelResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PixelResult(nil), s.results...)
}

// withClaimHook records cursor claims.
func withClaimHook(f func(worker, blockSize, start, end int)) Option {
	return func(c *config) {
		c.onClaim = f
	}
}

func waitRender(t *testing.T, r *Render) (State, error) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("render did not finish")
	}
	return r.Wait()
}

func mustScheduler(t *testing.T, vp Viewport, opts ...Option) *Scheduler {
	t.Helper()
	s, err := NewScheduler(vp, opts...)
	if err != nil {
		t.Fatalf("NewScheduler() = %v", err)
	}
	return s
}

func TestRenderCoversFinalPhaseOnce(t *testing.T) {
	vp := NewViewport(Classic, 37, 23)

	for _, threads := range []int{1, 2, 8} {
		s := mustScheduler(t, vp, WithThreads(threads), WithMaxIterations(200), WithInitialBlockSize(8))
		sink := &collectSink{}

		r, err := s.Start(context.Background(), vp, sink)
		if err != nil {
			t.Fatalf("Start() = %v", err)
		}
		state, err := waitRender(t, r)
		if state != Completed || err != nil {
			t.Fatalf("threads %d: Wait() = %v, %v, want completed, nil", threads, state, err)
		}

		seen := make(map[image.Point]int)
		for _, res := range sink.all() {
			if res.Iteration < 0 || res.Iteration > 200 {
				t.Errorf("result %+v outside [0, 200]", res)
			}
			if res.BlockSize == 1 {
				seen[image.Pt(res.X, res.Y)]++
			}
		}
		for y := range vp.Height {
			for x := range vp.Width {
				if n := seen[image.Pt(x, y)]; n != 1 {
					t.Fatalf("threads %d: pixel (%d, %d) got %d final results, want 1", threads, x, y, n)
				}
			}
		}
		if len(seen) != vp.Width*vp.Height {
			t.Errorf("threads %d: %d final pixels, want %d", threads, len(seen), vp.Width*vp.Height)
		}
	}
}

func TestRenderPhases(t *testing.T) {
	tests := []struct {
		name    string
		width   int
		initial int
		blocks  []int
	}{
		{"explicit power of two", 40, 8, []int{8, 4, 2, 1}},
		{"rounded up", 40, 6, []int{8, 4, 2, 1}},
		{"rounded up past width", 40, 33, []int{64, 32, 16, 8, 4, 2, 1}},
		{"default quarter width", 64, 0, []int{16, 8, 4, 2, 1}},
		{"narrow raster", 3, 0, []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp := NewViewport(Classic, tt.width, 10)
			s := mustScheduler(t, vp, WithThreads(3), WithMaxIterations(50), WithInitialBlockSize(tt.initial))
			sink := &collectSink{}

			r, err := s.Start(context.Background(), vp, sink)
			if err != nil {
				t.Fatalf("Start() = %v", err)
			}
			if state, err := waitRender(t, r); state != Completed || err != nil {
				t.Fatalf("Wait() = %v, %v", state, err)
			}

			counts := make(map[int]int)
			for _, res := range sink.all() {
				counts[res.BlockSize]++
			}
			if len(counts) != len(tt.blocks) {
				t.Fatalf("block sizes %v, want %v", counts, tt.blocks)
			}
			for _, b := range tt.blocks {
				want := ((tt.width + b - 1) / b) * ((10 + b - 1) / b)
				if counts[b] != want {
					t.Errorf("block %d: %d results, want %d", b, counts[b], want)
				}
			}

			st := r.Stats()
			if st.Phases != len(tt.blocks) || st.Phases != Phases(tt.blocks[0]) {
				t.Errorf("Stats().Phases = %d, want %d", st.Phases, len(tt.blocks))
			}
			if st.BlockSize != 1 || st.State != Completed {
				t.Errorf("Stats() = %+v, want block 1, completed", st)
			}
			if st.Results != int64(len(sink.all())) {
				t.Errorf("Stats().Results = %d, want %d", st.Results, len(sink.all()))
			}
		})
	}
}

func TestPhasesCount(t *testing.T) {
	for b, want := range map[int]int{0: 1, 1: 1, 2: 2, 3: 3, 4: 3, 6: 4, 128: 8, 129: 9, 200: 9, 256: 9} {
		if got := Phases(b); got != want {
			t.Errorf("Phases(%d) = %d, want %d", b, got, want)
		}
	}
}

func TestSchedulerEvaluator(t *testing.T) {
	s := mustScheduler(t, NewViewport(Classic, 8, 8), WithMaxIterations(200), WithEscapeRadiusSq(4), WithSmooth(true))
	e := s.Evaluator()
	if e.MaxIter != 200 || e.EscapeRadiusSq != 4 || !e.Smooth {
		t.Errorf("Evaluator() = %+v, want max 200, radius² 4, smooth", e)
	}
}

func TestInitialBlockSize(t *testing.T) {
	tests := []struct {
		initial, width int
		block, phases  int
	}{
		{0, 800, 256, 9},
		{0, 64, 16, 5},
		{0, 3, 1, 1},
		{1, 800, 1, 1},
		{6, 40, 8, 4},
		{8, 40, 8, 4},
		{200, 800, 256, 9},
	}
	for _, tt := range tests {
		c := defaultConfig()
		c.initialBlock = tt.initial
		got := c.blockSize(tt.width)
		if got != tt.block {
			t.Errorf("blockSize(initial %d, width %d) = %d, want %d", tt.initial, tt.width, got, tt.block)
		}
		if p := Phases(got); p != tt.phases {
			t.Errorf("Phases(%d) = %d, want %d", got, p, tt.phases)
		}
	}
}

func TestClaimsPartitionEachPhase(t *testing.T) {
	const height = 45
	vp := NewViewport(ElephantValley, 30, height)

	for _, threads := range []int{1, 2, 8} {
		var (
			mu     sync.Mutex
			claims = make(map[int][]rowRange)
		)
		hook := withClaimHook(func(_, block, start, end int) {
			mu.Lock()
			claims[block] = append(claims[block], rowRange{start, end})
			mu.Unlock()
		})
		s := mustScheduler(t, vp, WithThreads(threads), WithMaxIterations(100), WithInitialBlockSize(8), WithRowSpan(2), hook)

		r, err := s.Start(context.Background(), vp, SinkFunc(func(PixelResult) {}))
		if err != nil {
			t.Fatalf("Start() = %v", err)
		}
		if state, err := waitRender(t, r); state != Completed || err != nil {
			t.Fatalf("threads %d: Wait() = %v, %v", threads, state, err)
		}

		if len(claims) != 4 {
			t.Fatalf("threads %d: claims for block sizes %v, want 4 phases", threads, claims)
		}
		for block, ranges := range claims {
			checkPartition(t, ranges, block, height)
			for _, rr := range ranges[:len(ranges)-1] {
				if rr.end-rr.start != 2*block {
					t.Errorf("threads %d: block %d range %v spans %d rows, want %d", threads, block, rr, rr.end-rr.start, 2*block)
				}
			}
		}
	}
}

func TestRenderRowsAscendingPerWorker(t *testing.T) {
	vp := NewViewport(Classic, 20, 40)

	var (
		mu   sync.Mutex
		last = make(map[int]map[int]int) // worker -> block -> last start
		bad  atomic.Bool
	)
	hook := withClaimHook(func(worker, block, start, _ int) {
		mu.Lock()
		defer mu.Unlock()
		if last[worker] == nil {
			last[worker] = make(map[int]int)
		}
		if prev, ok := last[worker][block]; ok && start <= prev {
			bad.Store(true)
		}
		last[worker][block] = start
	})
	s := mustScheduler(t, vp, WithThreads(4), WithMaxIterations(50), hook)

	r, err := s.Start(context.Background(), vp, SinkFunc(func(PixelResult) {}))
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	waitRender(t, r)
	if bad.Load() {
		t.Error("a worker claimed rows out of ascending order within a phase")
	}
}

func TestRenderDeterministicAcrossThreads(t *testing.T) {
	vp := NewViewport(SeahorseValley, 48, 32)

	var reference map[image.Point]float64
	for _, threads := range []int{1, 2, 8} {
		s := mustScheduler(t, vp, WithThreads(threads), WithMaxIterations(300), WithSmooth(true))
		sink := &collectSink{}

		r, err := s.Start(context.Background(), vp, sink)
		if err != nil {
			t.Fatalf("Start() = %v", err)
		}
		waitRender(t, r)

		got := make(map[image.Point]float64)
		for _, res := range sink.all() {
			if res.BlockSize == 1 {
				got[image.Pt(res.X, res.Y)] = res.Iteration
			}
		}
		if reference == nil {
			reference = got
			continue
		}
		for p, v := range reference {
			if got[p] != v {
				t.Fatalf("threads %d: pixel %v = %g, want %g", threads, p, got[p], v)
			}
		}
	}
}

func TestRenderCancelLiveness(t *testing.T) {
	vp := NewViewport(SeahorseValley, 320, 240)
	rng := rand.New(rand.NewPCG(1, 2))

	for i := range 25 {
		threads := []int{1, 2, 8}[i%3]
		s := mustScheduler(t, vp, WithThreads(threads), WithMaxIterations(2000))

		var accepted atomic.Int64
		r, err := s.Start(context.Background(), vp, SinkFunc(func(PixelResult) { accepted.Add(1) }))
		if err != nil {
			t.Fatalf("Start() = %v", err)
		}
		time.Sleep(time.Duration(rng.IntN(3000)) * time.Microsecond)
		r.Cancel()
		atCancel := accepted.Load()

		state, err := waitRender(t, r)
		if err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if state != Cancelled && state != Completed {
			t.Fatalf("Wait() state = %v", state)
		}

		// each worker may only finish the row it is on, at most Width cells
		if late := accepted.Load() - atCancel; late > int64(threads*vp.Width) {
			t.Errorf("threads %d: %d results after Cancel, want at most %d", threads, late, threads*vp.Width)
		}
	}
}

func TestRenderCancelWhilePeersAtBarrier(t *testing.T) {
	vp := NewViewport(Classic, 16, 16)

	release := make(chan struct{})
	var blocked atomic.Bool
	sink := SinkFunc(func(r PixelResult) {
		// hold one worker inside the first phase's first row
		if r.Y == 0 && blocked.CompareAndSwap(false, true) {
			<-release
		}
	})
	s := mustScheduler(t, vp, WithThreads(4), WithMaxIterations(20), WithInitialBlockSize(4), WithRowSpan(1))

	r, err := s.Start(context.Background(), vp, sink)
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}

	// the other workers exhaust the phase and park at the barrier
	time.Sleep(50 * time.Millisecond)
	r.Cancel()
	close(release)

	state, err := waitRender(t, r)
	if state != Cancelled || err != nil {
		t.Errorf("Wait() = %v, %v, want cancelled, nil", state, err)
	}
	if st := r.Stats(); st.Phases != 0 {
		t.Errorf("Stats().Phases = %d, want 0", st.Phases)
	}
}

func TestRenderContextCancel(t *testing.T) {
	vp := NewViewport(SeahorseValley, 200, 200)
	s := mustScheduler(t, vp, WithThreads(2), WithMaxIterations(5000))

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once
	sink := SinkFunc(func(PixelResult) {
		once.Do(func() {
			close(started)
			<-ctx.Done()
		})
	})

	r, err := s.Start(ctx, vp, sink)
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	<-started
	cancel()

	if state, err := waitRender(t, r); state != Cancelled || err != nil {
		t.Errorf("Wait() = %v, %v, want cancelled, nil", state, err)
	}
	if s.State() != Cancelled {
		t.Errorf("Scheduler.State() = %v, want cancelled", s.State())
	}
}

func TestRenderWorkerFault(t *testing.T) {
	vp := NewViewport(Classic, 32, 32)
	s := mustScheduler(t, vp, WithThreads(4), WithMaxIterations(50), WithInitialBlockSize(4))

	boom := errors.New("boom")
	sink := SinkFunc(func(r PixelResult) {
		if r.BlockSize == 2 && r.X == 4 && r.Y == 4 {
			panic(boom)
		}
	})

	r, err := s.Start(context.Background(), vp, sink)
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	state, err := waitRender(t, r)
	if state != Cancelled {
		t.Errorf("Wait() state = %v, want cancelled", state)
	}

	var fault *WorkerFault
	if !errors.As(err, &fault) {
		t.Fatalf("Wait() error = %v, want *WorkerFault", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("errors.Is(%v, boom) = false", err)
	}
	if len(fault.Stack) == 0 {
		t.Error("WorkerFault has no stack")
	}
	if st := r.Stats(); st.Phases != 1 {
		t.Errorf("Stats().Phases = %d, want 1", st.Phases)
	}
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	good := NewViewport(Classic, 10, 10)

	for _, opts := range [][]Option{
		{WithMaxIterations(0)},
		{WithEscapeRadiusSq(-1)},
		{WithRowSpan(0)},
		{WithInitialBlockSize(-4)},
	} {
		if _, err := NewScheduler(good, opts...); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewScheduler() = %v, want ErrInvalidConfig", err)
		}
	}
	if _, err := NewScheduler(NewViewport(Classic, 0, 10)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewScheduler(zero width) = %v, want ErrInvalidConfig", err)
	}

	s := mustScheduler(t, good)
	for _, vp := range []Viewport{
		NewViewport(Classic, 10, 0),
		ViewportAt(0, 0, 0, 10, 10),
	} {
		r, err := s.Start(context.Background(), vp, SinkFunc(func(PixelResult) {}))
		if !errors.Is(err, ErrInvalidConfig) || r != nil {
			t.Errorf("Start(%v) = %v, %v, want nil, ErrInvalidConfig", vp, r, err)
		}
	}
	if _, err := s.Start(context.Background(), good, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Start(nil sink) = %v, want ErrInvalidConfig", err)
	}
	if s.State() != Idle {
		t.Errorf("State() = %v, want idle", s.State())
	}
}

func TestSchedulerOneRenderAtATime(t *testing.T) {
	vp := NewViewport(SeahorseValley, 200, 150)
	s := mustScheduler(t, vp, WithThreads(2), WithMaxIterations(5000))

	hold := make(chan struct{})
	var once sync.Once
	sink := SinkFunc(func(PixelResult) { once.Do(func() { <-hold }) })

	r, err := s.Start(context.Background(), vp, sink)
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if s.State() != Rendering {
		t.Errorf("State() = %v, want rendering", s.State())
	}
	if _, err := s.Start(context.Background(), vp, sink); !errors.Is(err, ErrRenderActive) {
		t.Errorf("second Start() = %v, want ErrRenderActive", err)
	}
	if err := s.SetViewport(vp.Pan(1, 1)); !errors.Is(err, ErrRenderActive) {
		t.Errorf("SetViewport() while rendering = %v, want ErrRenderActive", err)
	}

	next := NewViewport(Classic, 40, 30)
	done := make(chan *Render)
	go func() {
		r2, err := s.Restart(context.Background(), next, SinkFunc(func(PixelResult) {}))
		if err != nil {
			t.Errorf("Restart() = %v", err)
		}
		done <- r2
	}()

	// release the workers once Restart has cancelled the first render
	deadline := time.Now().Add(10 * time.Second)
	for !r.rc.stop.Load() {
		if time.Now().After(deadline) {
			t.Fatal("Restart did not cancel the running render")
		}
		time.Sleep(time.Millisecond)
	}
	close(hold)

	r2 := <-done
	if state, _ := waitRender(t, r); state != Cancelled {
		t.Errorf("first render state = %v, want cancelled", state)
	}
	if state, err := waitRender(t, r2); state != Completed || err != nil {
		t.Errorf("restarted render = %v, %v, want completed", state, err)
	}
	if s.Viewport() != next || r2.Viewport() != next {
		t.Errorf("Viewport() = %v, want %v", s.Viewport(), next)
	}
	if err := s.SetViewport(vp); err != nil {
		t.Errorf("SetViewport() after render = %v", err)
	}
}

func TestClassicViewRender(t *testing.T) {
	if testing.Short() {
		t.Skip("full 800x600 render")
	}
	vp := NewViewport(Classic, 800, 600)
	s := mustScheduler(t, vp)

	var corner, centre atomic.Value
	sink := SinkFunc(func(r PixelResult) {
		if r.BlockSize != 1 {
			return
		}
		switch {
		case r.X == 0 && r.Y == 0:
			corner.Store(r.Iteration)
		case r.X == 400 && r.Y == 300:
			centre.Store(r.Iteration)
		}
	})

	r, err := s.Start(context.Background(), vp, sink)
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if state, err := waitRender(t, r); state != Completed || err != nil {
		t.Fatalf("Wait() = %v, %v", state, err)
	}
	// width/4 = 200, ceil(log2 200)+1 phases
	if st := r.Stats(); st.Phases != 9 {
		t.Errorf("Stats().Phases = %d, want 9", st.Phases)
	}
	if v, _ := corner.Load().(float64); v >= 5 {
		t.Errorf("pixel (0, 0) = %g, want < 5", v)
	}
	if v, _ := centre.Load().(float64); v != DefaultMaxIterations {
		t.Errorf("pixel (400, 300) = %g, want %d", v, DefaultMaxIterations)
	}
}

func BenchmarkRender(b *testing.B) {
	vp := NewViewport(SeahorseValley, 256, 256)
	s, err := NewScheduler(vp, WithMaxIterations(500))
	if err != nil {
		b.Fatal(err)
	}
	sink := SinkFunc(func(PixelResult) {})

	for b.Loop() {
		r, err := s.Start(context.Background(), vp, sink)
		if err != nil {
			b.Fatal(err)
		}
		r.Wait()
	}
}
