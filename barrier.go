package mandel

import "sync"

type actionKind int

const (
	actionRefine actionKind = iota
	actionTerminate
	actionAbort
)

// phaseAction tells a worker what to do after the barrier.
type phaseAction struct {
	kind      actionKind
	blockSize int // new block size for actionRefine
}

// phaseBarrier parks workers that ran out of rows until every worker has,
// then moves the render to the next phase.
//
// It shares its mutex with the workCursor it resets.
type phaseBarrier struct {
	mu   *sync.Mutex
	cond *sync.Cond

	cursor  *workCursor
	parties int

	arrived    map[int]struct{}
	generation uint64
	blockSize  int
	last       phaseAction // action released with the current generation
	phases     int         // completed phases
	terminal   bool
	aborted    bool

	// onPhase is called by the last arriver, with mu held, after each completed phase.
	onPhase func(finished int, next phaseAction)
}

func newPhaseBarrier(mu *sync.Mutex, cursor *workCursor, parties int) *phaseBarrier {
	return &phaseBarrier{
		mu:        mu,
		cond:      sync.NewCond(mu),
		cursor:    cursor,
		parties:   parties,
		arrived:   make(map[int]struct{}, parties),
		blockSize: cursor.blockSize,
	}
}

// arriveAndWait records worker id as done with the current phase and blocks
// until all parties have arrived or the barrier is aborted.
func (b *phaseBarrier) arriveAndWait(id int) phaseAction {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.aborted {
		return phaseAction{kind: actionAbort}
	}
	if b.terminal {
		return phaseAction{kind: actionTerminate}
	}

	b.arrived[id] = struct{}{}
	if len(b.arrived) < b.parties {
		gen := b.generation
		for gen == b.generation && !b.aborted {
			b.cond.Wait()
		}
		if gen == b.generation {
			return phaseAction{kind: actionAbort}
		}
		return b.last
	}

	// last to arrive advances the phase
	finished := b.blockSize
	b.phases++
	clear(b.arrived)
	if b.blockSize == 1 {
		b.terminal = true
		b.last = phaseAction{kind: actionTerminate}
	} else {
		b.blockSize = max(1, b.blockSize/2)
		b.cursor.resetLocked(b.blockSize)
		b.last = phaseAction{kind: actionRefine, blockSize: b.blockSize}
	}
	b.generation++
	if b.onPhase != nil {
		b.onPhase(finished, b.last)
	}
	b.cond.Broadcast()
	return b.last
}

// abort releases every parked worker with actionAbort and makes later arrivals return at once.
func (b *phaseBarrier) abort() {
	b.mu.Lock()
	b.aborted = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// snapshot returns the number of finished phases, the current block size and
// whether the final phase has completed.
func (b *phaseBarrier) snapshot() (phases, blockSize int, terminal bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phases, b.blockSize, b.terminal
}
