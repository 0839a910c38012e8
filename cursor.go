package mandel

import "sync"

// workCursor hands out row ranges of the raster for the current phase.
// Every range starts at a multiple of the block size and spans span block rows.
type workCursor struct {
	mu *sync.Mutex

	next      int // next unclaimed row
	blockSize int
	span      int // block rows per claim
	height    int
}

func newWorkCursor(mu *sync.Mutex, blockSize, span, height int) *workCursor {
	return &workCursor{
		mu:        mu,
		blockSize: blockSize,
		span:      span,
		height:    height,
	}
}

// claim returns the rows [start, end) and the block size to render them at.
// ok is false once the phase has no rows left.
func (c *workCursor) claim() (start, end, blockSize int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.next >= c.height {
		return 0, 0, c.blockSize, false
	}

	start = c.next
	c.next += c.span * c.blockSize
	end = min(c.next, c.height)
	return start, end, c.blockSize, true
}

// resetLocked starts a new phase at blockSize. c.mu must be held.
func (c *workCursor) resetLocked(blockSize int) {
	c.next = 0
	c.blockSize = blockSize
}
