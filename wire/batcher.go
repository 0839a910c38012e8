package wire

import (
	"sync"

	mandel "github.com/marben/progressive_mandel"
)

const (
	DefaultBatchSize = 4096

	// MaxBatchSize bounds the results per frame, so a reader can size its
	// limit to FrameSize(MaxBatchSize).
	MaxBatchSize = 1 << 16
)

// Batcher is a mandel.Sink that packs results into frames of one render sequence
// and passes every full frame to send. Calls to send are serialized and
// send must not retain the frame.
//
// After send fails the Batcher drops further results and Err reports the failure.
type Batcher struct {
	seq  uint32
	size int
	send func(frame []byte) error

	m      sync.Mutex
	buf    []mandel.PixelResult
	frame  []byte
	frames int
	err    error
}

var _ mandel.Sink = (*Batcher)(nil)

func NewBatcher(seq uint32, size int, send func(frame []byte) error) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	size = min(size, MaxBatchSize)
	return &Batcher{
		seq:  seq,
		size: size,
		send: send,
		buf:  make([]mandel.PixelResult, 0, size),
	}
}

// Accept implements mandel.Sink.
func (b *Batcher) Accept(r mandel.PixelResult) {
	b.m.Lock()
	defer b.m.Unlock()

	if b.err != nil {
		return
	}
	b.buf = append(b.buf, r)
	if len(b.buf) >= b.size {
		b.flushLocked()
	}
}

// Flush sends the pending results, if any.
func (b *Batcher) Flush() error {
	b.m.Lock()
	defer b.m.Unlock()

	if b.err == nil && len(b.buf) > 0 {
		b.flushLocked()
	}
	return b.err
}

// Frames returns the number of frames sent.
func (b *Batcher) Frames() int {
	b.m.Lock()
	defer b.m.Unlock()
	return b.frames
}

func (b *Batcher) Err() error {
	b.m.Lock()
	defer b.m.Unlock()
	return b.err
}

func (b *Batcher) flushLocked() {
	frame, err := AppendFrame(b.frame[:0], b.seq, b.buf)
	b.buf = b.buf[:0]
	if err != nil {
		b.err = err
		return
	}
	b.frame = frame
	if err := b.send(frame); err != nil {
		b.err = err
		return
	}
	b.frames++
}
