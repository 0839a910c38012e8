// Package wire defines what the render server and its clients exchange over a websocket:
// binary frames of pixel results and JSON control messages.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	mandel "github.com/marben/progressive_mandel"
)

// Frame layout, big-endian:
//
//	seq   uint32
//	count uint32
//	count records of: x uint16 | y uint16 | block uint16 | iteration float32
const (
	headerSize = 8
	recordSize = 10

	// MaxCoord is the largest pixel coordinate or block size a frame can carry.
	MaxCoord = math.MaxUint16
)

var ErrShortFrame = errors.New("wire: short frame")

// FrameSize returns the encoded size of a frame of n results.
func FrameSize(n int) int {
	return headerSize + n*recordSize
}

// Frame is a decoded batch of results belonging to render Seq.
type Frame struct {
	Seq     uint32
	Results []mandel.PixelResult
}

// AppendFrame appends the encoding of results to b.
func AppendFrame(b []byte, seq uint32, results []mandel.PixelResult) ([]byte, error) {
	b = binary.BigEndian.AppendUint32(b, seq)
	b = binary.BigEndian.AppendUint32(b, uint32(len(results)))
	for _, r := range results {
		if r.X < 0 || r.Y < 0 || r.X > MaxCoord || r.Y > MaxCoord || r.BlockSize < 1 || r.BlockSize > MaxCoord {
			return nil, fmt.Errorf("wire: result %+v out of range", r)
		}
		b = binary.BigEndian.AppendUint16(b, uint16(r.X))
		b = binary.BigEndian.AppendUint16(b, uint16(r.Y))
		b = binary.BigEndian.AppendUint16(b, uint16(r.BlockSize))
		b = binary.BigEndian.AppendUint32(b, math.Float32bits(float32(r.Iteration)))
	}
	return b, nil
}

// DecodeFrame parses one frame. Trailing bytes are an error.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < headerSize {
		return Frame{}, ErrShortFrame
	}
	f := Frame{Seq: binary.BigEndian.Uint32(b)}
	n := int(binary.BigEndian.Uint32(b[4:]))
	b = b[headerSize:]

	if len(b) != n*recordSize {
		return Frame{}, fmt.Errorf("wire: frame of %d results has %d payload bytes: %w", n, len(b), ErrShortFrame)
	}

	f.Results = make([]mandel.PixelResult, n)
	for i := range f.Results {
		rec := b[i*recordSize:]
		f.Results[i] = mandel.PixelResult{
			X:         int(binary.BigEndian.Uint16(rec)),
			Y:         int(binary.BigEndian.Uint16(rec[2:])),
			BlockSize: int(binary.BigEndian.Uint16(rec[4:])),
			Iteration: float64(math.Float32frombits(binary.BigEndian.Uint32(rec[6:]))),
		}
	}
	return f, nil
}
