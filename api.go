package mandel

// PixelResult is the escape value of one cell.
// The cell is the BlockSize x BlockSize square whose top-left pixel is (X, Y);
// it may extend past the raster edge and should be clipped by the Sink.
type PixelResult struct {
	X, Y      int
	BlockSize int
	Iteration float64
}

// Sink receives results from the render workers.
// Accept is called concurrently from every worker and must be safe for that.
type Sink interface {
	Accept(r PixelResult)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(r PixelResult)

func (f SinkFunc) Accept(r PixelResult) { f(r) }
