package render

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"sync"

	"golang.org/x/image/draw"

	mandel "github.com/marben/progressive_mandel"
)

// ImageSink paints results into an RGBA image. Each result fills its whole
// cell, so coarse phases show up at once and finer phases paint over them.
// It is safe for concurrent use.
type ImageSink struct {
	palette Palette

	m        sync.Mutex
	img      *image.RGBA
	accepted int64
}

var _ mandel.Sink = (*ImageSink)(nil)

func NewImageSink(w, h int, p Palette) *ImageSink {
	return &ImageSink{
		palette: p,
		img:     image.NewRGBA(image.Rect(0, 0, w, h)),
	}
}

// Accept implements mandel.Sink.
func (s *ImageSink) Accept(r mandel.PixelResult) {
	c := s.palette.Color(r.Iteration)
	cell := image.Rect(r.X, r.Y, r.X+r.BlockSize, r.Y+r.BlockSize)

	s.m.Lock()
	defer s.m.Unlock()

	draw.Draw(s.img, cell.Intersect(s.img.Bounds()), &image.Uniform{C: c}, image.Point{}, draw.Src)
	s.accepted++
}

// Accepted returns the number of results painted so far.
func (s *ImageSink) Accepted() int64 {
	s.m.Lock()
	defer s.m.Unlock()
	return s.accepted
}

// Image returns a copy of the current picture.
func (s *ImageSink) Image() *image.RGBA {
	s.m.Lock()
	defer s.m.Unlock()

	img := image.NewRGBA(s.img.Rect)
	copy(img.Pix, s.img.Pix)
	return img
}

// Reset clears the picture, e.g. before painting a new render into it.
func (s *ImageSink) Reset() {
	s.m.Lock()
	defer s.m.Unlock()

	clear(s.img.Pix)
	s.accepted = 0
}

// Thumbnail returns the picture scaled to width w, keeping the aspect ratio.
func (s *ImageSink) Thumbnail(w int) *image.RGBA {
	src := s.Image()
	b := src.Bounds()
	h := max(1, b.Dy()*w/max(1, b.Dx()))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// PNG encodes the current picture.
func (s *ImageSink) PNG(w io.Writer) error {
	if err := png.Encode(w, s.Image()); err != nil {
		return fmt.Errorf("png.Encode: %w", err)
	}
	return nil
}
