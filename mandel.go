// Package mandel renders escape-time values of the Mandelbrot set progressively.
//
// A Scheduler spreads one render over a fixed pool of worker goroutines. The
// raster is covered several times: the first phase evaluates one point per
// coarse square cell, and every following phase halves the cell side until
// each pixel is evaluated on its own. Results are streamed to a Sink, which
// owns colouring and drawing.
package mandel

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
)

// Region within the Mandelbrot set
type Region struct {
	Xmin, Xmax float64
	Ymin, Ymax float64
}

func (r Region) String() string {
	return fmt.Sprintf("(%g,%g,%g,%g)", r.Xmin, r.Ymin, r.Xmax, r.Ymax)
}

// Viewport is a Region mapped onto a raster of Width x Height pixels.
// Pixel (0, 0) maps to (Xmin, Ymin); x grows to the right and y grows down the rows.
type Viewport struct {
	Region
	Width, Height int
}

// NewViewport returns the viewport covering r with a w x h raster.
func NewViewport(r Region, w, h int) Viewport {
	return Viewport{Region: r, Width: w, Height: h}
}

// ViewportAt returns a viewport centred on (cx, cy).
// scale is half of the horizontal extent; the vertical extent follows the
// raster's aspect ratio so pixels stay square.
func ViewportAt(cx, cy, scale float64, w, h int) Viewport {
	vscale := scale
	if w > 0 {
		vscale = scale * float64(h) / float64(w)
	}
	return Viewport{
		Region: Region{
			Xmin: cx - scale,
			Xmax: cx + scale,
			Ymin: cy - vscale,
			Ymax: cy + vscale,
		},
		Width:  w,
		Height: h,
	}
}

// Validate reports a *ConfigError if v cannot be rendered.
func (v Viewport) Validate() error {
	switch {
	case v.Width < 1:
		return &ConfigError{Field: "viewport.width", Reason: fmt.Sprintf("%d is less than 1", v.Width)}
	case v.Height < 1:
		return &ConfigError{Field: "viewport.height", Reason: fmt.Sprintf("%d is less than 1", v.Height)}
	}
	for _, f := range []float64{v.Xmin, v.Xmax, v.Ymin, v.Ymax} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &ConfigError{Field: "viewport.region", Reason: fmt.Sprintf("%s is not finite", v.Region)}
		}
	}
	if !(v.Xmax > v.Xmin) || !(v.Ymax > v.Ymin) {
		return &ConfigError{Field: "viewport.scale", Reason: fmt.Sprintf("%s has no positive extent", v.Region)}
	}
	return nil
}

// PixelToComplex maps pixel (px, py) to the point of the complex plane it samples.
func (v Viewport) PixelToComplex(px, py int) (x0, y0 float64) {
	x0 = v.Xmin + (float64(px)/float64(v.Width))*(v.Xmax-v.Xmin)
	y0 = v.Ymin + (float64(py)/float64(v.Height))*(v.Ymax-v.Ymin)
	return x0, y0
}

// Center returns the centre of the viewport's region.
func (v Viewport) Center() (cx, cy float64) {
	return (v.Xmin + v.Xmax) / 2, (v.Ymin + v.Ymax) / 2
}

// Scale returns half of the horizontal extent, the scale used by ViewportAt.
func (v Viewport) Scale() float64 {
	return (v.Xmax - v.Xmin) / 2
}

// Bounds returns the raster rectangle.
func (v Viewport) Bounds() image.Rectangle {
	return image.Rect(0, 0, v.Width, v.Height)
}

func (v Viewport) String() string {
	return fmt.Sprintf("%s@%dx%d", v.Region, v.Width, v.Height)
}

// ParseRegion parses "left,top,right,bottom", optionally wrapped in
// parentheses or brackets, e.g. "(-2.5,-1.0,1.0,1.0)".
func ParseRegion(s string) (Region, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "([{ ")
	s = strings.TrimRight(s, ")]} ")

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("parse region %q: want 4 comma separated values, got %d", s, len(parts))
	}

	var vals [4]float64
	names := [4]string{"left", "top", "right", "bottom"}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Region{}, fmt.Errorf("parse region %s: %w", names[i], err)
		}
		vals[i] = f
	}

	return Region{Xmin: vals[0], Ymin: vals[1], Xmax: vals[2], Ymax: vals[3]}, nil
}
