package mandel

import (
	"image"
	"math"
)

// Navigation helpers. Each returns a new Viewport; the receiver is never
// modified, so a viewport handed to a running render stays valid.

// Pan moves the window by dx, dy pixels. Positive dx moves it right, positive dy moves it down the rows.
func (v Viewport) Pan(dx, dy int) Viewport {
	ox := float64(dx) * (v.Xmax - v.Xmin) / float64(v.Width)
	oy := float64(dy) * (v.Ymax - v.Ymin) / float64(v.Height)

	v.Xmin += ox
	v.Xmax += ox
	v.Ymin += oy
	v.Ymax += oy
	return v
}

// Zoom scales the region by factor around the point under pixel (px, py),
// which keeps its position on the raster. factor < 1 zooms in.
func (v Viewport) Zoom(px, py int, factor float64) Viewport {
	x0, y0 := v.PixelToComplex(px, py)

	v.Xmin = x0 - (x0-v.Xmin)*factor
	v.Xmax = x0 + (v.Xmax-x0)*factor
	v.Ymin = y0 - (y0-v.Ymin)*factor
	v.Ymax = y0 + (v.Ymax-y0)*factor
	return v
}

// ZoomSteps zooms by 2^-steps around pixel (px, py); one scroll notch is one step.
func (v Viewport) ZoomSteps(px, py int, steps float64) Viewport {
	return v.Zoom(px, py, math.Pow(2, -steps))
}

// Select zooms to the area covered by the pixel rectangle r, typically a drag selection.
// An empty selection yields a viewport that fails Validate.
func (v Viewport) Select(r image.Rectangle) Viewport {
	r = r.Canon()
	xmin, ymin := v.PixelToComplex(r.Min.X, r.Min.Y)
	xmax, ymax := v.PixelToComplex(r.Max.X, r.Max.Y)

	v.Region = Region{Xmin: xmin, Xmax: xmax, Ymin: ymin, Ymax: ymax}
	return v
}

// Resize changes the raster to w x h, keeping the centre and the size of a pixel on the plane.
func (v Viewport) Resize(w, h int) Viewport {
	if v.Width < 1 || v.Height < 1 {
		v.Width, v.Height = w, h
		return v
	}
	cx, cy := v.Center()
	pw := (v.Xmax - v.Xmin) / float64(v.Width)
	ph := (v.Ymax - v.Ymin) / float64(v.Height)

	hw := pw * float64(w) / 2
	hh := ph * float64(h) / 2
	return Viewport{
		Region: Region{Xmin: cx - hw, Xmax: cx + hw, Ymin: cy - hh, Ymax: cy + hh},
		Width:  w,
		Height: h,
	}
}
