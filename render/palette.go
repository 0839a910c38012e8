// Package render colours escape values and paints them into images.
package render

import (
	"image/color"
	"math"
)

// Palette maps escape counts to colours. It is a plain value and is never
// modified after construction, so workers may share it freely.
type Palette struct {
	MaxIter float64
	Inside  color.RGBA // colour of points that never escaped
	HueStep float64    // hue advance per iteration
	Offset  float64    // hue of iteration 0
}

// DefaultPalette cycles through the hue wheel every 50 iterations and paints the set black.
func DefaultPalette(maxIter int) Palette {
	return Palette{
		MaxIter: float64(maxIter),
		Inside:  color.RGBA{A: 255},
		HueStep: 0.02,
	}
}

func (p Palette) Color(iter float64) color.RGBA {
	if iter >= p.MaxIter {
		return p.Inside
	}
	return hsv(iter*p.HueStep+p.Offset, 1, 1)
}

// Simple HSV → RGB
func hsv(h, s, v float64) color.RGBA {
	h = math.Mod(h, 1)
	if h < 0 {
		h++
	}
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	return color.RGBA{uint8(r * 255), uint8(g * 255), uint8(b * 255), 255}
}
