package mandel

import (
	"fmt"
	"math"
)

const (
	DefaultMaxIterations  = 1000
	DefaultEscapeRadiusSq = 65536
)

// Evaluator computes escape times of z -> z*z + c, starting from z = 0.
// The zero value is not usable; see DefaultEvaluator.
type Evaluator struct {
	MaxIter        int
	EscapeRadiusSq float64

	// Smooth returns the continuous escape count n - log2(ln|z|) instead of n.
	Smooth bool

	// step, when set, is called once per loop iteration.
	step func()
}

// DefaultEvaluator returns an Evaluator with the default bounds.
func DefaultEvaluator() Evaluator {
	return Evaluator{MaxIter: DefaultMaxIterations, EscapeRadiusSq: DefaultEscapeRadiusSq}
}

// Validate reports a *ConfigError for unusable bounds.
func (e Evaluator) Validate() error {
	if e.MaxIter < 1 {
		return &ConfigError{Field: "max_iterations", Reason: fmt.Sprintf("%d is less than 1", e.MaxIter)}
	}
	if !(e.EscapeRadiusSq > 0) || math.IsInf(e.EscapeRadiusSq, 0) {
		return &ConfigError{Field: "escape_radius_squared", Reason: fmt.Sprintf("%g is not a positive finite number", e.EscapeRadiusSq)}
	}
	return nil
}

// Escape returns the number of iterations after which |z|^2 reached EscapeRadiusSq,
// or MaxIter if it never did. The result is always in [0, MaxIter].
func (e Evaluator) Escape(x0, y0 float64) float64 {
	if Interior(x0, y0) {
		return float64(e.MaxIter)
	}

	var zr, zi float64
	for n := 0; n < e.MaxIter; n++ {
		zr2, zi2 := zr*zr, zi*zi
		if zr2+zi2 >= e.EscapeRadiusSq {
			if e.Smooth {
				return e.smooth(n, zr2+zi2)
			}
			return float64(n)
		}
		if e.step != nil {
			e.step()
		}
		zi = 2*zr*zi + y0
		zr = zr2 - zi2 + x0
	}
	return float64(e.MaxIter)
}

func (e Evaluator) smooth(n int, modSq float64) float64 {
	lz := math.Log(modSq) / 2
	if lz <= 0 {
		return float64(n)
	}
	mu := float64(n) - math.Log2(lz)
	return math.Max(0, math.Min(mu, float64(e.MaxIter)))
}

// Interior reports whether c = (x, y) lies in the main cardioid or the period-2 bulb.
// Such points never escape.
func Interior(x, y float64) bool {
	y2 := y * y

	// main cardioid
	xq := x - 0.25
	q := xq*xq + y2
	if q*(q+xq) <= 0.25*y2 {
		return true
	}

	// period-2 bulb
	xb := x + 1
	return xb*xb+y2 < 1.0/16
}
