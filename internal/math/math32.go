// Package math provides float helpers shared by the optimizer and the
// neighbour searches.
package math

import "math"

// Float is the set of floating point element types the engines accept.
type Float interface {
	~float32 | ~float64
}

// Epsilon32 is the difference between 1 and the next float32.
const Epsilon32 = float32(1.1920929e-07)

// GradClip is the bound applied to every gradient component during layout
// optimization.
const GradClip = 4.0

// Clip clamps a value to [-GradClip, GradClip].
func Clip[T Float](val T) T {
	if val > GradClip {
		return GradClip
	}
	if val < -GradClip {
		return -GradClip
	}
	return val
}

// Pow32 computes x^y for float32.
func Pow32(x, y float32) float32 {
	return float32(math.Pow(float64(x), float64(y)))
}

// MaxValue returns the largest finite value of T.
func MaxValue[T Float]() T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return T(math.MaxFloat32)
	default:
		m := math.MaxFloat64
		return T(m)
	}
}
