// Package distance provides the Euclidean kernels used by the neighbour
// searches and the clustering engine.
package distance

import (
	"github.com/viterin/vek/vek32"
	"gonum.org/v1/gonum/floats"
)

// Float is the element type accepted by the kernels.
type Float interface {
	float32 | float64
}

// Euclidean computes sqrt(sum((x_i - y_i)^2)). float32 inputs use the SIMD
// kernel from vek32, float64 inputs use gonum.
func Euclidean[T Float](x, y []T) T {
	switch xs := any(x).(type) {
	case []float32:
		return T(vek32.Distance(xs, any(y).([]float32)))
	case []float64:
		return T(floats.Distance(xs, any(y).([]float64), 2))
	}
	panic("unreachable")
}

// SquaredEuclidean computes sum((x_i - y_i)^2) without the square root.
func SquaredEuclidean[T Float](x, y []T) T {
	var sum T
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum
}
