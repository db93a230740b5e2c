// Package powerit estimates the dominant eigenvector of a symmetric matrix by
// power iteration.
package powerit

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/umapkit/internal/rand"
)

// NotConverged is reported in Result.Iterations when the iteration budget
// runs out before the tolerance is met.
const NotConverged = -1

// Options controls the iteration.
type Options struct {
	// Iterations is the maximum number of matrix-vector products.
	Iterations int

	// Tolerance is the bound on the change in the normalized vector between
	// two iterations below which the vector is considered converged.
	Tolerance float64
}

// DefaultOptions returns the standard budget of 500 iterations with a
// tolerance of 1e-6.
func DefaultOptions() Options {
	return Options{
		Iterations: 500,
		Tolerance:  1e-6,
	}
}

// Result summarizes a run.
type Result struct {
	// Value is the L2 norm of the last product, an estimate of the magnitude
	// of the dominant eigenvalue.
	Value float64

	// Iterations is the number of iterations until convergence, or
	// NotConverged.
	Iterations int
}

// Converged reports whether the tolerance was met.
func (r Result) Converged() bool {
	return r.Iterations != NotConverged
}

// Run computes the dominant eigenvector of the symmetric order x order
// matrix x, stored row-major, into out. Only the upper triangle of x is read.
// The starting vector is drawn from eng.
func Run(order int, x []float64, out []float64, eng rand.Engine, opts Options) Result {
	if order == 0 {
		return Result{Iterations: NotConverged}
	}
	sym := mat.NewSymDense(order, x)
	return RunOperator(order, func(dst, src []float64) {
		mat.NewVecDense(order, dst).MulVec(sym, mat.NewVecDense(order, src))
	}, out, eng, opts)
}

// RunOperator is Run for a matrix that is only available through its
// product with a vector. mul must write the product of the matrix with src
// into dst and must not retain either slice.
func RunOperator(order int, mul func(dst, src []float64), out []float64, eng rand.Engine, opts Options) Result {
	res := Result{Iterations: NotConverged}
	if order == 0 {
		return res
	}
	out = out[:order]

	for {
		for d := 0; d+1 < order; d += 2 {
			out[d], out[d+1] = rand.StandardNormal(eng)
		}
		if order%2 == 1 {
			out[order-1], _ = rand.StandardNormal(eng)
		}
		if normalize(out) != 0 {
			break
		}
	}

	buffer := make([]float64, order)
	for i := 0; i < opts.Iterations; i++ {
		mul(buffer, out)
		res.Value = normalize(buffer)

		if floats.Distance(buffer, out, 2) < opts.Tolerance {
			res.Iterations = i + 1
			break
		}
		copy(out, buffer)
	}
	return res
}

// normalize scales x to unit length in place and returns its original norm.
// A zero vector is left untouched.
func normalize(x []float64) float64 {
	norm := floats.Norm(x, 2)
	if norm != 0 && !math.IsInf(norm, 0) {
		floats.Scale(1/norm, x)
	}
	return norm
}
