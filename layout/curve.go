package layout

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"
)

// curveSamples is the number of grid points the curve is fitted on.
const curveSamples = 300

// FindABParams finds parameters a, b such that 1 / (1 + a * d^(2b))
// approximates, in the least squares sense over 300 evenly spaced points in
// [0, 3*spread], the curve that is 1 below minDist and
// exp(-(d - minDist) / spread) beyond it.
func FindABParams(spread, minDist float64) (a, b float64, err error) {
	if spread <= 0 {
		return 0, 0, errors.Errorf("spread must be positive, got %g", spread)
	}
	if minDist < 0 {
		return 0, 0, errors.Errorf("min_dist must be non-negative, got %g", minDist)
	}

	xMax := 3 * spread
	xs := make([]float64, 0, curveSamples)
	ys := make([]float64, 0, curveSamples)
	// The point at zero fits exactly for any a and b.
	for i := 1; i < curveSamples; i++ {
		x := float64(i) * xMax / (curveSamples - 1)
		y := 1.0
		if x >= minDist {
			y = math.Exp(-(x - minDist) / spread)
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			var sum float64
			for i, x := range xs {
				r := 1/(1+p[0]*math.Pow(x, 2*p[1])) - ys[i]
				sum += r * r
			}
			return sum
		},
		Grad: func(grad, p []float64) {
			grad[0], grad[1] = 0, 0
			for i, x := range xs {
				x2b := math.Pow(x, 2*p[1])
				pred := 1 / (1 + p[0]*x2b)
				r := pred - ys[i]
				dPred := pred * pred
				grad[0] += 2 * r * -x2b * dPred
				grad[1] += 2 * r * -2 * p[0] * x2b * math.Log(x) * dPred
			}
		},
	}

	settings := &optimize.Settings{
		GradientThreshold: 1e-10,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-12,
			Iterations: 20,
		},
	}
	res, err := optimize.Minimize(problem, []float64{1, 1}, settings, &optimize.LBFGS{})
	if res == nil {
		return 0, 0, errors.Wrap(err, "fit curve parameters")
	}

	// A line search that stalls at the minimum still leaves a usable fit.
	a, b = res.X[0], res.X[1]
	if !(a > 0 && b > 0) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		if err == nil {
			err = errors.New("non-positive parameters")
		}
		return 0, 0, errors.Wrapf(err, "fit curve parameters: a=%g b=%g", a, b)
	}
	return a, b, nil
}
