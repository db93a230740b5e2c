package rand

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// ErrInvalidBound is returned by DiscreteUniform for a bound that is zero or
// larger than the engine range.
var ErrInvalidBound = errors.New("invalid bound for discrete uniform draw")

// StandardUniform draws from U[0, 1). The result is redrawn in the rare case
// that rounding produces exactly 1.
func StandardUniform(e Engine) float64 {
	factor := 1.0 / (float64(Span(e)) + 1.0)
	for {
		result := float64(e.Next()-e.Min()) * factor
		if result != 1 {
			return result
		}
	}
}

// nonZeroUniform draws from U(0, 1) so that logs stay finite.
func nonZeroUniform(e Engine) float64 {
	for {
		if v := StandardUniform(e); v != 0 {
			return v
		}
	}
}

// StandardNormal returns a pair of independent N(0, 1) draws using the
// Box-Muller transform.
func StandardNormal(e Engine) (float64, float64) {
	c := math.Sqrt(-2 * math.Log(nonZeroUniform(e)))
	angle := 2 * math.Pi * StandardUniform(e)
	return c * math.Sin(angle), c * math.Cos(angle)
}

// StandardExponential draws from an exponential distribution with rate 1.
func StandardExponential(e Engine) float64 {
	return -math.Log(nonZeroUniform(e))
}

// DiscreteUniform draws an integer uniformly from [0, bound). Draws falling in
// the incomplete final block of the engine range are rejected, so the result
// carries no modulo bias.
func DiscreteUniform(e Engine, bound uint64) (uint64, error) {
	if bound == 0 {
		return 0, errors.Wrap(ErrInvalidBound, "bound should be positive")
	}
	span := Span(e)
	if bound > span {
		return 0, errors.Wrapf(ErrInvalidBound, "bound %d exceeds engine range %d", bound, span)
	}

	draw := e.Next() - e.Min()
	if draw > span-bound {
		limit := span - ((span % bound) + 1)
		for draw > limit {
			draw = e.Next() - e.Min()
		}
	}
	return draw % bound, nil
}

// Intn is DiscreteUniform for signed callers.
func Intn(e Engine, n int) (int, error) {
	if n <= 0 {
		return 0, errors.Wrapf(ErrInvalidBound, "bound %d should be positive", n)
	}
	v, err := DiscreteUniform(e, uint64(n))
	return int(v), err
}

// Shuffle permutes values in place with Fisher-Yates, walking forward from
// the first element.
func Shuffle[T any](e Engine, values []T) {
	n := len(values)
	if n <= 1 {
		return
	}
	for i := 0; i < n-1; i++ {
		// n-i is positive and far below every engine range used here.
		chosen, _ := DiscreteUniform(e, uint64(n-i))
		if chosen != 0 {
			j := i + int(chosen)
			values[i], values[j] = values[j], values[i]
		}
	}
}

// Sample selects s elements of values without replacement, preserving their
// order. If s >= len(values) the whole slice is copied.
func Sample[T any](e Engine, values []T, s int) []T {
	n := len(values)
	if s <= 0 {
		return nil
	}
	out := make([]T, 0, min(s, n))
	remaining := s
	for i := 0; i < n; i++ {
		denom := n - i
		threshold := float64(remaining) / float64(denom)
		if threshold >= 1 {
			return append(out, values[i:]...)
		}
		if StandardUniform(e) <= threshold {
			out = append(out, values[i])
			remaining--
			if remaining == 0 {
				break
			}
		}
	}
	return out
}

// SampleIndices selects s distinct integers from [0, bound) in increasing
// order. If s >= bound every index is returned.
func SampleIndices(e Engine, bound, s int) []int {
	if s <= 0 || bound <= 0 {
		return nil
	}
	out := make([]int, 0, min(s, bound))
	remaining := s
	for i := 0; i < bound; i++ {
		denom := bound - i
		threshold := float64(remaining) / float64(denom)
		if threshold >= 1 {
			for j := i; j < bound; j++ {
				out = append(out, j)
			}
			return out
		}
		if StandardUniform(e) <= threshold {
			out = append(out, i)
			remaining--
			if remaining == 0 {
				break
			}
		}
	}
	return out
}

// SampleWithoutReplacement picks choose distinct indices from
// [0, population) by sequential selection sampling. It consumes one uniform
// draw per traversed index, which is the stream the clustering code has
// always used, so seeded results stay stable.
func SampleWithoutReplacement(e Engine, population, choose int) []int {
	if choose >= population {
		out := make([]int, max(population, 0))
		for i := range out {
			out[i] = i
		}
		return out
	}

	out := make([]int, 0, choose)
	traversed := 0
	for len(out) < choose {
		if float64(choose-len(out)) > float64(population-traversed)*StandardUniform(e) {
			out = append(out, traversed)
		}
		traversed++
	}
	return out
}

// WeightedSample draws an index with probability proportional to its weight,
// given the running sum of weights in cumulative. Indices whose weight in
// mindist is zero are never returned. The total weight must be positive.
func WeightedSample(e Engine, cumulative, mindist []float64) int {
	n := len(cumulative)
	total := cumulative[n-1]
	for {
		w := total * StandardUniform(e)
		chosen := sort.SearchFloat64s(cumulative, w)
		if chosen != n && mindist[chosen] != 0 {
			return chosen
		}
	}
}
