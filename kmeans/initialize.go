package kmeans

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/nozzle/umapkit/internal/parallel"
	"github.com/nozzle/umapkit/internal/rand"
	"github.com/nozzle/umapkit/powerit"
)

// DefaultInitSeed seeds the initializers when no seed is configured.
const DefaultInitSeed = 6523

// None keeps whatever centres are already in the buffer.
type None struct{}

// Initialize implements Initializer.
func (None) Initialize(_, nobs int, _ []float64, ncenters int, _ []float64, _ []int) (int, error) {
	return min(nobs, ncenters), nil
}

// Random picks distinct observations uniformly at random as centres.
type Random struct {
	Seed uint64
}

// NewRandom returns a Random initializer with the default seed.
func NewRandom() *Random {
	return &Random{Seed: DefaultInitSeed}
}

// Initialize implements Initializer.
func (r *Random) Initialize(ndim, nobs int, data []float64, ncenters int, centers []float64, _ []int) (int, error) {
	eng := rand.NewMT19937_64(r.Seed)
	chosen := rand.SampleWithoutReplacement(eng, nobs, ncenters)
	copyInto(chosen, ndim, data, centers)
	return len(chosen), nil
}

func copyInto(chosen []int, ndim int, data, centers []float64) {
	for i, c := range chosen {
		copy(observation(centers, ndim, i), observation(data, ndim, c))
	}
}

// KmeansPP picks centres with the k-means++ weighting: each new centre is
// drawn with probability proportional to the squared distance to the
// nearest centre chosen so far. Fewer centres are returned when only
// duplicates of existing centres remain.
type KmeansPP struct {
	Seed       uint64
	NumThreads int
	Dispatcher parallel.Dispatcher
}

// NewKmeansPP returns a KmeansPP initializer with the default seed.
func NewKmeansPP() *KmeansPP {
	return &KmeansPP{Seed: DefaultInitSeed, NumThreads: 1}
}

// Choose returns the indices of the observations picked as centres.
func (k *KmeansPP) Choose(ndim, nobs int, data []float64, ncenters int) []int {
	mindist := make([]float64, nobs)
	for i := range mindist {
		mindist[i] = 1
	}
	cumulative := make([]float64, nobs)
	sofar := make([]int, 0, ncenters)
	eng := rand.NewMT19937_64(k.Seed)

	for cen := 0; cen < ncenters; cen++ {
		if len(sofar) > 0 {
			last := observation(data, ndim, sofar[len(sofar)-1])
			k.Dispatcher.RangeNoErr(k.NumThreads, nobs, func(_, start, length int) {
				for obs := start; obs < start+length; obs++ {
					if mindist[obs] == 0 {
						continue
					}
					r2 := squaredDistance(observation(data, ndim, obs), last)
					if cen == 1 || r2 < mindist[obs] {
						mindist[obs] = r2
					}
				}
			})
		}

		floats.CumSum(cumulative, mindist)
		if cumulative[nobs-1] == 0 {
			break
		}

		chosen := rand.WeightedSample(eng, cumulative, mindist)
		mindist[chosen] = 0
		sofar = append(sofar, chosen)
	}
	return sofar
}

// Initialize implements Initializer.
func (k *KmeansPP) Initialize(ndim, nobs int, data []float64, ncenters int, centers []float64, _ []int) (int, error) {
	if nobs == 0 {
		return 0, nil
	}
	chosen := k.Choose(ndim, nobs, data, ncenters)
	copyInto(chosen, ndim, data, centers)
	return len(chosen), nil
}

// PCAPartition builds centres by repeatedly splitting the cluster with the
// largest (size-adjusted) sum of squares along its first principal
// component. Initialization stops early when a split would leave one side
// empty.
type PCAPartition struct {
	// Power configures the power iterations used for the first principal
	// component.
	Power powerit.Options

	// SizeAdjustment is the exponent applied to cluster sizes when choosing
	// the cluster to split. 1 uses the plain sum of squares.
	SizeAdjustment float64

	Seed uint64
}

// NewPCAPartition returns a PCAPartition initializer with default settings.
func NewPCAPartition() *PCAPartition {
	return &PCAPartition{
		Power:          powerit.DefaultOptions(),
		SizeAdjustment: 1,
		Seed:           DefaultInitSeed,
	}
}

// Initialize implements Initializer.
func (p *PCAPartition) Initialize(ndim, nobs int, data []float64, ncenters int, centers []float64, clusters []int) (int, error) {
	if nobs == 0 || ncenters == 0 {
		return 0, nil
	}

	eng := rand.NewMT19937_64(p.Seed)
	mrse := make([]float64, ncenters)
	assignments := make([][]int, ncenters)

	all := make([]int, nobs)
	for i := range all {
		all[i] = i
	}
	assignments[0] = all
	computeCenter(ndim, all, data, observation(centers, ndim, 0))
	clear(clusters[:nobs])

	pc1 := make([]float64, ndim)
	cov := make([]float64, ndim*ndim)
	delta := make([]float64, ndim)

	for cluster := 1; cluster < ncenters; cluster++ {
		worstSS := 0.0
		worst := 0
		for i := 0; i < cluster; i++ {
			multiplier := float64(len(assignments[i]))
			if p.SizeAdjustment != 1 {
				multiplier = math.Pow(multiplier, p.SizeAdjustment)
			}
			if ss := mrse[i] * multiplier; ss > worstSS {
				worstSS = ss
				worst = i
			}
		}

		worstCenter := observation(centers, ndim, worst)
		p.firstComponent(ndim, assignments[worst], data, worstCenter, cov, delta, pc1, eng)

		var upper, lower []int
		for _, i := range assignments[worst] {
			x := observation(data, ndim, i)
			var proj float64
			for d := 0; d < ndim; d++ {
				proj += (x[d] - worstCenter[d]) * pc1[d]
			}
			if proj > 0 {
				upper = append(upper, i)
			} else {
				lower = append(lower, i)
			}
		}

		if len(upper) == 0 || len(lower) == 0 {
			return cluster, nil
		}

		for _, i := range upper {
			clusters[i] = cluster
		}
		assignments[cluster] = upper
		assignments[worst] = lower
		mrse[cluster] = updateMRSE(ndim, upper, data, observation(centers, ndim, cluster))
		mrse[worst] = updateMRSE(ndim, lower, data, worstCenter)
	}
	return ncenters, nil
}

// firstComponent writes the leading eigenvector of the scatter matrix of the
// chosen observations around center into pc1.
func (p *PCAPartition) firstComponent(ndim int, chosen []int, data, center, cov, delta, pc1 []float64, eng rand.Engine) {
	clear(cov)
	for _, i := range chosen {
		floats.SubTo(delta, observation(data, ndim, i), center)
		for j := 0; j < ndim; j++ {
			for k := 0; k <= j; k++ {
				cov[j*ndim+k] += delta[j] * delta[k]
			}
		}
	}
	for j := 0; j < ndim; j++ {
		for k := j + 1; k < ndim; k++ {
			cov[j*ndim+k] = cov[k*ndim+j]
		}
	}
	powerit.Run(ndim, cov, pc1, eng, p.Power)
}

func computeCenter(ndim int, chosen []int, data, center []float64) {
	clear(center)
	for _, i := range chosen {
		floats.Add(center, observation(data, ndim, i))
	}
	floats.Scale(1/float64(len(chosen)), center)
}

// updateMRSE recomputes the centre of the chosen observations and returns
// their mean squared distance to it.
func updateMRSE(ndim int, chosen []int, data, center []float64) float64 {
	computeCenter(ndim, chosen, data, center)
	var ss float64
	for _, i := range chosen {
		ss += squaredDistance(observation(data, ndim, i), center)
	}
	return ss / float64(len(chosen))
}
