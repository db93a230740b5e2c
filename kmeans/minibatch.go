package kmeans

import (
	"github.com/nozzle/umapkit/internal/parallel"
	"github.com/nozzle/umapkit/internal/rand"
)

// MiniBatch refines centres from random batches of observations, moving each
// centre towards the batch members assigned to it with a step size that
// decays with the number of observations it has absorbed.
//
// Every ConvergenceHistory iterations the assignment changes seen in the
// window are compared with the number of observations sampled per cluster;
// the run stops once no cluster changed in at least MaxChangeProportion of
// its sampled observations.
type MiniBatch struct {
	MaxIterations       int
	BatchSize           int
	MaxChangeProportion float64
	ConvergenceHistory  int
	Seed                uint64
	NumThreads          int
	Dispatcher          parallel.Dispatcher
}

// NewMiniBatch returns a MiniBatch refiner with default settings.
func NewMiniBatch() *MiniBatch {
	return &MiniBatch{
		MaxIterations:       100,
		BatchSize:           500,
		MaxChangeProportion: 0.01,
		ConvergenceHistory:  10,
		Seed:                1234567890,
		NumThreads:          1,
	}
}

// Refine implements Refiner.
func (m *MiniBatch) Refine(ndim, nobs int, data []float64, ncenters int, centers []float64, clusters []int) (Details, error) {
	if IsEdgeCase(nobs, ncenters) {
		return ProcessEdgeCase(ndim, nobs, data, ncenters, centers, clusters), nil
	}

	history := max(m.ConvergenceHistory, 1)
	status := StatusOK
	totalSampled := make([]int, ncenters)
	previous := make([]int, nobs)
	lastChanged := make([]int, ncenters)
	lastSampled := make([]int, ncenters)
	batchSize := min(m.BatchSize, nobs)
	eng := rand.NewMT19937_64(m.Seed)

	iter := 1
	for ; iter <= m.MaxIterations; iter++ {
		chosen := rand.SampleWithoutReplacement(eng, nobs, batchSize)
		if iter > 1 {
			for _, o := range chosen {
				previous[o] = clusters[o]
			}
		}

		if err := assignNearest(ndim, nobs, data, ncenters, centers, clusters, chosen, m.NumThreads, m.Dispatcher); err != nil {
			return Details{}, err
		}

		for _, o := range chosen {
			c := clusters[o]
			totalSampled[c]++
			n := float64(totalSampled[c])
			center := observation(centers, ndim, c)
			x := observation(data, ndim, o)
			for d := range center {
				center[d] += (x[d] - center[d]) / n
			}
		}

		if iter == 1 {
			continue
		}
		for _, o := range chosen {
			lastSampled[previous[o]]++
			if previous[o] != clusters[o] {
				lastSampled[clusters[o]]++
				lastChanged[previous[o]]++
				lastChanged[clusters[o]]++
			}
		}

		if iter%history == 1 || history == 1 {
			tooManyChanges := false
			for c := 0; c < ncenters; c++ {
				if float64(lastChanged[c]) >= float64(lastSampled[c])*m.MaxChangeProportion {
					tooManyChanges = true
					break
				}
			}
			if !tooManyChanges {
				break
			}
			clear(lastSampled)
			clear(lastChanged)
		}
	}

	if iter == m.MaxIterations+1 {
		status = StatusMaxIterations
	}

	if err := assignNearest(ndim, nobs, data, ncenters, centers, clusters, nil, m.NumThreads, m.Dispatcher); err != nil {
		return Details{}, err
	}
	clusterSizes(nobs, ncenters, clusters, totalSampled)
	if hasEmpty(totalSampled) {
		status = StatusEmptyCluster
	}
	ComputeCentroids(ndim, nobs, data, ncenters, centers, clusters, totalSampled)

	return Details{
		Sizes:      totalSampled,
		WithinSS:   ComputeWCSS(ndim, nobs, data, ncenters, centers, clusters),
		Iterations: iter,
		Status:     status,
	}, nil
}
