package kmeans

import (
	"github.com/nozzle/umapkit/internal/parallel"
	"github.com/nozzle/umapkit/nn"
)

// DefaultMaxIterations is the iteration budget of Lloyd and Hartigan-Wong.
const DefaultMaxIterations = 10

// Lloyd alternates between assigning every observation to its nearest centre
// and moving each centre to the mean of its observations, until no
// assignment changes.
type Lloyd struct {
	MaxIterations int
	NumThreads    int
	Dispatcher    parallel.Dispatcher
}

// NewLloyd returns a Lloyd refiner with default settings.
func NewLloyd() *Lloyd {
	return &Lloyd{MaxIterations: DefaultMaxIterations, NumThreads: 1}
}

// Refine implements Refiner.
func (l *Lloyd) Refine(ndim, nobs int, data []float64, ncenters int, centers []float64, clusters []int) (Details, error) {
	if IsEdgeCase(nobs, ncenters) {
		return ProcessEdgeCase(ndim, nobs, data, ncenters, centers, clusters), nil
	}

	status := StatusOK
	sizes := make([]int, ncenters)
	next := make([]int, nobs)

	iter := 1
	for ; iter <= l.MaxIterations; iter++ {
		if err := assignNearest(ndim, nobs, data, ncenters, centers, next, nil, l.NumThreads, l.Dispatcher); err != nil {
			return Details{}, err
		}

		if equalAssignments(next, clusters[:nobs]) {
			break
		}
		copy(clusters, next)

		clusterSizes(nobs, ncenters, clusters, sizes)
		if hasEmpty(sizes) {
			status = StatusEmptyCluster
		}
		ComputeCentroids(ndim, nobs, data, ncenters, centers, clusters, sizes)
	}

	if iter == l.MaxIterations+1 {
		status = StatusMaxIterations
	} else {
		// Convergence on the first pass skips the per-iteration count.
		clusterSizes(nobs, ncenters, clusters, sizes)
	}

	return Details{
		Sizes:      sizes,
		WithinSS:   ComputeWCSS(ndim, nobs, data, ncenters, centers, clusters),
		Iterations: iter,
		Status:     status,
	}, nil
}

// assignNearest writes the nearest centre of each observation into out. If
// subset is non-nil only those observations are assigned.
func assignNearest(ndim, nobs int, data []float64, ncenters int, centers []float64, out []int, subset []int, numThreads int, d parallel.Dispatcher) error {
	index := nn.NewVPTree(ndim, ncenters, centers[:ndim*ncenters])
	ntasks := nobs
	if subset != nil {
		ntasks = len(subset)
	}
	return d.Range(numThreads, ntasks, func(_, start, length int) error {
		for i := start; i < start+length; i++ {
			obs := i
			if subset != nil {
				obs = subset[i]
			}
			out[obs] = index.Find(observation(data, ndim, obs))
		}
		return nil
	})
}

func equalAssignments(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
