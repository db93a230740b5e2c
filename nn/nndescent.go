package nn

import (
	"math"

	"github.com/pkg/errors"

	"github.com/nozzle/umapkit/distance"
	"github.com/nozzle/umapkit/internal/heap"
	"github.com/nozzle/umapkit/internal/parallel"
	"github.com/nozzle/umapkit/internal/rand"
)

// NNDescentConfig configures the NNDescent algorithm.
type NNDescentConfig struct {
	// K is the number of neighbors to find
	K int

	// MaxIterations is the maximum number of NNDescent iterations
	MaxIterations int

	// Delta is the early termination threshold (fraction of updated edges)
	Delta float32

	// Rho is the sampling rate for candidate pairs
	Rho float32

	// Seed for random number generation
	Seed int64

	// Forest seeds the initial graph. NumTrees == 0 starts from random
	// neighbours only.
	Forest RPForestConfig

	// NumWorkers for parallel processing (<= 1 runs serially)
	NumWorkers int

	// Dispatcher schedules the workers.
	Dispatcher parallel.Dispatcher
}

// DefaultNNDescentConfig returns default configuration.
func DefaultNNDescentConfig() NNDescentConfig {
	return NNDescentConfig{
		K:             15,
		MaxIterations: 10,
		Delta:         0.001,
		Rho:           0.5,
		Seed:          42,
		Forest:        DefaultRPForestConfig(),
		NumWorkers:    1,
	}
}

type candidateUpdate struct {
	p1, p2 int32
	dist   float32
}

// NNDescent builds an approximate k-NN graph using the NNDescent algorithm.
// Initial neighbours come from the leaves of an RP-forest, topped up with
// random points; they are then refined by exploring neighbours of
// neighbours.
//
// Candidate distances are computed in parallel against a frozen snapshot of
// the graph and applied afterwards in observation order, so the result does
// not depend on the number of workers.
func NNDescent(data []float32, ndim, nobs int, config NNDescentConfig) (*KNNGraph, error) {
	if nobs < 2 {
		return nil, errors.Wrapf(ErrTooFewPoints, "got %d", nobs)
	}
	k := min(config.K, nobs-1)
	if k <= 0 {
		return nil, errors.Errorf("number of neighbours must be positive, got %d", config.K)
	}
	row := func(i int32) []float32 { return data[int(i)*ndim : (int(i)+1)*ndim] }
	d := config.Dispatcher

	indices := make([][]int32, nobs)
	distances := make([][]float32, nobs)
	flags := make([][]uint8, nobs)
	for i := range indices {
		h := heap.New[float32](k)
		indices[i], distances[i], flags[i] = h.Indices, h.Distances, h.Flags
	}

	forest := BuildRPForest(data, ndim, nobs, config.Forest)
	err := d.Range(config.NumWorkers, nobs, func(_, start, length int) error {
		for i := start; i < start+length; i++ {
			self := int32(i)
			for _, c := range forest.SearchForest(row(self)) {
				if c != self {
					heap.FlaggedHeapPush(indices[i], distances[i], flags[i], c, pairDistance(row(self), row(c)), 1)
				}
			}

			local := rand.NewTau(config.Seed + int64(i) + 1)
			for draws := 0; countValid(indices[i]) < k && draws < nobs; draws++ {
				j := int32(local.Intn(nobs))
				if j == self {
					continue
				}
				heap.FlaggedHeapPush(indices[i], distances[i], flags[i], j, pairDistance(row(self), row(j)), 1)
			}
			for j := int32(0); countValid(indices[i]) < k && int(j) < nobs; j++ {
				if j != self {
					heap.FlaggedHeapPush(indices[i], distances[i], flags[i], j, pairDistance(row(self), row(j)), 1)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "initialize neighbour graph")
	}

	rng := rand.NewTau(config.Seed)
	oldCandidates := make([][]int32, nobs)
	newCandidates := make([][]int32, nobs)
	workers := parallel.SanitizeNumWorkers(config.NumWorkers, nobs)
	updates := make([][]candidateUpdate, workers)

	for iter := 0; iter < config.MaxIterations; iter++ {
		for i := range oldCandidates {
			oldCandidates[i] = oldCandidates[i][:0]
			newCandidates[i] = newCandidates[i][:0]
		}

		for i := range nobs {
			for j := 0; j < k; j++ {
				neighbor := indices[i][j]
				if neighbor < 0 {
					continue
				}
				if flags[i][j] == 1 {
					newCandidates[i] = append(newCandidates[i], neighbor)
					if len(newCandidates[neighbor]) < k*2 {
						newCandidates[neighbor] = append(newCandidates[neighbor], int32(i))
					}
				} else {
					oldCandidates[i] = append(oldCandidates[i], neighbor)
				}
			}
		}

		for i := range newCandidates {
			newCandidates[i] = sampleCandidates(newCandidates[i], config.Rho, rng)
			oldCandidates[i] = sampleCandidates(oldCandidates[i], config.Rho, rng)
		}

		for i := range nobs {
			clear(flags[i])
		}

		err := d.Range(workers, nobs, func(w, start, length int) error {
			found := updates[w][:0]
			consider := func(p1, p2 int32) {
				dist := pairDistance(row(p1), row(p2))
				if dist < distances[p1][0] || dist < distances[p2][0] {
					found = append(found, candidateUpdate{p1, p2, dist})
				}
			}
			for i := start; i < start+length; i++ {
				for _, p1 := range newCandidates[i] {
					for _, p2 := range newCandidates[i] {
						if p1 < p2 {
							consider(p1, p2)
						}
					}
					for _, p2 := range oldCandidates[i] {
						if p1 != p2 {
							consider(p1, p2)
						}
					}
				}
			}
			updates[w] = found
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "nn-descent iteration %d", iter)
		}

		count := 0
		for _, found := range updates {
			for _, u := range found {
				if heap.FlaggedHeapPush(indices[u.p1], distances[u.p1], flags[u.p1], u.p2, u.dist, 1) {
					count++
				}
				if heap.FlaggedHeapPush(indices[u.p2], distances[u.p2], flags[u.p2], u.p1, u.dist, 1) {
					count++
				}
			}
		}

		if float32(count)/float32(nobs*k) < config.Delta {
			break
		}
	}

	for i := range nobs {
		heap.DeheapSort(indices[i], distances[i], nil)
	}

	return &KNNGraph{
		Indices:   indices,
		Distances: distances,
		N:         nobs,
		K:         k,
	}, nil
}

// pairDistance maps overflowing and NaN distances to the largest float32
// below the heap sentinel, so every pair still fits in an unfilled heap.
func pairDistance(x, y []float32) float32 {
	d := distance.Euclidean(x, y)
	if !(d < math.MaxFloat32) {
		return math.Nextafter32(math.MaxFloat32, 0)
	}
	return d
}

func countValid(indices []int32) int {
	count := 0
	for _, idx := range indices {
		if idx >= 0 {
			count++
		}
	}
	return count
}

// sampleCandidates randomly keeps a rho fraction of candidates.
func sampleCandidates(candidates []int32, rho float32, rng *rand.Tau) []int32 {
	if rho >= 1.0 || len(candidates) == 0 {
		return candidates
	}

	targetSize := max(int(float32(len(candidates))*rho), 1)
	if targetSize >= len(candidates) {
		return candidates
	}

	rand.Shuffle(rng, candidates)
	return candidates[:targetSize]
}
