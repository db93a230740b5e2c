// Package nn provides the nearest neighbour searches behind the embedding:
// an exact vantage-point tree, and an approximate backend built from random
// projection trees refined with NN-descent.
package nn

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/nozzle/umapkit/distance"
	"github.com/nozzle/umapkit/internal/heap"
	"github.com/nozzle/umapkit/internal/parallel"
)

// KNNGraph represents a k-nearest neighbor graph. Observations are never
// listed as their own neighbours and each row is sorted by distance.
type KNNGraph struct {
	Indices   [][]int32   // [n_samples][k] neighbor indices
	Distances [][]float32 // [n_samples][k] neighbor distances
	N         int         // number of samples
	K         int         // number of neighbors per sample
}

// Method selects the neighbour search backend.
type Method int

const (
	// MethodAnnoy is the approximate backend. Small inputs are searched
	// exhaustively; larger ones use an RP-forest seeded NN-descent.
	MethodAnnoy Method = iota
	// MethodVPTree is the exact backend.
	MethodVPTree
)

func (m Method) String() string {
	switch m {
	case MethodAnnoy:
		return "annoy"
	case MethodVPTree:
		return "vptree"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	switch m {
	case MethodAnnoy, MethodVPTree:
		return []byte(m.String()), nil
	}
	return nil, errors.Errorf("unknown neighbour search method %d", int(m))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "annoy":
		*m = MethodAnnoy
	case "vptree", "kmknn":
		*m = MethodVPTree
	default:
		return errors.Errorf("unknown neighbour search method %q", text)
	}
	return nil
}

// BruteForceThreshold is the input size below which the approximate backend
// falls back to an exhaustive search.
const BruteForceThreshold = 1000

// Config configures neighbour graph construction.
type Config struct {
	// K is the number of neighbours per observation, excluding itself.
	K int

	// Method selects the backend.
	Method Method

	// NNDescent configures the approximate backend.
	NNDescent NNDescentConfig

	// NumWorkers for parallel processing (<= 1 runs serially).
	NumWorkers int

	// Dispatcher schedules the workers.
	Dispatcher parallel.Dispatcher
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		K:          15,
		Method:     MethodAnnoy,
		NNDescent:  DefaultNNDescentConfig(),
		NumWorkers: 1,
	}
}

// ErrTooFewPoints is returned when a neighbour graph is requested for fewer
// than two observations.
var ErrTooFewPoints = errors.New("at least two observations are needed for a neighbour graph")

// Build computes the k-nearest neighbour graph of nobs points of dimension
// ndim stored observation-major in data. K is clamped to nobs-1.
func Build(data []float32, ndim, nobs int, cfg Config) (*KNNGraph, error) {
	if nobs < 2 {
		return nil, errors.Wrapf(ErrTooFewPoints, "got %d", nobs)
	}
	if cfg.K <= 0 {
		return nil, errors.Errorf("number of neighbours must be positive, got %d", cfg.K)
	}
	if len(data) < ndim*nobs {
		return nil, errors.Errorf("data has %d values, expected %d x %d", len(data), ndim, nobs)
	}

	switch cfg.Method {
	case MethodVPTree:
		return VPTreeKNN(data, ndim, nobs, cfg.K, cfg.NumWorkers, cfg.Dispatcher)
	case MethodAnnoy:
		if nobs < BruteForceThreshold {
			return BruteForceKNN(data, ndim, nobs, cfg.K, cfg.NumWorkers, cfg.Dispatcher)
		}
		nd := cfg.NNDescent
		nd.K = cfg.K
		nd.NumWorkers = cfg.NumWorkers
		nd.Dispatcher = cfg.Dispatcher
		return NNDescent(data, ndim, nobs, nd)
	}
	return nil, errors.Errorf("unknown neighbour search method %v", cfg.Method)
}

func newGraph(nobs, k int) *KNNGraph {
	g := &KNNGraph{
		Indices:   make([][]int32, nobs),
		Distances: make([][]float32, nobs),
		N:         nobs,
		K:         k,
	}
	return g
}

// VPTreeKNN computes exact neighbours with a vantage-point tree.
func VPTreeKNN(data []float32, ndim, nobs, k, numWorkers int, d parallel.Dispatcher) (*KNNGraph, error) {
	k = min(k, nobs-1)
	tree := NewVPTree(ndim, nobs, data)
	g := newGraph(nobs, k)

	err := d.Range(numWorkers, nobs, func(_, start, length int) error {
		for i := start; i < start+length; i++ {
			idx, dist := tree.Search(tree.point(i), k+1)
			g.Indices[i], g.Distances[i] = dropSelf(int32(i), idx, dist, k)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "vptree neighbour search")
	}
	return g, nil
}

// dropSelf removes the query point from a sorted k+1 result. Duplicates of
// the query can push it out of first place, and out of the list entirely.
func dropSelf(self int32, idx []int32, dist []float32, k int) ([]int32, []float32) {
	outIdx := make([]int32, 0, k)
	outDist := make([]float32, 0, k)
	for j := range idx {
		if idx[j] == self || len(outIdx) == k {
			continue
		}
		outIdx = append(outIdx, idx[j])
		outDist = append(outDist, dist[j])
	}
	return outIdx, outDist
}

// BruteForceKNN computes exact k-NN by comparing every pair.
func BruteForceKNN(data []float32, ndim, nobs, k, numWorkers int, d parallel.Dispatcher) (*KNNGraph, error) {
	k = min(k, nobs-1)
	g := newGraph(nobs, k)

	err := d.Range(numWorkers, nobs, func(_, start, length int) error {
		for i := start; i < start+length; i++ {
			h := heap.New[float32](k)
			xi := data[i*ndim : (i+1)*ndim]
			for j := 0; j < nobs; j++ {
				if i == j {
					continue
				}
				h.PushWithoutDuplicateCheck(int32(j), distance.Euclidean(xi, data[j*ndim:(j+1)*ndim]), 0)
			}
			h.Sort()
			g.Indices[i] = h.Indices
			g.Distances[i] = h.Distances
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "brute force neighbour search")
	}
	return g, nil
}
