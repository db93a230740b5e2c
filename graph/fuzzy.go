// Package graph provides fuzzy simplicial set construction for UMAP.
// This implements the core topological representation of the high-dimensional data.
package graph

import (
	"math"
	"slices"

	"github.com/nozzle/umapkit/internal/parallel"
)

// CSRMatrix represents a sparse matrix in CSR format.
//
// Indptr has NRows+1 entries; the edges of row i occupy
// Indices[Indptr[i]:Indptr[i+1]], sorted by column.
type CSRMatrix struct {
	Indptr  []int32   // Row pointers
	Indices []int32   // Column indices
	Data    []float32 // Values
	NRows   int       // Number of rows
	NCols   int       // Number of columns
	NNZ     int       // Number of non-zero elements
}

// FuzzySimplicialSetConfig configures fuzzy simplicial set construction.
type FuzzySimplicialSetConfig struct {
	// LocalConnectivity is the number of nearest neighbours assumed to be
	// fully connected. Fractional values interpolate between neighbours.
	LocalConnectivity float64
	// Bandwidth scales the target sum of membership strengths of each point.
	Bandwidth float64
	// SetOpMixRatio controls the blend between fuzzy set union and intersection
	// 0.0 = pure intersection, 1.0 = pure union
	SetOpMixRatio float64
	// ApplySetOperations whether to apply fuzzy set operations
	ApplySetOperations bool
	// NumWorkers for parallel processing (0 = auto)
	NumWorkers int
	// Dispatcher schedules the per-point bandwidth searches.
	Dispatcher parallel.Dispatcher
}

// DefaultFuzzySimplicialSetConfig returns default configuration.
func DefaultFuzzySimplicialSetConfig() FuzzySimplicialSetConfig {
	return FuzzySimplicialSetConfig{
		LocalConnectivity:  1.0,
		Bandwidth:          1.0,
		SetOpMixRatio:      1.0,
		ApplySetOperations: true,
		NumWorkers:         0,
	}
}

// FuzzySimplicialSet constructs a fuzzy simplicial set from k-NN data.
//
// knnIndices and knnDistances hold the neighbours of every point, excluding
// the point itself, sorted by increasing distance. Negative indices and
// self-edges are ignored.
func FuzzySimplicialSet(
	knnIndices [][]int32,
	knnDistances [][]float32,
	config FuzzySimplicialSetConfig,
) (*CSRMatrix, error) {
	n := len(knnIndices)
	if n == 0 {
		return &CSRMatrix{Indptr: []int32{0}}, nil
	}

	numWorkers := config.NumWorkers
	if numWorkers <= 0 {
		numWorkers = parallel.NumWorkers()
	}

	// Compute smooth k-NN distances (sigma and rho for each point)
	sigmas := make([]float32, n)
	rhos := make([]float32, n)

	err := config.Dispatcher.Range(numWorkers, n, func(_, start, length int) error {
		for i := start; i < start+length; i++ {
			sigmas[i], rhos[i] = smoothKNNDist(knnDistances[i], config.LocalConnectivity, config.Bandwidth)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	indptr := make([]int32, n+1)
	indices := make([]int32, 0, n*len(knnIndices[0]))
	data := make([]float32, 0, n*len(knnIndices[0]))

	for i := range n {
		row := make([]entry, 0, len(knnIndices[i]))
		for j, neighbor := range knnIndices[i] {
			// Skip self-edges and invalid indices
			if neighbor < 0 || neighbor == int32(i) {
				continue
			}
			dist := knnDistances[i][j]

			var membership float32
			if dist <= rhos[i] || sigmas[i] == 0 {
				membership = 1.0
			} else {
				membership = float32(math.Exp(-float64(dist-rhos[i]) / float64(sigmas[i])))
			}

			if membership > 0 {
				row = append(row, entry{col: neighbor, val: membership})
			}
		}
		slices.SortFunc(row, func(a, b entry) int { return int(a.col - b.col) })
		for _, e := range row {
			indices = append(indices, e.col)
			data = append(data, e.val)
		}
		indptr[i+1] = int32(len(indices))
	}

	graph := &CSRMatrix{
		Indptr:  indptr,
		Indices: indices,
		Data:    data,
		NRows:   n,
		NCols:   n,
		NNZ:     len(indices),
	}

	// Apply fuzzy set operations (symmetrize the graph)
	if config.ApplySetOperations {
		graph = fuzzySetUnion(graph, config.SetOpMixRatio)
	}

	return graph, nil
}

type entry struct {
	col int32
	val float32
}

// smoothKNNDist computes the smooth distance normalization parameters of one
// point from its neighbour distances, self excluded.
// Returns sigma (bandwidth) and rho (distance to nearest neighbor).
//
// rho is the distance to the LocalConnectivity-th non-zero neighbour, and
// sigma is found by bisection so that the membership strengths sum to
// log2(k+1) * bandwidth.
func smoothKNNDist(distances []float32, localConnectivity, bandwidth float64) (float32, float32) {
	const (
		nIter           = 64   // Binary search iterations
		smoothTolerance = 1e-5 // Convergence tolerance
		minKDistScale   = 1e-3 // Minimum sigma as fraction of mean distance
	)

	if len(distances) == 0 {
		return 0, 0
	}

	nonZeroDists := make([]float32, 0, len(distances))
	for _, d := range distances {
		if d > 0 {
			nonZeroDists = append(nonZeroDists, d)
		}
	}

	var rho float32
	index := int(math.Floor(localConnectivity))
	interpolation := float32(localConnectivity - float64(index))

	if len(nonZeroDists) >= index {
		if index > 0 {
			rho = nonZeroDists[index-1]
			if interpolation > smoothTolerance && index < len(nonZeroDists) {
				rho += interpolation * (nonZeroDists[index] - nonZeroDists[index-1])
			}
		} else if len(nonZeroDists) > 0 {
			rho = interpolation * nonZeroDists[0]
		}
	} else if len(nonZeroDists) > 0 {
		rho = slices.Max(nonZeroDists)
	}

	var meanDist float64
	for _, d := range distances {
		meanDist += float64(d)
	}
	meanDist /= float64(len(distances))

	target := math.Log2(float64(len(distances))+1) * bandwidth

	lo := float64(0.0)
	hi := math.Inf(1)
	mid := 1.0

	for range nIter {
		sum := 0.0
		for _, dist := range distances {
			d := float64(dist) - float64(rho)
			if d > 0 {
				sum += math.Exp(-d / mid)
			} else {
				sum += 1.0
			}
		}

		if math.Abs(sum-target) < smoothTolerance {
			break
		}

		if sum > target {
			hi = mid
			mid = (lo + hi) / 2.0
		} else {
			lo = mid
			if math.IsInf(hi, 1) {
				mid *= 2
			} else {
				mid = (lo + hi) / 2.0
			}
		}
	}

	sigma := max(float32(mid), float32(minKDistScale*meanDist))
	return sigma, rho
}

// transpose returns the transpose of a square CSR matrix with sorted rows.
func transpose(g *CSRMatrix) *CSRMatrix {
	indptr := make([]int32, g.NCols+1)
	for _, j := range g.Indices {
		indptr[j+1]++
	}
	for i := 1; i <= g.NCols; i++ {
		indptr[i] += indptr[i-1]
	}

	next := slices.Clone(indptr[:g.NCols])
	indices := make([]int32, g.NNZ)
	data := make([]float32, g.NNZ)
	for i := 0; i < g.NRows; i++ {
		for idx := g.Indptr[i]; idx < g.Indptr[i+1]; idx++ {
			j := g.Indices[idx]
			indices[next[j]] = int32(i)
			data[next[j]] = g.Data[idx]
			next[j]++
		}
	}

	return &CSRMatrix{
		Indptr:  indptr,
		Indices: indices,
		Data:    data,
		NRows:   g.NCols,
		NCols:   g.NRows,
		NNZ:     g.NNZ,
	}
}

// fuzzySetUnion computes the fuzzy set union (symmetrization) of the graph.
// result = mix * union + (1 - mix) * intersection
// where union = A + A^T - A * A^T
// and intersection = A * A^T
func fuzzySetUnion(graph *CSRMatrix, mixRatio float64) *CSRMatrix {
	n := graph.NRows
	t := transpose(graph)
	mix := float32(mixRatio)

	indptr := make([]int32, n+1)
	indices := make([]int32, 0, 2*graph.NNZ)
	data := make([]float32, 0, 2*graph.NNZ)

	for i := range n {
		aCols, aVals := graph.GetRow(i)
		bCols, bVals := t.GetRow(i)

		// Merge the two sorted rows; a missing entry counts as zero.
		p, q := 0, 0
		for p < len(aCols) || q < len(bCols) {
			var col int32
			var a, b float32
			switch {
			case q == len(bCols) || (p < len(aCols) && aCols[p] < bCols[q]):
				col, a = aCols[p], aVals[p]
				p++
			case p == len(aCols) || bCols[q] < aCols[p]:
				col, b = bCols[q], bVals[q]
				q++
			default:
				col, a, b = aCols[p], aVals[p], bVals[q]
				p++
				q++
			}

			product := a * b
			result := mix*(a+b-product) + (1-mix)*product
			if result > 0 {
				indices = append(indices, col)
				data = append(data, result)
			}
		}
		indptr[i+1] = int32(len(indices))
	}

	return &CSRMatrix{
		Indptr:  indptr,
		Indices: indices,
		Data:    data,
		NRows:   n,
		NCols:   n,
		NNZ:     len(indices),
	}
}

// GetEdges returns the edges of the graph as (row, col, weight) triplets.
func (g *CSRMatrix) GetEdges() ([]int32, []int32, []float32) {
	rows := make([]int32, g.NNZ)
	cols := make([]int32, g.NNZ)
	data := make([]float32, g.NNZ)

	idx := 0
	for i := 0; i < g.NRows; i++ {
		start := g.Indptr[i]
		end := g.Indptr[i+1]
		for j := start; j < end; j++ {
			rows[idx] = int32(i)
			cols[idx] = g.Indices[j]
			data[idx] = g.Data[j]
			idx++
		}
	}

	return rows, cols, data
}

// GetRow returns the column indices and values for a given row.
func (g *CSRMatrix) GetRow(row int) ([]int32, []float32) {
	start := g.Indptr[row]
	end := g.Indptr[row+1]
	return g.Indices[start:end], g.Data[start:end]
}
