package initialize

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/umapkit/graph"
	"github.com/nozzle/umapkit/internal/rand"
	"github.com/nozzle/umapkit/powerit"
)

// DenseLimit is the default number of observations above which the spectral
// embedding switches from a dense eigendecomposition to power iterations.
const DenseLimit = 2000

var (
	// ErrDisconnected is returned when the graph has more than one
	// connected component.
	ErrDisconnected = errors.New("graph is not connected")

	// ErrTooFewObservations is returned when there are not enough
	// observations for the requested number of eigenvectors.
	ErrTooFewObservations = errors.New("too few observations for spectral embedding")
)

// SpectralEmbedding writes the eigenvectors of the normalized graph
// Laplacian L = I - D^(-1/2) * A * D^(-1/2) with the ndim smallest non-zero
// eigenvalues into embedding, centred and scaled so that the largest
// absolute coordinate is 10. embedding is left untouched on failure.
func SpectralEmbedding(g *graph.CSRMatrix, ndim int, embedding []float32, cfg Config) error {
	n := g.NRows
	if n < ndim+2 {
		return errors.Wrapf(ErrTooFewObservations, "%d observations for %d dimensions", n, ndim)
	}
	if c := ConnectedComponents(g); c > 1 {
		return errors.Wrapf(ErrDisconnected, "%d components", c)
	}

	// Compute D^(-1/2)
	dInvSqrt := make([]float64, n)
	for i := 0; i < n; i++ {
		_, vals := g.GetRow(i)
		var degree float64
		for _, v := range vals {
			degree += float64(v)
		}
		if degree > 0 {
			dInvSqrt[i] = 1.0 / math.Sqrt(degree)
		}
	}

	limit := cfg.DenseLimit
	if limit <= 0 {
		limit = DenseLimit
	}

	vectors := make([][]float64, ndim)
	if n <= limit {
		if err := denseEigenvectors(g, dInvSqrt, vectors); err != nil {
			return err
		}
	} else {
		sparseEigenvectors(g, dInvSqrt, vectors, cfg)
	}

	for i := 0; i < n; i++ {
		for d := 0; d < ndim; d++ {
			embedding[i*ndim+d] = float32(vectors[d][i])
		}
	}
	scaleAndCenter(n, ndim, embedding)
	return nil
}

// denseEigenvectors decomposes the full Laplacian and skips the trivial
// eigenvector.
func denseEigenvectors(g *graph.CSRMatrix, dInvSqrt []float64, vectors [][]float64) error {
	n := g.NRows

	// Build L = I - D^(-1/2) * A * D^(-1/2). The graph is symmetric, and
	// SymDense only reads the upper triangle.
	lData := make([]float64, n*n)
	for i := 0; i < n; i++ {
		lData[i*n+i] = 1.0
		cols, vals := g.GetRow(i)
		for idx, j := range cols {
			lData[i*n+int(j)] -= float64(vals[idx]) * dInvSqrt[i] * dInvSqrt[j]
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(mat.NewSymDense(n, lData), true); !ok {
		return errors.New("eigendecomposition of the graph Laplacian failed")
	}

	// Eigenvalues come in ascending order.
	var eigenvectors mat.Dense
	eig.VectorsTo(&eigenvectors)
	for d := range vectors {
		vectors[d] = mat.Col(nil, d+1, &eigenvectors)
	}
	return nil
}

// sparseEigenvectors finds the leading non-trivial eigenvectors of
// M = (I + D^(-1/2) * A * D^(-1/2)) / 2, which are the eigenvectors of L with
// the smallest eigenvalues, by power iterations on M with the eigenvectors
// found so far deflated out.
func sparseEigenvectors(g *graph.CSRMatrix, dInvSqrt []float64, vectors [][]float64, cfg Config) {
	n := g.NRows

	// The trivial eigenvector of M is D^(1/2) * 1 with eigenvalue 1.
	trivial := make([]float64, n)
	for i, v := range dInvSqrt {
		if v > 0 {
			trivial[i] = 1 / v
		}
	}
	floats.Scale(1/floats.Norm(trivial, 2), trivial)

	found := [][]float64{trivial}
	values := []float64{1}

	mul := func(dst, src []float64) {
		for i := 0; i < n; i++ {
			cols, vals := g.GetRow(i)
			var sum float64
			for idx, j := range cols {
				sum += float64(vals[idx]) * dInvSqrt[j] * src[j]
			}
			dst[i] = (src[i] + dInvSqrt[i]*sum) / 2
		}
		for k, v := range found {
			floats.AddScaled(dst, -values[k]*floats.Dot(v, src), v)
		}
	}

	eng := rand.NewMT19937_64(cfg.Seed)
	for d := range vectors {
		vec := make([]float64, n)
		res := powerit.RunOperator(n, mul, vec, eng, cfg.Power)
		vectors[d] = vec
		found = append(found, vec)
		values = append(values, res.Value)
	}
}

// ConnectedComponents returns the number of connected components of the
// graph, treating every stored entry as an undirected edge.
func ConnectedComponents(g *graph.CSRMatrix) int {
	n := g.NRows
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	count := n
	for i := 0; i < n; i++ {
		cols, _ := g.GetRow(i)
		for _, j := range cols {
			a, b := find(i), find(int(j))
			if a != b {
				parent[a] = b
				count--
			}
		}
	}
	return count
}
