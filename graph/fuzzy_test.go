package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKNN() ([][]int32, [][]float32) {
	knnIndices := [][]int32{
		{1, 2, 3},
		{0, 2, 3},
		{1, 3, 0},
		{2, 1, 0},
	}
	knnDistances := [][]float32{
		{1.0, 2.0, 3.0},
		{1.0, 1.5, 2.5},
		{1.5, 2.0, 2.0},
		{2.0, 2.5, 3.0},
	}
	return knnIndices, knnDistances
}

func edgeMap(g *CSRMatrix) map[[2]int32]float32 {
	rows, cols, data := g.GetEdges()
	out := make(map[[2]int32]float32, len(rows))
	for i := range rows {
		out[[2]int32{rows[i], cols[i]}] = data[i]
	}
	return out
}

func TestFuzzySimplicialSet(t *testing.T) {
	knnIndices, knnDistances := testKNN()

	graph, err := FuzzySimplicialSet(knnIndices, knnDistances, DefaultFuzzySimplicialSetConfig())
	require.NoError(t, err)

	assert.Equal(t, 4, graph.NRows)
	require.Len(t, graph.Indptr, 5)
	assert.Equal(t, int32(graph.NNZ), graph.Indptr[4])
	assert.Len(t, graph.Indices, graph.NNZ)

	edges := edgeMap(graph)
	for key, val := range edges {
		assert.NotEqual(t, key[0], key[1], "self edge")
		assert.Greater(t, val, float32(0))
		assert.LessOrEqual(t, val, float32(1))
		reverse, ok := edges[[2]int32{key[1], key[0]}]
		require.True(t, ok, "edge %v has no reverse", key)
		assert.Equal(t, val, reverse)
	}

	// Rows are sorted by column.
	for i := 0; i < graph.NRows; i++ {
		cols, _ := graph.GetRow(i)
		for j := 1; j < len(cols); j++ {
			assert.Less(t, cols[j-1], cols[j])
		}
	}

	// The nearest neighbour of each point is within rho, so both
	// directions are fully connected.
	assert.Equal(t, float32(1), edges[[2]int32{0, 1}])
}

func TestFuzzySimplicialSetWorkersAgree(t *testing.T) {
	knnIndices, knnDistances := testKNN()

	serial := DefaultFuzzySimplicialSetConfig()
	serial.NumWorkers = 1
	a, err := FuzzySimplicialSet(knnIndices, knnDistances, serial)
	require.NoError(t, err)

	par := DefaultFuzzySimplicialSetConfig()
	par.NumWorkers = 3
	b, err := FuzzySimplicialSet(knnIndices, knnDistances, par)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFuzzySetMixRatio(t *testing.T) {
	// Directed graph: 0->1 with 0.5, 1->0 with 0.4, 2->0 with 0.8.
	directed := &CSRMatrix{
		Indptr:  []int32{0, 1, 2, 3},
		Indices: []int32{1, 0, 0},
		Data:    []float32{0.5, 0.4, 0.8},
		NRows:   3,
		NCols:   3,
		NNZ:     3,
	}

	union := edgeMap(fuzzySetUnion(directed, 1))
	assert.InDelta(t, 0.5+0.4-0.2, union[[2]int32{0, 1}], 1e-6)
	assert.InDelta(t, 0.8, union[[2]int32{0, 2}], 1e-6)
	assert.InDelta(t, 0.8, union[[2]int32{2, 0}], 1e-6)

	intersection := edgeMap(fuzzySetUnion(directed, 0))
	assert.InDelta(t, 0.2, intersection[[2]int32{0, 1}], 1e-6)
	assert.InDelta(t, 0.2, intersection[[2]int32{1, 0}], 1e-6)
	_, ok := intersection[[2]int32{2, 0}]
	assert.False(t, ok, "one-directional edges vanish in the intersection")

	half := edgeMap(fuzzySetUnion(directed, 0.5))
	assert.InDelta(t, 0.5*0.7+0.5*0.2, half[[2]int32{1, 0}], 1e-6)
	assert.InDelta(t, 0.4, half[[2]int32{0, 2}], 1e-6)
}

func TestFuzzySimplicialSetWithoutSetOperations(t *testing.T) {
	knnIndices, knnDistances := testKNN()
	config := DefaultFuzzySimplicialSetConfig()
	config.ApplySetOperations = false

	graph, err := FuzzySimplicialSet(knnIndices, knnDistances, config)
	require.NoError(t, err)
	assert.Equal(t, 12, graph.NNZ)
	cols, _ := graph.GetRow(2)
	assert.Equal(t, []int32{0, 1, 3}, cols)
}

func TestFuzzySimplicialSetEmpty(t *testing.T) {
	graph, err := FuzzySimplicialSet(nil, nil, DefaultFuzzySimplicialSetConfig())
	require.NoError(t, err)
	assert.Zero(t, graph.NNZ)
	assert.Equal(t, []int32{0}, graph.Indptr)
}

func TestSmoothKNNDist(t *testing.T) {
	distances := []float32{1.0, 2.0, 3.0, 4.0}

	sigma, rho := smoothKNNDist(distances, 1.0, 1.0)
	assert.Equal(t, float32(1), rho)
	require.Greater(t, sigma, float32(0))

	var sum float64
	for _, d := range distances {
		sum += math.Exp(-math.Max(float64(d-rho), 0) / float64(sigma))
	}
	assert.InDelta(t, math.Log2(5), sum, 1e-3)
}

func TestSmoothKNNDistLocalConnectivity(t *testing.T) {
	distances := []float32{0, 1, 2, 4}

	_, rho := smoothKNNDist(distances, 1.5, 1.0)
	assert.InDelta(t, 1.5, rho, 1e-6)

	_, rho = smoothKNNDist(distances, 0.5, 1.0)
	assert.InDelta(t, 0.5, rho, 1e-6)

	// More connectivity than non-zero neighbours falls back to the largest.
	_, rho = smoothKNNDist(distances, 10, 1.0)
	assert.Equal(t, float32(4), rho)
}

func TestSmoothKNNDistMinimumSigma(t *testing.T) {
	// All neighbours at the same distance collapse sigma to its floor.
	distances := []float32{2, 2, 2}
	sigma, rho := smoothKNNDist(distances, 1.0, 1.0)
	assert.Equal(t, float32(2), rho)
	assert.GreaterOrEqual(t, sigma, float32(2e-3))
}

func TestTranspose(t *testing.T) {
	g := &CSRMatrix{
		Indptr:  []int32{0, 2, 3, 3},
		Indices: []int32{1, 2, 2},
		Data:    []float32{1, 2, 3},
		NRows:   3,
		NCols:   3,
		NNZ:     3,
	}
	tr := transpose(g)
	assert.Equal(t, []int32{0, 0, 1, 3}, tr.Indptr)
	assert.Equal(t, []int32{0, 0, 1}, tr.Indices)
	assert.Equal(t, []float32{1, 2, 3}, tr.Data)
}

func TestCSRMatrixGetRow(t *testing.T) {
	graph := &CSRMatrix{
		Indptr:  []int32{0, 2, 4, 5},
		Indices: []int32{1, 2, 0, 2, 1},
		Data:    []float32{1.0, 2.0, 3.0, 4.0, 5.0},
		NRows:   3,
		NCols:   3,
		NNZ:     5,
	}

	indices, _ := graph.GetRow(0)
	assert.Len(t, indices, 2)

	indices, _ = graph.GetRow(1)
	assert.Len(t, indices, 2)

	indices, data := graph.GetRow(2)
	assert.Len(t, indices, 1)
	assert.Equal(t, float32(5.0), data[0])
}
