package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozzle/umapkit/internal/parallel"
)

func generateTestData(n, dim int, seed int64) []float32 {
	data := make([]float32, n*dim)
	rng := seed
	for i := range data {
		rng = (rng*6364136223846793005 + 1442695040888963407) & 0x7FFFFFFF
		data[i] = float32(rng) / float32(0x7FFFFFFF)
	}
	return data
}

func checkGraph(t *testing.T, graph *KNNGraph, n, k int) {
	t.Helper()
	require.Equal(t, n, graph.N)
	require.Equal(t, k, graph.K)
	for i := 0; i < graph.N; i++ {
		require.Len(t, graph.Indices[i], k)
		for j := 0; j < k; j++ {
			assert.NotEqual(t, int32(i), graph.Indices[i][j], "self-loop at point %d", i)
			assert.GreaterOrEqual(t, graph.Indices[i][j], int32(0))
			if j > 0 {
				assert.LessOrEqual(t, graph.Distances[i][j-1], graph.Distances[i][j])
			}
		}
	}
}

// recall returns the fraction of exact neighbours found by approx.
func recall(exact, approx *KNNGraph) float64 {
	hits := 0
	for i := range exact.Indices {
		want := map[int32]bool{}
		for _, idx := range exact.Indices[i] {
			want[idx] = true
		}
		for _, idx := range approx.Indices[i] {
			if want[idx] {
				hits++
			}
		}
	}
	return float64(hits) / float64(exact.N*exact.K)
}

func TestBruteForceKNN(t *testing.T) {
	data := generateTestData(100, 10, 42)

	graph, err := BruteForceKNN(data, 10, 100, 10, 3, parallel.Dispatcher{})
	require.NoError(t, err)
	checkGraph(t, graph, 100, 10)
}

func TestVPTreeKNNMatchesBruteForce(t *testing.T) {
	data := generateTestData(150, 5, 7)

	exact, err := BruteForceKNN(data, 5, 150, 8, 1, parallel.Dispatcher{})
	require.NoError(t, err)
	tree, err := VPTreeKNN(data, 5, 150, 8, 4, parallel.Dispatcher{})
	require.NoError(t, err)

	checkGraph(t, tree, 150, 8)
	for i := range exact.Distances {
		for j := range exact.Distances[i] {
			assert.InDelta(t, exact.Distances[i][j], tree.Distances[i][j], 1e-5)
		}
	}
}

func TestVPTreeKNNWithDuplicates(t *testing.T) {
	data := []float32{0, 0, 0, 0, 0, 0, 1, 1}
	graph, err := VPTreeKNN(data, 2, 4, 2, 1, parallel.Dispatcher{})
	require.NoError(t, err)
	checkGraph(t, graph, 4, 2)
	for i := 0; i < 3; i++ {
		assert.Equal(t, []float32{0, 0}, graph.Distances[i])
	}
}

func TestBuildClampsK(t *testing.T) {
	data := generateTestData(5, 3, 1)
	cfg := DefaultConfig()
	cfg.K = 15
	graph, err := Build(data, 3, 5, cfg)
	require.NoError(t, err)
	checkGraph(t, graph, 5, 4)
}

func TestBuildErrors(t *testing.T) {
	cfg := DefaultConfig()
	_, err := Build([]float32{1, 2}, 2, 1, cfg)
	assert.ErrorIs(t, err, ErrTooFewPoints)

	cfg.K = 0
	_, err = Build(generateTestData(4, 2, 1), 2, 4, cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	_, err = Build(make([]float32, 3), 2, 4, cfg)
	assert.Error(t, err)
}

func TestNNDescent(t *testing.T) {
	data := generateTestData(400, 5, 42)

	config := DefaultNNDescentConfig()
	config.K = 10
	config.NumWorkers = 4

	graph, err := NNDescent(data, 5, 400, config)
	require.NoError(t, err)
	checkGraph(t, graph, 400, 10)

	exact, err := BruteForceKNN(data, 5, 400, 10, 4, parallel.Dispatcher{})
	require.NoError(t, err)
	assert.Greater(t, recall(exact, graph), 0.8)
}

func TestNNDescentOverflowingDistances(t *testing.T) {
	// Distinct rows are 1e20 apart per coordinate, beyond float32 range.
	const n = 1200
	data := make([]float32, n*2)
	for i := 0; i < n; i++ {
		v := float32(i%97) * 1e20
		data[2*i], data[2*i+1] = v, -v
	}

	cfg := DefaultConfig()
	cfg.K = 15
	graph, err := Build(data, 2, n, cfg)
	require.NoError(t, err)
	checkGraph(t, graph, n, 15)
	for i := range graph.Distances {
		for _, d := range graph.Distances[i] {
			assert.False(t, math.IsInf(float64(d), 0) || math.IsNaN(float64(d)))
		}
	}
}

func TestNNDescentIndependentOfWorkers(t *testing.T) {
	data := generateTestData(300, 4, 3)

	config := DefaultNNDescentConfig()
	config.K = 6
	config.NumWorkers = 1
	serial, err := NNDescent(data, 4, 300, config)
	require.NoError(t, err)

	config.NumWorkers = 5
	config.Dispatcher = parallel.New(parallel.Pool{Size: 2})
	par, err := NNDescent(data, 4, 300, config)
	require.NoError(t, err)

	assert.Equal(t, serial.Indices, par.Indices)
	assert.Equal(t, serial.Distances, par.Distances)
}

func TestRPForest(t *testing.T) {
	data := generateTestData(100, 10, 42)

	config := DefaultRPForestConfig()
	config.NumTrees = 5
	config.LeafSize = 10

	forest := BuildRPForest(data, 10, 100, config)
	require.Len(t, forest.Trees, 5)

	for i := range 10 {
		candidates := forest.SearchForest(data[i*10 : (i+1)*10])
		assert.Contains(t, candidates, int32(i))
	}
}

func TestMethodText(t *testing.T) {
	var m Method
	require.NoError(t, m.UnmarshalText([]byte("vptree")))
	assert.Equal(t, MethodVPTree, m)
	require.NoError(t, m.UnmarshalText([]byte("annoy")))
	assert.Equal(t, MethodAnnoy, m)
	assert.Error(t, m.UnmarshalText([]byte("hnsw")))

	text, err := MethodVPTree.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "vptree", string(text))
	_, err = Method(9).MarshalText()
	assert.Error(t, err)
}

func BenchmarkBruteForceKNN(b *testing.B) {
	data := generateTestData(500, 50, 42)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = BruteForceKNN(data, 50, 500, 15, parallel.NumWorkers(), parallel.Dispatcher{})
	}
}

func BenchmarkNNDescent(b *testing.B) {
	data := generateTestData(1000, 50, 42)

	config := DefaultNNDescentConfig()
	config.K = 15
	config.MaxIterations = 5
	config.NumWorkers = parallel.NumWorkers()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = NNDescent(data, 50, 1000, config)
	}
}
