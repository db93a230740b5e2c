package layout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozzle/umapkit/graph"
	"github.com/nozzle/umapkit/initialize"
)

func TestFindABParams(t *testing.T) {
	a, b, err := FindABParams(1.0, 0.1)
	require.NoError(t, err)

	// Expected values from Python's scipy.optimize.curve_fit
	assert.InEpsilon(t, 1.5769434605754993, a, 0.01)
	assert.InEpsilon(t, 0.8950608781680347, b, 0.01)
}

func TestFindABParamsInvalid(t *testing.T) {
	_, _, err := FindABParams(0, 0.1)
	assert.Error(t, err)
	_, _, err = FindABParams(1, -1)
	assert.Error(t, err)
}

// cliques returns two disconnected cliques of size n each, with unit
// weights.
func cliques(n int) *graph.CSRMatrix {
	total := 2 * n
	g := &graph.CSRMatrix{NRows: total, NCols: total, Indptr: make([]int32, total+1)}
	for i := 0; i < total; i++ {
		base := (i / n) * n
		for j := base; j < base+n; j++ {
			if j != i {
				g.Indices = append(g.Indices, int32(j))
				g.Data = append(g.Data, 1)
			}
		}
		g.Indptr[i+1] = int32(len(g.Indices))
	}
	g.NNZ = len(g.Indices)
	return g
}

func TestSimilaritiesToEpochs(t *testing.T) {
	g := &graph.CSRMatrix{
		Indptr:  []int32{0, 2, 4},
		Indices: []int32{1, 2, 0, 2},
		Data:    []float32{1.0, 0.5, 0.25, 0.001},
		NRows:   2,
		NCols:   3,
		NNZ:     4,
	}

	s := SimilaritiesToEpochs(g, 100, 5)
	assert.Equal(t, 100, s.TotalEpochs)
	assert.Equal(t, []int32{0, 2, 3}, s.Head)
	assert.Equal(t, []int32{1, 2, 0}, s.Tail)
	assert.Equal(t, []float32{1, 2, 4}, s.EpochsPerSample)
	assert.Equal(t, []float32{1, 2, 4}, s.EpochOfNextSample)
	assert.InDeltaSlice(t, []float32{0.2, 0.4, 0.8}, s.EpochOfNextNegativeSample, 1e-6)
	assert.Equal(t, 2, s.NumObservations())
	assert.Equal(t, 3, s.NumEdges())
}

func TestSimilaritiesToEpochsNoEpochs(t *testing.T) {
	s := SimilaritiesToEpochs(cliques(3), 0, 5)
	assert.Zero(t, s.NumEdges())
	assert.Equal(t, 6, s.NumObservations())
}

func testConfig() LayoutConfig {
	config := DefaultLayoutConfig()
	config.NEpochs = 50
	config.A, config.B = 1.577, 0.895
	return config
}

func randomStart(n int) []float32 {
	embedding := make([]float32, 2*n)
	initialize.RandomEmbedding(n, 2, embedding, 7)
	return embedding
}

func TestOptimizerResumes(t *testing.T) {
	for _, batched := range []bool{false, true} {
		g := cliques(8)
		config := testConfig()
		config.Batched = batched

		full := randomStart(16)
		o, err := NewOptimizer(g, 2, config)
		require.NoError(t, err)
		require.NoError(t, o.Run(full, 0))
		assert.Equal(t, 50, o.Epoch())

		chunked := randomStart(16)
		o, err = NewOptimizer(g, 2, config)
		require.NoError(t, err)
		require.NoError(t, o.Run(chunked, 7))
		assert.Equal(t, 7, o.Epoch())
		require.NoError(t, o.Run(chunked, 20))
		require.NoError(t, o.Run(chunked, 1000))
		assert.Equal(t, 50, o.Epoch())
		assert.Equal(t, o.NumEpochs(), o.Epoch())

		assert.Equal(t, full, chunked, "batched=%v", batched)

		// Further runs are no-ops.
		require.NoError(t, o.Run(chunked, 0))
		assert.Equal(t, full, chunked)
	}
}

func TestBatchedIndependentOfWorkers(t *testing.T) {
	g := cliques(10)
	config := testConfig()
	config.Batched = true

	config.NumWorkers = 1
	serial := randomStart(20)
	require.NoError(t, OptimizeLayout(serial, 2, g, config))

	config.NumWorkers = 4
	par := randomStart(20)
	require.NoError(t, OptimizeLayout(par, 2, g, config))

	assert.Equal(t, serial, par)
}

func meanDistances(embedding []float32, n int) (within, between float64) {
	var nw, nb int
	for i := 0; i < 2*n; i++ {
		for j := i + 1; j < 2*n; j++ {
			d := math.Hypot(float64(embedding[2*i]-embedding[2*j]), float64(embedding[2*i+1]-embedding[2*j+1]))
			if i/n == j/n {
				within += d
				nw++
			} else {
				between += d
				nb++
			}
		}
	}
	return within / float64(nw), between / float64(nb)
}

func TestOptimizeLayoutSeparatesCliques(t *testing.T) {
	for _, batched := range []bool{false, true} {
		config := testConfig()
		config.NEpochs = 200
		config.Batched = batched

		embedding := randomStart(20)
		require.NoError(t, OptimizeLayout(embedding, 2, cliques(10), config))

		for _, v := range embedding {
			assert.False(t, math.IsNaN(float64(v)))
		}
		within, between := meanDistances(embedding, 10)
		assert.Less(t, within, between, "batched=%v", batched)
	}
}

func TestProgressCallback(t *testing.T) {
	config := testConfig()
	config.NEpochs = 5
	var calls [][2]int
	config.ProgressCallback = func(epoch, total int) {
		calls = append(calls, [2]int{epoch, total})
	}

	o, err := NewOptimizer(cliques(3), 2, config)
	require.NoError(t, err)
	require.NoError(t, o.Run(randomStart(6), 2))
	require.NoError(t, o.Run(randomStart(6), 0))
	assert.Equal(t, [][2]int{{1, 5}, {2, 5}, {3, 5}, {4, 5}, {5, 5}}, calls)
}

func TestNewOptimizerFitsCurve(t *testing.T) {
	config := DefaultLayoutConfig()
	config.MinDist = 0.1
	o, err := NewOptimizer(cliques(3), 2, config)
	require.NoError(t, err)
	a, b := o.AB()
	assert.InEpsilon(t, 1.577, a, 0.01)
	assert.InEpsilon(t, 0.895, b, 0.01)

	config.A, config.B = 2, 3
	o, err = NewOptimizer(cliques(3), 2, config)
	require.NoError(t, err)
	a, b = o.AB()
	assert.Equal(t, float32(2), a)
	assert.Equal(t, float32(3), b)
}

func TestOptimizerRejectsBadInput(t *testing.T) {
	_, err := NewOptimizer(cliques(3), 0, testConfig())
	assert.Error(t, err)

	o, err := NewOptimizer(cliques(3), 2, testConfig())
	require.NoError(t, err)
	assert.Error(t, o.Run(make([]float32, 5), 0))
}

func TestSquaredDistanceFloor(t *testing.T) {
	p := []float32{1, 1}
	assert.Equal(t, float32(1.1920929e-07), squaredDistance(p, p))
	assert.Equal(t, float32(25), squaredDistance([]float32{0, 0}, []float32{3, 4}))
}

func BenchmarkOptimizeLayout(b *testing.B) {
	g := cliques(50)
	config := testConfig()
	for i := 0; i < b.N; i++ {
		embedding := randomStart(100)
		_ = OptimizeLayout(embedding, 2, g, config)
	}
}
