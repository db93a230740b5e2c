package umap

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozzle/umapkit/internal/rand"
	"github.com/nozzle/umapkit/kmeans"
	"github.com/nozzle/umapkit/monitoring"
)

// kmeansBlobs returns nobs points around three centres far apart.
func kmeansBlobs(nobs int, seed uint64) [][]float64 {
	eng := rand.NewMT19937_64(seed)
	centres := [][]float64{{0, 0}, {20, 0}, {0, 20}}
	out := make([][]float64, nobs)
	for i := range out {
		c := centres[i%len(centres)]
		x, y := rand.StandardNormal(eng)
		out[i] = []float64{c[0] + x, c[1] + y}
	}
	return out
}

func TestRunKmeansStrategies(t *testing.T) {
	data := kmeansBlobs(90, 3)
	for _, init := range []string{InitRandom, InitKmeansPP, InitPCAPartition} {
		for _, refine := range []string{RefineHartiganWong, RefineLloyd, RefineMiniBatch} {
			t.Run(init+"/"+refine, func(t *testing.T) {
				res, err := RunKmeans(data, 3, init, refine, map[string]any{"batch_size": 30})
				require.NoError(t, err)
				require.Len(t, res.Clusters, 90)

				total := 0
				for _, size := range res.Sizes {
					total += size
					if res.Status == kmeans.StatusOK {
						assert.GreaterOrEqual(t, size, 1)
					}
				}
				assert.Equal(t, 90, total)
				assert.Len(t, res.Centers, len(res.Sizes))
				for _, c := range res.Clusters {
					assert.Less(t, c, len(res.Centers))
				}
			})
		}
	}
}

func TestRunKmeansDefaults(t *testing.T) {
	data := kmeansBlobs(60, 5)
	res, err := RunKmeans(data, 3, "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, kmeans.StatusOK, res.Status)

	// Members of the same blob share a cluster.
	for i := 3; i < len(data); i++ {
		assert.Equal(t, res.Clusters[i%3], res.Clusters[i])
	}
}

func TestRunKmeansDeterministic(t *testing.T) {
	data := kmeansBlobs(60, 7)
	a, err := RunKmeans(data, 4, InitKmeansPP, RefineHartiganWong, nil)
	require.NoError(t, err)
	b, err := RunKmeans(data, 4, InitKmeansPP, RefineHartiganWong, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRunKmeansSingleCenter(t *testing.T) {
	data := [][]float64{{1, 2}, {3, 4}, {5, 9}}
	res, err := RunKmeans(data, 1, "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, res.Clusters)
	require.Len(t, res.Centers, 1)
	assert.InDelta(t, 3, res.Centers[0][0], 1e-12)
	assert.InDelta(t, 5, res.Centers[0][1], 1e-12)
	assert.Equal(t, []int{3}, res.Sizes)
}

func TestRunKmeansTooManyCenters(t *testing.T) {
	data := [][]float64{{1, 2}, {3, 4}}
	res, err := RunKmeans(data, 3, "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, kmeans.StatusTooManyCenters, res.Status)
	assert.Equal(t, []int{0, 1}, res.Clusters)
}

func TestRunKmeansNoneInit(t *testing.T) {
	data := kmeansBlobs(30, 9)
	res, err := RunKmeans(data, 3, InitNone, RefineLloyd, map[string]any{
		"centers": []float64{0, 0, 20, 0, 0, 20},
	})
	require.NoError(t, err)
	assert.Equal(t, kmeans.StatusOK, res.Status)
	for i, c := range res.Clusters {
		assert.Equal(t, i%3, c)
	}
}

func TestRunKmeansInvalidArguments(t *testing.T) {
	data := kmeansBlobs(10, 1)
	tests := []struct {
		name     string
		matrix   [][]float64
		ncenters int
		init     string
		refine   string
		params   map[string]any
	}{
		{name: "no centers", matrix: data, ncenters: 0},
		{name: "negative centers", matrix: data, ncenters: -2},
		{name: "no rows", matrix: nil, ncenters: 2},
		{name: "ragged rows", matrix: [][]float64{{1, 2}, {3}}, ncenters: 1},
		{name: "unknown init", matrix: data, ncenters: 2, init: "forgy"},
		{name: "unknown refine", matrix: data, ncenters: 2, refine: "elkan"},
		{name: "none without centers", matrix: data, ncenters: 2, init: InitNone},
		{name: "unknown key", matrix: data, ncenters: 2, params: map[string]any{"iterations": 3}},
		{name: "bad threads", matrix: data, ncenters: 2, params: map[string]any{"num_threads": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RunKmeans(tt.matrix, tt.ncenters, tt.init, tt.refine, tt.params)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestDefaultKmeansParameters(t *testing.T) {
	params := DefaultKmeansParameters()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{
		"seed", "refine_seed", "num_threads", "max_iterations", "batch_size",
		"max_change_proportion", "convergence_history", "size_adjustment",
		"power_iterations", "power_tolerance", "centers",
	}, keys)
	assert.Equal(t, uint64(kmeans.DefaultInitSeed), params["seed"])
}

func TestKmeansConfigObservability(t *testing.T) {
	logger, hook := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	cfg := DefaultKmeansConfig()
	cfg.Logger = logger
	cfg.Metrics = monitoring.NewMetrics(reg)

	_, err := cfg.Run([][]float64{{1}, {2}}, 3, "", RefineLloyd)
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "kmeans", entry.Data["action"])
	assert.Equal(t, kmeans.StatusTooManyCenters, entry.Data["status"])
	assert.Equal(t, float64(1), testutil.ToFloat64(cfg.Metrics.KmeansRuns.WithLabelValues(RefineLloyd, "too_many_centers")))
}
