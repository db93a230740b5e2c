package rand_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozzle/umapkit/internal/rand"
)

func TestMT19937_64DefaultSeedSequence(t *testing.T) {
	mt := rand.NewMT19937_64(rand.DefaultSeed64)
	assert.Equal(t, uint64(14514284786278117030), mt.Uint64())

	for i := 2; i < 10000; i++ {
		mt.Uint64()
	}
	assert.Equal(t, uint64(9981545732273789042), mt.Uint64(), "10000th output of std::mt19937_64")
}

func TestMT19937_64Reseed(t *testing.T) {
	a := rand.NewMT19937_64(1234567890)
	first := make([]uint64, 5)
	for i := range first {
		first[i] = a.Next()
	}

	a.Seed(1234567890)
	for i := range first {
		require.Equal(t, first[i], a.Next())
	}
}

func TestEngineRanges(t *testing.T) {
	engines := map[string]rand.Engine{
		"mt19937_64": rand.NewMT19937_64(1),
		"tau":        rand.NewTau(1),
	}
	for name, e := range engines {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 1000; i++ {
				v := e.Next()
				assert.GreaterOrEqual(t, v, e.Min())
				assert.LessOrEqual(t, v, e.Max())
			}
		})
	}
}

func TestTauIntn(t *testing.T) {
	tau := rand.NewTau(42)
	for i := 0; i < 1000; i++ {
		v := tau.Intn(7)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, 7)
	}
	assert.Equal(t, 0, tau.Intn(0))
}
