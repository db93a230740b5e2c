package parallel_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozzle/umapkit/internal/parallel"
)

type span struct{ start, length int }

func collectRanges(t *testing.T, d parallel.Dispatcher, workers, tasks int) map[int]span {
	t.Helper()
	var mu sync.Mutex
	got := map[int]span{}
	err := d.Range(workers, tasks, func(w, start, length int) error {
		mu.Lock()
		defer mu.Unlock()
		got[w] = span{start, length}
		return nil
	})
	require.NoError(t, err)
	return got
}

func TestRangeSplit(t *testing.T) {
	got := collectRanges(t, parallel.Dispatcher{}, 3, 10)
	assert.Equal(t, map[int]span{0: {0, 4}, 1: {4, 3}, 2: {7, 3}}, got)
}

func TestRangeMoreWorkersThanTasks(t *testing.T) {
	got := collectRanges(t, parallel.Dispatcher{}, 8, 3)
	assert.Equal(t, map[int]span{0: {0, 1}, 1: {1, 1}, 2: {2, 1}}, got)
}

func TestRangeSingleWorker(t *testing.T) {
	got := collectRanges(t, parallel.Dispatcher{}, 0, 5)
	assert.Equal(t, map[int]span{0: {0, 5}}, got)
}

func TestRangeNoTasks(t *testing.T) {
	called := false
	err := parallel.Dispatcher{}.Range(4, 0, func(int, int, int) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRangeCoversEveryTaskOnce(t *testing.T) {
	for _, exec := range []parallel.Executor{parallel.Goroutines{}, parallel.Pool{Size: 2}} {
		d := parallel.New(exec)
		for workers := 1; workers <= 9; workers++ {
			hits := make([]int32, 37)
			d.RangeNoErr(workers, len(hits), func(_, start, length int) {
				assert.Positive(t, length)
				for i := start; i < start+length; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
			})
			for i, h := range hits {
				require.EqualValuesf(t, 1, h, "task %d with %d workers", i, workers)
			}
		}
	}
}

func TestRangeReturnsLowestWorkerError(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	var finished int32
	err := parallel.Dispatcher{}.Range(4, 4, func(w, _, _ int) error {
		defer atomic.AddInt32(&finished, 1)
		switch w {
		case 1:
			return errA
		case 3:
			return errB
		}
		return nil
	})
	assert.ErrorIs(t, err, errA)
	assert.EqualValues(t, 4, finished)
}

func TestRangeRecoversPanic(t *testing.T) {
	err := parallel.Dispatcher{}.Range(3, 3, func(w, _, _ int) error {
		if w == 2 {
			panic("boom")
		}
		return nil
	})
	var pe *parallel.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Worker)
	assert.Equal(t, "boom", pe.Value)
}

func TestSimple(t *testing.T) {
	seen := make([]int32, 5)
	err := parallel.New(parallel.Pool{Size: 2}).Simple(5, func(w int) error {
		atomic.AddInt32(&seen[w], 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 1, 1, 1, 1}, seen)
}

func TestSimpleSingleTaskRunsInline(t *testing.T) {
	errX := errors.New("x")
	err := parallel.Dispatcher{}.Simple(1, func(w int) error {
		assert.Zero(t, w)
		return errX
	})
	assert.ErrorIs(t, err, errX)
	assert.NoError(t, parallel.Dispatcher{}.Simple(0, func(int) error { return errX }))
}

func TestSimpleNoErrPanics(t *testing.T) {
	assert.Panics(t, func() {
		parallel.Dispatcher{}.SimpleNoErr(2, func(w int) {
			if w == 1 {
				panic("bad")
			}
		})
	})
}

func TestSanitizeNumWorkers(t *testing.T) {
	assert.Equal(t, 1, parallel.SanitizeNumWorkers(0, 10))
	assert.Equal(t, 1, parallel.SanitizeNumWorkers(-3, 10))
	assert.Equal(t, 4, parallel.SanitizeNumWorkers(4, 10))
	assert.Equal(t, 10, parallel.SanitizeNumWorkers(16, 10))
}

func BenchmarkRange(b *testing.B) {
	data := make([]float64, 1<<16)
	for i := 0; i < b.N; i++ {
		parallel.Dispatcher{}.RangeNoErr(parallel.NumWorkers(), len(data), func(_, s, l int) {
			for j := s; j < s+l; j++ {
				data[j] += 1
			}
		})
	}
}
