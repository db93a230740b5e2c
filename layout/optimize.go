// Package layout provides the optimization layout algorithms for UMAP.
// This implements stochastic gradient descent to optimize the low-dimensional embedding.
//
// Embeddings are flat observation-major buffers: the coordinates of
// observation i occupy embedding[i*ndim : (i+1)*ndim].
package layout

import (
	"github.com/pkg/errors"

	"github.com/nozzle/umapkit/graph"
	"github.com/nozzle/umapkit/internal/math"
	"github.com/nozzle/umapkit/internal/parallel"
	"github.com/nozzle/umapkit/internal/rand"
)

// LayoutConfig configures the layout optimization.
type LayoutConfig struct {
	// A and B shape the curve 1 / (1 + a * d^(2b)) relating embedding
	// distance to membership strength. If either is not positive both are
	// fitted from Spread and MinDist.
	A, B float32
	// MinDist is the minimum distance between points in the embedding
	MinDist float32
	// Spread is the effective scale of embedded points
	Spread float32
	// RepulsionStrength weighs the repulsive forces (gamma).
	RepulsionStrength float32
	// NegativeSampleRate is the ratio of negative samples per positive sample
	NegativeSampleRate float32
	// NEpochs is the number of epochs to run
	NEpochs int
	// LearningRate is the initial learning rate (alpha)
	LearningRate float32
	// Seed for random number generation
	Seed uint64
	// Batched optimizes all observations of an epoch against the positions
	// of the previous epoch, which allows the work to be split across
	// NumWorkers. The sequential optimizer always runs on one goroutine.
	Batched bool
	// NumWorkers for parallel processing (0 = auto)
	NumWorkers int
	// Dispatcher schedules the batched workers.
	Dispatcher parallel.Dispatcher
	// ProgressCallback is called after each epoch with (epoch, totalEpochs)
	ProgressCallback func(epoch, total int)
}

// DefaultLayoutConfig returns default configuration.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		MinDist:            0.01,
		Spread:             1.0,
		RepulsionStrength:  1.0,
		NegativeSampleRate: 5,
		NEpochs:            500,
		LearningRate:       1.0,
		Seed:               1234567890,
		NumWorkers:         1,
	}
}

// Optimizer runs the epochs of a schedule. It remembers the current epoch,
// so a run can be split into several calls to Run.
type Optimizer struct {
	setup *EpochData
	ndim  int

	a, b, gamma float32
	alpha       float32

	eng        *rand.MT19937_64
	batched    bool
	numWorkers int
	dispatcher parallel.Dispatcher
	progress   func(epoch, total int)
}

// NewOptimizer builds the sampling schedule of g and prepares an optimizer
// for ndim-dimensional embeddings.
func NewOptimizer(g *graph.CSRMatrix, ndim int, config LayoutConfig) (*Optimizer, error) {
	if ndim <= 0 {
		return nil, errors.Errorf("embedding dimension must be positive, got %d", ndim)
	}

	a, b := config.A, config.B
	if a <= 0 || b <= 0 {
		fa, fb, err := FindABParams(float64(config.Spread), float64(config.MinDist))
		if err != nil {
			return nil, err
		}
		a, b = float32(fa), float32(fb)
	}

	numWorkers := config.NumWorkers
	if numWorkers <= 0 {
		numWorkers = parallel.NumWorkers()
	}

	return &Optimizer{
		setup:      SimilaritiesToEpochs(g, config.NEpochs, config.NegativeSampleRate),
		ndim:       ndim,
		a:          a,
		b:          b,
		gamma:      config.RepulsionStrength,
		alpha:      config.LearningRate,
		eng:        rand.NewMT19937_64(config.Seed),
		batched:    config.Batched,
		numWorkers: numWorkers,
		dispatcher: config.Dispatcher,
		progress:   config.ProgressCallback,
	}, nil
}

// Epoch returns the number of epochs run so far.
func (o *Optimizer) Epoch() int { return o.setup.CurrentEpoch }

// NumEpochs returns the total number of epochs.
func (o *Optimizer) NumEpochs() int { return o.setup.TotalEpochs }

// AB returns the curve parameters in use.
func (o *Optimizer) AB() (a, b float32) { return o.a, o.b }

// Schedule returns the sampling schedule.
func (o *Optimizer) Schedule() *EpochData { return o.setup }

// Run optimizes embedding up to epochLimit, or to the end of the schedule
// if epochLimit is not positive or exceeds it. It returns immediately once
// all epochs have run.
func (o *Optimizer) Run(embedding []float32, epochLimit int) error {
	nobs := o.setup.NumObservations()
	if len(embedding) != nobs*o.ndim {
		return errors.Errorf("embedding has %d values, expected %d x %d", len(embedding), nobs, o.ndim)
	}

	limit := o.setup.TotalEpochs
	if epochLimit > 0 {
		limit = min(epochLimit, limit)
	}
	if o.batched {
		return o.runBatched(embedding, limit)
	}
	return o.runSequential(embedding, limit)
}

func (o *Optimizer) learningRate(epoch int) float32 {
	return o.alpha * (1 - float32(epoch)/float32(o.setup.TotalEpochs))
}

func (o *Optimizer) runSequential(embedding []float32, limit int) error {
	s := o.setup
	for ; s.CurrentEpoch < limit; s.CurrentEpoch++ {
		epoch := float32(s.CurrentEpoch)
		alpha := o.learningRate(s.CurrentEpoch)
		for i := 0; i < s.NumObservations(); i++ {
			if err := o.optimizeSample(i, embedding, nil, alpha, o.eng, epoch); err != nil {
				return err
			}
		}
		o.reportProgress()
	}
	return nil
}

func (o *Optimizer) runBatched(embedding []float32, limit int) error {
	s := o.setup
	nobs := s.NumObservations()
	ndim := o.ndim
	seeds := make([]uint64, nobs)
	replacement := make([]float32, len(embedding))
	usingReplacement := false

	for ; s.CurrentEpoch < limit; s.CurrentEpoch++ {
		epoch := float32(s.CurrentEpoch)
		alpha := o.learningRate(s.CurrentEpoch)

		for i := range seeds {
			seeds[i] = o.eng.Uint64()
		}

		// Input and output alternate between epochs.
		reference, output := embedding, replacement
		if usingReplacement {
			reference, output = replacement, embedding
		}
		usingReplacement = !usingReplacement

		err := o.dispatcher.Range(o.numWorkers, nobs, func(_, start, length int) error {
			buffer := make([]float32, ndim)
			for i := start; i < start+length; i++ {
				copy(buffer, reference[i*ndim:(i+1)*ndim])
				rng := rand.NewMT19937_64(seeds[i])
				if err := o.optimizeSample(i, reference, buffer, alpha, rng, epoch); err != nil {
					return err
				}
				copy(output[i*ndim:(i+1)*ndim], buffer)
			}
			return nil
		})
		if err != nil {
			return err
		}
		o.reportProgress()
	}

	if usingReplacement {
		copy(embedding, replacement)
	}
	return nil
}

func (o *Optimizer) reportProgress() {
	if o.progress != nil {
		o.progress(o.setup.CurrentEpoch+1, o.setup.TotalEpochs)
	}
}

// optimizeSample applies the forces of every due edge of observation i.
// With a nil buffer positions are updated in place, moving both ends of each
// edge. Otherwise embedding is read only and the moves of observation i are
// accumulated into buffer, counting the attraction twice to stand in for
// the symmetric update from the other end.
func (o *Optimizer) optimizeSample(i int, embedding, buffer []float32, alpha float32, rng rand.Engine, epoch float32) error {
	s := o.setup
	ndim := o.ndim
	a, b, gamma := o.a, o.b, o.gamma
	nobs := uint64(s.NumObservations())
	left := embedding[i*ndim : (i+1)*ndim]

	for j := s.Head[i]; j < s.Head[i+1]; j++ {
		if s.EpochOfNextSample[j] > epoch {
			continue
		}

		tail := int(s.Tail[j])
		right := embedding[tail*ndim : (tail+1)*ndim]
		dist2 := squaredDistance(left, right)
		pd2b := math.Pow32(dist2, b)
		gradCoef := (-2 * a * b * pd2b) / (dist2 * (a*pd2b + 1))
		for d := range left {
			gradient := alpha * math.Clip(gradCoef*(left[d]-right[d]))
			if buffer == nil {
				left[d] += gradient
				right[d] -= gradient
			} else {
				buffer[d] += 2 * gradient
			}
		}

		var numNegative int
		if s.NegativeSampleRate > 0 {
			numNegative = int((epoch - s.EpochOfNextNegativeSample[j]) * s.NegativeSampleRate / s.EpochsPerSample[j])
		}
		for p := 0; p < numNegative; p++ {
			sampled, err := rand.DiscreteUniform(rng, nobs)
			if err != nil {
				return err
			}
			if int(sampled) == i {
				continue
			}

			right := embedding[int(sampled)*ndim : (int(sampled)+1)*ndim]
			dist2 := squaredDistance(left, right)
			gradCoef := 2 * gamma * b / ((0.001 + dist2) * (a*math.Pow32(dist2, b) + 1))
			for d := range left {
				gradient := alpha * math.Clip(gradCoef*(left[d]-right[d]))
				if buffer == nil {
					left[d] += gradient
				} else {
					buffer[d] += gradient
				}
			}
		}

		s.EpochOfNextSample[j] += s.EpochsPerSample[j]
		s.EpochOfNextNegativeSample[j] = epoch
	}
	return nil
}

// squaredDistance is floored at the float32 epsilon so that coincident
// points do not divide by zero.
func squaredDistance(left, right []float32) float32 {
	var dist2 float32
	for d := range left {
		diff := left[d] - right[d]
		dist2 += diff * diff
	}
	return max(dist2, math.Epsilon32)
}

// OptimizeLayout runs the full SGD optimization of embedding over the edges
// of g.
func OptimizeLayout(embedding []float32, ndim int, g *graph.CSRMatrix, config LayoutConfig) error {
	o, err := NewOptimizer(g, ndim, config)
	if err != nil {
		return err
	}
	return o.Run(embedding, 0)
}
