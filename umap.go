// Package umap implements the UMAP (Uniform Manifold Approximation and Projection)
// dimensionality reduction algorithm.
//
// UMAP is a dimension reduction technique that can be used for visualization
// similarly to t-SNE, but also for general non-linear dimension reduction.
//
// Basic usage:
//
//	model := umap.New(umap.DefaultConfig())
//	embedding, err := model.FitTransform(data)
//
// Runs can be split into chunks of epochs with Initialize and Status.Run.
package umap

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nozzle/umapkit/graph"
	"github.com/nozzle/umapkit/initialize"
	"github.com/nozzle/umapkit/internal/parallel"
	"github.com/nozzle/umapkit/layout"
	"github.com/nozzle/umapkit/monitoring"
	"github.com/nozzle/umapkit/nn"
)

// UMAP is the main UMAP model.
type UMAP struct {
	Config Config

	// Learned state after fitting
	data      []float32
	ndim      int
	nobs      int
	embedding []float32
	tree      *nn.VPTree[float32]
}

// New creates a new UMAP model with the given configuration.
func New(config Config) *UMAP {
	return &UMAP{Config: config}
}

// Status is an embedding run in progress. The embedding buffer passed to
// Initialize is updated in place by Run.
type Status struct {
	optimizer *layout.Optimizer
	embedding []float32
	logger    logrus.FieldLogger
	metrics   *monitoring.Metrics
}

// Initialize builds the neighbour graph of nobs observations with ndim
// dimensions, stored observation-major in data, and fills embedding
// (nobs * NDimOut values) according to Config.Init. No epochs are run.
func (u *UMAP) Initialize(data []float32, ndim, nobs int, embedding []float32) (*Status, error) {
	cfg := u.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case nobs <= 0:
		return nil, invalidf("number of observations must be positive, got %d", nobs)
	case ndim <= 0:
		return nil, invalidf("number of dimensions must be positive, got %d", ndim)
	case len(data) < ndim*nobs:
		return nil, invalidf("data has %d values, expected %d x %d", len(data), nobs, ndim)
	case len(embedding) != cfg.NDimOut*nobs:
		return nil, invalidf("embedding has %d values, expected %d x %d", len(embedding), nobs, cfg.NDimOut)
	}

	logger := cfg.logger().WithField("action", "umap_initialize")
	dispatcher := parallel.New(cfg.Executor)
	cfg.Metrics.SetObservations(nobs)

	done := cfg.Metrics.TrackPhase("neighbors")
	knn, err := u.neighbors(data, ndim, nobs, dispatcher)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "build neighbour graph")
	}
	logger.WithField("k", knn.K).WithField("method", cfg.Method).Debug("built neighbour graph")

	done = cfg.Metrics.TrackPhase("graph")
	g, err := graph.FuzzySimplicialSet(knn.Indices, knn.Distances, graph.FuzzySimplicialSetConfig{
		LocalConnectivity:  cfg.LocalConnectivity,
		Bandwidth:          cfg.Bandwidth,
		SetOpMixRatio:      cfg.MixRatio,
		ApplySetOperations: true,
		NumWorkers:         cfg.NumThreads,
		Dispatcher:         dispatcher,
	})
	done()
	if err != nil {
		return nil, errors.Wrap(err, "build fuzzy simplicial set")
	}
	logger.WithField("edges", g.NNZ).Debug("built fuzzy simplicial set")

	done = cfg.Metrics.TrackPhase("init")
	initCfg := initialize.DefaultConfig()
	initCfg.Method = cfg.Init
	initCfg.Seed = cfg.Seed
	applied, err := initialize.Initialize(g, cfg.NDimOut, embedding, initCfg)
	done()
	if applied != cfg.Init {
		logger.WithError(err).WithField("init", cfg.Init).WithField("applied", applied).
			Warn("spectral initialization failed")
	} else if err != nil {
		return nil, errors.Wrap(err, "initialize embedding")
	}

	optimizer, err := layout.NewOptimizer(g, cfg.NDimOut, layout.LayoutConfig{
		A:                  float32(cfg.A),
		B:                  float32(cfg.B),
		MinDist:            float32(cfg.MinDist),
		Spread:             float32(cfg.Spread),
		RepulsionStrength:  float32(cfg.RepulsionStrength),
		NegativeSampleRate: float32(cfg.NegativeSampleRate),
		NEpochs:            cfg.NumEpochs,
		LearningRate:       float32(cfg.LearningRate),
		Seed:               cfg.Seed,
		Batched:            cfg.ParallelOptimization,
		NumWorkers:         cfg.NumThreads,
		Dispatcher:         dispatcher,
		ProgressCallback:   cfg.ProgressCallback,
	})
	if err != nil {
		return nil, errors.Wrap(err, "prepare optimizer")
	}
	a, b := optimizer.AB()
	logger.WithField("a", a).WithField("b", b).WithField("epochs", optimizer.NumEpochs()).
		Debug("prepared optimizer")

	u.data, u.ndim, u.nobs = data, ndim, nobs
	u.embedding = embedding
	u.tree = nil

	return &Status{
		optimizer: optimizer,
		embedding: embedding,
		logger:    cfg.logger().WithField("action", "umap_optimize"),
		metrics:   cfg.Metrics,
	}, nil
}

func (u *UMAP) neighbors(data []float32, ndim, nobs int, dispatcher parallel.Dispatcher) (*nn.KNNGraph, error) {
	// A single observation has no neighbours.
	if nobs == 1 {
		return &nn.KNNGraph{Indices: [][]int32{{}}, Distances: [][]float32{{}}, N: 1}, nil
	}
	nnCfg := nn.DefaultConfig()
	nnCfg.K = u.Config.NumNeighbors
	nnCfg.Method = u.Config.Method
	nnCfg.NNDescent.Seed = int64(u.Config.Seed)
	nnCfg.NumWorkers = u.Config.NumThreads
	nnCfg.Dispatcher = dispatcher
	return nn.Build(data, ndim, nobs, nnCfg)
}

// Run optimizes the embedding up to epochLimit epochs in total, or to the
// end if epochLimit is 0. Calling it again continues where it stopped.
func (s *Status) Run(epochLimit int) error {
	if epochLimit < 0 {
		return invalidf("epoch limit must be non-negative, got %d", epochLimit)
	}
	before := s.optimizer.Epoch()
	done := s.metrics.TrackPhase("optimize")
	err := s.optimizer.Run(s.embedding, epochLimit)
	done()
	s.metrics.AddEpochs(s.optimizer.Epoch() - before)
	if err != nil {
		return errors.Wrap(err, "optimize layout")
	}
	s.logger.WithField("epoch", s.optimizer.Epoch()).WithField("total", s.optimizer.NumEpochs()).
		Debug("optimization paused")
	return nil
}

// Epoch returns the number of epochs run so far.
func (s *Status) Epoch() int { return s.optimizer.Epoch() }

// NumEpochs returns the total number of epochs.
func (s *Status) NumEpochs() int { return s.optimizer.NumEpochs() }

// Embedding returns the embedding buffer, observation-major.
func (s *Status) Embedding() []float32 { return s.embedding }

// Done reports whether every epoch has run.
func (s *Status) Done() bool { return s.optimizer.Epoch() >= s.optimizer.NumEpochs() }

// FitTransform fits the model to the data and returns the embedding.
func (u *UMAP) FitTransform(data [][]float32) ([][]float32, error) {
	if err := u.Fit(data); err != nil {
		return nil, err
	}
	return u.Embedding(), nil
}

// Fit fits the model to the training data, running up to Config.EpochLimit
// epochs.
func (u *UMAP) Fit(data [][]float32) error {
	flat, nobs, ndim, err := flatten(data)
	if err != nil {
		return err
	}
	embedding := make([]float32, nobs*u.Config.NDimOut)
	status, err := u.Initialize(flat, ndim, nobs, embedding)
	if err != nil {
		return err
	}
	return status.Run(u.Config.EpochLimit)
}

// Transform maps new observations to the embedding of their nearest
// training observation.
func (u *UMAP) Transform(newData [][]float32) ([][]float32, error) {
	if u.embedding == nil {
		return nil, errors.New("model is not fitted")
	}
	for i, row := range newData {
		if len(row) != u.ndim {
			return nil, invalidf("row %d has %d columns, expected %d", i, len(row), u.ndim)
		}
	}
	if u.tree == nil {
		u.tree = nn.NewVPTree(u.ndim, u.nobs, u.data)
	}

	ndimOut := u.Config.NDimOut
	result := make([][]float32, len(newData))
	err := parallel.New(u.Config.Executor).Range(u.Config.NumThreads, len(newData), func(_, start, length int) error {
		for i := start; i < start+length; i++ {
			nearest := u.tree.Find(newData[i])
			result[i] = make([]float32, ndimOut)
			copy(result[i], u.embedding[nearest*ndimOut:(nearest+1)*ndimOut])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Embedding returns a copy of the current embedding, one row per observation.
func (u *UMAP) Embedding() [][]float32 {
	return unflatten(u.embedding, u.Config.NDimOut)
}

func (c Config) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return discardLogger()
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
