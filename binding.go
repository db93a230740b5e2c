package umap

import (
	"encoding"
	"reflect"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nozzle/umapkit/internal/parallel"
	"github.com/nozzle/umapkit/kmeans"
	"github.com/nozzle/umapkit/monitoring"
	"github.com/nozzle/umapkit/powerit"
)

// DefaultParameters lists every option accepted by RunEmbedding with its
// default value.
func DefaultParameters() map[string]any {
	return toParams(DefaultConfig())
}

// RunEmbedding embeds the rows of matrix. params overrides the defaults of
// DefaultParameters; unknown keys and unrecognized values are rejected with
// ErrInvalidArgument. The result has one row of ndim_out values per input
// row.
func RunEmbedding(matrix [][]float32, params map[string]any) ([][]float32, error) {
	cfg := DefaultConfig()
	if err := decodeParams(params, &cfg); err != nil {
		return nil, err
	}
	return New(cfg).FitTransform(matrix)
}

// Names of the k-means strategies accepted by RunKmeans.
const (
	InitRandom       = "random"
	InitKmeansPP     = "kmeans++"
	InitPCAPartition = "pca_partition"
	InitNone         = "none"

	RefineHartiganWong = "hartigan_wong"
	RefineLloyd        = "lloyd"
	RefineMiniBatch    = "minibatch"
)

// KmeansConfig holds the options of RunKmeans.
type KmeansConfig struct {
	// Seed seeds the random, kmeans++ and pca_partition initializers.
	// Default: 6523
	Seed uint64 `yaml:"seed"`

	// RefineSeed seeds the minibatch refiner.
	// Default: 1234567890
	RefineSeed uint64 `yaml:"refine_seed"`

	// NumThreads for initialization and refinement.
	// Default: 1
	NumThreads int `yaml:"num_threads"`

	// MaxIterations caps the refinement. 0 uses the refiner's own default:
	// 10 for lloyd and hartigan_wong, 100 for minibatch.
	// Default: 0
	MaxIterations int `yaml:"max_iterations"`

	// BatchSize is the number of observations sampled per minibatch
	// iteration.
	// Default: 500
	BatchSize int `yaml:"batch_size"`

	// MaxChangeProportion is the minibatch convergence threshold.
	// Default: 0.01
	MaxChangeProportion float64 `yaml:"max_change_proportion"`

	// ConvergenceHistory is the number of minibatch iterations between
	// convergence checks.
	// Default: 10
	ConvergenceHistory int `yaml:"convergence_history"`

	// SizeAdjustment is the exponent applied to cluster sizes when
	// pca_partition picks the cluster to split.
	// Default: 1
	SizeAdjustment float64 `yaml:"size_adjustment"`

	// PowerIterations and PowerTolerance configure the power iterations of
	// pca_partition.
	// Default: 500, 1e-6
	PowerIterations int     `yaml:"power_iterations"`
	PowerTolerance  float64 `yaml:"power_tolerance"`

	// Centers are the starting centres for the "none" initializer,
	// ncenters rows of ndim values, observation-major.
	Centers []float64 `yaml:"centers"`

	Logger   logrus.FieldLogger  `yaml:"-"`
	Metrics  *monitoring.Metrics `yaml:"-"`
	Executor parallel.Executor   `yaml:"-"`
}

// DefaultKmeansConfig returns the default k-means configuration.
func DefaultKmeansConfig() KmeansConfig {
	mb := kmeans.NewMiniBatch()
	power := powerit.DefaultOptions()
	return KmeansConfig{
		Seed:                kmeans.DefaultInitSeed,
		RefineSeed:          mb.Seed,
		NumThreads:          1,
		BatchSize:           mb.BatchSize,
		MaxChangeProportion: mb.MaxChangeProportion,
		ConvergenceHistory:  mb.ConvergenceHistory,
		SizeAdjustment:      1,
		PowerIterations:     power.Iterations,
		PowerTolerance:      power.Tolerance,
	}
}

// DefaultKmeansParameters lists every option accepted by RunKmeans with its
// default value.
func DefaultKmeansParameters() map[string]any {
	return toParams(DefaultKmeansConfig())
}

// KmeansResult holds the output of RunKmeans.
type KmeansResult struct {
	// Centers holds one row per centre actually produced.
	Centers [][]float64
	// Clusters holds the centre index of each observation.
	Clusters   []int
	Sizes      []int
	WithinSS   []float64
	Iterations int
	Status     kmeans.Status
}

// RunKmeans clusters the rows of matrix into ncenters clusters. init is one
// of random, kmeans++, pca_partition or none, and refine one of
// hartigan_wong, lloyd or minibatch; empty names select kmeans++ and
// hartigan_wong. params overrides DefaultKmeansParameters.
func RunKmeans(matrix [][]float64, ncenters int, init, refine string, params map[string]any) (*KmeansResult, error) {
	cfg := DefaultKmeansConfig()
	if err := decodeParams(params, &cfg); err != nil {
		return nil, err
	}
	return cfg.Run(matrix, ncenters, init, refine)
}

// Validate checks the options and reports all violations at once.
func (c KmeansConfig) Validate() error {
	var result *multierror.Error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			result = multierror.Append(result, invalidf(format, args...))
		}
	}

	check(c.NumThreads >= 1, "num_threads must be at least 1, got %d", c.NumThreads)
	check(c.MaxIterations >= 0, "max_iterations must be non-negative, got %d", c.MaxIterations)
	check(c.BatchSize >= 1, "batch_size must be at least 1, got %d", c.BatchSize)
	check(c.MaxChangeProportion >= 0, "max_change_proportion must be non-negative, got %g", c.MaxChangeProportion)
	check(c.PowerIterations >= 1, "power_iterations must be at least 1, got %d", c.PowerIterations)

	return result.ErrorOrNil()
}

// Run is RunKmeans with an explicit configuration.
func (c KmeansConfig) Run(matrix [][]float64, ncenters int, init, refine string) (*KmeansResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	data, nobs, ndim, err := flatten(matrix)
	if err != nil {
		return nil, err
	}
	if ncenters < 1 {
		return nil, invalidf("number of centres must be positive, got %d", ncenters)
	}

	dispatcher := parallel.New(c.Executor)
	centers := make([]float64, ncenters*ndim)
	initializer, err := c.initializer(init, ndim, ncenters, centers, dispatcher)
	if err != nil {
		return nil, err
	}
	refine = strings.ToLower(refine)
	if refine == "" {
		refine = RefineHartiganWong
	}
	refiner, err := c.refiner(refine, dispatcher)
	if err != nil {
		return nil, err
	}

	logger := c.Logger
	if logger == nil {
		logger = discardLogger()
	}
	opts := kmeans.DefaultOptions()
	opts.Seed = c.Seed
	opts.NumThreads = c.NumThreads
	opts.Dispatcher = dispatcher
	opts.Logger = logger

	clusters := make([]int, nobs)
	done := c.Metrics.TrackPhase("kmeans")
	details, actual, err := kmeans.RunInto(ndim, nobs, data, ncenters, centers, clusters, initializer, refiner, opts)
	done()
	if err != nil {
		return nil, err
	}
	c.Metrics.KmeansRun(refine, details.Status.String())
	if details.Status != kmeans.StatusOK {
		logger.WithField("action", "kmeans").WithField("status", details.Status).
			Warn("k-means finished with a non-zero status")
	}

	return &KmeansResult{
		Centers:    unflatten(centers[:actual*ndim], ndim),
		Clusters:   clusters,
		Sizes:      details.Sizes,
		WithinSS:   details.WithinSS,
		Iterations: details.Iterations,
		Status:     details.Status,
	}, nil
}

func (c KmeansConfig) initializer(name string, ndim, ncenters int, centers []float64, d parallel.Dispatcher) (kmeans.Initializer, error) {
	switch strings.ToLower(name) {
	case InitRandom:
		return &kmeans.Random{Seed: c.Seed}, nil
	case InitKmeansPP, "":
		return &kmeans.KmeansPP{Seed: c.Seed, NumThreads: c.NumThreads, Dispatcher: d}, nil
	case InitPCAPartition:
		return &kmeans.PCAPartition{
			Power:          powerit.Options{Iterations: c.PowerIterations, Tolerance: c.PowerTolerance},
			SizeAdjustment: c.SizeAdjustment,
			Seed:           c.Seed,
		}, nil
	case InitNone:
		if len(c.Centers) != ncenters*ndim {
			return nil, invalidf("init %q needs %d x %d centers, got %d values", name, ncenters, ndim, len(c.Centers))
		}
		copy(centers, c.Centers)
		return kmeans.None{}, nil
	}
	return nil, invalidf("unknown init method %q", name)
}

func (c KmeansConfig) refiner(name string, d parallel.Dispatcher) (kmeans.Refiner, error) {
	switch name {
	case RefineHartiganWong:
		r := kmeans.NewHartiganWong()
		r.NumThreads, r.Dispatcher = c.NumThreads, d
		if c.MaxIterations > 0 {
			r.MaxIterations = c.MaxIterations
		}
		return r, nil
	case RefineLloyd:
		r := kmeans.NewLloyd()
		r.NumThreads, r.Dispatcher = c.NumThreads, d
		if c.MaxIterations > 0 {
			r.MaxIterations = c.MaxIterations
		}
		return r, nil
	case RefineMiniBatch:
		r := kmeans.NewMiniBatch()
		r.NumThreads, r.Dispatcher = c.NumThreads, d
		if c.MaxIterations > 0 {
			r.MaxIterations = c.MaxIterations
		}
		r.BatchSize = c.BatchSize
		r.MaxChangeProportion = c.MaxChangeProportion
		r.ConvergenceHistory = c.ConvergenceHistory
		r.Seed = c.RefineSeed
		return r, nil
	}
	return nil, invalidf("unknown refine method %q", name)
}

// flatten copies a row-per-observation matrix into an observation-major
// buffer.
func flatten[T float32 | float64](matrix [][]T) (data []T, nobs, ndim int, err error) {
	nobs = len(matrix)
	if nobs == 0 {
		return nil, 0, 0, invalidf("matrix has no rows")
	}
	ndim = len(matrix[0])
	if ndim == 0 {
		return nil, 0, 0, invalidf("matrix has no columns")
	}
	data = make([]T, 0, nobs*ndim)
	for i, row := range matrix {
		if len(row) != ndim {
			return nil, 0, 0, invalidf("row %d has %d columns, expected %d", i, len(row), ndim)
		}
		data = append(data, row...)
	}
	return data, nobs, ndim, nil
}

func unflatten[T float32 | float64](data []T, ndim int) [][]T {
	if ndim <= 0 || data == nil {
		return nil
	}
	out := make([][]T, len(data)/ndim)
	for i := range out {
		out[i] = append([]T(nil), data[i*ndim:(i+1)*ndim]...)
	}
	return out
}

// toParams lists the yaml-tagged fields of a config struct by key. Enum
// fields are given by name.
func toParams(v any) map[string]any {
	rv := reflect.ValueOf(v)
	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		key, _, _ := strings.Cut(rt.Field(i).Tag.Get("yaml"), ",")
		if key == "" || key == "-" {
			continue
		}
		value := rv.Field(i).Interface()
		if m, ok := value.(encoding.TextMarshaler); ok {
			text, err := m.MarshalText()
			if err != nil {
				panic(errors.Wrapf(err, "default for %s", key))
			}
			value = string(text)
		}
		out[key] = value
	}
	return out
}
