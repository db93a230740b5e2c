package umap

import (
	"bytes"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/nozzle/umapkit/initialize"
	"github.com/nozzle/umapkit/internal/parallel"
	"github.com/nozzle/umapkit/monitoring"
	"github.com/nozzle/umapkit/nn"
)

// Config configures the UMAP algorithm. The yaml keys double as the option
// names accepted by RunEmbedding.
type Config struct {
	// Method selects the neighbour search: "annoy" (approximate) or
	// "vptree" (exact).
	// Default: annoy
	Method nn.Method `yaml:"method"`

	// NDimOut is the dimensionality of the target embedding.
	// Default: 2
	NDimOut int `yaml:"ndim_out"`

	// NumThreads for the neighbour search, graph construction and batched
	// optimization.
	// Default: 1
	NumThreads int `yaml:"num_threads"`

	// LocalConnectivity is the number of nearest neighbours assumed to be
	// fully connected.
	// Default: 1.0
	LocalConnectivity float64 `yaml:"local_connectivity"`

	// Bandwidth scales the target sum of membership strengths per point.
	// Default: 1.0
	Bandwidth float64 `yaml:"bandwidth"`

	// MixRatio controls the blend between fuzzy set union and intersection.
	// 0.0 = pure intersection, 1.0 = pure union
	// Default: 1.0
	MixRatio float64 `yaml:"mix_ratio"`

	// Spread is the effective scale of embedded points.
	// Default: 1.0
	Spread float64 `yaml:"spread"`

	// MinDist is the effective minimum distance between embedded points.
	// Smaller values create tighter clusters but may lose global structure.
	// Default: 0.01
	MinDist float64 `yaml:"min_dist"`

	// A and B are the curve parameters. Non-positive values are fitted from
	// Spread and MinDist.
	// Default: 0
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`

	// RepulsionStrength weighs the repulsive forces.
	// Default: 1.0
	RepulsionStrength float64 `yaml:"repulsion_strength"`

	// Init is the initialization method: spectral, spectral_only, random
	// or none.
	// Default: spectral
	Init initialize.Method `yaml:"init"`

	// NumEpochs is the number of training epochs.
	// Default: 500
	NumEpochs int `yaml:"num_epochs"`

	// LearningRate is the initial learning rate for SGD.
	// Default: 1.0
	LearningRate float64 `yaml:"learning_rate"`

	// NegativeSampleRate is the number of negative samples per positive sample.
	// Default: 5
	NegativeSampleRate float64 `yaml:"negative_sample_rate"`

	// NumNeighbors is the number of neighbors for k-NN graph construction.
	// Larger values capture more global structure but are slower.
	// Default: 15
	NumNeighbors int `yaml:"num_neighbors"`

	// Seed for random number generation.
	// Default: 1234567890
	Seed uint64 `yaml:"seed"`

	// ParallelOptimization runs the batched optimizer across NumThreads.
	// Default: false
	ParallelOptimization bool `yaml:"parallel_optimization"`

	// EpochLimit stops Fit after this many epochs. 0 runs to completion.
	// Default: 0
	EpochLimit int `yaml:"epoch_limit"`

	// Logger receives progress output. Nil discards it.
	Logger logrus.FieldLogger `yaml:"-"`

	// Metrics records phase timings. Nil disables them.
	Metrics *monitoring.Metrics `yaml:"-"`

	// Executor schedules parallel work. Nil starts one goroutine per worker.
	Executor parallel.Executor `yaml:"-"`

	// ProgressCallback is called after each epoch with (epoch, totalEpochs).
	ProgressCallback func(epoch, total int) `yaml:"-"`
}

// DefaultConfig returns the default UMAP configuration.
func DefaultConfig() Config {
	return Config{
		Method:               nn.MethodAnnoy,
		NDimOut:              2,
		NumThreads:           1,
		LocalConnectivity:    1.0,
		Bandwidth:            1.0,
		MixRatio:             1.0,
		Spread:               1.0,
		MinDist:              0.01,
		RepulsionStrength:    1.0,
		Init:                 initialize.Spectral,
		NumEpochs:            500,
		LearningRate:         1.0,
		NegativeSampleRate:   5,
		NumNeighbors:         15,
		Seed:                 1234567890,
		ParallelOptimization: false,
		EpochLimit:           0,
	}
}

// Validate checks every option and reports all violations at once. The
// returned error matches ErrInvalidArgument.
func (c Config) Validate() error {
	var result *multierror.Error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			result = multierror.Append(result, invalidf(format, args...))
		}
	}

	check(c.Method == nn.MethodAnnoy || c.Method == nn.MethodVPTree, "unknown method %d", int(c.Method))
	check(c.NDimOut >= 1, "ndim_out must be at least 1, got %d", c.NDimOut)
	check(c.NumThreads >= 1, "num_threads must be at least 1, got %d", c.NumThreads)
	check(c.LocalConnectivity > 0, "local_connectivity must be positive, got %g", c.LocalConnectivity)
	check(c.Bandwidth > 0, "bandwidth must be positive, got %g", c.Bandwidth)
	check(c.MixRatio >= 0 && c.MixRatio <= 1, "mix_ratio must be in [0, 1], got %g", c.MixRatio)
	check(c.Spread > 0, "spread must be positive, got %g", c.Spread)
	check(c.MinDist >= 0, "min_dist must be non-negative, got %g", c.MinDist)
	check(c.Init >= initialize.Spectral && c.Init <= initialize.None, "unknown init %d", int(c.Init))
	check(c.NumEpochs >= 0, "num_epochs must be non-negative, got %d", c.NumEpochs)
	check(c.NegativeSampleRate >= 0, "negative_sample_rate must be non-negative, got %g", c.NegativeSampleRate)
	check(c.NumNeighbors >= 1, "num_neighbors must be at least 1, got %d", c.NumNeighbors)
	check(c.EpochLimit >= 0, "epoch_limit must be non-negative, got %d", c.EpochLimit)

	return result.ErrorOrNil()
}

// LoadConfig reads a yaml file on top of DefaultConfig. Unknown keys are
// rejected.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	cfg := DefaultConfig()
	if err := decodeStrict(raw, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// LoadKmeansConfig reads a yaml file on top of DefaultKmeansConfig.
func LoadKmeansConfig(path string) (KmeansConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return KmeansConfig{}, errors.Wrapf(err, "read config %s", path)
	}
	cfg := DefaultKmeansConfig()
	if err := decodeStrict(raw, &cfg); err != nil {
		return KmeansConfig{}, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// decodeStrict decodes yaml into out, rejecting unknown keys. Failures match
// ErrInvalidArgument.
func decodeStrict(raw []byte, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return invalidf("%v", err)
	}
	return nil
}

// decodeParams applies an option map on top of out.
func decodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(params)
	if err != nil {
		return invalidf("encode options: %v", err)
	}
	return decodeStrict(raw, out)
}
