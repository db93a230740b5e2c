// Package initialize provides initialization methods for UMAP embeddings.
// This includes spectral embedding and random initialization.
//
// Embeddings are flat observation-major buffers: the coordinates of
// observation i occupy embedding[i*ndim : (i+1)*ndim].
package initialize

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/nozzle/umapkit/graph"
	"github.com/nozzle/umapkit/internal/rand"
	"github.com/nozzle/umapkit/powerit"
)

// Method specifies the initialization method.
type Method int

const (
	// Spectral uses spectral embedding from the graph Laplacian and falls
	// back to Random when it fails.
	Spectral Method = iota
	// SpectralOnly uses spectral embedding and leaves the buffer untouched
	// when it fails.
	SpectralOnly
	// Random draws coordinates uniformly from [-10, 10).
	Random
	// None keeps the coordinates already in the buffer.
	None
)

func (m Method) String() string {
	switch m {
	case Spectral:
		return "spectral"
	case SpectralOnly:
		return "spectral_only"
	case Random:
		return "random"
	case None:
		return "none"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	if m < Spectral || m > None {
		return nil, errors.Errorf("unknown initialization method %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "spectral":
		*m = Spectral
	case "spectral_only":
		*m = SpectralOnly
	case "random":
		*m = Random
	case "none":
		*m = None
	default:
		return errors.Errorf("unknown initialization method %q", text)
	}
	return nil
}

// Config configures Initialize.
type Config struct {
	// Method selects the initialization.
	Method Method

	// Seed seeds random initialization and the starting vectors of the
	// sparse spectral solver.
	Seed uint64

	// DenseLimit is the largest number of observations for which the
	// Laplacian is decomposed densely.
	DenseLimit int

	// Power configures the power iterations used above DenseLimit.
	Power powerit.Options
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Method:     Spectral,
		Seed:       1234567890,
		DenseLimit: DenseLimit,
		Power:      powerit.DefaultOptions(),
	}
}

// Initialize fills embedding according to cfg.Method and returns the method
// that was actually applied: Random after a spectral fallback, None when
// SpectralOnly failed. The spectral failure, if any, is returned alongside
// so the caller can report it; it is not fatal.
func Initialize(g *graph.CSRMatrix, ndim int, embedding []float32, cfg Config) (Method, error) {
	nobs := g.NRows
	if ndim <= 0 || len(embedding) != ndim*nobs {
		return None, errors.Errorf("embedding has %d values, expected %d x %d", len(embedding), ndim, nobs)
	}

	switch cfg.Method {
	case Spectral, SpectralOnly:
		err := SpectralEmbedding(g, ndim, embedding, cfg)
		if err == nil {
			return cfg.Method, nil
		}
		if cfg.Method == SpectralOnly {
			return None, err
		}
		RandomEmbedding(nobs, ndim, embedding, cfg.Seed)
		return Random, err
	case Random:
		RandomEmbedding(nobs, ndim, embedding, cfg.Seed)
		return Random, nil
	case None:
		return None, nil
	}
	return None, errors.Errorf("unknown initialization method %d", int(cfg.Method))
}

// RandomEmbedding fills embedding with nobs*ndim values drawn uniformly from
// [-10, 10).
func RandomEmbedding(nobs, ndim int, embedding []float32, seed uint64) {
	eng := rand.NewMT19937_64(seed)
	for i := range embedding[:nobs*ndim] {
		embedding[i] = float32(rand.StandardUniform(eng)*20 - 10)
	}
}

// scaleAndCenter centres every dimension and scales the embedding so that
// the largest absolute coordinate is 10.
func scaleAndCenter(nobs, ndim int, embedding []float32) {
	if nobs == 0 {
		return
	}

	// Compute mean for each dimension
	means := make([]float64, ndim)
	for i := 0; i < nobs; i++ {
		for d := 0; d < ndim; d++ {
			means[d] += float64(embedding[i*ndim+d])
		}
	}
	for d := 0; d < ndim; d++ {
		means[d] /= float64(nobs)
	}

	maxAbs := float32(0)
	for i := 0; i < nobs; i++ {
		for d := 0; d < ndim; d++ {
			val := embedding[i*ndim+d] - float32(means[d])
			embedding[i*ndim+d] = val
			if val < 0 {
				val = -val
			}
			if val > maxAbs {
				maxAbs = val
			}
		}
	}

	if maxAbs > 0 {
		scale := 10.0 / maxAbs
		for i := range embedding[:nobs*ndim] {
			embedding[i] *= scale
		}
	}
}
