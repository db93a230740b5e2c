// Package kmeans clusters dense float64 observations with pluggable
// initialization and refinement strategies.
//
// Observations and centres are stored observation-major: observation i of a
// dataset with ndim dimensions occupies data[i*ndim : (i+1)*ndim], and centre
// c occupies centers[c*ndim : (c+1)*ndim]. Cluster assignments are indices
// into the centres.
package kmeans

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nozzle/umapkit/internal/parallel"
)

// ErrInvalidArgument is returned for malformed inputs such as negative
// dimensions or a data buffer that is too short.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrIndexOverflow is returned when the quick-transfer step budget of
// Hartigan-Wong cannot be represented for the number of observations.
var ErrIndexOverflow = errors.New("too many observations for the quick-transfer step counter")

// Status describes how a refinement finished. Non-zero statuses still come
// with a usable clustering.
type Status int

const (
	// StatusOK means the refinement converged.
	StatusOK Status = 0
	// StatusEmptyCluster means at least one cluster lost all observations.
	StatusEmptyCluster Status = 1
	// StatusMaxIterations means the iteration budget ran out.
	StatusMaxIterations Status = 2
	// StatusTooManyCenters means more centres than observations were
	// requested, or none at all.
	StatusTooManyCenters Status = 3
	// StatusQuickTransferCap means the Hartigan-Wong quick-transfer stage
	// hit its step cap.
	StatusQuickTransferCap Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmptyCluster:
		return "empty_cluster"
	case StatusMaxIterations:
		return "max_iterations"
	case StatusTooManyCenters:
		return "too_many_centers"
	case StatusQuickTransferCap:
		return "quick_transfer_cap"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Details reports the outcome of a refinement.
type Details struct {
	// Sizes holds the number of observations in each cluster.
	Sizes []int
	// WithinSS holds the within-cluster sum of squares of each cluster.
	WithinSS []float64
	// Iterations is the number of iterations performed.
	Iterations int
	// Status is the termination status.
	Status Status
}

// Initializer fills the first ncenters centres and returns how many were
// actually produced, which may be fewer than requested. clusters may be used
// as scratch space or to seed assignments.
type Initializer interface {
	Initialize(ndim, nobs int, data []float64, ncenters int, centers []float64, clusters []int) (int, error)
}

// Refiner improves the centres and assignments starting from initialized
// centres.
type Refiner interface {
	Refine(ndim, nobs int, data []float64, ncenters int, centers []float64, clusters []int) (Details, error)
}

// Options configures Run.
type Options struct {
	// Seed is used by the default initializer when none is given.
	Seed uint64

	// NumThreads is used by the default initializer and refiner.
	NumThreads int

	// Dispatcher schedules the default refiner's workers.
	Dispatcher parallel.Dispatcher

	// Logger receives debug output. Nil discards it.
	Logger logrus.FieldLogger
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		Seed:       DefaultInitSeed,
		NumThreads: 1,
	}
}

// Result holds the output of Run.
type Result struct {
	// Centers holds ndim * len(Details.Sizes) values.
	Centers []float64
	// Clusters holds one assignment per observation.
	Clusters []int
	Details  Details
}

// NumCenters returns the number of centres in the result.
func (r *Result) NumCenters() int {
	return len(r.Details.Sizes)
}

// Run clusters nobs observations into ncenters clusters. A nil init uses
// k-means++ seeded with opts.Seed, and a nil refine uses Hartigan-Wong.
//
// Requests with ncenters <= 1 or ncenters >= nobs skip both strategies and
// produce the degenerate clustering directly. Otherwise the number of centres
// the initializer actually produced is passed on to the refiner and reflected
// in the result.
func Run(ndim, nobs int, data []float64, ncenters int, init Initializer, refine Refiner, opts Options) (*Result, error) {
	if err := validate(ndim, nobs, data, ncenters); err != nil {
		return nil, err
	}
	res := &Result{
		Centers:  make([]float64, ndim*ncenters),
		Clusters: make([]int, nobs),
	}
	details, actual, err := run(ndim, nobs, data, ncenters, res.Centers, res.Clusters, init, refine, opts)
	if err != nil {
		return nil, err
	}
	res.Centers = res.Centers[:ndim*actual]
	res.Details = details
	return res, nil
}

// RunInto is Run writing into caller-provided buffers. centers must hold
// ndim*ncenters values and is read by initializers that keep existing
// centres, such as None. It returns the details and the number of centres in
// use.
func RunInto(ndim, nobs int, data []float64, ncenters int, centers []float64, clusters []int, init Initializer, refine Refiner, opts Options) (Details, int, error) {
	if err := validate(ndim, nobs, data, ncenters); err != nil {
		return Details{}, 0, err
	}
	if len(centers) < ndim*ncenters || len(clusters) < nobs {
		return Details{}, 0, errors.Wrapf(ErrInvalidArgument, "buffers too small for %d centres and %d observations", ncenters, nobs)
	}
	return run(ndim, nobs, data, ncenters, centers, clusters, init, refine, opts)
}

func run(ndim, nobs int, data []float64, ncenters int, centers []float64, clusters []int, init Initializer, refine Refiner, opts Options) (Details, int, error) {
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}
	logger = logger.WithField("action", "kmeans")

	if IsEdgeCase(nobs, ncenters) {
		details := ProcessEdgeCase(ndim, nobs, data, ncenters, centers, clusters)
		logger.WithField("status", details.Status).Debug("degenerate number of centres")
		return details, len(details.Sizes), nil
	}

	if init == nil {
		init = &KmeansPP{Seed: opts.Seed, NumThreads: opts.NumThreads}
	}
	if refine == nil {
		refine = &HartiganWong{MaxIterations: DefaultMaxIterations, NumThreads: opts.NumThreads, Dispatcher: opts.Dispatcher}
	}

	actual, err := init.Initialize(ndim, nobs, data, ncenters, centers, clusters)
	if err != nil {
		return Details{}, 0, errors.Wrap(err, "initialize centres")
	}
	if actual < ncenters {
		logger.WithField("requested", ncenters).WithField("actual", actual).
			Debug("initializer produced fewer centres than requested")
	}

	details, err := refine.Refine(ndim, nobs, data, actual, centers, clusters)
	if err != nil {
		return Details{}, 0, errors.Wrap(err, "refine centres")
	}
	logger.WithField("iterations", details.Iterations).WithField("status", details.Status).
		Debug("refinement finished")
	return details, actual, nil
}

func validate(ndim, nobs int, data []float64, ncenters int) error {
	switch {
	case ndim < 0:
		return errors.Wrapf(ErrInvalidArgument, "negative number of dimensions %d", ndim)
	case nobs < 0:
		return errors.Wrapf(ErrInvalidArgument, "negative number of observations %d", nobs)
	case ncenters < 0:
		return errors.Wrapf(ErrInvalidArgument, "negative number of centres %d", ncenters)
	case len(data) < ndim*nobs:
		return errors.Wrapf(ErrInvalidArgument, "data has %d values, expected %d x %d", len(data), ndim, nobs)
	}
	return nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// observation returns the coordinates of observation i.
func observation(data []float64, ndim, i int) []float64 {
	return data[i*ndim : (i+1)*ndim]
}
