package kmeans

import (
	"math"

	"github.com/pkg/errors"

	"github.com/nozzle/umapkit/internal/parallel"
)

// big stands in for an infinite adjustment factor.
const big = 1e30

// quickTransferFactor bounds the quick-transfer stage to this many steps per
// observation.
const quickTransferFactor = 50

// HartiganWong implements algorithm AS 136 (Hartigan and Wong, 1979). Each
// observation tracks its closest and second closest centre; optimal-transfer
// passes consider every live cluster for each observation, and
// quick-transfer passes only swap between the two tracked centres.
type HartiganWong struct {
	MaxIterations int
	NumThreads    int
	Dispatcher    parallel.Dispatcher
}

// NewHartiganWong returns a HartiganWong refiner with default settings.
func NewHartiganWong() *HartiganWong {
	return &HartiganWong{MaxIterations: DefaultMaxIterations, NumThreads: 1}
}

// stepKind distinguishes the states a cluster can be in with respect to the
// transfer stages.
type stepKind uint8

const (
	// stepInit: no stage has run yet, so cached distances are stale.
	stepInit stepKind = iota
	// stepUnchanged: the cluster was not touched in the last stage.
	stepUnchanged
	// stepUpdated: the cluster was last updated at a known step.
	stepUpdated
)

// clusterStep records when a cluster was last updated.
type clusterStep struct {
	kind stepKind
	step int
}

func updatedAt(step int) clusterStep { return clusterStep{kind: stepUpdated, step: step} }

func (c clusterStep) unchanged() bool { return c.kind == stepUnchanged }

// updatedAfter reports an update strictly later than step.
func (c clusterStep) updatedAfter(step int) bool { return c.kind == stepUpdated && c.step > step }

// updatedSince reports an update at or after step.
func (c clusterStep) updatedSince(step int) bool { return c.kind == stepUpdated && c.step >= step }

type hartiganWongState struct {
	ndim     int
	nobs     int
	ncenters int
	data     []float64
	centers  []float64

	ic1   []int
	ic2   []int
	nc    []int
	an1   []float64
	an2   []float64
	ncp   []clusterStep
	d     []float64
	itran []bool
	live  []int
}

// Refine implements Refiner.
func (h *HartiganWong) Refine(ndim, nobs int, data []float64, ncenters int, centers []float64, clusters []int) (Details, error) {
	if IsEdgeCase(nobs, ncenters) {
		return ProcessEdgeCase(ndim, nobs, data, ncenters, centers, clusters), nil
	}

	s := &hartiganWongState{
		ndim:     ndim,
		nobs:     nobs,
		ncenters: ncenters,
		data:     data,
		centers:  centers,
		ic1:      clusters[:nobs],
		ic2:      make([]int, nobs),
		nc:       make([]int, ncenters),
		an1:      make([]float64, ncenters),
		an2:      make([]float64, ncenters),
		ncp:      make([]clusterStep, ncenters),
		d:        make([]float64, nobs),
		itran:    make([]bool, ncenters),
		live:     make([]int, ncenters),
	}

	if err := s.findTwoClosest(h.NumThreads, h.Dispatcher); err != nil {
		return Details{}, err
	}

	clusterSizes(nobs, ncenters, s.ic1, s.nc)
	ComputeCentroids(ndim, nobs, data, ncenters, centers, s.ic1, s.nc)
	for cen := 0; cen < ncenters; cen++ {
		if s.nc[cen] == 0 {
			return Details{
				Sizes:    s.nc,
				WithinSS: ComputeWCSS(ndim, nobs, data, ncenters, centers, s.ic1),
				Status:   StatusEmptyCluster,
			}, nil
		}
		num := float64(s.nc[cen])
		s.an2[cen] = num / (num + 1)
		if num > 1 {
			s.an1[cen] = num / (num - 1)
		} else {
			s.an1[cen] = big
		}
	}

	if math.MaxInt/quickTransferFactor < nobs {
		return Details{}, errors.Wrapf(ErrIndexOverflow, "%d observations", nobs)
	}
	imaxqtr := nobs * quickTransferFactor

	for i := range s.itran {
		s.itran[i] = true
	}

	indx := 0
	status := StatusOK
	iter := 1
	for ; iter <= h.MaxIterations; iter++ {
		s.optimalTransfer(&indx)

		// No transfer in the last nobs optimal-transfer steps.
		if indx == nobs {
			break
		}

		s.quickTransfer(&indx, &imaxqtr)
		if imaxqtr < 0 {
			status = StatusQuickTransferCap
			break
		}

		// With two clusters the optimal-transfer stage has nothing to add.
		if ncenters == 2 {
			break
		}

		for i := range s.ncp {
			s.ncp[i] = clusterStep{kind: stepUnchanged}
		}
	}

	if iter == h.MaxIterations+1 {
		status = StatusMaxIterations
	}

	ComputeCentroids(ndim, nobs, data, ncenters, centers, s.ic1, s.nc)
	return Details{
		Sizes:      s.nc,
		WithinSS:   ComputeWCSS(ndim, nobs, data, ncenters, centers, s.ic1),
		Iterations: iter,
		Status:     status,
	}, nil
}

func (s *hartiganWongState) dist(obs, cen int) float64 {
	return squaredDistance(observation(s.data, s.ndim, obs), observation(s.centers, s.ndim, cen))
}

// findTwoClosest sets ic1 and ic2 to the closest and second closest centre
// of every observation.
func (s *hartiganWongState) findTwoClosest(numThreads int, d parallel.Dispatcher) error {
	return d.Range(numThreads, s.nobs, func(_, start, length int) error {
		for obs := start; obs < start+length; obs++ {
			best, second := 0, 1
			bestDist, secondDist := s.dist(obs, best), s.dist(obs, second)
			if bestDist > secondDist {
				best, second = second, best
				bestDist, secondDist = secondDist, bestDist
			}
			for cen := 2; cen < s.ncenters; cen++ {
				candidate := s.dist(obs, cen)
				if candidate < secondDist {
					second, secondDist = cen, candidate
					if candidate < bestDist {
						best, second = second, best
						bestDist, secondDist = secondDist, bestDist
					}
				}
			}
			s.ic1[obs] = best
			s.ic2[obs] = second
		}
		return nil
	})
}

// optimalTransfer makes one pass over the data, moving each observation to
// the cluster that most reduces the total sum of squares. indx counts the
// steps since the last transfer.
func (s *hartiganWongState) optimalTransfer(indx *int) {
	nobs := s.nobs

	// Clusters updated in the last quick-transfer stage stay live for the
	// whole pass.
	for cen := 0; cen < s.ncenters; cen++ {
		if s.itran[cen] {
			s.live[cen] = nobs
		}
	}

	for obs := 0; obs < nobs; obs++ {
		*indx++
		l1 := s.ic1[obs]

		if s.nc[l1] != 1 {
			if !s.ncp[l1].unchanged() {
				s.d[obs] = s.dist(obs, l1) * s.an1[l1]
			}

			l2 := s.ic2[obs]
			ll := l2
			r2 := s.dist(obs, l2) * s.an2[l2]
			for cen := 0; cen < s.ncenters; cen++ {
				// Non-live clusters only need checking against live ones.
				if (obs >= s.live[l1] && obs >= s.live[cen]) || cen == l1 || cen == ll {
					continue
				}
				rr := r2 / s.an2[cen]
				dc := s.dist(obs, cen)
				if dc < rr {
					r2 = dc * s.an2[cen]
					l2 = cen
				}
			}

			if r2 >= s.d[obs] {
				s.ic2[obs] = l2
			} else {
				*indx = 0
				s.live[l1] = nobs + obs
				s.live[l2] = nobs + obs
				s.ncp[l1] = updatedAt(obs)
				s.ncp[l2] = updatedAt(obs)
				s.transfer(obs, l1, l2)
			}
		}

		if *indx == nobs {
			return
		}
	}

	for cen := 0; cen < s.ncenters; cen++ {
		s.itran[cen] = false
		// An update is only live for nobs steps.
		s.live[cen] -= nobs
	}
}

// quickTransfer repeatedly checks whether each observation should swap
// between its two tracked clusters, until nobs consecutive steps pass
// without a swap. imaxqtr is set to -1 if the step cap is reached.
func (s *hartiganWongState) quickTransfer(indx *int, imaxqtr *int) {
	nobs := s.nobs
	icoun := 0
	istep := 0

	for {
		for obs := 0; obs < nobs; obs++ {
			icoun++
			l1 := s.ic1[obs]

			if s.nc[l1] != 1 {
				if s.ncp[l1].updatedSince(istep) {
					s.d[obs] = s.dist(obs, l1) * s.an1[l1]
				}

				l2 := s.ic2[obs]
				if s.ncp[l1].updatedAfter(istep) || s.ncp[l2].updatedAfter(istep) {
					if s.dist(obs, l2) < s.d[obs]/s.an2[l2] {
						icoun = 0
						*indx = 0
						s.itran[l1] = true
						s.itran[l2] = true
						s.ncp[l1] = updatedAt(istep + nobs)
						s.ncp[l2] = updatedAt(istep + nobs)
						s.transfer(obs, l1, l2)
					}
				}
			}

			if icoun == nobs {
				return
			}

			istep++
			if istep >= *imaxqtr {
				*imaxqtr = -1
				return
			}
		}
	}
}

// transfer moves obs from cluster l1 to l2, updating both centres and their
// adjustment factors incrementally.
func (s *hartiganWongState) transfer(obs, l1, l2 int) {
	al1 := float64(s.nc[l1])
	alw := al1 - 1
	al2 := float64(s.nc[l2])
	alt := al2 + 1

	c1 := observation(s.centers, s.ndim, l1)
	c2 := observation(s.centers, s.ndim, l2)
	x := observation(s.data, s.ndim, obs)
	for dim := range x {
		c1[dim] = (c1[dim]*al1 - x[dim]) / alw
		c2[dim] = (c2[dim]*al2 + x[dim]) / alt
	}

	s.nc[l1]--
	s.nc[l2]++
	s.an2[l1] = alw / al1
	if alw > 1 {
		s.an1[l1] = alw / (alw - 1)
	} else {
		s.an1[l1] = big
	}
	s.an1[l2] = alt / al2
	s.an2[l2] = alt / (alt + 1)
	s.ic1[obs] = l2
	s.ic2[obs] = l1
}
