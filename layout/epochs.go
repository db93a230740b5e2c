package layout

import (
	"github.com/nozzle/umapkit/graph"
)

// EpochData is the sampling schedule of the optimizer. Edges are grouped by
// their head observation: the edges of observation i occupy
// Tail[Head[i]:Head[i+1]] and the matching entries of the per-edge slices.
type EpochData struct {
	// TotalEpochs is the number of epochs of a full run.
	TotalEpochs int
	// CurrentEpoch is the next epoch to run.
	CurrentEpoch int

	Head []int32
	Tail []int32

	// EpochsPerSample is the sampling period of each edge in epochs. The
	// strongest edge is sampled every epoch.
	EpochsPerSample []float32

	EpochOfNextSample         []float32
	EpochOfNextNegativeSample []float32

	// NegativeSampleRate is the number of negative samples drawn per
	// positive sample.
	NegativeSampleRate float32
}

// NumObservations returns the number of observations in the schedule.
func (e *EpochData) NumObservations() int {
	return len(e.Head) - 1
}

// NumEdges returns the number of retained edges.
func (e *EpochData) NumEdges() int {
	return len(e.Tail)
}

// SimilaritiesToEpochs converts the edge weights of g into a sampling
// schedule. Edges weaker than max_weight/numEpochs would never be sampled
// and are dropped; the remaining edges are sampled every max_weight/weight
// epochs. With no epochs every edge is dropped.
func SimilaritiesToEpochs(g *graph.CSRMatrix, numEpochs int, negativeSampleRate float32) *EpochData {
	n := g.NRows
	out := &EpochData{
		TotalEpochs:        numEpochs,
		Head:               make([]int32, n+1),
		NegativeSampleRate: negativeSampleRate,
	}

	var maxWeight float32
	for _, w := range g.Data {
		maxWeight = max(maxWeight, w)
	}

	if numEpochs > 0 {
		limit := maxWeight / float32(numEpochs)
		out.Tail = make([]int32, 0, g.NNZ)
		out.EpochsPerSample = make([]float32, 0, g.NNZ)
		for i := 0; i < n; i++ {
			cols, vals := g.GetRow(i)
			for idx, w := range vals {
				if w >= limit && w > 0 {
					out.Tail = append(out.Tail, cols[idx])
					out.EpochsPerSample = append(out.EpochsPerSample, maxWeight/w)
				}
			}
			out.Head[i+1] = int32(len(out.Tail))
		}
	}

	out.EpochOfNextSample = make([]float32, len(out.EpochsPerSample))
	out.EpochOfNextNegativeSample = make([]float32, len(out.EpochsPerSample))
	copy(out.EpochOfNextSample, out.EpochsPerSample)
	for i, eps := range out.EpochsPerSample {
		out.EpochOfNextNegativeSample[i] = eps / negativeSampleRate
	}
	return out
}
