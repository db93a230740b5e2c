package nn

import (
	"math"

	"github.com/nozzle/umapkit/distance"
	"github.com/nozzle/umapkit/internal/heap"
	imath "github.com/nozzle/umapkit/internal/math"
	"github.com/nozzle/umapkit/internal/rand"
)

// vpTreeSeed seeds pivot selection. Any fixed value works; it only has to
// make tree construction reproducible.
const vpTreeSeed = 1234567890

const leafMarker = -1

// VPTree is a vantage-point tree over a fixed set of points for exact
// Euclidean nearest-neighbour queries.
//
// Points are stored observation-major: point i occupies
// data[i*ndim : (i+1)*ndim]. The tree keeps a reference to data, which must
// not be modified while the tree is in use.
type VPTree[T distance.Float] struct {
	ndim  int
	nobs  int
	data  []T
	nodes []vpNode[T]
}

type vpNode[T distance.Float] struct {
	// Euclidean distance to the median point; left holds points closer than
	// this, right the rest.
	threshold T
	index     int
	left      int
	right     int
}

type vpItem[T distance.Float] struct {
	index int
	dist  T
}

// NewVPTree builds a tree over nobs points of dimension ndim.
func NewVPTree[T distance.Float](ndim, nobs int, data []T) *VPTree[T] {
	t := &VPTree[T]{
		ndim:  ndim,
		nobs:  nobs,
		data:  data,
		nodes: make([]vpNode[T], 0, nobs),
	}
	items := make([]vpItem[T], nobs)
	for i := range items {
		items[i].index = i
	}
	rng := rand.NewMT19937_64(vpTreeSeed)
	t.build(0, nobs, items, rng)
	return t
}

// Len returns the number of indexed points.
func (t *VPTree[T]) Len() int { return t.nobs }

func (t *VPTree[T]) point(i int) []T {
	return t.data[i*t.ndim : (i+1)*t.ndim]
}

func (t *VPTree[T]) build(lower, upper int, items []vpItem[T], rng *rand.MT19937_64) int {
	if lower == upper {
		return leafMarker
	}

	pos := len(t.nodes)
	t.nodes = append(t.nodes, vpNode[T]{left: leafMarker, right: leafMarker})

	gap := upper - lower
	if gap == 1 {
		t.nodes[pos].index = items[lower].index
		return pos
	}

	// Move a random vantage point to the front of the block.
	i := int(rng.Uint64()%uint64(gap)) + lower
	items[lower], items[i] = items[i], items[lower]
	vantage := t.point(items[lower].index)

	for j := lower + 1; j < upper; j++ {
		items[j].dist = distance.SquaredEuclidean(vantage, t.point(items[j].index))
	}

	median := lower + gap/2
	nthElement(items[lower+1:upper], median-lower-1)

	threshold := T(math.Sqrt(float64(items[median].dist)))
	index := items[lower].index
	left := t.build(lower+1, median, items, rng)
	right := t.build(median, upper, items, rng)

	node := &t.nodes[pos]
	node.threshold = threshold
	node.index = index
	node.left = left
	node.right = right
	return pos
}

// nthElement partially sorts items so that items[k] holds the element that
// would be there in a full sort by distance, with no larger element before it
// and no smaller element after it.
func nthElement[T distance.Float](items []vpItem[T], k int) {
	lo, hi := 0, len(items)-1
	for lo < hi {
		pivot := items[lo+(hi-lo)/2].dist
		i, j := lo, hi
		for i <= j {
			for items[i].dist < pivot {
				i++
			}
			for items[j].dist > pivot {
				j--
			}
			if i <= j {
				items[i], items[j] = items[j], items[i]
				i++
				j--
			}
		}
		switch {
		case k <= j:
			hi = j
		case k >= i:
			lo = i
		default:
			return
		}
	}
}

// Find returns the index of the nearest indexed point to query. It returns -1
// for an empty tree.
func (t *VPTree[T]) Find(query []T) int {
	idx, _ := t.FindWithDistance(query)
	return idx
}

// FindWithDistance returns the index of the nearest point to query together
// with its Euclidean distance. Ties may resolve to any of the tied points.
func (t *VPTree[T]) FindWithDistance(query []T) (int, T) {
	if t.nobs == 0 {
		return -1, imath.MaxValue[T]()
	}
	tau := imath.MaxValue[T]()
	closest := 0
	t.searchNearest(0, query, &closest, &tau)
	return closest, tau
}

func (t *VPTree[T]) searchNearest(nodeIndex int, query []T, closest *int, tau *T) {
	if nodeIndex == leafMarker {
		return
	}

	node := &t.nodes[nodeIndex]
	dist := distance.Euclidean(t.point(node.index), query)
	if dist < *tau {
		*closest = node.index
		*tau = dist
	}

	if node.left == leafMarker && node.right == leafMarker {
		return
	}

	if dist < node.threshold {
		if dist-*tau <= node.threshold {
			t.searchNearest(node.left, query, closest, tau)
		}
		if dist+*tau >= node.threshold {
			t.searchNearest(node.right, query, closest, tau)
		}
	} else {
		if dist+*tau >= node.threshold {
			t.searchNearest(node.right, query, closest, tau)
		}
		if dist-*tau <= node.threshold {
			t.searchNearest(node.left, query, closest, tau)
		}
	}
}

// Search returns the k nearest indexed points to query, sorted by increasing
// distance. Fewer than k results are returned when the tree holds fewer
// points.
func (t *VPTree[T]) Search(query []T, k int) ([]int32, []T) {
	k = min(k, t.nobs)
	if k <= 0 {
		return nil, nil
	}
	h := heap.New[T](k)
	t.searchKNN(0, query, h)
	h.Sort()
	return h.Indices, h.Distances
}

func (t *VPTree[T]) searchKNN(nodeIndex int, query []T, h *heap.MaxHeap[T]) {
	if nodeIndex == leafMarker {
		return
	}

	node := &t.nodes[nodeIndex]
	dist := distance.Euclidean(t.point(node.index), query)
	h.PushWithoutDuplicateCheck(int32(node.index), dist, 0)

	if node.left == leafMarker && node.right == leafMarker {
		return
	}

	if dist < node.threshold {
		if dist-h.MaxDist() <= node.threshold {
			t.searchKNN(node.left, query, h)
		}
		if dist+h.MaxDist() >= node.threshold {
			t.searchKNN(node.right, query, h)
		}
	} else {
		if dist+h.MaxDist() >= node.threshold {
			t.searchKNN(node.right, query, h)
		}
		if dist-h.MaxDist() <= node.threshold {
			t.searchKNN(node.left, query, h)
		}
	}
}
