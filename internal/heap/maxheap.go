// Package heap provides max-heap implementations for k-NN tracking.
package heap

import imath "github.com/nozzle/umapkit/internal/math"

// Float is the distance type tracked by the heaps.
type Float interface {
	float32 | float64
}

// MaxHeap is a max-heap for tracking k-nearest neighbors.
// The largest distance is always at the root (index 0).
type MaxHeap[T Float] struct {
	Indices   []int32
	Distances []T
	Flags     []uint8 // 0 = old, 1 = new (for NNDescent)
	Size      int
	K         int
}

// New creates a new max-heap with capacity k, filled with sentinel entries
// (index -1, maximal distance).
func New[T Float](k int) *MaxHeap[T] {
	h := &MaxHeap[T]{
		Indices:   make([]int32, k),
		Distances: make([]T, k),
		Flags:     make([]uint8, k),
		K:         k,
	}
	h.Reset()
	return h
}

// MaxDist returns the maximum distance in the heap (root).
func (h *MaxHeap[T]) MaxDist() T {
	if h.K == 0 {
		return imath.MaxValue[T]()
	}
	return h.Distances[0]
}

// Push attempts to add a new neighbor to the heap.
// Returns true if the neighbor was added (was closer than max and not
// already present).
func (h *MaxHeap[T]) Push(idx int32, dist T, flag uint8) bool {
	if h.K == 0 || dist >= h.Distances[0] {
		return false
	}
	for i := 0; i < h.K; i++ {
		if h.Indices[i] == idx {
			return false
		}
	}
	h.replaceRoot(idx, dist, flag)
	return true
}

// PushWithoutDuplicateCheck adds a neighbor without checking duplicates.
// Use when you know there are no duplicates.
func (h *MaxHeap[T]) PushWithoutDuplicateCheck(idx int32, dist T, flag uint8) bool {
	if h.K == 0 || dist >= h.Distances[0] {
		return false
	}
	h.replaceRoot(idx, dist, flag)
	return true
}

func (h *MaxHeap[T]) replaceRoot(idx int32, dist T, flag uint8) {
	h.Distances[0] = dist
	h.Indices[0] = idx
	h.Flags[0] = flag
	siftDown(h.Indices, h.Distances, h.Flags, 0, h.K)
	if h.Size < h.K {
		h.Size++
	}
}

// Sort converts the heap to sorted order (ascending by distance). Sentinel
// entries end up at the tail. After sorting, the heap property is no longer
// maintained.
func (h *MaxHeap[T]) Sort() {
	for i := h.K - 1; i > 0; i-- {
		h.Distances[0], h.Distances[i] = h.Distances[i], h.Distances[0]
		h.Indices[0], h.Indices[i] = h.Indices[i], h.Indices[0]
		h.Flags[0], h.Flags[i] = h.Flags[i], h.Flags[0]
		siftDown(h.Indices, h.Distances, h.Flags, 0, i)
	}
}

// Reset clears the heap.
func (h *MaxHeap[T]) Reset() {
	sentinel := imath.MaxValue[T]()
	for i := 0; i < h.K; i++ {
		h.Indices[i] = -1
		h.Distances[i] = sentinel
		h.Flags[i] = 0
	}
	h.Size = 0
}

// FlaggedHeapPush pushes to array-based heap with flags, rejecting
// duplicates. flags may be nil.
func FlaggedHeapPush[T Float](
	indices []int32,
	distances []T,
	flags []uint8,
	idx int32,
	dist T,
	flag uint8,
) bool {
	k := len(indices)
	if k == 0 || dist >= distances[0] {
		return false
	}
	for i := 0; i < k; i++ {
		if indices[i] == idx {
			return false
		}
	}

	distances[0] = dist
	indices[0] = idx
	if flags != nil {
		flags[0] = flag
	}
	siftDown(indices, distances, flags, 0, k)
	return true
}

// DeheapSort sorts heap arrays in place (ascending).
func DeheapSort[T Float](indices []int32, distances []T, flags []uint8) {
	for i := len(indices) - 1; i > 0; i-- {
		distances[0], distances[i] = distances[i], distances[0]
		indices[0], indices[i] = indices[i], indices[0]
		if flags != nil {
			flags[0], flags[i] = flags[i], flags[0]
		}
		siftDown(indices, distances, flags, 0, i)
	}
}

// siftDown restores the heap property below i, limited to the first n
// elements.
func siftDown[T Float](indices []int32, distances []T, flags []uint8, i, n int) {
	for {
		left := 2*i + 1
		right := 2*i + 2

		if left >= n {
			break
		}

		swap := i
		if distances[left] > distances[swap] {
			swap = left
		}
		if right < n && distances[right] > distances[swap] {
			swap = right
		}

		if swap == i {
			break
		}

		distances[i], distances[swap] = distances[swap], distances[i]
		indices[i], indices[swap] = indices[swap], indices[i]
		if flags != nil {
			flags[i], flags[swap] = flags[swap], flags[i]
		}
		i = swap
	}
}
