package nn

import (
	"slices"

	"github.com/nozzle/umapkit/internal/rand"
)

// RPTree represents a random projection tree for approximate nearest neighbor search.
type RPTree struct {
	// Hyperplane normal for splits (nil for leaf nodes)
	Hyperplane []float32
	// Offset for the hyperplane decision
	Offset float32
	// Left and Right children (nil for leaves)
	Left  *RPTree
	Right *RPTree
	// Indices of points in this leaf (empty for internal nodes)
	Indices []int32
	// IsLeaf indicates if this is a leaf node
	IsLeaf bool
}

// RPForest is a collection of RP-trees used to seed NN-descent.
type RPForest struct {
	Trees    []*RPTree
	LeafSize int
}

// RPForestConfig configures RP-forest construction.
type RPForestConfig struct {
	// NumTrees is the number of trees to build
	NumTrees int
	// LeafSize is the maximum number of points in a leaf
	LeafSize int
	// Seed for random number generation
	Seed int64
}

// DefaultRPForestConfig returns default configuration.
func DefaultRPForestConfig() RPForestConfig {
	return RPForestConfig{
		NumTrees: 10,
		LeafSize: 30,
		Seed:     42,
	}
}

// BuildRPForest builds a random projection forest over nobs points of
// dimension ndim stored observation-major in data.
func BuildRPForest(data []float32, ndim, nobs int, config RPForestConfig) *RPForest {
	if nobs == 0 || config.NumTrees <= 0 {
		return &RPForest{LeafSize: config.LeafSize}
	}
	leafSize := max(config.LeafSize, 2)

	rng := rand.NewTau(config.Seed)
	trees := make([]*RPTree, config.NumTrees)

	for t := range trees {
		indices := make([]int32, nobs)
		for i := range indices {
			indices[i] = int32(i)
		}
		trees[t] = buildRPTree(data, ndim, indices, leafSize, rng)
	}

	return &RPForest{
		Trees:    trees,
		LeafSize: leafSize,
	}
}

// buildRPTree recursively builds a Euclidean RP-tree splitting on the
// hyperplane equidistant from two random points.
func buildRPTree(data []float32, ndim int, indices []int32, leafSize int, rng *rand.Tau) *RPTree {
	if len(indices) <= leafSize {
		return &RPTree{
			Indices: slices.Clone(indices),
			IsLeaf:  true,
		}
	}

	i := rng.Intn(len(indices))
	j := rng.Intn(len(indices))
	for j == i {
		j = rng.Intn(len(indices))
	}

	p1 := data[int(indices[i])*ndim : (int(indices[i])+1)*ndim]
	p2 := data[int(indices[j])*ndim : (int(indices[j])+1)*ndim]

	hyperplane := make([]float32, ndim)
	var offset float32
	for d := range ndim {
		hyperplane[d] = p2[d] - p1[d]
		offset += (p1[d] + p2[d]) / 2 * hyperplane[d]
	}

	leftIndices := make([]int32, 0, len(indices)/2)
	rightIndices := make([]int32, 0, len(indices)/2)
	for _, idx := range indices {
		if project(data[int(idx)*ndim:(int(idx)+1)*ndim], hyperplane) < offset {
			leftIndices = append(leftIndices, idx)
		} else {
			rightIndices = append(rightIndices, idx)
		}
	}

	// Duplicated points cannot be separated by a hyperplane.
	if len(leftIndices) == 0 || len(rightIndices) == 0 {
		rand.Shuffle(rng, indices)
		mid := len(indices) / 2
		leftIndices = indices[:mid]
		rightIndices = indices[mid:]
	}

	return &RPTree{
		Hyperplane: hyperplane,
		Offset:     offset,
		Left:       buildRPTree(data, ndim, leftIndices, leafSize, rng),
		Right:      buildRPTree(data, ndim, rightIndices, leafSize, rng),
	}
}

func project(point, hyperplane []float32) float32 {
	var side float32
	for d := range point {
		side += point[d] * hyperplane[d]
	}
	return side
}

// SearchTree finds the leaf containing a query point.
func (t *RPTree) SearchTree(query []float32) []int32 {
	if t.IsLeaf {
		return t.Indices
	}
	if project(query, t.Hyperplane) < t.Offset {
		return t.Left.SearchTree(query)
	}
	return t.Right.SearchTree(query)
}

// SearchForest returns the union of the leaves containing query across all
// trees, in increasing index order.
func (f *RPForest) SearchForest(query []float32) []int32 {
	var result []int32
	for _, tree := range f.Trees {
		result = append(result, tree.SearchTree(query)...)
	}
	slices.Sort(result)
	return slices.Compact(result)
}
