package kmeans

import "gonum.org/v1/gonum/floats"

// ComputeCentroids sets every centre with a non-zero size to the mean of its
// observations. Centres of empty clusters are zeroed.
func ComputeCentroids(ndim, nobs int, data []float64, ncenters int, centers []float64, clusters []int, sizes []int) {
	centers = centers[:ndim*ncenters]
	clear(centers)
	for obs := 0; obs < nobs; obs++ {
		floats.Add(observation(centers, ndim, clusters[obs]), observation(data, ndim, obs))
	}
	for cen := 0; cen < ncenters; cen++ {
		if sizes[cen] != 0 {
			floats.Scale(1/float64(sizes[cen]), observation(centers, ndim, cen))
		}
	}
}

// ComputeWCSS returns the within-cluster sum of squared distances of each
// cluster.
func ComputeWCSS(ndim, nobs int, data []float64, ncenters int, centers []float64, clusters []int) []float64 {
	wcss := make([]float64, ncenters)
	for obs := 0; obs < nobs; obs++ {
		cen := clusters[obs]
		wcss[cen] += squaredDistance(observation(data, ndim, obs), observation(centers, ndim, cen))
	}
	return wcss
}

// clusterSizes counts the observations assigned to each cluster.
func clusterSizes(nobs, ncenters int, clusters []int, sizes []int) []int {
	if sizes == nil {
		sizes = make([]int, ncenters)
	}
	clear(sizes)
	for obs := 0; obs < nobs; obs++ {
		sizes[clusters[obs]]++
	}
	return sizes
}

func hasEmpty(sizes []int) bool {
	for _, s := range sizes {
		if s == 0 {
			return true
		}
	}
	return false
}

func squaredDistance(x, y []float64) float64 {
	var out float64
	for i := range x {
		d := x[i] - y[i]
		out += d * d
	}
	return out
}
