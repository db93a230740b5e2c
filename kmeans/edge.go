package kmeans

// IsEdgeCase reports whether ncenters is degenerate for nobs observations:
// at most one centre, or at least one centre per observation.
func IsEdgeCase(nobs, ncenters int) bool {
	return ncenters <= 1 || ncenters >= nobs
}

// ProcessEdgeCase produces the trivial clustering for a degenerate request.
//
// With one centre every observation goes to cluster 0 and the centre is the
// mean. With at least as many centres as observations each observation gets
// its own cluster; surplus centres are left empty and zeroed, and the status
// is StatusTooManyCenters. With no centres nothing is done and the status is
// StatusTooManyCenters.
func ProcessEdgeCase(ndim, nobs int, data []float64, ncenters int, centers []float64, clusters []int) Details {
	switch {
	case ncenters == 1:
		clear(clusters[:nobs])
		sizes := []int{nobs}
		ComputeCentroids(ndim, nobs, data, ncenters, centers, clusters, sizes)
		return Details{
			Sizes:    sizes,
			WithinSS: ComputeWCSS(ndim, nobs, data, ncenters, centers, clusters),
			Status:   StatusOK,
		}

	case ncenters > 0 && ncenters >= nobs:
		sizes := make([]int, ncenters)
		for obs := 0; obs < nobs; obs++ {
			clusters[obs] = obs
			sizes[obs] = 1
		}
		ComputeCentroids(ndim, nobs, data, ncenters, centers, clusters, sizes)
		status := StatusOK
		if ncenters > nobs {
			status = StatusTooManyCenters
		}
		return Details{
			Sizes:    sizes,
			WithinSS: ComputeWCSS(ndim, nobs, data, ncenters, centers, clusters),
			Status:   status,
		}
	}

	return Details{Status: StatusTooManyCenters}
}
