// Package rand provides the random engines and distribution helpers used by
// the embedding and clustering code.
//
// Every stochastic step takes an Engine explicitly so that results only depend
// on the seed the caller hands in. MT19937_64 reproduces std::mt19937_64 and
// is the default engine for seeded steps; Tau is the cheap Tausworthe
// generator used during neighbour search.
package rand

// Engine is a source of uniformly distributed unsigned integers in the
// inclusive range [Min(), Max()].
type Engine interface {
	Next() uint64
	Min() uint64
	Max() uint64
}

// Span returns Max()-Min(), the largest offset an engine can produce.
func Span(e Engine) uint64 {
	return e.Max() - e.Min()
}
