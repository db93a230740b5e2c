// Package parallel splits work across goroutines.
//
// Range and Simple mirror the two dispatch shapes used throughout the module:
// a contiguous block of tasks per worker, or one call per worker. Both run
// synchronously when there is nothing to parallelize, recover panics in
// workers and report at most one error after every worker has returned.
// How the workers are actually scheduled is left to an Executor.
package parallel

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// NumWorkers returns the default number of workers for parallel operations.
func NumWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// SanitizeNumWorkers clamps a requested worker count to [1, numTasks]. A
// non-positive request means a single worker.
func SanitizeNumWorkers(numWorkers, numTasks int) int {
	if numWorkers <= 0 {
		return 1
	}
	if numTasks > 0 && numWorkers > numTasks {
		return numTasks
	}
	return numWorkers
}

// PanicError wraps a value recovered from a panicking worker.
type PanicError struct {
	Worker int
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("parallel: worker %d panicked: %v", e.Worker, e.Value)
}

// Executor runs job once for every worker index in [0, numWorkers) and
// returns after all of them have finished. Errors returned by job are
// collected by the caller, so Execute only reports scheduling failures.
type Executor interface {
	Execute(numWorkers int, job func(worker int)) error
}

// Goroutines starts one goroutine per worker.
type Goroutines struct{}

// Execute implements Executor.
func (Goroutines) Execute(numWorkers int, job func(worker int)) error {
	var g errgroup.Group
	for w := 0; w < numWorkers; w++ {
		g.Go(func() error {
			job(w)
			return nil
		})
	}
	return g.Wait()
}

// Pool runs workers on at most Size goroutines at a time. Size <= 0 means
// NumWorkers().
type Pool struct {
	Size int
}

// Execute implements Executor.
func (p Pool) Execute(numWorkers int, job func(worker int)) error {
	size := p.Size
	if size <= 0 {
		size = NumWorkers()
	}
	var g errgroup.Group
	g.SetLimit(size)
	for w := 0; w < numWorkers; w++ {
		g.Go(func() error {
			job(w)
			return nil
		})
	}
	return g.Wait()
}

// Dispatcher fans work out through an Executor. The zero value uses
// Goroutines.
type Dispatcher struct {
	Executor Executor
}

// New returns a Dispatcher using exec, or Goroutines when exec is nil.
func New(exec Executor) Dispatcher {
	return Dispatcher{Executor: exec}
}

func (d Dispatcher) executor() Executor {
	if d.Executor == nil {
		return Goroutines{}
	}
	return d.Executor
}

// RangeFunc processes tasks [start, start+length) on behalf of worker.
type RangeFunc func(worker, start, length int) error

// Range splits numTasks into contiguous blocks, one per worker. With W
// workers and N tasks each worker receives N/W tasks and the first N%W
// workers one more, so blocks are never empty. The error of the lowest
// failing worker is returned once all workers are done.
func (d Dispatcher) Range(numWorkers, numTasks int, fn RangeFunc) error {
	if numTasks <= 0 {
		return nil
	}
	numWorkers = SanitizeNumWorkers(numWorkers, numTasks)
	if numWorkers == 1 {
		return protect(0, func() error { return fn(0, 0, numTasks) })
	}

	per := numTasks / numWorkers
	remainder := numTasks % numWorkers
	errs := make([]error, numWorkers)

	if err := d.executor().Execute(numWorkers, func(w int) {
		start, length := block(w, per, remainder)
		errs[w] = protect(w, func() error { return fn(w, start, length) })
	}); err != nil {
		return err
	}
	return firstError(errs)
}

// RangeNoErr is Range for callbacks that cannot fail. Panics still propagate
// to the caller's goroutine.
func (d Dispatcher) RangeNoErr(numWorkers, numTasks int, fn func(worker, start, length int)) {
	err := d.Range(numWorkers, numTasks, func(w, s, l int) error {
		fn(w, s, l)
		return nil
	})
	if err != nil {
		panic(err)
	}
}

// Simple calls fn once for each worker index in [0, numTasks). A single task
// runs on the calling goroutine.
func (d Dispatcher) Simple(numTasks int, fn func(worker int) error) error {
	if numTasks <= 0 {
		return nil
	}
	if numTasks == 1 {
		return protect(0, func() error { return fn(0) })
	}

	errs := make([]error, numTasks)
	if err := d.executor().Execute(numTasks, func(w int) {
		errs[w] = protect(w, func() error { return fn(w) })
	}); err != nil {
		return err
	}
	return firstError(errs)
}

// SimpleNoErr is Simple for callbacks that cannot fail.
func (d Dispatcher) SimpleNoErr(numTasks int, fn func(worker int)) {
	err := d.Simple(numTasks, func(w int) error {
		fn(w)
		return nil
	})
	if err != nil {
		panic(err)
	}
}

func block(w, per, remainder int) (start, length int) {
	start = w*per + min(w, remainder)
	length = per
	if w < remainder {
		length++
	}
	return start, length
}

func protect(worker int, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Worker: worker, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
