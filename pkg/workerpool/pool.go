// Package workerpool runs tasks on a fixed number of goroutines and hands
// back futures for their results.
package workerpool

import (
	"runtime"
	"sync"
)

// Pool is a fixed-size worker pool.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

// New starts a pool with size workers; size <= 0 uses all CPUs.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{tasks: make(chan func(), size*4)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Close stops accepting tasks and waits for the queued ones.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}

// Future is the pending result of a task.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the task has run.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// Enqueue schedules fn on the pool.
func Enqueue[T any](p *Pool, fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	p.tasks <- func() {
		defer close(f.done)
		f.val, f.err = fn()
	}
	return f
}

// WaitAll joins futures in order and returns the first error.
func WaitAll[T any](futures []*Future[T]) ([]T, error) {
	out := make([]T, len(futures))
	var firstErr error
	for i, f := range futures {
		v, err := f.Wait()
		out[i] = v
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return out, firstErr
}
