// Package workerpool provides a fixed set of long-lived goroutines that run
// batches of tasks behind a barrier.
//
// The pool is sized once at construction. Run hands a batch to the workers
// and blocks until every task of that batch has returned, so callers can
// split a frame into bands and treat the whole conversion as synchronous.
package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("workerpool: closed")

// Pool is a fixed-size worker pool.
//
// Thread-safety:
//   - Run: safe for concurrent calls; batches from different callers
//     interleave on the same workers.
//   - Close: idempotent, waits for in-flight tasks.
type Pool struct {
	tasks chan task
	size  int

	mu     sync.RWMutex // guards closed against concurrent Run
	closed bool
	wg     sync.WaitGroup // worker goroutines

	// Operational stats
	batches   atomic.Uint64
	completed atomic.Uint64
}

type task struct {
	fn   func()
	done *sync.WaitGroup
}

// New starts a pool with size workers.
func New(size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("workerpool: size must be > 0, got %d", size)
	}

	p := &Pool{
		tasks: make(chan task, size),
		size:  size,
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p, nil
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.fn()
		p.completed.Add(1)
		t.done.Done()
	}
}

// Run executes every task on the pool and returns once all have finished.
//
// Algorithm:
//  1. Take the read lock (Close cannot start while tasks are queued)
//  2. Queue each task with a shared barrier
//  3. Wait on the barrier
//
// A panic inside a task is not recovered; tasks must not panic.
func (p *Pool) Run(tasks []func()) error {
	if len(tasks) == 0 {
		return nil
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}

	var barrier sync.WaitGroup
	barrier.Add(len(tasks))
	for _, fn := range tasks {
		p.tasks <- task{fn: fn, done: &barrier}
	}
	p.mu.RUnlock()

	barrier.Wait()
	p.batches.Add(1)
	return nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Stats returns the number of completed batches and tasks.
func (p *Pool) Stats() (batches, tasks uint64) {
	return p.batches.Load(), p.completed.Load()
}

// Close stops the workers after queued tasks drain. Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
