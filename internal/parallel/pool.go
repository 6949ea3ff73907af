// Package parallel runs raster work on a fixed set of goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// WorkerPool is a fixed set of goroutines pulling work from one queue.
//
// WorkerPool is safe for concurrent use. After Close, work runs on the
// calling goroutine.
type WorkerPool struct {
	workers int

	// mu guards queue against sends after Close.
	mu     sync.RWMutex
	queue  chan func()
	closed bool
	wg     sync.WaitGroup
}

// NewWorkerPool starts workers goroutines. Zero or less uses GOMAXPROCS.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &WorkerPool{
		workers: workers,
		queue:   make(chan func(), workers*4),
	}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for work := range p.queue {
		work()
	}
}

// Workers returns the number of goroutines.
func (p *WorkerPool) Workers() int { return p.workers }

// ExecuteAll runs every function and returns when all have finished.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		for _, fn := range work {
			fn()
		}
		return
	}

	var done sync.WaitGroup
	done.Add(len(work))
	for _, fn := range work {
		p.queue <- func() {
			defer done.Done()
			fn()
		}
	}
	done.Wait()
}

// Bands splits [lo, hi) into at most one band per worker, each at least
// minRows long, and calls fn for each band in parallel. fn must only touch
// rows inside its band.
func (p *WorkerPool) Bands(lo, hi, minRows int, fn func(lo, hi int)) {
	rows := hi - lo
	if rows <= 0 {
		return
	}
	minRows = max(minRows, 1)
	n := min(p.workers, rows/minRows)
	if n <= 1 {
		fn(lo, hi)
		return
	}
	work := make([]func(), 0, n)
	for i := range n {
		a := lo + rows*i/n
		b := lo + rows*(i+1)/n
		work = append(work, func() { fn(a, b) })
	}
	p.ExecuteAll(work)
}

// Close stops the workers after queued work finishes. Further calls are
// no-ops.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}
