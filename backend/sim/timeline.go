package sim

import (
	"sync"
	"time"
)

// timeline is the simulated GPU: a goroutine running jobs in FIFO order.
type timeline struct {
	mu      sync.Mutex
	cond    *sync.Cond
	jobs    []func()
	paused  bool
	closed  bool
	latency time.Duration
	done    chan struct{}
}

func newTimeline() *timeline {
	t := &timeline{done: make(chan struct{})}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *timeline) start() { go t.run() }

// push queues a job. It reports false after close.
func (t *timeline) push(job func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.jobs = append(t.jobs, job)
	t.cond.Broadcast()
	return true
}

func (t *timeline) setPaused(p bool) {
	t.mu.Lock()
	t.paused = p
	t.cond.Broadcast()
	t.mu.Unlock()
}

func (t *timeline) close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		<-t.done
		return
	}
	t.closed = true
	t.jobs = nil
	t.cond.Broadcast()
	t.mu.Unlock()
	<-t.done
}

func (t *timeline) run() {
	defer close(t.done)
	for {
		t.mu.Lock()
		for !t.closed && (t.paused || len(t.jobs) == 0) {
			t.cond.Wait()
		}
		if t.closed {
			t.mu.Unlock()
			return
		}
		job := t.jobs[0]
		t.jobs[0] = nil
		t.jobs = t.jobs[1:]
		latency := t.latency
		t.mu.Unlock()

		if latency > 0 {
			time.Sleep(latency)
		}
		job()
	}
}
