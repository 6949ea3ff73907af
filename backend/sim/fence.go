package sim

import (
	"sync"
	"time"

	"github.com/gogpu/swapframe/gpucore"
)

// Fence is a simulated fence. Its completed value advances when the GPU
// goroutine reaches a queued signal.
type Fence struct {
	dev *Device

	mu        sync.Mutex
	completed uint64
	waiters   []fenceWaiter
}

type fenceWaiter struct {
	value uint64
	ch    chan struct{}
}

// CompletedValue returns the value the GPU has reached.
func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// Wait blocks until the fence reaches value, the timeout expires or the
// device is lost.
func (f *Fence) Wait(value uint64, timeout time.Duration) error {
	f.mu.Lock()
	if f.completed >= value {
		f.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	f.waiters = append(f.waiters, fenceWaiter{value: value, ch: ch})
	f.mu.Unlock()

	f.dev.noteBlockedWait()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-ch:
		return nil
	case <-f.dev.lostCh:
		return gpucore.ErrDeviceLost
	case <-expired:
		return gpucore.ErrWaitTimeout
	}
}

// Destroy is a no-op.
func (f *Fence) Destroy() {}

// complete advances the fence to v and wakes satisfied waiters.
func (f *Fence) complete(v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v <= f.completed {
		return
	}
	f.completed = v
	keep := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= v {
			close(w.ch)
			continue
		}
		keep = append(keep, w)
	}
	f.waiters = keep
}
