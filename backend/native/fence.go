package native

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/swapframe/gpucore"
)

// Poll interval bounds for Fence.Wait.
const (
	minPoll = 50 * time.Microsecond
	maxPoll = 2 * time.Millisecond
)

// mark is a fence value waiting for a submission.
type mark struct {
	value      uint64
	submission uint64
}

// Fence is a monotonic counter completed through hal submission indices.
type Fence struct {
	dev *Device

	mu        sync.Mutex
	completed uint64
	marks     []mark
}

func (f *Fence) signal(value, submission uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, mark{value: value, submission: submission})
}

// poll completes every mark whose submission finished. Marks complete in
// signal order.
func (f *Fence) poll() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.marks) == 0 {
		return f.completed
	}
	done := f.dev.q.completed()
	n := 0
	for _, m := range f.marks {
		if m.submission > done {
			break
		}
		if m.value > f.completed {
			f.completed = m.value
		}
		n++
	}
	f.marks = f.marks[n:]
	return f.completed
}

// CompletedValue returns the highest value the GPU has reached.
func (f *Fence) CompletedValue() uint64 {
	if f.dev.q == nil {
		return f.completed
	}
	return f.poll()
}

// Wait polls until value completes, backing off up to maxPoll between polls.
func (f *Fence) Wait(value uint64, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	delay := minPoll
	for {
		if f.CompletedValue() >= value {
			return nil
		}
		if f.dev.lost.Load() {
			return fmt.Errorf("native: wait for %d: %w", value, gpucore.ErrDeviceLost)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("native: wait for %d after %v: %w", value, timeout, gpucore.ErrWaitTimeout)
		}
		time.Sleep(delay)
		delay = min(delay*2, maxPoll)
	}
}

// Destroy drops pending marks.
func (f *Fence) Destroy() {
	f.mu.Lock()
	f.marks = nil
	f.mu.Unlock()
}
