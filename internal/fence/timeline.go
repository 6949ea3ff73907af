// Package fence paces the CPU against the GPU with a monotonic fence.
//
// A [Timeline] owns one fence and the CPU-side counter of the last value
// signaled on the queue. Every submission is followed by [Timeline.Signal],
// which returns a [Token]; waiting on a token guarantees that all work
// submitted before it has completed, because the queue executes in order.
package fence

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gogpu/swapframe/gpucore"
	"github.com/gogpu/swapframe/internal/logging"
)

// Token is a fence value marking the end of a submission.
// The zero token is always complete.
type Token uint64

// Timeline is the CPU view of a queue's fence.
//
// A Timeline is driven by a single goroutine. Completed and BlockingWaits
// may be read from any goroutine.
type Timeline struct {
	queue   gpucore.CommandQueue
	fence   gpucore.Fence
	timeout time.Duration
	log     *slog.Logger

	last  uint64
	waits atomic.Uint64
}

// New creates the fence and a timeline signaling it on queue. A timeout of
// zero or less makes waits unbounded.
func New(device gpucore.Device, queue gpucore.CommandQueue, timeout time.Duration, log *slog.Logger) (*Timeline, error) {
	f, err := device.CreateFence(0)
	if err != nil {
		return nil, fmt.Errorf("fence: create: %w", err)
	}
	return &Timeline{queue: queue, fence: f, timeout: timeout, log: logging.Or(log)}, nil
}

// Signal advances the counter and has the queue signal the new value once
// all work submitted so far completes.
func (t *Timeline) Signal() (Token, error) {
	next := t.last + 1
	if err := t.queue.Signal(t.fence, next); err != nil {
		return 0, fmt.Errorf("fence: signal %d: %w", next, err)
	}
	t.last = next
	return Token(next), nil
}

// Last returns the most recently signaled token.
func (t *Timeline) Last() Token { return Token(t.last) }

// Completed returns the value the GPU has reached.
func (t *Timeline) Completed() uint64 { return t.fence.CompletedValue() }

// Reached reports whether the GPU has passed tok.
func (t *Timeline) Reached(tok Token) bool {
	return t.fence.CompletedValue() >= uint64(tok)
}

// Wait blocks until the GPU reaches tok. It returns immediately when tok
// has already completed. A timeout is reported as [gpucore.ErrDeviceHung].
func (t *Timeline) Wait(tok Token) error {
	if t.Reached(tok) {
		return nil
	}
	if uint64(tok) > t.last {
		return fmt.Errorf("fence: wait for %d beyond last signaled %d: %w", tok, t.last, gpucore.ErrInvalidArgument)
	}

	t.waits.Add(1)
	start := time.Now()
	err := t.fence.Wait(uint64(tok), t.timeout)
	switch {
	case err == nil:
		t.log.Debug("fence: waited", "value", uint64(tok), "elapsed", time.Since(start))
		return nil
	case errors.Is(err, gpucore.ErrWaitTimeout):
		return fmt.Errorf("fence: value %d not reached after %v (completed %d): %w",
			tok, t.timeout, t.fence.CompletedValue(), gpucore.ErrDeviceHung)
	default:
		return fmt.Errorf("fence: wait for %d: %w", tok, err)
	}
}

// Drain signals a fresh value and waits for it. On success no work
// submitted before the call is outstanding and Completed equals Last.
func (t *Timeline) Drain() error {
	tok, err := t.Signal()
	if err != nil {
		return err
	}
	return t.Wait(tok)
}

// BlockingWaits returns how many waits found the GPU behind and blocked.
func (t *Timeline) BlockingWaits() uint64 { return t.waits.Load() }

// Destroy releases the fence. The caller drains first.
func (t *Timeline) Destroy() {
	if t.fence != nil {
		t.fence.Destroy()
		t.fence = nil
	}
}
