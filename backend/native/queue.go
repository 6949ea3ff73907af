package native

import (
	"fmt"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/swapframe/gpucore"
)

// Queue submits to the hal queue of its device.
type Queue struct {
	dev *Device

	// last is the index of the most recent submission.
	last uint64
}

// ExecuteCommandLists submits closed lists in one hal submission.
func (q *Queue) ExecuteCommandLists(lists ...gpucore.CommandList) error {
	if err := q.dev.alive("execute"); err != nil {
		return err
	}
	natives := make([]*CommandList, 0, len(lists))
	buffers := make([]hal.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		nl, ok := l.(*CommandList)
		if !ok || nl.dev != q.dev {
			return fmt.Errorf("native: command list %T: %w", l, gpucore.ErrWrongBackend)
		}
		if nl.open {
			return fmt.Errorf("native: execute: %w", gpucore.ErrListNotClosed)
		}
		if nl.err != nil {
			return fmt.Errorf("native: execute a list that failed to record: %w", nl.err)
		}
		if nl.cmd == nil {
			return fmt.Errorf("native: execute a list with nothing recorded: %w", gpucore.ErrInvalidArgument)
		}
		natives = append(natives, nl)
		buffers = append(buffers, nl.cmd)
	}
	if len(buffers) == 0 {
		return nil
	}

	idx, err := q.dev.queue.Submit(buffers)
	if err != nil {
		return q.dev.check("submit", err)
	}
	q.last = idx
	for _, nl := range natives {
		nl.alloc.submitted(nl.slot, idx)
		nl.cmd = nil
	}
	return nil
}

// Signal binds value to the latest submission. The fence reaches value
// once hal reports that submission complete.
func (q *Queue) Signal(fence gpucore.Fence, value uint64) error {
	if err := q.dev.alive("signal"); err != nil {
		return err
	}
	f, ok := fence.(*Fence)
	if !ok || f.dev != q.dev {
		return fmt.Errorf("native: fence %T: %w", fence, gpucore.ErrWrongBackend)
	}
	f.signal(value, q.last)
	return nil
}

// completed returns the highest submission index hal reports complete.
func (q *Queue) completed() uint64 {
	return q.dev.queue.PollCompleted()
}

// wait polls until submission idx completes.
func (q *Queue) wait(idx uint64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	delay := minPoll
	for q.completed() < idx {
		if q.dev.lost.Load() {
			return fmt.Errorf("native: wait for submission %d: %w", idx, gpucore.ErrDeviceLost)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("native: wait for submission %d: %w", idx, gpucore.ErrWaitTimeout)
		}
		time.Sleep(delay)
		delay = min(delay*2, maxPoll)
	}
	return nil
}

// busy reports whether any submission is still executing.
func (q *Queue) busy() bool {
	return q.completed() < q.last
}

// Destroy is a no-op: the hal queue belongs to the device.
func (q *Queue) Destroy() {}
