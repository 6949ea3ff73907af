// Package frame holds the per-frame resources that rotate with the back
// buffers.
package frame

import (
	"errors"
	"fmt"

	"github.com/gogpu/swapframe/gpucore"
)

// ErrSlotInFlight is returned when a slot is reused before the GPU reached
// the fence value of its last submission.
var ErrSlotInFlight = errors.New("frame: slot still in flight")

// Resource is the state owned by one frame slot.
type Resource struct {
	Allocator gpucore.CommandAllocator

	// FenceValue is the value signaled after the last submission recorded
	// from Allocator. Zero means the slot was never submitted.
	FenceValue uint64
}

// Ring is a fixed ring of [gpucore.BufferCount] frame resources, indexed by
// back buffer index.
type Ring struct {
	slots [gpucore.BufferCount]Resource
}

// NewRing creates one allocator per slot. On error the allocators already
// created are destroyed.
func NewRing(device gpucore.Device) (*Ring, error) {
	r := &Ring{}
	for i := range r.slots {
		a, err := device.CreateCommandAllocator()
		if err != nil {
			r.Destroy()
			return nil, fmt.Errorf("frame: allocator %d: %w", i, err)
		}
		r.slots[i].Allocator = a
	}
	return r, nil
}

// Slot returns slot i.
func (r *Ring) Slot(i uint32) *Resource {
	return &r.slots[i%gpucore.BufferCount]
}

// Reset prepares slot i for recording. completed is the fence value the GPU
// has reached; the slot's previous submission must be covered by it.
func (r *Ring) Reset(i uint32, completed uint64) (gpucore.CommandAllocator, error) {
	s := r.Slot(i)
	if s.FenceValue > completed {
		return nil, fmt.Errorf("%w: slot %d waits for %d, GPU at %d", ErrSlotInFlight, i, s.FenceValue, completed)
	}
	if err := s.Allocator.Reset(); err != nil {
		return nil, fmt.Errorf("frame: reset allocator %d: %w", i, err)
	}
	return s.Allocator, nil
}

// Stamp records the fence value signaled after slot i's submission.
func (r *Ring) Stamp(i uint32, value uint64) {
	r.Slot(i).FenceValue = value
}

// Pending returns the highest fence value any slot waits for.
func (r *Ring) Pending() uint64 {
	var v uint64
	for i := range r.slots {
		v = max(v, r.slots[i].FenceValue)
	}
	return v
}

// Destroy releases the allocators. The caller drains first.
func (r *Ring) Destroy() {
	for i := range r.slots {
		if a := r.slots[i].Allocator; a != nil {
			a.Destroy()
			r.slots[i] = Resource{}
		}
	}
}
