package sim

import (
	"fmt"

	"github.com/gogpu/swapframe/gpucore"
)

// Queue is the simulated direct queue.
type Queue struct {
	dev *Device
}

// ExecuteCommandLists validates the lists against the submitted resource
// states and queues them on the GPU.
func (q *Queue) ExecuteCommandLists(lists ...gpucore.CommandList) error {
	d := q.dev
	if err := d.check(OpExecute); err != nil {
		return err
	}

	batch := make([]*submission, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok || cl.dev != d {
			return gpucore.ErrWrongBackend
		}
		if cl.open {
			return gpucore.ErrListNotClosed
		}
		if cl.err != nil {
			return fmt.Errorf("sim: execute list that failed to close: %w", cl.err)
		}
		batch = append(batch, &submission{alloc: cl.alloc, cmds: append([]command(nil), cl.cmds...)})
	}

	d.mu.Lock()
	for _, s := range batch {
		if err := d.validateLocked(s); err != nil {
			d.mu.Unlock()
			return err
		}
	}
	for _, s := range batch {
		s.alloc.pending.Add(1)
	}
	d.stats.Executions++
	d.events = append(d.events, Event{Kind: EventExecute})
	d.mu.Unlock()

	d.inflight.Add(1)
	if !d.gpu.push(func() { d.execute(batch) }) {
		d.inflight.Add(-1)
		return fmt.Errorf("sim: device destroyed: %w", gpucore.ErrDeviceLost)
	}
	return nil
}

// Signal queues a fence update behind all submitted work.
func (q *Queue) Signal(fence gpucore.Fence, value uint64) error {
	d := q.dev
	if d.lost.Load() {
		return gpucore.ErrDeviceLost
	}
	f, ok := fence.(*Fence)
	if !ok || f.dev != d {
		return gpucore.ErrWrongBackend
	}

	d.mu.Lock()
	d.stats.Signals++
	d.events = append(d.events, Event{Kind: EventSignal, Value: value})
	d.mu.Unlock()

	if !d.gpu.push(func() { f.complete(value) }) {
		return fmt.Errorf("sim: device destroyed: %w", gpucore.ErrDeviceLost)
	}
	return nil
}

// Destroy is a no-op.
func (q *Queue) Destroy() {}

// submission is a closed list snapshot queued on the GPU.
type submission struct {
	alloc *CommandAllocator
	cmds  []command
}

// validateLocked replays the submission against the CPU-side record of
// resource states. Must be called with d.mu held.
func (d *Device) validateLocked(s *submission) error {
	for i := range s.cmds {
		c := &s.cmds[i]
		switch c.kind {
		case cmdBarrier:
			b := c.buf
			if c.gen != b.chain.gen {
				return d.hazardLocked("barrier on back buffer %d of generation %d, chain is at %d", b.index, c.gen, b.chain.gen)
			}
			if b.state != c.before {
				return d.hazardLocked("barrier on back buffer %d expects %s, buffer is %s", b.index, c.before, b.state)
			}
			b.state = c.after

		case cmdClear, cmdDraw:
			b := c.view.buf
			if c.view.gen != b.chain.gen {
				return d.hazardLocked("render target view of back buffer %d is stale (generation %d, chain is at %d)", b.index, c.view.gen, b.chain.gen)
			}
			if b.state != gpucore.ResourceStateRenderTarget {
				return d.hazardLocked("back buffer %d bound as render target in state %s", b.index, b.state)
			}
			if c.kind == cmdDraw {
				d.stats.Draws++
				d.events = append(d.events, Event{
					Kind: EventDraw, Buffer: b.index, Generation: b.gen,
					VertexCount: c.draw.vertexCount * c.draw.instanceCount,
				})
			}
		}
	}
	return nil
}

// execute runs on the GPU goroutine.
func (d *Device) execute(batch []*submission) {
	d.mu.Lock()
	for _, s := range batch {
		for i := range s.cmds {
			c := &s.cmds[i]
			switch c.kind {
			case cmdClear:
				c.view.buf.clear(c.color)
			case cmdDraw:
				c.view.buf.draw(&c.draw, d.raster)
			}
		}
	}
	d.mu.Unlock()

	for _, s := range batch {
		s.alloc.pending.Add(-1)
	}
	d.inflight.Add(-1)
}
