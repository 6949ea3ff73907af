package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/swapframe/gpucore"
)

// CommandAllocator is simulated recording storage.
type CommandAllocator struct {
	dev *Device

	// recording is guarded by dev.mu.
	recording bool

	// pending counts submissions recorded from this allocator that the GPU
	// has not executed.
	pending atomic.Int64
}

// Reset reclaims the allocator. Resetting while the GPU still reads from it
// is a hazard.
func (a *CommandAllocator) Reset() error {
	d := a.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if a.recording {
		return fmt.Errorf("sim: allocator has a list recording: %w", gpucore.ErrAllocatorInUse)
	}
	if n := a.pending.Load(); n > 0 {
		err := d.hazardLocked("allocator reset with %d submissions pending", n)
		return fmt.Errorf("%w: %w", gpucore.ErrAllocatorInUse, err)
	}
	d.events = append(d.events, Event{Kind: EventAllocatorReset})
	return nil
}

// Destroy is a no-op.
func (a *CommandAllocator) Destroy() {}

type commandKind uint8

const (
	cmdBarrier commandKind = iota
	cmdClear
	cmdDraw
)

type command struct {
	kind commandKind

	// barrier
	buf           *backBuffer
	gen           uint64
	before, after gpucore.ResourceState

	// clear and draw
	view  rtvView
	color gputypes.Color
	draw  drawCall
}

type drawCall struct {
	pso           *PipelineState
	vb            gpucore.VertexBufferView
	viewport      gpucore.Viewport
	scissor       gpucore.Rect
	topology      gputypes.PrimitiveTopology
	vertexCount   uint32
	instanceCount uint32
	startVertex   uint32
}

// CommandList records commands for later submission.
type CommandList struct {
	dev   *Device
	alloc *CommandAllocator
	open  bool
	err   error
	cmds  []command

	rootSig     *RootSignature
	pso         *PipelineState
	rtv         rtvView
	viewport    gpucore.Viewport
	scissor     gpucore.Rect
	topology    gputypes.PrimitiveTopology
	topologySet bool
	vb          gpucore.VertexBufferView
}

// Reset reopens the list recording into alloc with initial bound.
func (l *CommandList) Reset(alloc gpucore.CommandAllocator, initial gpucore.PipelineState) error {
	if l.open {
		return gpucore.ErrListNotClosed
	}
	a, ok := alloc.(*CommandAllocator)
	if !ok || a.dev != l.dev {
		return gpucore.ErrWrongBackend
	}
	var pso *PipelineState
	if initial != nil {
		if pso, ok = initial.(*PipelineState); !ok {
			return gpucore.ErrWrongBackend
		}
	}

	l.dev.mu.Lock()
	defer l.dev.mu.Unlock()
	if a.recording {
		return fmt.Errorf("sim: allocator has a list recording: %w", gpucore.ErrAllocatorInUse)
	}
	a.recording = true

	*l = CommandList{dev: l.dev, alloc: a, open: true, pso: pso}
	return nil
}

func (l *CommandList) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *CommandList) recording() bool {
	if !l.open {
		l.fail(gpucore.ErrListClosed)
		return false
	}
	return true
}

// SetGraphicsRootSignature binds rs.
func (l *CommandList) SetGraphicsRootSignature(rs gpucore.RootSignature) {
	if !l.recording() {
		return
	}
	r, ok := rs.(*RootSignature)
	if !ok {
		l.fail(gpucore.ErrWrongBackend)
		return
	}
	l.rootSig = r
}

// SetPipelineState binds pso.
func (l *CommandList) SetPipelineState(pso gpucore.PipelineState) {
	if !l.recording() {
		return
	}
	p, ok := pso.(*PipelineState)
	if !ok {
		l.fail(gpucore.ErrWrongBackend)
		return
	}
	l.pso = p
}

// RSSetViewports sets the viewport.
func (l *CommandList) RSSetViewports(vp gpucore.Viewport) {
	if l.recording() {
		l.viewport = vp
	}
}

// RSSetScissorRects sets the scissor rectangle.
func (l *CommandList) RSSetScissorRects(r gpucore.Rect) {
	if l.recording() {
		l.scissor = r
	}
}

// ResourceBarrier records state transitions.
func (l *CommandList) ResourceBarrier(barriers ...gpucore.ResourceBarrier) {
	if !l.recording() {
		return
	}
	for _, b := range barriers {
		ref, ok := b.Resource.(*BackBufferRef)
		if !ok {
			l.fail(gpucore.ErrWrongBackend)
			return
		}
		if b.Before == b.After {
			l.fail(fmt.Errorf("sim: barrier from %s to itself: %w", b.Before, gpucore.ErrInvalidArgument))
			return
		}
		l.cmds = append(l.cmds, command{
			kind: cmdBarrier, buf: ref.buf, gen: ref.buf.gen,
			before: b.Before, after: b.After,
		})
	}
}

// OMSetRenderTargets binds the view stored at rtv. The descriptor is copied
// at record time.
func (l *CommandList) OMSetRenderTargets(rtv gpucore.CPUDescriptorHandle) {
	if !l.recording() {
		return
	}
	v, err := l.view(rtv)
	if err != nil {
		l.fail(err)
		return
	}
	l.rtv = v
}

// ClearRenderTargetView records a clear of the view at rtv.
func (l *CommandList) ClearRenderTargetView(rtv gpucore.CPUDescriptorHandle, color gputypes.Color) {
	if !l.recording() {
		return
	}
	v, err := l.view(rtv)
	if err != nil {
		l.fail(err)
		return
	}
	l.cmds = append(l.cmds, command{kind: cmdClear, view: v, color: color})
}

// IASetPrimitiveTopology sets the topology.
func (l *CommandList) IASetPrimitiveTopology(t gputypes.PrimitiveTopology) {
	if l.recording() {
		l.topology = t
		l.topologySet = true
	}
}

// IASetVertexBuffers binds view to slot 0.
func (l *CommandList) IASetVertexBuffers(slot uint32, view gpucore.VertexBufferView) {
	if !l.recording() {
		return
	}
	if slot != 0 {
		l.fail(fmt.Errorf("sim: vertex buffer slot %d: %w", slot, gpucore.ErrInvalidArgument))
		return
	}
	if view.Buffer != nil {
		if _, ok := view.Buffer.(*Buffer); !ok {
			l.fail(gpucore.ErrWrongBackend)
			return
		}
	}
	l.vb = view
}

// DrawInstanced records a non-indexed draw.
func (l *CommandList) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) {
	if !l.recording() {
		return
	}
	switch {
	case l.pso == nil:
		l.fail(fmt.Errorf("sim: draw without pipeline state: %w", gpucore.ErrInvalidArgument))
		return
	case l.rootSig == nil:
		l.fail(fmt.Errorf("sim: draw without root signature: %w", gpucore.ErrInvalidArgument))
		return
	case l.rtv.buf == nil:
		l.fail(fmt.Errorf("sim: draw without render target: %w", gpucore.ErrInvalidArgument))
		return
	case !l.topologySet:
		l.fail(fmt.Errorf("sim: draw without primitive topology: %w", gpucore.ErrInvalidArgument))
		return
	case len(l.pso.desc.InputLayout) > 0 && !l.vb.Valid():
		l.fail(fmt.Errorf("sim: draw without vertex buffer: %w", gpucore.ErrInvalidArgument))
		return
	case l.vb.Valid() && startVertex+vertexCount > l.vb.VertexCount():
		l.fail(fmt.Errorf("sim: draw of %d vertices from %d overruns %d: %w",
			vertexCount, startVertex, l.vb.VertexCount(), gpucore.ErrInvalidArgument))
		return
	}
	l.cmds = append(l.cmds, command{
		kind: cmdDraw,
		view: l.rtv,
		draw: drawCall{
			pso: l.pso, vb: l.vb, viewport: l.viewport, scissor: l.scissor,
			topology: l.topology, vertexCount: vertexCount,
			instanceCount: instanceCount, startVertex: startVertex,
		},
	})
}

// Close ends recording and returns the first recording error.
func (l *CommandList) Close() error {
	if !l.open {
		return gpucore.ErrListClosed
	}
	l.dev.mu.Lock()
	l.alloc.recording = false
	l.dev.mu.Unlock()
	l.open = false
	return l.err
}

// Destroy is a no-op.
func (l *CommandList) Destroy() {}

func (l *CommandList) view(h gpucore.CPUDescriptorHandle) (rtvView, error) {
	heap, ok := h.Heap.(*DescriptorHeap)
	if !ok {
		return rtvView{}, gpucore.ErrWrongBackend
	}
	l.dev.mu.Lock()
	defer l.dev.mu.Unlock()
	if h.Index >= uint32(len(heap.slots)) {
		return rtvView{}, fmt.Errorf("sim: rtv slot %d of %d: %w", h.Index, len(heap.slots), gpucore.ErrInvalidArgument)
	}
	v := heap.slots[h.Index]
	if v.buf == nil {
		return rtvView{}, fmt.Errorf("sim: rtv slot %d is empty: %w", h.Index, gpucore.ErrInvalidArgument)
	}
	return v, nil
}
