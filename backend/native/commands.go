package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/swapframe/gpucore"
)

// endedBuffer is a command buffer ended from an allocator. submission is 0
// until the buffer is executed.
type endedBuffer struct {
	cmd        hal.CommandBuffer
	submission uint64
}

// CommandAllocator owns a hal command encoder and the buffers ended from
// it.
type CommandAllocator struct {
	dev       *Device
	encoder   hal.CommandEncoder
	recording bool
	buffers   []endedBuffer
}

func (a *CommandAllocator) submitted(slot int, idx uint64) {
	if slot < len(a.buffers) {
		a.buffers[slot].submission = idx
	}
}

// Reset frees every buffer ended from the allocator. It fails with
// gpucore.ErrAllocatorInUse while a list records into it or a submission
// using it has not completed.
func (a *CommandAllocator) Reset() error {
	if a.recording {
		return fmt.Errorf("native: reset allocator while recording: %w", gpucore.ErrAllocatorInUse)
	}
	done := a.dev.queue.PollCompleted()
	for _, b := range a.buffers {
		if b.submission > done {
			return fmt.Errorf("native: reset allocator: submission %d pending, %d completed: %w",
				b.submission, done, gpucore.ErrAllocatorInUse)
		}
	}
	a.free()
	return nil
}

func (a *CommandAllocator) free() {
	for _, b := range a.buffers {
		a.dev.device.FreeCommandBuffer(b.cmd)
	}
	a.buffers = a.buffers[:0]
}

// Destroy frees the buffers and the encoder. The GPU must be idle.
func (a *CommandAllocator) Destroy() {
	if a.recording {
		a.encoder.DiscardEncoding()
		a.recording = false
	}
	a.free()
	a.encoder.Destroy()
}

// target is a render target view resolved at record time.
type target struct {
	view hal.TextureView
	buf  *backBuffer
}

type pendingClear struct {
	target target
	color  gputypes.Color
}

// CommandList records into its allocator's encoder. Render passes open
// lazily on the first draw and close on barriers, target changes and Close.
type CommandList struct {
	dev   *Device
	alloc *CommandAllocator
	open  bool
	err   error
	cmd   hal.CommandBuffer
	slot  int

	rootSig     *RootSignature
	pso         *PipelineState
	viewport    gpucore.Viewport
	scissor     gpucore.Rect
	topology    gputypes.PrimitiveTopology
	topologySet bool
	vb          gpucore.VertexBufferView
	vbBuf       *Buffer
	target      target

	clear      *pendingClear
	pass       hal.RenderPassEncoder
	passTarget target

	// saved holds the state of every buffer a barrier touched, as it was
	// before this recording.
	saved []savedState
}

type savedState struct {
	buf         *backBuffer
	state       gpucore.ResourceState
	initialized bool
}

func (l *CommandList) save(b *backBuffer) {
	for _, s := range l.saved {
		if s.buf == b {
			return
		}
	}
	l.saved = append(l.saved, savedState{buf: b, state: b.state, initialized: b.initialized})
}

// restore undoes the barriers of a discarded recording.
func (l *CommandList) restore() {
	for _, s := range l.saved {
		s.buf.state = s.state
		s.buf.initialized = s.initialized
	}
	l.saved = nil
}

// Reset begins encoding into alloc.
func (l *CommandList) Reset(alloc gpucore.CommandAllocator, initial gpucore.PipelineState) error {
	if l.open {
		return fmt.Errorf("native: reset list: %w", gpucore.ErrListNotClosed)
	}
	a, ok := alloc.(*CommandAllocator)
	if !ok || a.dev != l.dev {
		return fmt.Errorf("native: allocator %T: %w", alloc, gpucore.ErrWrongBackend)
	}
	if a.recording {
		return fmt.Errorf("native: reset list: %w", gpucore.ErrAllocatorInUse)
	}
	var pso *PipelineState
	if initial != nil {
		if pso, ok = initial.(*PipelineState); !ok {
			return fmt.Errorf("native: pipeline state %T: %w", initial, gpucore.ErrWrongBackend)
		}
	}
	if err := a.encoder.BeginEncoding("swapframe frame"); err != nil {
		return l.dev.check("begin encoding", err)
	}

	a.recording = true
	*l = CommandList{dev: l.dev, alloc: a, open: true, pso: pso}
	return nil
}

func (l *CommandList) latch(err error) {
	if l.err == nil {
		l.err = err
	}
}

// recording reports whether a command may be recorded.
func (l *CommandList) recording() bool {
	if !l.open {
		l.latch(gpucore.ErrListClosed)
		return false
	}
	return l.err == nil
}

func (l *CommandList) SetGraphicsRootSignature(rs gpucore.RootSignature) {
	if !l.recording() {
		return
	}
	r, ok := rs.(*RootSignature)
	if !ok {
		l.latch(fmt.Errorf("native: root signature %T: %w", rs, gpucore.ErrWrongBackend))
		return
	}
	l.rootSig = r
}

func (l *CommandList) SetPipelineState(pso gpucore.PipelineState) {
	if !l.recording() {
		return
	}
	p, ok := pso.(*PipelineState)
	if !ok {
		l.latch(fmt.Errorf("native: pipeline state %T: %w", pso, gpucore.ErrWrongBackend))
		return
	}
	l.pso = p
}

func (l *CommandList) RSSetViewports(vp gpucore.Viewport) {
	if l.recording() {
		l.viewport = vp
	}
}

func (l *CommandList) RSSetScissorRects(r gpucore.Rect) {
	if l.recording() {
		l.scissor = r
	}
}

// ResourceBarrier ends the open pass and records texture transitions.
func (l *CommandList) ResourceBarrier(barriers ...gpucore.ResourceBarrier) {
	if !l.recording() {
		return
	}
	l.flushClear()
	l.endPass()

	transitions := make([]hal.TextureBarrier, 0, len(barriers))
	for _, br := range barriers {
		ref, ok := br.Resource.(*BackBufferRef)
		if !ok {
			l.latch(fmt.Errorf("native: barrier resource %T: %w", br.Resource, gpucore.ErrWrongBackend))
			return
		}
		b := ref.buf
		if b.destroyed {
			l.latch(fmt.Errorf("native: barrier on a resized back buffer: %w", gpucore.ErrInvalidArgument))
			return
		}
		if b.state != br.Before {
			l.latch(fmt.Errorf("native: barrier on buffer %d expects %v, buffer is %v: %w",
				b.index, br.Before, b.state, gpucore.ErrInvalidArgument))
			return
		}
		old := usageFor(br.Before)
		if !b.initialized {
			old = gputypes.TextureUsageNone
		}
		transitions = append(transitions, hal.TextureBarrier{
			Texture: b.texture,
			Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll, MipLevelCount: 1, ArrayLayerCount: 1},
			Usage:   hal.TextureUsageTransition{OldUsage: old, NewUsage: usageFor(br.After)},
		})
		l.save(b)
		b.state = br.After
		b.initialized = true
	}
	l.alloc.encoder.TransitionTextures(transitions)
}

func usageFor(s gpucore.ResourceState) gputypes.TextureUsage {
	switch s {
	case gpucore.ResourceStateRenderTarget:
		return gputypes.TextureUsageRenderAttachment
	case gpucore.ResourceStateCopySource:
		return gputypes.TextureUsageCopySrc
	default:
		return gputypes.TextureUsageTextureBinding
	}
}

// resolve copies the view stored in h.
func (l *CommandList) resolve(h gpucore.CPUDescriptorHandle) (target, bool) {
	heap, ok := h.Heap.(*DescriptorHeap)
	if !ok {
		l.latch(fmt.Errorf("native: descriptor heap %T: %w", h.Heap, gpucore.ErrWrongBackend))
		return target{}, false
	}
	if !h.Valid() {
		l.latch(fmt.Errorf("native: descriptor %d out of range: %w", h.Index, gpucore.ErrInvalidArgument))
		return target{}, false
	}
	slot := heap.slots[h.Index]
	if slot.view == nil || slot.buf.destroyed {
		l.latch(fmt.Errorf("native: descriptor %d holds no live view: %w", h.Index, gpucore.ErrInvalidArgument))
		return target{}, false
	}
	return target{view: slot.view, buf: slot.buf}, true
}

func (l *CommandList) OMSetRenderTargets(rtv gpucore.CPUDescriptorHandle) {
	if !l.recording() {
		return
	}
	t, ok := l.resolve(rtv)
	if !ok {
		return
	}
	if l.pass != nil && l.passTarget.buf != t.buf {
		l.endPass()
	}
	l.target = t
}

// ClearRenderTargetView defers the clear to the load operation of the next
// pass on the same view.
func (l *CommandList) ClearRenderTargetView(rtv gpucore.CPUDescriptorHandle, color gputypes.Color) {
	if !l.recording() {
		return
	}
	t, ok := l.resolve(rtv)
	if !ok {
		return
	}
	if t.buf.state != gpucore.ResourceStateRenderTarget {
		l.latch(fmt.Errorf("native: clear buffer %d in state %v: %w", t.buf.index, t.buf.state, gpucore.ErrInvalidArgument))
		return
	}
	l.endPass()
	if l.clear != nil && l.clear.target.buf != t.buf {
		l.flushClear()
	}
	l.clear = &pendingClear{target: t, color: color}
}

func (l *CommandList) IASetPrimitiveTopology(t gputypes.PrimitiveTopology) {
	if l.recording() {
		l.topology = t
		l.topologySet = true
	}
}

func (l *CommandList) IASetVertexBuffers(slot uint32, view gpucore.VertexBufferView) {
	if !l.recording() {
		return
	}
	if slot != 0 {
		l.latch(fmt.Errorf("native: vertex buffer slot %d: %w", slot, gpucore.ErrInvalidArgument))
		return
	}
	buf, ok := view.Buffer.(*Buffer)
	if !ok {
		l.latch(fmt.Errorf("native: vertex buffer %T: %w", view.Buffer, gpucore.ErrWrongBackend))
		return
	}
	l.vb = view
	l.vbBuf = buf
}

func (l *CommandList) DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance uint32) {
	if !l.recording() {
		return
	}
	if err := l.drawable(vertexCountPerInstance, startVertex); err != nil {
		l.latch(err)
		return
	}

	l.ensurePass()
	vp := l.viewport
	l.pass.SetPipeline(l.pso.pipeline)
	l.pass.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
	x, y := max(l.scissor.Left, 0), max(l.scissor.Top, 0)
	w, h := max(l.scissor.Right-x, 0), max(l.scissor.Bottom-y, 0)
	l.pass.SetScissorRect(uint32(x), uint32(y), uint32(w), uint32(h))
	if l.vbBuf != nil {
		l.pass.SetVertexBuffer(0, l.vbBuf.buf, 0)
	}
	l.pass.Draw(vertexCountPerInstance, instanceCount, startVertex, startInstance)
}

func (l *CommandList) drawable(count, start uint32) error {
	switch {
	case l.pso == nil:
		return fmt.Errorf("native: draw without a pipeline state: %w", gpucore.ErrInvalidArgument)
	case l.rootSig == nil:
		return fmt.Errorf("native: draw without a root signature: %w", gpucore.ErrInvalidArgument)
	case l.target.view == nil:
		return fmt.Errorf("native: draw without a render target: %w", gpucore.ErrInvalidArgument)
	case l.target.buf.state != gpucore.ResourceStateRenderTarget:
		return fmt.Errorf("native: draw into buffer %d in state %v: %w", l.target.buf.index, l.target.buf.state, gpucore.ErrInvalidArgument)
	case !l.topologySet:
		return fmt.Errorf("native: draw without a primitive topology: %w", gpucore.ErrInvalidArgument)
	case l.topology != l.pso.topology:
		return fmt.Errorf("native: topology %v does not match pipeline %v: %w", l.topology, l.pso.topology, gpucore.ErrInvalidArgument)
	}
	if l.pso.inputs == 0 {
		return nil
	}
	if !l.vb.Valid() {
		return fmt.Errorf("native: draw without a vertex buffer: %w", gpucore.ErrInvalidArgument)
	}
	if l.vb.StrideInBytes != l.pso.stride {
		return fmt.Errorf("native: vertex stride %d, pipeline wants %d: %w", l.vb.StrideInBytes, l.pso.stride, gpucore.ErrInvalidArgument)
	}
	if uint64(start)+uint64(count) > uint64(l.vb.VertexCount()) {
		return fmt.Errorf("native: vertices [%d, %d) exceed buffer of %d: %w",
			start, uint64(start)+uint64(count), l.vb.VertexCount(), gpucore.ErrInvalidArgument)
	}
	return nil
}

// ensurePass opens a pass on the bound target, consuming a pending clear
// of the same view.
func (l *CommandList) ensurePass() {
	if l.pass != nil && l.passTarget.buf == l.target.buf {
		return
	}
	l.endPass()
	load, color := gputypes.LoadOpLoad, gputypes.Color{}
	if l.clear != nil {
		if l.clear.target.buf == l.target.buf {
			load, color = gputypes.LoadOpClear, l.clear.color
			l.clear = nil
		} else {
			l.flushClear()
		}
	}
	l.beginPass(l.target, load, color)
}

func (l *CommandList) beginPass(t target, load gputypes.LoadOp, color gputypes.Color) {
	l.pass = l.alloc.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "swapframe pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       t.view,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: color,
		}},
	})
	l.passTarget = t
}

// flushClear records a pending clear as an empty pass.
func (l *CommandList) flushClear() {
	if l.clear == nil {
		return
	}
	c := l.clear
	l.clear = nil
	l.endPass()
	l.beginPass(c.target, gputypes.LoadOpClear, c.color)
	l.endPass()
}

func (l *CommandList) endPass() {
	if l.pass != nil {
		l.pass.End()
		l.pass = nil
		l.passTarget = target{}
	}
}

// Close ends encoding and returns the first recording error. A failed
// recording is discarded and its barriers leave the buffers as they were.
func (l *CommandList) Close() error {
	if !l.open {
		return fmt.Errorf("native: close: %w", gpucore.ErrListClosed)
	}
	if l.err == nil {
		l.flushClear()
	}
	l.endPass()
	l.open = false
	l.alloc.recording = false

	if l.err != nil {
		l.alloc.encoder.DiscardEncoding()
		l.restore()
		return l.err
	}
	cmd, err := l.alloc.encoder.EndEncoding()
	if err != nil {
		l.restore()
		l.err = l.dev.check("end encoding", err)
		return l.err
	}
	l.saved = nil
	l.cmd = cmd
	l.slot = len(l.alloc.buffers)
	l.alloc.buffers = append(l.alloc.buffers, endedBuffer{cmd: cmd})
	return nil
}

// Destroy discards an open recording.
func (l *CommandList) Destroy() {
	if l.open {
		l.endPass()
		l.alloc.encoder.DiscardEncoding()
		l.restore()
		l.alloc.recording = false
		l.open = false
	}
}
