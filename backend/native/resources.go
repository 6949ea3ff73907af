package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/swapframe/gpucore"
)

// rtvSlot is one descriptor: a texture view of a back buffer.
type rtvSlot struct {
	view hal.TextureView
	buf  *backBuffer
}

func (s *rtvSlot) clear(d *Device) {
	if s.view != nil {
		d.device.DestroyTextureView(s.view)
	}
	s.view = nil
	s.buf = nil
}

// DescriptorHeap is a table of render target views.
type DescriptorHeap struct {
	dev   *Device
	desc  gpucore.DescriptorHeapDesc
	slots []rtvSlot
}

func (h *DescriptorHeap) Desc() gpucore.DescriptorHeapDesc { return h.desc }

func (h *DescriptorHeap) Handle(i uint32) gpucore.CPUDescriptorHandle {
	return gpucore.CPUDescriptorHandle{Heap: h, Index: i}
}

// Destroy destroys every view in the heap.
func (h *DescriptorHeap) Destroy() {
	for i := range h.slots {
		h.slots[i].clear(h.dev)
	}
}

// RootSignature is a pipeline layout without bind groups.
type RootSignature struct {
	dev    *Device
	layout hal.PipelineLayout
	flags  gpucore.RootSignatureFlags
}

func (r *RootSignature) Destroy() {
	r.dev.device.DestroyPipelineLayout(r.layout)
}

// PipelineState is a render pipeline and its shader modules.
type PipelineState struct {
	dev      *Device
	vs, ps   hal.ShaderModule
	pipeline hal.RenderPipeline
	topology gputypes.PrimitiveTopology
	stride   uint32
	inputs   int
}

func (p *PipelineState) Destroy() {
	if p.pipeline != nil {
		p.dev.device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.ps != nil {
		p.dev.device.DestroyShaderModule(p.ps)
		p.ps = nil
	}
	if p.vs != nil {
		p.dev.device.DestroyShaderModule(p.vs)
		p.vs = nil
	}
}

// Buffer is a vertex buffer. Upload buffers map to a CPU copy that Unmap
// writes through the queue.
type Buffer struct {
	dev    *Device
	buf    hal.Buffer
	desc   gpucore.BufferDesc
	shadow []byte
	mapped bool
}

func (b *Buffer) Size() uint64 { return b.desc.Size }

// Map returns the CPU copy of an upload buffer.
func (b *Buffer) Map() ([]byte, error) {
	if b.desc.Heap != gpucore.HeapUpload {
		return nil, fmt.Errorf("native: map a default heap buffer: %w", gpucore.ErrInvalidArgument)
	}
	if b.shadow == nil {
		b.shadow = make([]byte, b.desc.Size)
	}
	b.mapped = true
	return b.shadow, nil
}

// Unmap writes the CPU copy to the GPU buffer.
func (b *Buffer) Unmap() {
	if !b.mapped {
		return
	}
	b.mapped = false
	if err := b.dev.queue.WriteBuffer(b.buf, 0, b.shadow); err != nil {
		b.dev.log.Error("native: upload buffer", "label", b.desc.Label, "err", b.dev.check("write buffer", err))
	}
}

func (b *Buffer) Destroy() {
	b.dev.device.DestroyBuffer(b.buf)
	b.shadow = nil
}
