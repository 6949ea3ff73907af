package sim

import (
	"fmt"

	"github.com/gogpu/swapframe/gpucore"
)

// DescriptorHeap is a simulated descriptor heap.
type DescriptorHeap struct {
	desc gpucore.DescriptorHeapDesc

	// slots is guarded by the device mutex.
	slots []rtvView
}

type rtvView struct {
	buf *backBuffer
	gen uint64
}

func (h *DescriptorHeap) Desc() gpucore.DescriptorHeapDesc { return h.desc }

func (h *DescriptorHeap) Handle(i uint32) gpucore.CPUDescriptorHandle {
	return gpucore.CPUDescriptorHandle{Heap: h, Index: i}
}

func (h *DescriptorHeap) Destroy() {}

// RootSignature is a simulated root signature.
type RootSignature struct {
	desc gpucore.RootSignatureDesc
}

func (r *RootSignature) Destroy() {}

// PipelineState is a simulated pipeline.
type PipelineState struct {
	desc gpucore.PipelineStateDesc
}

func (p *PipelineState) Destroy() {}

// Buffer is a simulated committed buffer.
type Buffer struct {
	desc   gpucore.BufferDesc
	data   []byte
	mapped bool
}

func (b *Buffer) Size() uint64 { return b.desc.Size }

// Map returns the buffer memory. Only upload buffers can be mapped.
func (b *Buffer) Map() ([]byte, error) {
	if b.desc.Heap != gpucore.HeapUpload {
		return nil, fmt.Errorf("sim: map of buffer %q outside the upload heap: %w", b.desc.Label, gpucore.ErrInvalidArgument)
	}
	b.mapped = true
	return b.data, nil
}

func (b *Buffer) Unmap() { b.mapped = false }

func (b *Buffer) Destroy() { b.data = nil }
