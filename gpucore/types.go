package gpucore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// BufferCount is the number of back buffers in a swap chain and the number
// of frames that may be in flight at once.
const BufferCount = 2

// ResourceState is the usage state a back buffer is in from the GPU's point
// of view. Transitions are recorded with [CommandList.ResourceBarrier].
type ResourceState uint8

// Resource states.
const (
	// ResourceStatePresent is the state a back buffer must be in when it is
	// presented. Newly created back buffers start here.
	ResourceStatePresent ResourceState = iota

	// ResourceStateRenderTarget allows the buffer to be bound as a render target.
	ResourceStateRenderTarget

	// ResourceStateCopySource allows the buffer to be read by copy commands.
	ResourceStateCopySource
)

// String returns the state name.
func (s ResourceState) String() string {
	switch s {
	case ResourceStatePresent:
		return "Present"
	case ResourceStateRenderTarget:
		return "RenderTarget"
	case ResourceStateCopySource:
		return "CopySource"
	default:
		return fmt.Sprintf("ResourceState(%d)", uint8(s))
	}
}

// SwapEffect selects the presentation model of a swap chain.
type SwapEffect uint8

// Swap effects.
const (
	// SwapEffectFlipDiscard discards the back buffer contents after present.
	SwapEffectFlipDiscard SwapEffect = iota

	// SwapEffectFlipSequential keeps the back buffer contents after present.
	SwapEffectFlipSequential
)

// AlphaMode describes how the compositor treats the alpha channel.
type AlphaMode uint8

// Alpha modes.
const (
	AlphaModeUnspecified AlphaMode = iota
	AlphaModePremultiplied
	AlphaModeStraight
	AlphaModeIgnore
)

// SwapChainDesc describes a composition swap chain.
type SwapChainDesc struct {
	Width       uint32
	Height      uint32
	Format      gputypes.TextureFormat
	BufferCount uint32
	SwapEffect  SwapEffect
	AlphaMode   AlphaMode
	Flags       uint32
}

// Validate reports whether the description can be used to create a chain.
func (d SwapChainDesc) Validate() error {
	if d.Width == 0 || d.Height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, d.Width, d.Height)
	}
	if d.BufferCount != BufferCount {
		return fmt.Errorf("%w: buffer count %d, want %d", ErrInvalidArgument, d.BufferCount, BufferCount)
	}
	if d.Format == gputypes.TextureFormatUndefined {
		return fmt.Errorf("%w: undefined format", ErrInvalidArgument)
	}
	return nil
}

// HeapType is the kind of descriptors a [DescriptorHeap] holds.
type HeapType uint8

// Descriptor heap types.
const (
	HeapTypeRTV HeapType = iota
)

// DescriptorHeapDesc describes a descriptor heap.
type DescriptorHeapDesc struct {
	Label          string
	Type           HeapType
	NumDescriptors uint32
}

// CPUDescriptorHandle addresses one slot of a descriptor heap.
type CPUDescriptorHandle struct {
	Heap  DescriptorHeap
	Index uint32
}

// Valid reports whether the handle points into a heap.
func (h CPUDescriptorHandle) Valid() bool {
	return h.Heap != nil && h.Index < h.Heap.Desc().NumDescriptors
}

// Viewport maps normalized device coordinates onto the render target.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Rect is a scissor rectangle in pixels. Right and Bottom are exclusive.
type Rect struct {
	Left, Top     int32
	Right, Bottom int32
}

// FullViewport returns the viewport and scissor rectangle covering a
// width x height target.
func FullViewport(width, height uint32) (Viewport, Rect) {
	vp := Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1}
	return vp, Rect{Right: int32(width), Bottom: int32(height)}
}

// HeapKind selects the memory a committed buffer lives in.
type HeapKind uint8

// Heap kinds.
const (
	// HeapUpload is CPU-writable memory the GPU reads directly.
	HeapUpload HeapKind = iota

	// HeapDefault is GPU-local memory.
	HeapDefault
)

// BufferDesc describes a committed buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	Heap  HeapKind
}

// VertexBufferView binds a range of a buffer as vertex input.
type VertexBufferView struct {
	Buffer        Buffer
	SizeInBytes   uint32
	StrideInBytes uint32
}

// Valid reports whether the view references vertex data.
// The zero view is invalid.
func (v VertexBufferView) Valid() bool {
	return v.Buffer != nil && v.SizeInBytes > 0 && v.StrideInBytes > 0
}

// VertexCount returns the number of whole vertices in the view.
func (v VertexBufferView) VertexCount() uint32 {
	if !v.Valid() {
		return 0
	}
	return v.SizeInBytes / v.StrideInBytes
}

// ResourceBarrier is a state transition of a back buffer.
type ResourceBarrier struct {
	Resource BackBuffer
	Before   ResourceState
	After    ResourceState
}

// Transition returns a barrier moving r from before to after.
func Transition(r BackBuffer, before, after ResourceState) ResourceBarrier {
	return ResourceBarrier{Resource: r, Before: before, After: after}
}

// DeviceOptions configures device creation.
type DeviceOptions struct {
	// Debug enables backend validation layers when available.
	Debug bool

	// Label names the device in backend diagnostics.
	Label string
}
