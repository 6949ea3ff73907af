package gpucore

import (
	"time"

	"github.com/gogpu/gputypes"
)

// Device creates every GPU object swapframe uses.
type Device interface {
	// Name describes the adapter backing the device.
	Name() string

	// CreateCommandQueue creates a direct queue. Work submitted to a queue
	// executes in submission order.
	CreateCommandQueue() (CommandQueue, error)

	// CreateCommandAllocator creates recording storage for command lists.
	CreateCommandAllocator() (CommandAllocator, error)

	// CreateCommandList creates a command list in the recording state,
	// recording into alloc. initial may be nil.
	CreateCommandList(alloc CommandAllocator, initial PipelineState) (CommandList, error)

	// CreateFence creates a fence whose completed value starts at initial.
	CreateFence(initial uint64) (Fence, error)

	// CreateDescriptorHeap creates a heap of descriptors.
	CreateDescriptorHeap(desc DescriptorHeapDesc) (DescriptorHeap, error)

	// CreateRenderTargetView writes a render target view of buf into dst,
	// replacing any view previously stored there.
	CreateRenderTargetView(buf BackBuffer, dst CPUDescriptorHandle) error

	// CreateRootSignature creates a root signature.
	CreateRootSignature(desc RootSignatureDesc) (RootSignature, error)

	// CreatePipelineState creates a graphics pipeline state object.
	CreatePipelineState(desc *PipelineStateDesc) (PipelineState, error)

	// CreateCommittedBuffer creates a buffer with its own memory.
	CreateCommittedBuffer(desc BufferDesc) (Buffer, error)

	// CreateSwapChain creates a composition swap chain presenting through
	// queue. The chain is not visible until bound to a [Surface].
	CreateSwapChain(queue CommandQueue, desc SwapChainDesc) (SwapChain, error)

	// Destroy releases the device. Every object created from it must be
	// destroyed first.
	Destroy()
}

// CommandQueue executes command lists and signals fences.
type CommandQueue interface {
	// ExecuteCommandLists submits closed command lists for execution.
	ExecuteCommandLists(lists ...CommandList) error

	// Signal sets fence to value once all previously submitted work on the
	// queue has completed.
	Signal(fence Fence, value uint64) error

	Destroy()
}

// CommandAllocator is the storage command lists record into.
type CommandAllocator interface {
	// Reset reclaims the storage. It fails with [ErrAllocatorInUse] if a
	// list is recording into it or the GPU has not finished work recorded
	// from it.
	Reset() error

	Destroy()
}

// CommandList records GPU commands. Recording methods latch the first
// error, which Close returns.
type CommandList interface {
	// Reset reopens a closed list for recording into alloc.
	Reset(alloc CommandAllocator, initial PipelineState) error

	SetGraphicsRootSignature(rs RootSignature)
	SetPipelineState(pso PipelineState)
	RSSetViewports(vp Viewport)
	RSSetScissorRects(r Rect)
	ResourceBarrier(barriers ...ResourceBarrier)
	OMSetRenderTargets(rtv CPUDescriptorHandle)
	ClearRenderTargetView(rtv CPUDescriptorHandle, color gputypes.Color)
	IASetPrimitiveTopology(t gputypes.PrimitiveTopology)
	IASetVertexBuffers(slot uint32, view VertexBufferView)
	DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance uint32)

	// Close ends recording and reports the first recording error.
	Close() error

	Destroy()
}

// Fence is a monotonic counter advanced by the GPU.
type Fence interface {
	// CompletedValue returns the highest value the GPU has reached.
	CompletedValue() uint64

	// Wait blocks until the completed value is at least value. A timeout
	// of zero or less waits forever. It returns [ErrWaitTimeout] when the
	// timeout expires and [ErrDeviceLost] if the device is removed.
	Wait(value uint64, timeout time.Duration) error

	Destroy()
}

// DescriptorHeap is a fixed table of descriptors.
type DescriptorHeap interface {
	Desc() DescriptorHeapDesc

	// Handle returns the handle of slot i.
	Handle(i uint32) CPUDescriptorHandle

	Destroy()
}

// RootSignature describes the resources a pipeline binds.
type RootSignature interface {
	Destroy()
}

// PipelineState is an immutable graphics pipeline.
type PipelineState interface {
	Destroy()
}

// Buffer is a committed GPU buffer.
type Buffer interface {
	Size() uint64

	// Map returns CPU-visible memory of an upload buffer. The slice is valid
	// until Unmap.
	Map() ([]byte, error)
	Unmap()

	Destroy()
}

// SwapChain is a composition presentation chain of [BufferCount] back
// buffers.
type SwapChain interface {
	Desc() SwapChainDesc

	// CurrentBackBufferIndex returns the buffer the next frame renders into.
	// It is in [0, BufferCount) and advances only on Present.
	CurrentBackBufferIndex() uint32

	// GetBuffer returns a new reference to back buffer i. The caller must
	// Release it.
	GetBuffer(i uint32) (BackBuffer, error)

	// ResizeBuffers recreates the back buffers. A zero count or undefined
	// format keeps the current value. It fails with [ErrBuffersInUse]
	// while any back buffer reference is held.
	ResizeBuffers(count, width, height uint32, format gputypes.TextureFormat, flags uint32) error

	// Present queues the current back buffer for composition and advances
	// the back buffer index. syncInterval is the number of vertical blanks
	// to wait for, 0 to 4.
	Present(syncInterval, flags uint32) error

	Destroy()
}

// BackBuffer is a counted reference to one swap chain image.
type BackBuffer interface {
	Index() uint32
	Width() uint32
	Height() uint32
	Format() gputypes.TextureFormat

	// Release drops the reference. Further calls are no-ops.
	Release()
}

// Surface is the externally owned panel a swap chain is composed into.
type Surface interface {
	SetSwapChain(chain SwapChain) error
}

// Frame is a back buffer handed to the surface by a present.
type Frame struct {
	// Sequence counts presents on the chain, starting at 1.
	Sequence uint64

	// Buffer is the index of the presented back buffer.
	Buffer uint32

	Width  uint32
	Height uint32
	Format gputypes.TextureFormat

	// SyncInterval is the number of vertical blanks the present waited for.
	SyncInterval uint32

	// Image is the backend's view of the presented pixels. It stays valid
	// until the chain presents BufferCount more frames or is resized.
	Image any
}

// FrameSink receives the frames a swap chain presents. Surfaces implement
// it to display the chain's output.
type FrameSink interface {
	PresentFrame(f Frame) error
}

// Composited is implemented by swap chains that hand every presented frame
// to a FrameSink. Surfaces that implement FrameSink subscribe from
// SetSwapChain. A nil sink unsubscribes.
type Composited interface {
	SetFrameSink(sink FrameSink)
}
