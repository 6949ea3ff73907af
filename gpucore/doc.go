// Package gpucore defines the explicit graphics API that swapframe renders
// through.
//
// The interfaces follow the vocabulary of a single explicit 3D API family:
// a [Device] creates a [CommandQueue], per-frame [CommandAllocator]s, a
// reusable [CommandList], a monotonic [Fence], a [DescriptorHeap] of render
// target views and a [SwapChain] of [BufferCount] back buffers. Backends
// implement these interfaces and register themselves with [Register]:
//
//	               +------------------+
//	               |    swapframe     |
//	               | (Renderer, loop) |
//	               +--------+---------+
//	                        |
//	                 gpucore.Device
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	| backend/native  |          |   backend/sim   |
//	|  (wgpu/hal)     |          | (async CPU GPU) |
//	+-----------------+          +-----------------+
//
// # Ownership
//
// The device owns everything it creates. Objects are destroyed explicitly,
// after the caller has confirmed through a [Fence] that the GPU no longer
// references them. Back buffers obtained with [SwapChain.GetBuffer] are
// reference counted; [SwapChain.ResizeBuffers] fails with [ErrBuffersInUse]
// while any reference is held.
//
// # Recording errors
//
// [CommandList] recording methods do not return errors. The first error is
// latched and reported by [CommandList.Close].
package gpucore
