// Package native implements gpucore on the gogpu/wgpu hardware abstraction
// layer.
//
// The device runs on whichever hal backend is available: DX12 on Windows,
// Metal on macOS and Vulkan elsewhere, with GLES and the software rasterizer
// as fallbacks. Importing the package registers it as "native" with
// priority 100:
//
//	import _ "github.com/gogpu/swapframe/backend/native"
//
// # Mapping
//
// The D3D12 vocabulary of gpucore maps onto hal as follows:
//
//   - CommandAllocator owns a hal.CommandEncoder and the command buffers
//     ended from it until they are freed on Reset.
//   - CommandList records into its allocator's encoder. Render passes are
//     opened lazily; a pending clear becomes the pass load operation.
//   - Fence values are bound to hal submission indices and completed
//     through Queue.PollCompleted.
//   - SwapChain back buffers are textures the compositor samples. The
//     Present state maps to texture binding usage.
//   - RootSignature is an empty pipeline layout.
//
// A host that already owns a hal device can share it through [Wrap] or
// [FromProvider].
package native
