// Package swapframe renders into a double-buffered composition swap chain
// with fence-paced frames.
//
// # Overview
//
// A [Renderer] opens a GPU device, binds a two-buffer swap chain to an
// externally owned surface, builds a fixed pipeline and draws one colored
// triangle per frame. The CPU never runs more than [gpucore.BufferCount]
// frames ahead of the GPU: each back buffer has its own command allocator,
// and an allocator is only reused after the fence value stamped on its last
// submission has completed.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/swapframe"
//	    _ "github.com/gogpu/swapframe/backend/native"
//	)
//
//	r := swapframe.New()
//	if err := r.Initialize(panel); err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	for range ticker.C {
//	    if err := r.Render(); swapframe.IsFatal(err) {
//	        break
//	    }
//	}
//
// The host package provides a ready-made loop with resize coalescing.
//
// # Frame Lifecycle
//
// Render records into the slot of the current back buffer, submits,
// presents with a sync interval of 1, signals the fence, stamps the slot,
// and waits until the slot of the next back buffer is free. OnResize drains
// the GPU, drops every back buffer reference and recreates the buffers and
// their render target views. Close drains and releases everything in
// reverse creation order.
//
// # Backends
//
// Devices come from the [gpucore] registry. backend/native runs on
// gogpu/wgpu HAL (DX12, Vulkan, Metal or GLES); backend/sim is an
// asynchronous simulated GPU with hazard detection, used by tests and the
// demo.
//
// # Errors
//
// [ErrDeviceHung], [ErrDeviceLost] and [ErrSurfaceLost] are fatal: the
// renderer must be closed. A missing vertex buffer is not an error; frames
// are cleared and presented without the draw.
package swapframe
