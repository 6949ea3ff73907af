package swapframe

// Stats is a snapshot of renderer counters.
type Stats struct {
	// Frames is the number of frames submitted.
	Frames uint64

	// Draws counts frames that drew geometry; SkippedDraws counts frames
	// presented without a vertex buffer.
	Draws        uint64
	SkippedDraws uint64

	// BlockingWaits counts fence waits that found the GPU behind.
	BlockingWaits uint64

	Resizes uint64

	// FenceCompleted is the value the GPU reached and FenceLast the value
	// most recently signaled.
	FenceCompleted uint64
	FenceLast      uint64

	// SlotFence is the highest fence value a frame slot waits for before
	// its allocator can be reused.
	SlotFence uint64

	// ShaderCacheHits and ShaderCacheMisses count compiles served from and
	// added to the process-wide SPIR-V cache.
	ShaderCacheHits   uint64
	ShaderCacheMisses uint64

	// BackBufferIndex is the buffer the next frame renders into.
	BackBufferIndex uint32
}

// InFlight returns the number of signaled fence values the GPU has not
// reached.
func (s Stats) InFlight() uint64 {
	if s.FenceLast < s.FenceCompleted {
		return 0
	}
	return s.FenceLast - s.FenceCompleted
}
