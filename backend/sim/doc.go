// Package sim implements gpucore on a simulated GPU.
//
// A simulated device executes submitted work on its own goroutine, in
// submission order, optionally after a fixed latency per job. Fences
// advance only when that goroutine reaches the signal, so the CPU observes
// the same asynchrony it would against real hardware. The GPU can be paused
// and resumed to hold work in flight deterministically, and lost to test
// device removal.
//
// The device validates what a debug layer would:
//
//   - an allocator reset while work recorded from it is still pending;
//   - barriers whose before-state does not match the submitted state;
//   - submissions that reference back buffers replaced by a resize;
//   - presenting a back buffer that is not in the present state;
//   - resizing while buffers are referenced or GPU work is in flight.
//
// Violations are recorded as hazards and reported with [ErrHazard].
// Clears and triangle-list draws are rasterized on the CPU, and
// [SwapChain.Snapshot] returns the last composed frame.
//
// Importing the package registers the "sim" backend with priority 10.
package sim
