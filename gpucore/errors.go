package gpucore

import "errors"

// Errors shared by every backend.
var (
	// ErrNoDevice is returned when no compatible GPU device can be opened.
	ErrNoDevice = errors.New("gpucore: no compatible device")

	// ErrDeviceLost is returned when the device was removed or reset.
	ErrDeviceLost = errors.New("gpucore: device lost")

	// ErrDeviceHung is returned when the GPU fails to reach a fence value
	// within the configured wait timeout.
	ErrDeviceHung = errors.New("gpucore: device hung")

	// ErrWaitTimeout is returned by Fence.Wait when the timeout expires.
	ErrWaitTimeout = errors.New("gpucore: fence wait timed out")

	// ErrBuffersInUse is returned by SwapChain.ResizeBuffers while back
	// buffer references are held or GPU work still uses them.
	ErrBuffersInUse = errors.New("gpucore: back buffers in use")

	// ErrAllocatorInUse is returned when an allocator is reset or recorded
	// into while it is still in use.
	ErrAllocatorInUse = errors.New("gpucore: command allocator in use")

	// ErrListNotClosed is returned when an open command list is reset or
	// executed.
	ErrListNotClosed = errors.New("gpucore: command list not closed")

	// ErrListClosed is latched when a command is recorded into a closed list.
	ErrListClosed = errors.New("gpucore: command list closed")

	// ErrInvalidSize is returned for zero or oversized dimensions.
	ErrInvalidSize = errors.New("gpucore: invalid size")

	// ErrInvalidArgument is returned for malformed descriptions.
	ErrInvalidArgument = errors.New("gpucore: invalid argument")

	// ErrWrongBackend is returned when objects from different backends are mixed.
	ErrWrongBackend = errors.New("gpucore: object belongs to another backend")
)
