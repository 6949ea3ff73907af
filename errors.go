package swapframe

import (
	"errors"

	"github.com/gogpu/swapframe/gpucore"
	"github.com/gogpu/swapframe/internal/swapchain"
)

// Renderer errors.
var (
	// ErrNotInitialized is returned by Render, OnResize and WaitForGPU
	// before Initialize succeeded.
	ErrNotInitialized = errors.New("swapframe: renderer not initialized")

	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("swapframe: renderer already initialized")

	// ErrBusy is returned when Render or OnResize is entered while another
	// call is in progress.
	ErrBusy = errors.New("swapframe: renderer busy")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("swapframe: renderer closed")

	// ErrSnapshotUnsupported is returned by Snapshot when the backend
	// cannot read back presented frames.
	ErrSnapshotUnsupported = errors.New("swapframe: backend does not support snapshots")

	// ErrSurfaceLost is returned once a resize has failed. The renderer
	// must be closed and recreated.
	ErrSurfaceLost = swapchain.ErrSurfaceLost

	// ErrInvalidSize is returned by OnResize for a zero width or height.
	ErrInvalidSize = gpucore.ErrInvalidSize

	// ErrNoDevice is returned by Initialize when no device could be opened.
	ErrNoDevice = gpucore.ErrNoDevice

	// ErrDeviceHung is returned when the GPU does not reach a fence value
	// within the wait timeout.
	ErrDeviceHung = gpucore.ErrDeviceHung

	// ErrDeviceLost is returned when the device was removed.
	ErrDeviceLost = gpucore.ErrDeviceLost
)

// IsFatal reports whether err leaves the renderer unusable. Hosts stop
// their loop on fatal errors.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceHung) ||
		errors.Is(err, ErrDeviceLost) ||
		errors.Is(err, ErrSurfaceLost) ||
		errors.Is(err, ErrClosed)
}
