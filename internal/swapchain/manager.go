// Package swapchain owns the composition swap chain, its render target
// views and the current back buffer index.
package swapchain

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/swapframe/gpucore"
	"github.com/gogpu/swapframe/internal/logging"
)

// ErrSurfaceLost is returned once a resize has failed. The chain can no
// longer be presented.
var ErrSurfaceLost = errors.New("swapchain: surface lost")

// Manager holds the swap chain, one back buffer reference and one render
// target view per buffer.
type Manager struct {
	device  gpucore.Device
	surface gpucore.Surface
	log     *slog.Logger

	chain   gpucore.SwapChain
	heap    gpucore.DescriptorHeap
	targets [gpucore.BufferCount]gpucore.BackBuffer
	index   uint32
	lost    error
}

// Create creates a chain presenting through queue, binds it to surface and
// builds the render target views. Everything created is released on error.
func Create(device gpucore.Device, queue gpucore.CommandQueue, surface gpucore.Surface, desc gpucore.SwapChainDesc, log *slog.Logger) (*Manager, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("swapchain: %w", err)
	}
	m := &Manager{device: device, surface: surface, log: logging.Or(log)}

	chain, err := device.CreateSwapChain(queue, desc)
	if err != nil {
		return nil, fmt.Errorf("swapchain: create: %w", err)
	}
	m.chain = chain

	if err := surface.SetSwapChain(chain); err != nil {
		m.Release()
		return nil, fmt.Errorf("swapchain: bind to surface: %w", err)
	}

	heap, err := device.CreateDescriptorHeap(gpucore.DescriptorHeapDesc{
		Label:          "swapframe rtv heap",
		Type:           gpucore.HeapTypeRTV,
		NumDescriptors: gpucore.BufferCount,
	})
	if err != nil {
		m.Release()
		return nil, fmt.Errorf("swapchain: rtv heap: %w", err)
	}
	m.heap = heap

	if err := m.CreateRenderTargets(); err != nil {
		m.Release()
		return nil, err
	}
	m.index = chain.CurrentBackBufferIndex()

	m.log.Info("swapchain: created",
		"width", desc.Width, "height", desc.Height, "format", desc.Format, "buffers", desc.BufferCount)
	return m, nil
}

// CreateRenderTargets takes a reference to every back buffer and writes its
// view into the matching heap slot. References taken before a failure are
// released.
func (m *Manager) CreateRenderTargets() (err error) {
	defer func() {
		if err != nil {
			m.releaseTargets()
		}
	}()
	for i := range m.targets {
		buf, err := m.chain.GetBuffer(uint32(i))
		if err != nil {
			return fmt.Errorf("swapchain: back buffer %d: %w", i, err)
		}
		m.targets[i] = buf
		if err := m.device.CreateRenderTargetView(buf, m.heap.Handle(uint32(i))); err != nil {
			return fmt.Errorf("swapchain: render target view %d: %w", i, err)
		}
	}
	return nil
}

func (m *Manager) releaseTargets() {
	for i, t := range m.targets {
		if t != nil {
			t.Release()
			m.targets[i] = nil
		}
	}
}

// Resize drains the GPU, drops every back buffer reference, resizes the
// chain and rebuilds the views. Any failure after the drain leaves the
// manager lost.
func (m *Manager) Resize(width, height uint32, drain func() error) error {
	if m.lost != nil {
		return fmt.Errorf("%w: %w", ErrSurfaceLost, m.lost)
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("swapchain: resize to %dx%d: %w", width, height, gpucore.ErrInvalidSize)
	}
	if err := drain(); err != nil {
		return fmt.Errorf("swapchain: drain before resize: %w", err)
	}

	m.releaseTargets()
	desc := m.chain.Desc()
	if err := m.chain.ResizeBuffers(gpucore.BufferCount, width, height, desc.Format, desc.Flags); err != nil {
		m.lost = err
		return fmt.Errorf("swapchain: resize buffers to %dx%d: %w", width, height, err)
	}
	m.index = m.chain.CurrentBackBufferIndex()
	if err := m.CreateRenderTargets(); err != nil {
		m.lost = err
		return err
	}

	m.log.Info("swapchain: resized", "width", width, "height", height, "index", m.index)
	return nil
}

// Present presents the current back buffer and advances the index.
func (m *Manager) Present(syncInterval, flags uint32) error {
	if m.lost != nil {
		return fmt.Errorf("%w: %w", ErrSurfaceLost, m.lost)
	}
	if err := m.chain.Present(syncInterval, flags); err != nil {
		return fmt.Errorf("swapchain: present: %w", err)
	}
	m.index = m.chain.CurrentBackBufferIndex()
	return nil
}

// Index returns the back buffer the next frame renders into.
func (m *Manager) Index() uint32 { return m.index }

// Target returns back buffer i and its render target view.
func (m *Manager) Target(i uint32) (gpucore.BackBuffer, gpucore.CPUDescriptorHandle) {
	return m.targets[i], m.heap.Handle(i)
}

// Size returns the back buffer extent.
func (m *Manager) Size() (width, height uint32) {
	d := m.chain.Desc()
	return d.Width, d.Height
}

// Format returns the back buffer format.
func (m *Manager) Format() gputypes.TextureFormat { return m.chain.Desc().Format }

// Chain returns the underlying swap chain.
func (m *Manager) Chain() gpucore.SwapChain { return m.chain }

// Err returns the failure that lost the surface, or nil.
func (m *Manager) Err() error { return m.lost }

// Release drops the buffer references, unbinds the chain from the surface
// and destroys the heap and chain. The caller drains first.
func (m *Manager) Release() {
	m.releaseTargets()
	if m.heap != nil {
		m.heap.Destroy()
		m.heap = nil
	}
	if m.chain != nil {
		if err := m.surface.SetSwapChain(nil); err != nil {
			m.log.Warn("swapchain: unbind from surface", "err", err)
		}
		m.chain.Destroy()
		m.chain = nil
	}
}
