package sim

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/swapframe/gpucore"
)

// ErrNoFrame is returned by Snapshot before the first present completes.
var ErrNoFrame = errors.New("sim: nothing presented yet")

// SwapChain is a simulated composition swap chain.
type SwapChain struct {
	dev *Device

	// Fields below are guarded by dev.mu.
	desc     gpucore.SwapChainDesc
	gen      uint64
	buffers  []*backBuffer
	current  uint32
	composed *image.RGBA
	presents uint64
	sink     gpucore.FrameSink
}

type backBuffer struct {
	chain  *SwapChain
	index  uint32
	gen    uint64
	width  uint32
	height uint32
	format gputypes.TextureFormat
	refs   int

	// state is the resource state after the last submitted barrier.
	state  gpucore.ResourceState
	pixels *image.RGBA
}

// rebuild replaces the back buffers. Must be called with dev.mu held.
func (s *SwapChain) rebuild() {
	s.gen++
	s.buffers = make([]*backBuffer, s.desc.BufferCount)
	for i := range s.buffers {
		s.buffers[i] = &backBuffer{
			chain:  s,
			index:  uint32(i),
			gen:    s.gen,
			width:  s.desc.Width,
			height: s.desc.Height,
			format: s.desc.Format,
			state:  gpucore.ResourceStatePresent,
		}
	}
	s.current = 0
}

// Desc returns the current description.
func (s *SwapChain) Desc() gpucore.SwapChainDesc {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return s.desc
}

// CurrentBackBufferIndex returns the buffer the next frame renders into.
func (s *SwapChain) CurrentBackBufferIndex() uint32 {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return s.current
}

// GetBuffer returns a counted reference to buffer i.
func (s *SwapChain) GetBuffer(i uint32) (gpucore.BackBuffer, error) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if i >= uint32(len(s.buffers)) {
		return nil, fmt.Errorf("sim: back buffer %d of %d: %w", i, len(s.buffers), gpucore.ErrInvalidArgument)
	}
	b := s.buffers[i]
	b.refs++
	return &BackBufferRef{buf: b}, nil
}

// ResizeBuffers recreates the back buffers at width x height.
func (s *SwapChain) ResizeBuffers(count, width, height uint32, format gputypes.TextureFormat, flags uint32) error {
	d := s.dev
	if err := d.check(OpResizeBuffers); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range s.buffers {
		if b.refs > 0 {
			return fmt.Errorf("sim: back buffer %d has %d references: %w", b.index, b.refs, gpucore.ErrBuffersInUse)
		}
	}
	if n := d.inflight.Load(); n > 0 {
		err := d.hazardLocked("resize with %d submissions in flight", n)
		return fmt.Errorf("%w: %w", gpucore.ErrBuffersInUse, err)
	}

	desc := s.desc
	if count != 0 {
		desc.BufferCount = count
	}
	if format != gputypes.TextureFormatUndefined {
		desc.Format = format
	}
	desc.Width, desc.Height, desc.Flags = width, height, flags
	if err := desc.Validate(); err != nil {
		return err
	}

	s.desc = desc
	s.rebuild()
	d.stats.Resizes++
	d.events = append(d.events, Event{Kind: EventResize, Generation: s.gen, Width: width, Height: height})
	d.log.Debug("sim: swap chain resized", "width", width, "height", height, "generation", s.gen)
	return nil
}

// Present queues the current back buffer for composition.
func (s *SwapChain) Present(syncInterval, flags uint32) error {
	d := s.dev
	if err := d.check(OpPresent); err != nil {
		return err
	}
	if syncInterval > 4 {
		return fmt.Errorf("sim: sync interval %d: %w", syncInterval, gpucore.ErrInvalidArgument)
	}

	d.mu.Lock()
	b := s.buffers[s.current]
	if b.state != gpucore.ResourceStatePresent {
		err := d.hazardLocked("present of back buffer %d in state %s", b.index, b.state)
		d.mu.Unlock()
		return err
	}
	d.stats.Presents++
	d.events = append(d.events, Event{
		Kind: EventPresent, Buffer: b.index, Generation: b.gen,
		Width: b.width, Height: b.height, SyncInterval: syncInterval,
	})
	s.current = (s.current + 1) % uint32(len(s.buffers))
	s.presents++
	f := gpucore.Frame{
		Sequence:     s.presents,
		Buffer:       b.index,
		Width:        b.width,
		Height:       b.height,
		Format:       b.format,
		SyncInterval: syncInterval,
	}
	d.mu.Unlock()

	d.gpu.push(func() {
		d.mu.Lock()
		s.composed = cloneRGBA(b.ensurePixels())
		sink := s.sink
		if sink != nil {
			f.Image = cloneRGBA(s.composed)
		}
		d.mu.Unlock()

		if sink == nil {
			return
		}
		if err := sink.PresentFrame(f); err != nil {
			d.log.Warn("sim: frame sink failed", "sequence", f.Sequence, "err", err)
		}
	})
	return nil
}

// SetFrameSink routes composed frames to sink. Frames are delivered from
// the GPU goroutine in present order; Image is an *image.RGBA the sink
// owns.
func (s *SwapChain) SetFrameSink(sink gpucore.FrameSink) {
	s.dev.mu.Lock()
	s.sink = sink
	s.dev.mu.Unlock()
}

// Snapshot returns the last frame the compositor received.
func (s *SwapChain) Snapshot() (*image.RGBA, error) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.composed == nil {
		return nil, ErrNoFrame
	}
	return cloneRGBA(s.composed), nil
}

// Destroy is a no-op.
func (s *SwapChain) Destroy() {}

// BackBufferRef is a counted reference to a simulated back buffer.
type BackBufferRef struct {
	buf      *backBuffer
	released bool
}

func (r *BackBufferRef) Index() uint32                  { return r.buf.index }
func (r *BackBufferRef) Width() uint32                  { return r.buf.width }
func (r *BackBufferRef) Height() uint32                 { return r.buf.height }
func (r *BackBufferRef) Format() gputypes.TextureFormat { return r.buf.format }

// Release drops the reference.
func (r *BackBufferRef) Release() {
	d := r.buf.chain.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	r.buf.refs--
}

// Surface is an in-memory composition target.
type Surface struct {
	mu    sync.Mutex
	chain gpucore.SwapChain
	binds int
}

// NewSurface returns an unbound surface.
func NewSurface() *Surface { return &Surface{} }

// SetSwapChain binds chain. A nil chain unbinds.
func (s *Surface) SetSwapChain(chain gpucore.SwapChain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain = chain
	if chain != nil {
		s.binds++
	}
	return nil
}

// SwapChain returns the bound chain.
func (s *Surface) SwapChain() gpucore.SwapChain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain
}

// Binds returns how many times a chain was bound.
func (s *Surface) Binds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binds
}
