package swapframe

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/swapframe/gpucore"
	"github.com/gogpu/swapframe/internal/fence"
	"github.com/gogpu/swapframe/internal/frame"
	"github.com/gogpu/swapframe/internal/pipeline"
	"github.com/gogpu/swapframe/internal/record"
	"github.com/gogpu/swapframe/internal/swapchain"
)

// syncInterval is the number of vertical blanks Present waits for.
const syncInterval = 1

type state uint8

const (
	stateNew state = iota
	stateReady
	stateFailed
	stateClosed
)

// Renderer draws the configured geometry into a double-buffered swap chain,
// pacing the CPU so at most gpucore.BufferCount frames are in flight.
//
// Initialize, Render, OnResize, WaitForGPU, Stats and Close are called from
// one goroutine. Entering Render or OnResize while another call is active
// returns ErrBusy.
type Renderer struct {
	opts options
	log  *slog.Logger

	device     gpucore.Device
	ownsDevice bool
	queue      gpucore.CommandQueue
	ring       *frame.Ring
	rec        *record.Recorder
	chain      *swapchain.Manager
	pipe       *pipeline.Pipeline
	timeline   *fence.Timeline

	state   state
	failErr error
	active  atomic.Bool

	frames, draws, skipped, resizes uint64
}

// New returns an uninitialized renderer.
func New(opts ...Option) *Renderer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}
	return &Renderer{opts: o, log: log}
}

// Initialize opens the device, binds a swap chain to surface and builds the
// pipeline. On failure everything created is released and Initialize may be
// called again.
func (r *Renderer) Initialize(surface gpucore.Surface) (err error) {
	switch r.state {
	case stateReady, stateFailed:
		return ErrAlreadyInitialized
	case stateClosed:
		return ErrClosed
	}
	if surface == nil {
		return fmt.Errorf("swapframe: nil surface: %w", gpucore.ErrInvalidArgument)
	}

	defer func() {
		if err != nil {
			r.release()
		}
	}()

	if err := r.openDevice(); err != nil {
		return err
	}
	if r.queue, err = r.device.CreateCommandQueue(); err != nil {
		return fmt.Errorf("swapframe: command queue: %w", err)
	}
	if r.ring, err = frame.NewRing(r.device); err != nil {
		return err
	}
	if r.rec, err = record.New(r.device, r.ring.Slot(0).Allocator, r.opts.clear, r.log); err != nil {
		return err
	}
	if r.chain, err = swapchain.Create(r.device, r.queue, surface, r.swapChainDesc(), r.log); err != nil {
		return err
	}
	if r.pipe, err = pipeline.Build(r.device, r.opts.pipeline, r.chain.Format(), r.log); err != nil {
		return err
	}
	if r.timeline, err = fence.New(r.device, r.queue, r.opts.timeout, r.log); err != nil {
		return err
	}

	r.state = stateReady
	w, h := r.chain.Size()
	r.log.Info("swapframe: initialized",
		"device", r.device.Name(), "width", w, "height", h,
		"geometry", r.pipe.HasGeometry(), "wait_timeout", r.opts.timeout)
	return nil
}

func (r *Renderer) openDevice() error {
	if r.opts.device != nil {
		r.device = r.opts.device
		return nil
	}

	devOpts := gpucore.DeviceOptions{Debug: r.opts.debug, Label: "swapframe"}
	var (
		dev gpucore.Device
		err error
	)
	switch r.opts.backend {
	case "", "auto":
		dev, err = gpucore.OpenBest(devOpts)
	default:
		dev, err = gpucore.Open(r.opts.backend, devOpts)
	}
	if err != nil {
		if !errors.Is(err, gpucore.ErrNoDevice) {
			err = fmt.Errorf("%w: %w", gpucore.ErrNoDevice, err)
		}
		return fmt.Errorf("swapframe: open device: %w", err)
	}
	r.device = dev
	r.ownsDevice = true
	return nil
}

type formatPreferrer interface {
	PreferredFormat() gputypes.TextureFormat
}

func (r *Renderer) swapChainDesc() gpucore.SwapChainDesc {
	desc := r.opts.desc
	if p, ok := r.device.(formatPreferrer); ok && !r.opts.descSet {
		if f := p.PreferredFormat(); f != gputypes.TextureFormatUndefined {
			desc.Format = f
		}
	}
	return desc
}

// check returns the error for calling into a renderer that is not ready.
func (r *Renderer) check() error {
	switch r.state {
	case stateNew:
		return ErrNotInitialized
	case stateClosed:
		return ErrClosed
	case stateFailed:
		return r.failErr
	}
	return nil
}

// fail moves the renderer to the failed state when err is fatal.
func (r *Renderer) fail(err error) error {
	if IsFatal(err) && r.state == stateReady {
		r.state = stateFailed
		r.failErr = err
		r.log.Error("swapframe: renderer failed", "err", err)
	}
	return err
}

// Render records, submits and presents one frame, then waits until the
// next back buffer's previous frame has completed.
func (r *Renderer) Render() error {
	if err := r.check(); err != nil {
		return err
	}
	if !r.active.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer r.active.Store(false)

	i := r.chain.Index()
	alloc, err := r.ring.Reset(i, r.timeline.Completed())
	if err != nil {
		return fmt.Errorf("swapframe: frame %d: %w", r.frames, err)
	}
	target, rtv := r.chain.Target(i)
	res, err := r.rec.Record(record.Frame{Allocator: alloc, Target: target, RTV: rtv, Pipeline: r.pipe})
	if err != nil {
		return fmt.Errorf("swapframe: frame %d: %w", r.frames, err)
	}
	if err := r.queue.ExecuteCommandLists(r.rec.List()); err != nil {
		return r.fail(fmt.Errorf("swapframe: execute frame %d: %w", r.frames, err))
	}

	// The list is on the GPU: the slot must be stamped even if present fails.
	presentErr := r.chain.Present(syncInterval, 0)
	if err := r.advance(i); err != nil {
		return r.fail(err)
	}
	if presentErr != nil {
		return r.fail(fmt.Errorf("swapframe: present frame %d: %w", r.frames, presentErr))
	}

	r.frames++
	if res.Drew {
		r.draws++
	} else {
		r.skipped++
	}
	return nil
}

// advance signals the end of slot i's work and waits for the slot the next
// frame will reuse.
func (r *Renderer) advance(i uint32) error {
	tok, err := r.timeline.Signal()
	if err != nil {
		return fmt.Errorf("swapframe: signal frame %d: %w", r.frames, err)
	}
	r.ring.Stamp(i, uint64(tok))

	next := r.chain.Index()
	if err := r.timeline.Wait(fence.Token(r.ring.Slot(next).FenceValue)); err != nil {
		return fmt.Errorf("swapframe: wait for back buffer %d: %w", next, err)
	}
	return nil
}

// OnResize drains the GPU and resizes the back buffers. A zero dimension is
// rejected with gpucore.ErrInvalidSize and changes nothing; any other
// failure is fatal.
func (r *Renderer) OnResize(width, height uint32) error {
	if err := r.check(); err != nil {
		return err
	}
	if !r.active.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer r.active.Store(false)

	err := r.chain.Resize(width, height, r.timeline.Drain)
	switch {
	case err == nil:
		r.resizes++
		return nil
	case errors.Is(err, gpucore.ErrInvalidSize) && r.chain.Err() == nil:
		return err
	case r.chain.Err() != nil:
		return r.fail(fmt.Errorf("swapframe: resize: %w: %w", ErrSurfaceLost, err))
	default:
		return r.fail(fmt.Errorf("swapframe: resize: %w", err))
	}
}

// WaitForGPU blocks until all submitted work has completed.
func (r *Renderer) WaitForGPU() error {
	if err := r.check(); err != nil {
		return err
	}
	return r.fail(r.timeline.Drain())
}

// Stats returns the renderer counters.
func (r *Renderer) Stats() Stats {
	s := Stats{
		Frames:       r.frames,
		Draws:        r.draws,
		SkippedDraws: r.skipped,
		Resizes:      r.resizes,
	}
	cs := pipeline.CacheStats()
	s.ShaderCacheHits, s.ShaderCacheMisses = cs.Hits, cs.Misses
	if r.timeline != nil {
		s.BlockingWaits = r.timeline.BlockingWaits()
		s.FenceCompleted = r.timeline.Completed()
		s.FenceLast = uint64(r.timeline.Last())
	}
	if r.ring != nil {
		s.SlotFence = r.ring.Pending()
	}
	if r.chain != nil {
		s.BackBufferIndex = r.chain.Index()
	}
	return s
}

// Size returns the back buffer extent, or zero before Initialize.
func (r *Renderer) Size() (width, height uint32) {
	if r.chain == nil {
		return 0, 0
	}
	return r.chain.Size()
}

// DeviceName returns the name of the device, or "" before Initialize.
func (r *Renderer) DeviceName() string {
	if r.device == nil {
		return ""
	}
	return r.device.Name()
}

type snapshotter interface {
	Snapshot() (*image.RGBA, error)
}

// Snapshot drains the GPU and returns the last presented frame.
func (r *Renderer) Snapshot() (*image.RGBA, error) {
	if err := r.WaitForGPU(); err != nil {
		return nil, err
	}
	s, ok := r.chain.Chain().(snapshotter)
	if !ok {
		return nil, ErrSnapshotUnsupported
	}
	img, err := s.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("swapframe: snapshot: %w", err)
	}
	return img, nil
}

// Close drains the GPU and releases every object in reverse creation
// order. It is safe to call more than once. The drain error, if any, is
// returned after everything is released.
func (r *Renderer) Close() error {
	if r.state == stateClosed {
		return nil
	}
	var err error
	if r.timeline != nil {
		if err = r.timeline.Drain(); err != nil {
			err = fmt.Errorf("swapframe: drain on close: %w", err)
			r.log.Warn("swapframe: releasing without a completed drain", "err", err)
		}
	}
	r.release()
	r.state = stateClosed
	return err
}

func (r *Renderer) release() {
	if r.timeline != nil {
		r.timeline.Destroy()
		r.timeline = nil
	}
	if r.pipe != nil {
		r.pipe.Destroy()
		r.pipe = nil
	}
	if r.chain != nil {
		r.chain.Release()
		r.chain = nil
	}
	if r.rec != nil {
		r.rec.Destroy()
		r.rec = nil
	}
	if r.ring != nil {
		r.ring.Destroy()
		r.ring = nil
	}
	if r.queue != nil {
		r.queue.Destroy()
		r.queue = nil
	}
	if r.device != nil {
		if r.ownsDevice {
			r.device.Destroy()
		}
		r.device = nil
		r.ownsDevice = false
	}
}
