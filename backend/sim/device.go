package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/swapframe/gpucore"
	"github.com/gogpu/swapframe/internal/logging"
	"github.com/gogpu/swapframe/internal/parallel"
)

// ErrHazard is returned when submitted work would race the GPU.
var ErrHazard = errors.New("sim: GPU hazard")

// Op names a device operation that can be made to fail.
type Op string

// Operations accepted by WithFailure and Device.Fail.
const (
	OpCreateCommandQueue     Op = "CreateCommandQueue"
	OpCreateCommandAllocator Op = "CreateCommandAllocator"
	OpCreateCommandList      Op = "CreateCommandList"
	OpCreateFence            Op = "CreateFence"
	OpCreateDescriptorHeap   Op = "CreateDescriptorHeap"
	OpCreateRenderTargetView Op = "CreateRenderTargetView"
	OpCreateRootSignature    Op = "CreateRootSignature"
	OpCreatePipelineState    Op = "CreatePipelineState"
	OpCreateCommittedBuffer  Op = "CreateCommittedBuffer"
	OpCreateSwapChain        Op = "CreateSwapChain"
	OpResizeBuffers          Op = "ResizeBuffers"
	OpExecute                Op = "ExecuteCommandLists"
	OpPresent                Op = "Present"
)

// Stats counts what the device has been asked to do.
type Stats struct {
	Executions   uint64
	Draws        uint64
	Presents     uint64
	Signals      uint64
	Resizes      uint64
	BlockedWaits uint64
}

// Option configures a Device.
type Option func(*Device)

// WithLatency delays every GPU job by d.
func WithLatency(d time.Duration) Option {
	return func(dev *Device) { dev.gpu.latency = d }
}

// WithPaused starts the GPU paused. Submitted work queues up until Resume.
func WithPaused() Option {
	return func(dev *Device) { dev.gpu.paused = true }
}

// WithFailure makes op fail with err.
func WithFailure(op Op, err error) Option {
	return func(dev *Device) { dev.failures[op] = err }
}

// WithName sets the adapter name reported by Name.
func WithName(name string) Option {
	return func(dev *Device) { dev.name = name }
}

// WithRasterWorkers rasterizes draws on n goroutines. Zero or one
// rasterizes on the GPU goroutine.
func WithRasterWorkers(n int) Option {
	return func(dev *Device) { dev.workers = n }
}

// WithLogger sets the device logger.
func WithLogger(l *slog.Logger) Option {
	return func(dev *Device) { dev.log = logging.Or(l) }
}

// Device is a simulated GPU device.
type Device struct {
	name string
	log  *slog.Logger
	gpu  *timeline

	workers int
	raster  *parallel.WorkerPool

	lost     atomic.Bool
	lostCh   chan struct{}
	lostOnce sync.Once

	// inflight counts submitted batches the GPU has not finished.
	inflight atomic.Int64

	mu       sync.Mutex
	failures map[Op]error
	events   []Event
	hazards  []string
	stats    Stats
}

var _ gpucore.Device = (*Device)(nil)

// New creates a simulated device and starts its GPU goroutine.
func New(opts ...Option) *Device {
	dev := &Device{
		name:     "Simulated GPU",
		log:      logging.Nop(),
		gpu:      newTimeline(),
		lostCh:   make(chan struct{}),
		failures: make(map[Op]error),
	}
	for _, opt := range opts {
		opt(dev)
	}
	if dev.workers > 1 {
		dev.raster = parallel.NewWorkerPool(dev.workers)
	}
	dev.gpu.start()
	return dev
}

// Name returns the adapter name.
func (d *Device) Name() string { return d.name }

// Fail makes op fail with err from now on. A nil err clears the failure.
func (d *Device) Fail(op Op, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, op)
		return
	}
	d.failures[op] = err
}

// Pause stops the GPU after the job it is running.
func (d *Device) Pause() { d.gpu.setPaused(true) }

// Resume restarts a paused GPU.
func (d *Device) Resume() { d.gpu.setPaused(false) }

// Lose removes the device. Pending and future waits fail with
// gpucore.ErrDeviceLost.
func (d *Device) Lose() {
	d.lostOnce.Do(func() {
		d.lost.Store(true)
		close(d.lostCh)
		d.log.Warn("sim: device lost")
	})
}

// Events returns a copy of the event log.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// Hazards returns the hazards detected so far.
func (d *Device) Hazards() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.hazards...)
}

// Stats returns the device counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// InFlight returns the number of submitted batches not yet executed.
func (d *Device) InFlight() int { return int(d.inflight.Load()) }

// CreateCommandQueue creates the direct queue.
func (d *Device) CreateCommandQueue() (gpucore.CommandQueue, error) {
	if err := d.check(OpCreateCommandQueue); err != nil {
		return nil, err
	}
	return &Queue{dev: d}, nil
}

// CreateCommandAllocator creates recording storage.
func (d *Device) CreateCommandAllocator() (gpucore.CommandAllocator, error) {
	if err := d.check(OpCreateCommandAllocator); err != nil {
		return nil, err
	}
	return &CommandAllocator{dev: d}, nil
}

// CreateCommandList creates a list recording into alloc.
func (d *Device) CreateCommandList(alloc gpucore.CommandAllocator, initial gpucore.PipelineState) (gpucore.CommandList, error) {
	if err := d.check(OpCreateCommandList); err != nil {
		return nil, err
	}
	l := &CommandList{dev: d}
	if err := l.Reset(alloc, initial); err != nil {
		return nil, err
	}
	return l, nil
}

// CreateFence creates a fence starting at initial.
func (d *Device) CreateFence(initial uint64) (gpucore.Fence, error) {
	if err := d.check(OpCreateFence); err != nil {
		return nil, err
	}
	return &Fence{dev: d, completed: initial}, nil
}

// CreateDescriptorHeap creates a render target view heap.
func (d *Device) CreateDescriptorHeap(desc gpucore.DescriptorHeapDesc) (gpucore.DescriptorHeap, error) {
	if err := d.check(OpCreateDescriptorHeap); err != nil {
		return nil, err
	}
	if desc.NumDescriptors == 0 {
		return nil, fmt.Errorf("sim: descriptor heap %q: %w", desc.Label, gpucore.ErrInvalidArgument)
	}
	return &DescriptorHeap{desc: desc, slots: make([]rtvView, desc.NumDescriptors)}, nil
}

// CreateRenderTargetView stores a view of buf in dst.
func (d *Device) CreateRenderTargetView(buf gpucore.BackBuffer, dst gpucore.CPUDescriptorHandle) error {
	if err := d.check(OpCreateRenderTargetView); err != nil {
		return err
	}
	ref, ok := buf.(*BackBufferRef)
	if !ok {
		return gpucore.ErrWrongBackend
	}
	heap, ok := dst.Heap.(*DescriptorHeap)
	if !ok {
		return gpucore.ErrWrongBackend
	}
	if dst.Index >= uint32(len(heap.slots)) {
		return fmt.Errorf("sim: rtv slot %d of %d: %w", dst.Index, len(heap.slots), gpucore.ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if ref.released {
		return fmt.Errorf("sim: rtv of released back buffer: %w", gpucore.ErrInvalidArgument)
	}
	b := ref.buf
	heap.slots[dst.Index] = rtvView{buf: b, gen: b.gen}
	d.events = append(d.events, Event{
		Kind: EventRenderTargetView, Buffer: b.index, Generation: b.gen,
		Width: b.width, Height: b.height,
	})
	return nil
}

// CreateRootSignature creates a root signature.
func (d *Device) CreateRootSignature(desc gpucore.RootSignatureDesc) (gpucore.RootSignature, error) {
	if err := d.check(OpCreateRootSignature); err != nil {
		return nil, err
	}
	return &RootSignature{desc: desc}, nil
}

// CreatePipelineState validates desc and creates a pipeline.
func (d *Device) CreatePipelineState(desc *gpucore.PipelineStateDesc) (gpucore.PipelineState, error) {
	if err := d.check(OpCreatePipelineState); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if _, ok := desc.RootSignature.(*RootSignature); !ok {
		return nil, gpucore.ErrWrongBackend
	}
	cp := *desc
	cp.InputLayout = append([]gpucore.InputElement(nil), desc.InputLayout...)
	return &PipelineState{desc: cp}, nil
}

// CreateCommittedBuffer allocates a buffer.
func (d *Device) CreateCommittedBuffer(desc gpucore.BufferDesc) (gpucore.Buffer, error) {
	if err := d.check(OpCreateCommittedBuffer); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("sim: buffer %q: %w", desc.Label, gpucore.ErrInvalidSize)
	}
	return &Buffer{desc: desc, data: make([]byte, desc.Size)}, nil
}

// CreateSwapChain creates a composition chain.
func (d *Device) CreateSwapChain(queue gpucore.CommandQueue, desc gpucore.SwapChainDesc) (gpucore.SwapChain, error) {
	if err := d.check(OpCreateSwapChain); err != nil {
		return nil, err
	}
	if q, ok := queue.(*Queue); !ok || q.dev != d {
		return nil, gpucore.ErrWrongBackend
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	sc := &SwapChain{dev: d, desc: desc}
	sc.rebuild()
	return sc, nil
}

// Destroy stops the GPU goroutine and the raster workers. Queued work is
// dropped.
func (d *Device) Destroy() {
	d.gpu.close()
	if d.raster != nil {
		d.raster.Close()
	}
}

// check returns the injected failure for op, or ErrDeviceLost.
func (d *Device) check(op Op) error {
	if d.lost.Load() {
		return gpucore.ErrDeviceLost
	}
	d.mu.Lock()
	err := d.failures[op]
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("sim: %s: %w", op, err)
	}
	return nil
}

// hazardLocked records a hazard. Must be called with d.mu held.
func (d *Device) hazardLocked(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	d.hazards = append(d.hazards, msg)
	d.log.Warn("sim: hazard", "detail", msg)
	return fmt.Errorf("%w: %s", ErrHazard, msg)
}

func (d *Device) noteBlockedWait() {
	d.mu.Lock()
	d.stats.BlockedWaits++
	d.mu.Unlock()
}
