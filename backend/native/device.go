package native

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/swapframe/gpucore"
	"github.com/gogpu/swapframe/internal/logging"
)

// Errors returned by the native backend.
var (
	// ErrNoAdapter is returned when the hal instance exposes no adapter.
	ErrNoAdapter = errors.New("native: no GPU adapter")

	// ErrNoHalAccess is returned by FromProvider when the provider does not
	// expose its hal device and queue.
	ErrNoHalAccess = errors.New("native: provider does not expose hal device")

	// ErrUnsupportedFormat is returned by Snapshot for formats it cannot
	// convert.
	ErrUnsupportedFormat = errors.New("native: unsupported texture format")
)

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the device logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) { d.log = logging.Or(l) }
}

// WithSurfaceFormat sets the format PreferredFormat reports.
func WithSurfaceFormat(f gputypes.TextureFormat) Option {
	return func(d *Device) { d.format = f }
}

// WithRefreshRate sets the refresh rate in Hz that presents are paced to
// when no window surface paces them. Zero or less disables pacing.
func WithRefreshRate(hz float64) Option {
	return func(d *Device) { d.refresh = refreshPeriod(hz) }
}

// WithInstance sets the hal instance window surfaces of a wrapped device
// are created from. Destroy does not destroy it.
func WithInstance(instance hal.Instance) Option {
	return func(d *Device) { d.instance = instance }
}

// Device is a gpucore.Device backed by a hal device and queue.
type Device struct {
	device  hal.Device
	queue   hal.Queue
	info    gputypes.AdapterInfo
	format  gputypes.TextureFormat
	refresh time.Duration
	log     *slog.Logger

	instance hal.Instance
	adapter  hal.Adapter

	// owned is set when Open created the instance, adapter and device.
	owned bool

	q    *Queue
	lost atomic.Bool
}

// Open creates a hal instance on the preferred backend of this platform and
// opens its best adapter.
func Open(opts gpucore.DeviceOptions, options ...Option) (*Device, error) {
	backend, err := selectBackend()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gpucore.ErrNoDevice, err)
	}

	flags := gputypes.InstanceFlagsNone
	if opts.Debug {
		flags |= gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: flags})
	if err != nil {
		return nil, fmt.Errorf("native: create %s instance: %w", backend.Variant(), err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %w", gpucore.ErrNoDevice, ErrNoAdapter)
	}
	selected := pickAdapter(adapters)

	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open %s: %w", selected.Info.Name, err)
	}

	d := newDevice(open.Device, open.Queue, selected.Info, options)
	d.instance = instance
	d.adapter = selected.Adapter
	d.owned = true
	d.log.Info("native: device opened",
		"adapter", selected.Info.Name, "backend", selected.Info.Backend,
		"type", selected.Info.DeviceType, "debug", opts.Debug, "label", opts.Label)
	return d, nil
}

// Wrap adapts a hal device and queue owned by the caller. Destroy does not
// destroy them.
func Wrap(device hal.Device, queue hal.Queue, info gputypes.AdapterInfo, options ...Option) *Device {
	return newDevice(device, queue, info, options)
}

// FromProvider adapts the device of a gpucontext provider. The provider
// must also expose HalDevice() and HalQueue(). Its surface format becomes
// the device's PreferredFormat.
func FromProvider(p gpucontext.DeviceProvider, options ...Option) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := p.(halProvider)
	if !ok {
		return nil, ErrNoHalAccess
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not a hal.Device", ErrNoHalAccess)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not a hal.Queue", ErrNoHalAccess)
	}

	ai := p.AdapterInfo()
	info := gputypes.AdapterInfo{Name: ai.Name, DeviceType: deviceType(ai.Type)}
	options = append([]Option{WithSurfaceFormat(p.SurfaceFormat())}, options...)
	return Wrap(device, queue, info, options...), nil
}

func newDevice(device hal.Device, queue hal.Queue, info gputypes.AdapterInfo, options []Option) *Device {
	d := &Device{
		device:  device,
		queue:   queue,
		info:    info,
		refresh: refreshPeriod(DefaultRefreshRate),
		log:     logging.Nop(),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// ErrNoHardwareBackend is returned by Open when hal has only its software
// or noop backend registered.
var ErrNoHardwareBackend = errors.New("native: no hardware hal backend")

// selectBackend returns the platform's native API when registered, and
// otherwise the first hardware backend hal knows. The CPU backends hal
// registers as BackendEmpty are never selected.
func selectBackend() (hal.Backend, error) {
	preferred := gputypes.BackendVulkan
	switch runtime.GOOS {
	case "windows":
		preferred = gputypes.BackendDX12
	case "darwin", "ios":
		preferred = gputypes.BackendMetal
	}
	if b, ok := hal.GetBackend(preferred); ok {
		return b, nil
	}
	for _, v := range hardwareBackends() {
		if b, ok := hal.GetBackend(v); ok {
			return b, nil
		}
	}
	return nil, ErrNoHardwareBackend
}

// hardwareBackends returns the registered hal backends that drive a GPU API.
func hardwareBackends() []gputypes.Backend {
	var out []gputypes.Backend
	for _, v := range hal.AvailableBackends() {
		if isHardware(v) {
			out = append(out, v)
		}
	}
	return out
}

func isHardware(v gputypes.Backend) bool {
	switch v {
	case gputypes.BackendVulkan, gputypes.BackendMetal, gputypes.BackendDX12, gputypes.BackendGL:
		return true
	}
	return false
}

// pickAdapter prefers a discrete GPU, then an integrated one, then the
// first adapter.
func pickAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i]
			}
		}
	}
	return &adapters[0]
}

func deviceType(t gpucontext.AdapterType) gputypes.DeviceType {
	switch t {
	case gpucontext.AdapterTypeDiscrete:
		return gputypes.DeviceTypeDiscreteGPU
	case gpucontext.AdapterTypeIntegrated:
		return gputypes.DeviceTypeIntegratedGPU
	case gpucontext.AdapterTypeSoftware:
		return gputypes.DeviceTypeCPU
	default:
		return gputypes.DeviceTypeOther
	}
}

// Name returns the adapter name and backend.
func (d *Device) Name() string {
	if d.info.Name == "" {
		return "native"
	}
	return fmt.Sprintf("%s (%s)", d.info.Name, d.info.Backend)
}

// Info returns the adapter description.
func (d *Device) Info() gputypes.AdapterInfo { return d.info }

// PreferredFormat returns the surface format of the provider the device
// came from, or TextureFormatUndefined.
func (d *Device) PreferredFormat() gputypes.TextureFormat { return d.format }

// HalDevice returns the underlying hal device.
func (d *Device) HalDevice() hal.Device { return d.device }

// Lost reports whether the device was removed.
func (d *Device) Lost() bool { return d.lost.Load() }

// check maps hal failures to gpucore errors and latches device loss.
func (d *Device) check(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, hal.ErrDeviceLost) {
		if d.lost.CompareAndSwap(false, true) {
			d.log.Error("native: device lost", "op", op, "err", err)
		}
		return fmt.Errorf("native: %s: %w: %w", op, gpucore.ErrDeviceLost, err)
	}
	if errors.Is(err, hal.ErrTimeout) {
		return fmt.Errorf("native: %s: %w: %w", op, gpucore.ErrWaitTimeout, err)
	}
	return fmt.Errorf("native: %s: %w", op, err)
}

func (d *Device) alive(op string) error {
	if d.lost.Load() {
		return fmt.Errorf("native: %s: %w", op, gpucore.ErrDeviceLost)
	}
	return nil
}

// CreateCommandQueue returns the device queue. hal exposes a single queue,
// so every call returns the same one.
func (d *Device) CreateCommandQueue() (gpucore.CommandQueue, error) {
	if err := d.alive("create queue"); err != nil {
		return nil, err
	}
	if d.q == nil {
		d.q = &Queue{dev: d}
	}
	return d.q, nil
}

// CreateCommandAllocator creates an allocator with its own command encoder.
func (d *Device) CreateCommandAllocator() (gpucore.CommandAllocator, error) {
	if err := d.alive("create allocator"); err != nil {
		return nil, err
	}
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "swapframe allocator"})
	if err != nil {
		return nil, d.check("create command encoder", err)
	}
	return &CommandAllocator{dev: d, encoder: enc}, nil
}

// CreateCommandList creates a list recording into alloc.
func (d *Device) CreateCommandList(alloc gpucore.CommandAllocator, initial gpucore.PipelineState) (gpucore.CommandList, error) {
	if err := d.alive("create command list"); err != nil {
		return nil, err
	}
	l := &CommandList{dev: d}
	if err := l.Reset(alloc, initial); err != nil {
		return nil, err
	}
	return l, nil
}

// CreateFence creates a fence completed at initial.
func (d *Device) CreateFence(initial uint64) (gpucore.Fence, error) {
	if err := d.alive("create fence"); err != nil {
		return nil, err
	}
	return &Fence{dev: d, completed: initial}, nil
}

// CreateDescriptorHeap creates a heap of texture view slots.
func (d *Device) CreateDescriptorHeap(desc gpucore.DescriptorHeapDesc) (gpucore.DescriptorHeap, error) {
	if desc.NumDescriptors == 0 {
		return nil, fmt.Errorf("native: empty descriptor heap: %w", gpucore.ErrInvalidArgument)
	}
	return &DescriptorHeap{dev: d, desc: desc, slots: make([]rtvSlot, desc.NumDescriptors)}, nil
}

// CreateRenderTargetView creates a texture view of buf in slot dst.
func (d *Device) CreateRenderTargetView(buf gpucore.BackBuffer, dst gpucore.CPUDescriptorHandle) error {
	ref, ok := buf.(*BackBufferRef)
	if !ok {
		return fmt.Errorf("native: render target %T: %w", buf, gpucore.ErrWrongBackend)
	}
	heap, ok := dst.Heap.(*DescriptorHeap)
	if !ok {
		return fmt.Errorf("native: descriptor heap %T: %w", dst.Heap, gpucore.ErrWrongBackend)
	}
	if !dst.Valid() {
		return fmt.Errorf("native: descriptor %d out of range: %w", dst.Index, gpucore.ErrInvalidArgument)
	}
	b := ref.buf
	if b.destroyed {
		return fmt.Errorf("native: render target of a resized buffer: %w", gpucore.ErrInvalidArgument)
	}

	view, err := d.device.CreateTextureView(b.texture, &hal.TextureViewDescriptor{
		Label:           fmt.Sprintf("swapframe rtv %d", b.index),
		Format:          b.format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return d.check("create render target view", err)
	}

	slot := &heap.slots[dst.Index]
	slot.clear(d)
	slot.view = view
	slot.buf = b
	b.views = append(b.views, slot)
	return nil
}

// CreateRootSignature creates an empty pipeline layout.
func (d *Device) CreateRootSignature(desc gpucore.RootSignatureDesc) (gpucore.RootSignature, error) {
	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: desc.Label})
	if err != nil {
		return nil, d.check("create pipeline layout", err)
	}
	return &RootSignature{dev: d, layout: layout, flags: desc.Flags}, nil
}

// CreatePipelineState creates shader modules and a render pipeline.
func (d *Device) CreatePipelineState(desc *gpucore.PipelineStateDesc) (gpucore.PipelineState, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("native: %w", err)
	}
	rs, ok := desc.RootSignature.(*RootSignature)
	if !ok {
		return nil, fmt.Errorf("native: root signature %T: %w", desc.RootSignature, gpucore.ErrWrongBackend)
	}
	if len(desc.InputLayout) > 0 && rs.flags&gpucore.RootSignatureFlagAllowInputAssemblerInputLayout == 0 {
		return nil, fmt.Errorf("native: pipeline %q has an input layout its root signature does not allow: %w",
			desc.Label, gpucore.ErrInvalidArgument)
	}

	p := &PipelineState{dev: d, topology: desc.Topology, stride: desc.VertexStride, inputs: len(desc.InputLayout)}
	var err error
	if p.vs, err = d.shaderModule(desc.Label+" vs", desc.VS); err != nil {
		return nil, err
	}
	if p.ps, err = d.shaderModule(desc.Label+" ps", desc.PS); err != nil {
		p.Destroy()
		return nil, err
	}

	var buffers []gputypes.VertexBufferLayout
	if len(desc.InputLayout) > 0 {
		attrs := make([]gputypes.VertexAttribute, len(desc.InputLayout))
		for i, e := range desc.InputLayout {
			attrs[i] = gputypes.VertexAttribute{Format: e.Format, Offset: uint64(e.Offset), ShaderLocation: e.Location}
		}
		buffers = []gputypes.VertexBufferLayout{{
			ArrayStride: uint64(desc.VertexStride),
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes:  attrs,
		}}
	}

	p.pipeline, err = d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: rs.layout,
		Vertex: hal.VertexState{
			Module:     p.vs,
			EntryPoint: desc.VS.EntryPoint,
			Buffers:    buffers,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  desc.Topology,
			FrontFace: desc.Rasterizer.FrontFace,
			CullMode:  desc.Rasterizer.CullMode,
		},
		Multisample: gputypes.MultisampleState{Count: desc.SampleCount, Mask: 0xFFFFFFFF},
		Fragment: &hal.FragmentState{
			Module:     p.ps,
			EntryPoint: desc.PS.EntryPoint,
			Targets: []gputypes.ColorTargetState{{
				Format:    desc.RTVFormat,
				Blend:     desc.Blend.Blend,
				WriteMask: desc.Blend.WriteMask,
			}},
		},
	})
	if err != nil {
		p.Destroy()
		return nil, d.check("create render pipeline", err)
	}
	return p, nil
}

func (d *Device) shaderModule(label string, stage gpucore.ShaderStage) (hal.ShaderModule, error) {
	src := hal.ShaderSource{SPIRV: stage.SPIRV}
	if len(src.SPIRV) == 0 {
		src.WGSL = stage.WGSL
	}
	m, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label, Source: src})
	if err != nil {
		return nil, d.check("create shader module "+label, err)
	}
	return m, nil
}

// CreateCommittedBuffer creates a vertex buffer. Upload buffers are mapped
// through a CPU copy written to the GPU on Unmap.
func (d *Device) CreateCommittedBuffer(desc gpucore.BufferDesc) (gpucore.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("native: empty buffer: %w", gpucore.ErrInvalidArgument)
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, d.check("create buffer", err)
	}
	return &Buffer{dev: d, buf: buf, desc: desc}, nil
}

// CreateSwapChain creates a chain of desc.BufferCount textures.
func (d *Device) CreateSwapChain(queue gpucore.CommandQueue, desc gpucore.SwapChainDesc) (gpucore.SwapChain, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("native: %w", err)
	}
	q, ok := queue.(*Queue)
	if !ok || q.dev != d {
		return nil, fmt.Errorf("native: swap chain queue %T: %w", queue, gpucore.ErrWrongBackend)
	}
	sc := &SwapChain{dev: d, queue: q, desc: desc, vsync: newVSync(d.refresh)}
	if err := sc.rebuild(); err != nil {
		return nil, err
	}
	d.log.Info("native: swap chain created", "width", desc.Width, "height", desc.Height, "format", desc.Format)
	return sc, nil
}

// Destroy releases the hal device when it was opened by Open.
func (d *Device) Destroy() {
	if !d.owned {
		return
	}
	d.device.Destroy()
	if d.adapter != nil {
		d.adapter.Destroy()
	}
	d.instance.Destroy()
	d.instance = nil
	d.owned = false
}
