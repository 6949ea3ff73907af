package swapframe

import (
	"log/slog"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/swapframe/gpucore"
	"github.com/gogpu/swapframe/internal/pipeline"
)

// DefaultWaitTimeout bounds every fence wait unless WithWaitTimeout
// overrides it.
const DefaultWaitTimeout = 5 * time.Second

// PipelineConfig selects the shaders and vertices the renderer draws.
type PipelineConfig = pipeline.Config

// Vertex is a clip-space position with an RGBA color.
type Vertex = pipeline.Vertex

// DefaultPipelineConfig returns the built-in pass-through shaders and the
// red, green and blue triangle.
func DefaultPipelineConfig() PipelineConfig { return pipeline.DefaultConfig() }

// DefaultSwapChainDesc returns a 500x500 BGRA8 flip-discard chain with
// premultiplied alpha.
func DefaultSwapChainDesc() gpucore.SwapChainDesc {
	return gpucore.SwapChainDesc{
		Width:       500,
		Height:      500,
		Format:      gputypes.TextureFormatBGRA8Unorm,
		BufferCount: gpucore.BufferCount,
		SwapEffect:  gpucore.SwapEffectFlipDiscard,
		AlphaMode:   gpucore.AlphaModePremultiplied,
	}
}

// Option configures a Renderer.
//
// Example:
//
//	r := swapframe.New(
//	    swapframe.WithBackend("sim"),
//	    swapframe.WithClearColor(gputypes.Color{R: 0.1, G: 0.1, B: 0.1, A: 1}),
//	)
type Option func(*options)

type options struct {
	backend  string
	device   gpucore.Device
	desc     gpucore.SwapChainDesc
	descSet  bool
	clear    gputypes.Color
	timeout  time.Duration
	pipeline PipelineConfig
	debug    bool
	logger   *slog.Logger
}

func defaultOptions() options {
	return options{
		desc:     DefaultSwapChainDesc(),
		clear:    gputypes.Color{A: 1},
		timeout:  DefaultWaitTimeout,
		pipeline: DefaultPipelineConfig(),
	}
}

// WithBackend opens the named backend from the gpucore registry. An empty
// name or "auto" picks the highest priority backend that opens.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithDevice renders on an existing device. The renderer does not destroy
// it on Close.
func WithDevice(d gpucore.Device) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithSwapChainDesc sets the initial swap chain description. BufferCount is
// always gpucore.BufferCount. Without it the format follows the device's
// PreferredFormat when it has one.
func WithSwapChainDesc(desc gpucore.SwapChainDesc) Option {
	return func(o *options) {
		desc.BufferCount = gpucore.BufferCount
		o.desc = desc
		o.descSet = true
	}
}

// WithClearColor sets the color every frame is cleared to.
func WithClearColor(c gputypes.Color) Option {
	return func(o *options) {
		o.clear = c
	}
}

// WithWaitTimeout bounds fence waits. A wait that expires fails with
// ErrDeviceHung. Zero or less waits forever.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithPipelineConfig replaces the shaders and geometry.
func WithPipelineConfig(cfg PipelineConfig) Option {
	return func(o *options) {
		o.pipeline = cfg
	}
}

// WithDebug enables backend validation layers.
func WithDebug(enabled bool) Option {
	return func(o *options) {
		o.debug = enabled
	}
}

// WithLogger sets the renderer logger, overriding the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
