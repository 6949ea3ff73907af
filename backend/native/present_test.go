package native

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/swapframe"
	"github.com/gogpu/swapframe/gpucore"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) install(v *vsync) {
	c.now = time.Unix(1000, 0)
	v.now = func() time.Time { return c.now }
	v.sleep = func(d time.Duration) {
		c.slept = append(c.slept, d)
		c.now = c.now.Add(d)
	}
}

func TestVSyncWait(t *testing.T) {
	period := refreshPeriod(60)
	tests := []struct {
		name     string
		interval uint32
		presents int
		want     time.Duration
	}{
		{"interval 1", 1, 4, 3 * period},
		{"interval 2", 2, 3, 4 * period},
		{"immediate", 0, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVSync(period)
			var c fakeClock
			c.install(v)

			var total time.Duration
			for i := 0; i < tt.presents; i++ {
				total += v.wait(tt.interval)
			}
			assert.Equal(t, tt.want, total)
		})
	}

	t.Run("late present does not sleep", func(t *testing.T) {
		v := newVSync(period)
		var c fakeClock
		c.install(v)
		v.wait(1)
		c.now = c.now.Add(3 * period)
		assert.Zero(t, v.wait(1))
	})

	t.Run("disabled", func(t *testing.T) {
		v := newVSync(refreshPeriod(0))
		assert.Zero(t, v.wait(1))
		assert.Zero(t, v.wait(1))
	})
}

// TestPresentPaces tests that sync interval 1 holds a renderer to the
// refresh rate.
func TestPresentPaces(t *testing.T) {
	dev := newNoopDevice(t)
	p := &panel{}
	r := swapframe.New(swapframe.WithDevice(dev))
	require.NoError(t, r.Initialize(p))
	defer r.Close()

	var c fakeClock
	c.install(p.chain.(*SwapChain).vsync)

	const frames = 120
	for i := 0; i < frames; i++ {
		require.NoError(t, r.Render())
	}
	var total time.Duration
	for _, d := range c.slept {
		total += d
	}
	assert.Equal(t, (frames-1)*refreshPeriod(DefaultRefreshRate), total)
	assert.Len(t, c.slept, frames-1)
}

// sinkRecorder is a FrameSink that keeps every frame.
type sinkRecorder struct {
	frames []gpucore.Frame
	err    error
}

func (s *sinkRecorder) PresentFrame(f gpucore.Frame) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

func TestFrameSink(t *testing.T) {
	hd, hq, info := openNoop(t)
	dev := Wrap(hd, hq, info, WithRefreshRate(0))
	f := newFrame(t, dev)
	chain := f.chain.(*SwapChain)

	var sink sinkRecorder
	var _ gpucore.Composited = chain
	chain.SetFrameSink(&sink)

	_, ok := chain.PresentedView()
	assert.False(t, ok)

	f.record(t)
	require.NoError(t, f.queue.ExecuteCommandLists(f.list))
	require.NoError(t, chain.Present(1, 0))
	require.NoError(t, chain.Present(0, 0))

	require.Len(t, sink.frames, 2)
	first := sink.frames[0]
	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, uint32(0), first.Buffer)
	assert.Equal(t, uint32(64), first.Width)
	assert.Equal(t, uint32(32), first.Height)
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, first.Format)
	assert.Equal(t, uint32(1), first.SyncInterval)
	pb, ok := first.Image.(*PresentedBuffer)
	require.True(t, ok)
	assert.NotNil(t, pb.Texture)
	assert.NotNil(t, pb.View)

	second := sink.frames[1]
	assert.Equal(t, uint64(2), second.Sequence)
	assert.Equal(t, uint32(1), second.Buffer)
	assert.Zero(t, second.SyncInterval)
	view, ok := chain.PresentedView()
	require.True(t, ok)
	assert.Same(t, chain.buffers[1].sample, view)

	sink.err = errors.New("compositor gone")
	assert.ErrorIs(t, chain.Present(1, 0), sink.err)
	assert.Equal(t, uint64(2), chain.Presents())
	assert.Equal(t, uint32(0), chain.CurrentBackBufferIndex())

	chain.SetFrameSink(nil)
	require.NoError(t, chain.Present(1, 0))
	assert.Len(t, sink.frames, 2)
}

// windowInstance hands out one recording surface.
type windowInstance struct {
	hal.Instance
	surface *recordingSurface
}

func (i *windowInstance) CreateSurface(_, _ uintptr) (hal.Surface, error) {
	return i.surface, nil
}

type recordingSurface struct {
	hal.Surface
	configs      []hal.SurfaceConfiguration
	acquired     int
	outdated     int
	unconfigured bool
}

func (s *recordingSurface) Configure(d hal.Device, cfg *hal.SurfaceConfiguration) error {
	s.configs = append(s.configs, *cfg)
	s.unconfigured = false
	return s.Surface.Configure(d, cfg)
}

func (s *recordingSurface) Unconfigure(d hal.Device) {
	s.unconfigured = true
	s.Surface.Unconfigure(d)
}

func (s *recordingSurface) AcquireTexture(f hal.Fence) (*hal.AcquiredSurfaceTexture, error) {
	if s.outdated > 0 {
		s.outdated--
		return nil, hal.ErrSurfaceOutdated
	}
	s.acquired++
	return s.Surface.AcquireTexture(f)
}

// presentQueue records window presents.
type presentQueue struct {
	hal.Queue
	presented []hal.SurfaceTexture
}

func (q *presentQueue) Present(s hal.Surface, tex hal.SurfaceTexture, damage []image.Rectangle) error {
	q.presented = append(q.presented, tex)
	return q.Queue.Present(s, tex, damage)
}

func openWindow(t *testing.T) (*Device, *recordingSurface, *presentQueue) {
	t.Helper()
	inst, err := noop.API{}.CreateInstance(&hal.InstanceDescriptor{})
	require.NoError(t, err)
	t.Cleanup(inst.Destroy)
	s, err := inst.CreateSurface(0, 0)
	require.NoError(t, err)

	hd, hq, info := openNoop(t)
	surface := &recordingSurface{Surface: s}
	queue := &presentQueue{Queue: hq}
	dev := Wrap(hd, queue, info, WithInstance(&windowInstance{Instance: inst, surface: surface}))
	return dev, surface, queue
}

// TestWindowSurface tests that every frame reaches the window through a
// FIFO surface.
func TestWindowSurface(t *testing.T) {
	dev, surface, queue := openWindow(t)
	ws, err := dev.CreateWindowSurface(1, 2)
	require.NoError(t, err)

	r := swapframe.New(swapframe.WithDevice(dev))
	require.NoError(t, r.Initialize(ws))

	require.NotEmpty(t, surface.configs)
	cfg := surface.configs[0]
	assert.Equal(t, uint32(500), cfg.Width)
	assert.Equal(t, uint32(500), cfg.Height)
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, cfg.Format)
	assert.Equal(t, hal.PresentModeFifo, cfg.PresentMode)
	assert.Equal(t, hal.CompositeAlphaModePremultiplied, cfg.AlphaMode)
	assert.NotZero(t, cfg.Usage&gputypes.TextureUsageCopyDst)

	chain := ws.chain
	require.NotNil(t, chain)
	assert.Equal(t, uint32(1), chain.hwBlanks, "FIFO present paces the single blank")

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Render())
	}
	assert.Equal(t, uint64(3), ws.Presents())
	assert.Len(t, queue.presented, 3)
	assert.Equal(t, 3, surface.acquired)

	require.NoError(t, r.OnResize(320, 200))
	surface.outdated = 1
	require.NoError(t, r.Render())
	last := ws.Config()
	assert.Equal(t, uint32(320), last.Width)
	assert.Equal(t, uint32(200), last.Height)
	assert.Equal(t, uint64(4), ws.Presents())

	s := r.Stats()
	assert.Equal(t, s.FenceLast, s.FenceCompleted)

	require.NoError(t, r.Close())
	assert.True(t, surface.unconfigured)
	assert.Nil(t, ws.chain)
	assert.Empty(t, ws.blits)
	ws.Destroy()
}

func TestWindowSurfaceErrors(t *testing.T) {
	_, err := newNoopDevice(t).CreateWindowSurface(1, 2)
	assert.ErrorIs(t, err, ErrNoInstance)

	dev, _, _ := openWindow(t)
	ws, err := dev.CreateWindowSurface(1, 2)
	require.NoError(t, err)

	other := newFrame(t, newNoopDevice(t))
	assert.ErrorIs(t, ws.SetSwapChain(other.chain), gpucore.ErrWrongBackend)
	assert.ErrorIs(t, ws.PresentFrame(gpucore.Frame{Width: 1, Height: 1}), gpucore.ErrWrongBackend)
	assert.NoError(t, ws.SetSwapChain(nil))
}

func TestHardwareBackends(t *testing.T) {
	assert.False(t, isHardware(gputypes.BackendEmpty))
	assert.True(t, isHardware(gputypes.BackendVulkan))
	assert.True(t, isHardware(gputypes.BackendDX12))
	assert.NotContains(t, hardwareBackends(), gputypes.BackendEmpty)
}
