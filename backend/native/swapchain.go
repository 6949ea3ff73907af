package native

import (
	"errors"
	"fmt"
	"image"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/swapframe/gpucore"
)

// ErrNoFrame is returned by Snapshot before the first present.
var ErrNoFrame = errors.New("native: nothing presented")

// snapshotTimeout bounds the readback wait.
const snapshotTimeout = 5 * time.Second

// copyPitchAlignment is the row alignment of texture to buffer copies.
const copyPitchAlignment = 256

type backBuffer struct {
	chain   *SwapChain
	index   uint32
	texture hal.Texture
	width   uint32
	height  uint32
	format  gputypes.TextureFormat

	refs int

	// Record-time state. The only list records in submission order.
	state       gpucore.ResourceState
	initialized bool
	destroyed   bool

	views []*rtvSlot

	// sample is the view handed to the frame sink.
	sample hal.TextureView
}

// SwapChain is a composition chain of textures the surface samples. Each
// Present hands the current buffer to the bound gpucore.FrameSink and holds
// the caller to the sync interval.
type SwapChain struct {
	dev   *Device
	queue *Queue
	desc  gpucore.SwapChainDesc

	buffers   []*backBuffer
	current   uint32
	presented int
	presents  uint64

	sink  gpucore.FrameSink
	vsync *vsync

	// hwBlanks is the number of vertical blanks the sink's own present
	// waits for.
	hwBlanks uint32
}

func (sc *SwapChain) rebuild() error {
	buffers := make([]*backBuffer, 0, sc.desc.BufferCount)
	for i := uint32(0); i < sc.desc.BufferCount; i++ {
		tex, err := sc.dev.device.CreateTexture(&hal.TextureDescriptor{
			Label:         fmt.Sprintf("swapframe back buffer %d", i),
			Size:          hal.Extent3D{Width: sc.desc.Width, Height: sc.desc.Height, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        sc.desc.Format,
			Usage: gputypes.TextureUsageRenderAttachment |
				gputypes.TextureUsageTextureBinding |
				gputypes.TextureUsageCopySrc,
		})
		if err != nil {
			sc.buffers = buffers
			sc.destroyBuffers()
			return sc.dev.check(fmt.Sprintf("create back buffer %d", i), err)
		}
		b := &backBuffer{
			chain:   sc,
			index:   i,
			texture: tex,
			width:   sc.desc.Width,
			height:  sc.desc.Height,
			format:  sc.desc.Format,
		}
		buffers = append(buffers, b)
		b.sample, err = sc.dev.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label:           fmt.Sprintf("swapframe presented %d", i),
			Format:          sc.desc.Format,
			Dimension:       gputypes.TextureViewDimension2D,
			Aspect:          gputypes.TextureAspectAll,
			MipLevelCount:   1,
			ArrayLayerCount: 1,
		})
		if err != nil {
			sc.buffers = buffers
			sc.destroyBuffers()
			return sc.dev.check(fmt.Sprintf("create presented view %d", i), err)
		}
	}
	sc.buffers = buffers
	sc.current = 0
	sc.presented = -1
	return nil
}

func (sc *SwapChain) destroyBuffers() {
	for _, b := range sc.buffers {
		for _, slot := range b.views {
			if slot.buf == b {
				slot.clear(sc.dev)
			}
		}
		b.views = nil
		if b.sample != nil {
			sc.dev.device.DestroyTextureView(b.sample)
			b.sample = nil
		}
		sc.dev.device.DestroyTexture(b.texture)
		b.destroyed = true
	}
	sc.buffers = nil
}

// Desc returns the current description.
func (sc *SwapChain) Desc() gpucore.SwapChainDesc { return sc.desc }

// CurrentBackBufferIndex returns the buffer the next frame renders into.
func (sc *SwapChain) CurrentBackBufferIndex() uint32 { return sc.current }

// Presents returns the number of successful presents.
func (sc *SwapChain) Presents() uint64 { return sc.presents }

// SetFrameSink routes presented frames to sink. A nil sink leaves the
// chain presenting to nothing but still paced.
func (sc *SwapChain) SetFrameSink(sink gpucore.FrameSink) {
	sc.sink = sink
	sc.hwBlanks = 0
	if ws, ok := sink.(*WindowSurface); ok && ws.dev == sc.dev {
		sc.hwBlanks = 1
	}
	sc.vsync.reset()
}

// PresentedView returns a view of the last presented buffer.
func (sc *SwapChain) PresentedView() (hal.TextureView, bool) {
	if sc.presented < 0 || sc.presented >= len(sc.buffers) {
		return nil, false
	}
	return sc.buffers[sc.presented].sample, true
}

// GetBuffer returns a counted reference to buffer i.
func (sc *SwapChain) GetBuffer(i uint32) (gpucore.BackBuffer, error) {
	if int(i) >= len(sc.buffers) {
		return nil, fmt.Errorf("native: back buffer %d of %d: %w", i, len(sc.buffers), gpucore.ErrInvalidArgument)
	}
	b := sc.buffers[i]
	b.refs++
	return &BackBufferRef{buf: b}, nil
}

func (sc *SwapChain) refs() int {
	n := 0
	for _, b := range sc.buffers {
		n += b.refs
	}
	return n
}

// ResizeBuffers recreates the textures. It fails with
// gpucore.ErrBuffersInUse while references are held or a submission is
// still executing.
func (sc *SwapChain) ResizeBuffers(count, width, height uint32, format gputypes.TextureFormat, flags uint32) error {
	if err := sc.dev.alive("resize buffers"); err != nil {
		return err
	}
	if n := sc.refs(); n > 0 {
		return fmt.Errorf("native: resize with %d back buffer references held: %w", n, gpucore.ErrBuffersInUse)
	}
	if sc.queue.busy() {
		return fmt.Errorf("native: resize while the GPU is busy: %w", gpucore.ErrBuffersInUse)
	}

	desc := sc.desc
	desc.Width, desc.Height, desc.Flags = width, height, flags
	if count != 0 {
		desc.BufferCount = count
	}
	if format != gputypes.TextureFormatUndefined {
		desc.Format = format
	}
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("native: resize: %w", err)
	}

	sc.destroyBuffers()
	sc.desc = desc
	if err := sc.rebuild(); err != nil {
		return err
	}
	sc.dev.log.Info("native: swap chain resized", "width", width, "height", height)
	return nil
}

// Present waits out the sync interval, hands the current buffer to the
// frame sink and advances the index. A sink failure leaves the index where
// it was.
func (sc *SwapChain) Present(syncInterval, flags uint32) error {
	if syncInterval > 4 {
		return fmt.Errorf("native: sync interval %d: %w", syncInterval, gpucore.ErrInvalidArgument)
	}
	if err := sc.dev.alive("present"); err != nil {
		return err
	}
	if len(sc.buffers) == 0 {
		return fmt.Errorf("native: present without buffers: %w", gpucore.ErrInvalidArgument)
	}
	b := sc.buffers[sc.current]
	if b.state != gpucore.ResourceStatePresent {
		return fmt.Errorf("native: present buffer %d in state %v: %w", b.index, b.state, gpucore.ErrInvalidArgument)
	}

	blanks := syncInterval
	if blanks > 0 && sc.hwBlanks > 0 {
		blanks -= min(blanks, sc.hwBlanks)
	}
	sc.vsync.wait(blanks)

	if sc.sink != nil {
		f := gpucore.Frame{
			Sequence:     sc.presents + 1,
			Buffer:       b.index,
			Width:        b.width,
			Height:       b.height,
			Format:       b.format,
			SyncInterval: syncInterval,
			Image:        &PresentedBuffer{Texture: b.texture, View: b.sample, Format: b.format},
		}
		if err := sc.sink.PresentFrame(f); err != nil {
			return fmt.Errorf("native: present buffer %d: %w", b.index, err)
		}
	}

	sc.presented = int(sc.current)
	sc.current = (sc.current + 1) % uint32(len(sc.buffers))
	sc.presents++
	return nil
}

// Snapshot reads the last presented buffer back into an RGBA image. It
// submits a copy and waits for it.
func (sc *SwapChain) Snapshot() (*image.RGBA, error) {
	if sc.presented < 0 || sc.presented >= len(sc.buffers) {
		return nil, ErrNoFrame
	}
	b := sc.buffers[sc.presented]

	var swapRB bool
	switch b.format {
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		swapRB = true
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, b.format)
	}

	dev := sc.dev.device
	w, h := b.width, b.height
	bytesPerRow := w * 4
	aligned := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	size := uint64(aligned) * uint64(h)

	staging, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "swapframe snapshot",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, sc.dev.check("create staging buffer", err)
	}
	defer dev.DestroyBuffer(staging)

	enc, err := dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "swapframe snapshot"})
	if err != nil {
		return nil, sc.dev.check("create snapshot encoder", err)
	}
	defer enc.Destroy()
	if err := enc.BeginEncoding("swapframe snapshot"); err != nil {
		return nil, sc.dev.check("begin snapshot", err)
	}

	state := usageFor(b.state)
	rng := hal.TextureRange{Aspect: gputypes.TextureAspectAll, MipLevelCount: 1, ArrayLayerCount: 1}
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: b.texture,
		Range:   rng,
		Usage:   hal.TextureUsageTransition{OldUsage: state, NewUsage: gputypes.TextureUsageCopySrc},
	}})
	enc.CopyTextureToBuffer(b.texture, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: aligned, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: b.texture, Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: b.texture,
		Range:   rng,
		Usage:   hal.TextureUsageTransition{OldUsage: gputypes.TextureUsageCopySrc, NewUsage: state},
	}})

	cmd, err := enc.EndEncoding()
	if err != nil {
		return nil, sc.dev.check("end snapshot", err)
	}
	defer dev.FreeCommandBuffer(cmd)

	idx, err := sc.dev.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return nil, sc.dev.check("submit snapshot", err)
	}
	sc.queue.last = idx
	if err := sc.queue.wait(idx, snapshotTimeout); err != nil {
		return nil, err
	}

	mapping, err := dev.MapBuffer(staging, 0, size)
	if err != nil {
		return nil, sc.dev.check("map snapshot", err)
	}
	defer func() { _ = dev.UnmapBuffer(staging) }()
	data := unsafe.Slice((*byte)(mapping.Ptr), size)

	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	for y := 0; y < int(h); y++ {
		src := data[y*int(aligned) : y*int(aligned)+int(bytesPerRow)]
		dst := img.Pix[y*img.Stride : y*img.Stride+int(bytesPerRow)]
		copy(dst, src)
		if swapRB {
			for x := 0; x < len(dst); x += 4 {
				dst[x], dst[x+2] = dst[x+2], dst[x]
			}
		}
	}
	return img, nil
}

// Destroy releases the textures and their views.
func (sc *SwapChain) Destroy() {
	sc.destroyBuffers()
}

// BackBufferRef is a counted reference to a back buffer.
type BackBufferRef struct {
	buf      *backBuffer
	released bool
}

func (r *BackBufferRef) Index() uint32                  { return r.buf.index }
func (r *BackBufferRef) Width() uint32                  { return r.buf.width }
func (r *BackBufferRef) Height() uint32                 { return r.buf.height }
func (r *BackBufferRef) Format() gputypes.TextureFormat { return r.buf.format }

// Release drops the reference. Further calls are no-ops.
func (r *BackBufferRef) Release() {
	if r.released {
		return
	}
	r.released = true
	r.buf.refs--
}
