package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/swapframe/gpucore"
)

// ErrNoInstance is returned by CreateWindowSurface on a device that has no
// hal instance to create surfaces from.
var ErrNoInstance = errors.New("native: device has no hal instance")

// blit is a surface copy waiting for its submission to complete.
type blit struct {
	encoder    hal.CommandEncoder
	cmd        hal.CommandBuffer
	submission uint64
}

// WindowSurface presents a bound chain to a platform window. Every present
// copies the back buffer into a texture acquired from the hal surface and
// presents it on the device queue. Sync interval 0 presents immediately,
// any other interval through the FIFO queue.
type WindowSurface struct {
	dev     *Device
	surface hal.Surface

	chain      *SwapChain
	config     hal.SurfaceConfiguration
	configured bool

	blits    []blit
	presents uint64
}

// CreateWindowSurface creates a surface for the platform window handles.
// display is the display or instance handle (HDC, Display*, NSWindow*) and
// window the window handle (HWND, Window, NSView*).
func (d *Device) CreateWindowSurface(display, window uintptr) (*WindowSurface, error) {
	if d.instance == nil {
		return nil, ErrNoInstance
	}
	s, err := d.instance.CreateSurface(display, window)
	if err != nil {
		return nil, d.check("create surface", err)
	}
	return &WindowSurface{dev: d, surface: s}, nil
}

// SetSwapChain binds chain and configures the window for its buffers. A nil
// chain unbinds and unconfigures.
func (ws *WindowSurface) SetSwapChain(chain gpucore.SwapChain) error {
	if chain == nil {
		ws.unbind()
		return nil
	}
	sc, ok := chain.(*SwapChain)
	if !ok || sc.dev != ws.dev {
		return fmt.Errorf("native: window surface chain %T: %w", chain, gpucore.ErrWrongBackend)
	}
	if ws.chain != nil && ws.chain != sc {
		ws.unbind()
	}
	desc := sc.Desc()
	if err := ws.configure(desc.Width, desc.Height, desc.Format, hal.PresentModeFifo, alphaMode(desc.AlphaMode)); err != nil {
		return err
	}
	ws.chain = sc
	sc.SetFrameSink(ws)
	return nil
}

func (ws *WindowSurface) unbind() {
	if ws.chain != nil {
		ws.chain.SetFrameSink(nil)
		ws.chain = nil
	}
	ws.reclaim(true)
	if ws.configured {
		ws.surface.Unconfigure(ws.dev.device)
		ws.configured = false
	}
}

func (ws *WindowSurface) configure(width, height uint32, format gputypes.TextureFormat, mode hal.PresentMode, alpha hal.CompositeAlphaMode) error {
	cfg := hal.SurfaceConfiguration{
		Width:       width,
		Height:      height,
		Format:      format,
		Usage:       gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst,
		PresentMode: mode,
		AlphaMode:   alpha,
	}
	if ws.configured && cfg == ws.config {
		return nil
	}
	if err := ws.surface.Configure(ws.dev.device, &cfg); err != nil {
		return ws.dev.check("configure surface", err)
	}
	ws.config = cfg
	ws.configured = true
	ws.dev.log.Debug("native: window surface configured",
		"width", width, "height", height, "format", format, "present_mode", mode)
	return nil
}

func alphaMode(m gpucore.AlphaMode) hal.CompositeAlphaMode {
	switch m {
	case gpucore.AlphaModePremultiplied:
		return hal.CompositeAlphaModePremultiplied
	case gpucore.AlphaModeStraight:
		return hal.CompositeAlphaModeUnpremultiplied
	case gpucore.AlphaModeIgnore:
		return hal.CompositeAlphaModeOpaque
	default:
		return hal.CompositeAlphaModeAuto
	}
}

// PresentFrame copies f into the next window texture and presents it.
func (ws *WindowSurface) PresentFrame(f gpucore.Frame) error {
	pb, ok := f.Image.(*PresentedBuffer)
	if !ok {
		return fmt.Errorf("native: window surface frame image %T: %w", f.Image, gpucore.ErrWrongBackend)
	}
	mode := hal.PresentModeFifo
	if f.SyncInterval == 0 {
		mode = hal.PresentModeImmediate
	}
	if err := ws.configure(f.Width, f.Height, f.Format, mode, ws.config.AlphaMode); err != nil {
		return err
	}
	ws.reclaim(false)

	acquired, err := ws.surface.AcquireTexture(nil)
	if errors.Is(err, hal.ErrSurfaceOutdated) {
		ws.configured = false
		if err = ws.configure(f.Width, f.Height, f.Format, mode, ws.config.AlphaMode); err != nil {
			return err
		}
		acquired, err = ws.surface.AcquireTexture(nil)
	}
	if err != nil {
		return ws.dev.check("acquire surface texture", err)
	}
	if acquired.Suboptimal {
		ws.dev.log.Debug("native: window surface suboptimal")
	}

	if err := ws.copy(pb.Texture, acquired.Texture, f.Width, f.Height); err != nil {
		ws.surface.DiscardTexture(acquired.Texture)
		return err
	}
	if err := ws.dev.queue.Present(ws.surface, acquired.Texture, nil); err != nil {
		return ws.dev.check("present surface", err)
	}
	ws.presents++
	return nil
}

// copy submits a copy of src into the acquired texture dst.
func (ws *WindowSurface) copy(src hal.Texture, dst hal.SurfaceTexture, width, height uint32) error {
	dev := ws.dev.device
	enc, err := dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "swapframe window copy"})
	if err != nil {
		return ws.dev.check("create window copy encoder", err)
	}
	if err := enc.BeginEncoding("swapframe window copy"); err != nil {
		enc.Destroy()
		return ws.dev.check("begin window copy", err)
	}

	rng := hal.TextureRange{Aspect: gputypes.TextureAspectAll, MipLevelCount: 1, ArrayLayerCount: 1}
	enc.TransitionTextures([]hal.TextureBarrier{
		{Texture: src, Range: rng, Usage: hal.TextureUsageTransition{
			OldUsage: usageFor(gpucore.ResourceStatePresent), NewUsage: gputypes.TextureUsageCopySrc,
		}},
		{Texture: dst, Range: rng, Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageNone, NewUsage: gputypes.TextureUsageCopyDst,
		}},
	})
	enc.CopyTextureToTexture(src, dst, []hal.TextureCopy{{
		SrcBase: hal.ImageCopyTexture{Texture: src, Aspect: gputypes.TextureAspectAll},
		DstBase: hal.ImageCopyTexture{Texture: dst, Aspect: gputypes.TextureAspectAll},
		Size:    hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	}})
	enc.TransitionTextures([]hal.TextureBarrier{
		{Texture: src, Range: rng, Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc, NewUsage: usageFor(gpucore.ResourceStatePresent),
		}},
	})

	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.Destroy()
		return ws.dev.check("end window copy", err)
	}
	idx, err := ws.dev.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		dev.FreeCommandBuffer(cmd)
		enc.Destroy()
		return ws.dev.check("submit window copy", err)
	}
	if q := ws.dev.q; q != nil {
		q.last = idx
	}
	ws.blits = append(ws.blits, blit{encoder: enc, cmd: cmd, submission: idx})
	return nil
}

// reclaim frees completed copies, or every copy when all is set. The caller
// drains before reclaiming all.
func (ws *WindowSurface) reclaim(all bool) {
	done := ws.dev.queue.PollCompleted()
	n := 0
	for _, b := range ws.blits {
		if !all && b.submission > done {
			break
		}
		ws.dev.device.FreeCommandBuffer(b.cmd)
		b.encoder.Destroy()
		n++
	}
	ws.blits = ws.blits[n:]
}

// Presents returns the number of frames presented to the window.
func (ws *WindowSurface) Presents() uint64 { return ws.presents }

// Config returns the current surface configuration.
func (ws *WindowSurface) Config() hal.SurfaceConfiguration { return ws.config }

// Destroy unbinds and destroys the hal surface. The GPU must be idle.
func (ws *WindowSurface) Destroy() {
	ws.unbind()
	ws.surface.Destroy()
}
