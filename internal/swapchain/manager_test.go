package swapchain

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/swapframe/backend/sim"
	"github.com/gogpu/swapframe/gpucore"
)

var testDesc = gpucore.SwapChainDesc{
	Width:       500,
	Height:      500,
	Format:      gputypes.TextureFormatBGRA8Unorm,
	BufferCount: gpucore.BufferCount,
	SwapEffect:  gpucore.SwapEffectFlipDiscard,
	AlphaMode:   gpucore.AlphaModePremultiplied,
}

func newManager(t *testing.T) (*Manager, *sim.Device, *sim.Surface) {
	t.Helper()
	dev := sim.New()
	t.Cleanup(dev.Destroy)
	q, err := dev.CreateCommandQueue()
	if err != nil {
		t.Fatalf("CreateCommandQueue: %v", err)
	}
	surface := sim.NewSurface()
	m, err := Create(dev, q, surface, testDesc, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(m.Release)
	return m, dev, surface
}

func noDrain() error { return nil }

// TestCreate tests chain creation, surface binding and view creation.
func TestCreate(t *testing.T) {
	m, dev, surface := newManager(t)

	if surface.Binds() != 1 || surface.SwapChain() != m.Chain() {
		t.Errorf("surface binds = %d, want chain bound once", surface.Binds())
	}
	if m.Index() >= gpucore.BufferCount {
		t.Errorf("Index() = %d, want < %d", m.Index(), gpucore.BufferCount)
	}
	for i := uint32(0); i < gpucore.BufferCount; i++ {
		buf, rtv := m.Target(i)
		if buf == nil || buf.Index() != i {
			t.Errorf("Target(%d) buffer = %v", i, buf)
		}
		if !rtv.Valid() || rtv.Index != i {
			t.Errorf("Target(%d) rtv = %+v", i, rtv)
		}
	}
	if n := sim.Count(dev.Events(), sim.EventRenderTargetView); n != gpucore.BufferCount {
		t.Errorf("render target views = %d, want %d", n, gpucore.BufferCount)
	}
	if w, h := m.Size(); w != 500 || h != 500 {
		t.Errorf("Size() = %dx%d, want 500x500", w, h)
	}
}

// TestCreateInvalid tests that invalid descriptions are rejected before any
// device call.
func TestCreateInvalid(t *testing.T) {
	dev := sim.New()
	defer dev.Destroy()
	q, _ := dev.CreateCommandQueue()

	desc := testDesc
	desc.Width = 0
	if _, err := Create(dev, q, sim.NewSurface(), desc, nil); !errors.Is(err, gpucore.ErrInvalidSize) {
		t.Errorf("Create(0x500) = %v, want ErrInvalidSize", err)
	}
}

type failingSurface struct{ err error }

func (s failingSurface) SetSwapChain(gpucore.SwapChain) error { return s.err }

// TestCreateBindFailure tests that a surface refusing the chain fails Create.
func TestCreateBindFailure(t *testing.T) {
	dev := sim.New()
	defer dev.Destroy()
	q, _ := dev.CreateCommandQueue()

	boom := errors.New("panel gone")
	if _, err := Create(dev, q, failingSurface{boom}, testDesc, nil); !errors.Is(err, boom) {
		t.Errorf("Create() = %v, want %v", err, boom)
	}
}

// TestCreateViewFailure tests that references are released when a view
// cannot be created.
func TestCreateViewFailure(t *testing.T) {
	dev := sim.New()
	defer dev.Destroy()
	q, _ := dev.CreateCommandQueue()
	surface := sim.NewSurface()

	boom := errors.New("heap full")
	dev.Fail(sim.OpCreateRenderTargetView, boom)
	if _, err := Create(dev, q, surface, testDesc, nil); !errors.Is(err, boom) {
		t.Fatalf("Create() = %v, want %v", err, boom)
	}
	if surface.SwapChain() != nil {
		t.Error("surface still bound after failed Create")
	}
}

// TestResize tests that a resize rebuilds both views at the new extent.
func TestResize(t *testing.T) {
	m, dev, _ := newManager(t)

	drained := 0
	drain := func() error {
		drained++
		if n := sim.Count(dev.Events(), sim.EventResize); n != 0 {
			t.Errorf("drain ran after %d resizes", n)
		}
		return nil
	}
	if err := m.Resize(800, 600, drain); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if drained != 1 {
		t.Errorf("drain called %d times, want 1", drained)
	}
	if w, h := m.Size(); w != 800 || h != 600 {
		t.Errorf("Size() = %dx%d, want 800x600", w, h)
	}
	if m.Format() != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("Format() = %v, want BGRA8Unorm", m.Format())
	}

	views := sim.Filter(dev.Events(), sim.EventRenderTargetView)
	rebuilt := views[len(views)-gpucore.BufferCount:]
	for i, v := range rebuilt {
		if v.Buffer != uint32(i) || v.Width != 800 || v.Height != 600 {
			t.Errorf("view %d = %+v, want buffer %d at 800x600", i, v, i)
		}
	}
}

// TestResizeIdempotent tests that repeating a resize yields the same state.
func TestResizeIdempotent(t *testing.T) {
	m, _, _ := newManager(t)

	if err := m.Resize(640, 480, noDrain); err != nil {
		t.Fatalf("first Resize: %v", err)
	}
	w1, h1 := m.Size()
	i1 := m.Index()
	if err := m.Resize(640, 480, noDrain); err != nil {
		t.Fatalf("second Resize: %v", err)
	}
	w2, h2 := m.Size()
	if w1 != w2 || h1 != h2 || i1 != m.Index() {
		t.Errorf("state after second resize = %dx%d@%d, want %dx%d@%d", w2, h2, m.Index(), w1, h1, i1)
	}
	for i := uint32(0); i < gpucore.BufferCount; i++ {
		if buf, _ := m.Target(i); buf == nil || buf.Width() != 640 {
			t.Errorf("Target(%d) = %v, want 640 wide", i, buf)
		}
	}
}

// TestResizeZero tests that a zero extent is rejected without draining.
func TestResizeZero(t *testing.T) {
	m, _, _ := newManager(t)
	err := m.Resize(0, 0, func() error {
		t.Error("drain called for zero resize")
		return nil
	})
	if !errors.Is(err, gpucore.ErrInvalidSize) {
		t.Errorf("Resize(0, 0) = %v, want ErrInvalidSize", err)
	}
	if m.Err() != nil {
		t.Errorf("Err() = %v, want nil", m.Err())
	}
}

// TestResizeDrainFailure tests that a failed drain leaves the chain intact.
func TestResizeDrainFailure(t *testing.T) {
	m, dev, _ := newManager(t)
	boom := errors.New("hung")
	if err := m.Resize(800, 600, func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Resize() = %v, want %v", err, boom)
	}
	if sim.Count(dev.Events(), sim.EventResize) != 0 {
		t.Error("chain resized after failed drain")
	}
	if w, _ := m.Size(); w != 500 {
		t.Errorf("width = %d, want 500", w)
	}
}

// TestResizeFailureLosesSurface tests that a failed ResizeBuffers is fatal.
func TestResizeFailureLosesSurface(t *testing.T) {
	m, dev, _ := newManager(t)
	boom := errors.New("device removed")
	dev.Fail(sim.OpResizeBuffers, boom)

	if err := m.Resize(800, 600, noDrain); !errors.Is(err, boom) {
		t.Fatalf("Resize() = %v, want %v", err, boom)
	}
	if !errors.Is(m.Err(), boom) {
		t.Errorf("Err() = %v, want %v", m.Err(), boom)
	}
	if err := m.Present(1, 0); !errors.Is(err, ErrSurfaceLost) {
		t.Errorf("Present() = %v, want ErrSurfaceLost", err)
	}
	if err := m.Resize(800, 600, noDrain); !errors.Is(err, ErrSurfaceLost) {
		t.Errorf("second Resize() = %v, want ErrSurfaceLost", err)
	}
}

// TestPresentAdvancesIndex tests that the index stays in range across
// presents.
func TestPresentAdvancesIndex(t *testing.T) {
	m, _, _ := newManager(t)
	for i := 0; i < 4; i++ {
		want := uint32(i % gpucore.BufferCount)
		if m.Index() != want {
			t.Errorf("frame %d: Index() = %d, want %d", i, m.Index(), want)
		}
		if err := m.Present(1, 0); err != nil {
			t.Fatalf("Present: %v", err)
		}
	}
}

// TestRelease tests that Release unbinds the surface and is repeatable.
func TestRelease(t *testing.T) {
	m, _, surface := newManager(t)
	m.Release()
	m.Release()
	if surface.SwapChain() != nil {
		t.Error("surface still bound after Release")
	}
}
