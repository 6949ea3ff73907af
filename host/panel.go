package host

import (
	"slices"
	"sync"

	"github.com/gogpu/swapframe/gpucore"
)

// Panel is a headless gpucore.Surface with a size. Size changes are
// delivered to the listeners registered with OnSizeChanged. Chains that
// implement gpucore.Composited hand it every presented frame.
type Panel struct {
	mu        sync.Mutex
	chain     gpucore.SwapChain
	width     float64
	height    float64
	listeners []func(width, height float64)

	frames uint64
	last   gpucore.Frame
}

// NewPanel returns a panel of the given size with no chain bound.
func NewPanel(width, height float64) *Panel {
	return &Panel{width: width, height: height}
}

// SetSwapChain binds chain and subscribes to its frames. A nil chain
// unbinds.
func (p *Panel) SetSwapChain(chain gpucore.SwapChain) error {
	p.mu.Lock()
	prev := p.chain
	p.chain = chain
	p.mu.Unlock()

	if c, ok := prev.(gpucore.Composited); ok && prev != chain {
		c.SetFrameSink(nil)
	}
	if c, ok := chain.(gpucore.Composited); ok {
		c.SetFrameSink(p)
	}
	return nil
}

// PresentFrame records a frame presented by the bound chain.
func (p *Panel) PresentFrame(f gpucore.Frame) error {
	p.mu.Lock()
	p.frames++
	p.last = f
	p.mu.Unlock()
	return nil
}

// Frames returns the number of frames received.
func (p *Panel) Frames() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// LastFrame returns the most recent frame, or false before the first.
func (p *Panel) LastFrame() (gpucore.Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.frames > 0
}

// SwapChain returns the bound chain, or nil.
func (p *Panel) SwapChain() gpucore.SwapChain {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chain
}

// Size returns the panel size in pixels.
func (p *Panel) Size() (width, height float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height
}

// OnSizeChanged registers fn for size changes.
func (p *Panel) OnSizeChanged(fn func(width, height float64)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// SetSize records a new size and notifies listeners. Listeners run on the
// calling goroutine after the lock is released.
func (p *Panel) SetSize(width, height float64) {
	p.mu.Lock()
	p.width, p.height = width, height
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(width, height)
	}
}

// Attach forwards the panel's size changes to l and queues the current
// size, the way a host delivers the initial size once it is loaded.
func (p *Panel) Attach(l *Loop) {
	p.OnSizeChanged(l.SizeChanged)
	l.SizeChanged(p.Size())
}
