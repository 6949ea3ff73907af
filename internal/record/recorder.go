// Package record fills the shared command list with one frame: clear the
// back buffer, draw the geometry, and hand the buffer back for present.
package record

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/swapframe/gpucore"
	"github.com/gogpu/swapframe/internal/logging"
	"github.com/gogpu/swapframe/internal/pipeline"
)

// Frame is the per-frame input of Record.
type Frame struct {
	Allocator gpucore.CommandAllocator
	Target    gpucore.BackBuffer
	RTV       gpucore.CPUDescriptorHandle
	Pipeline  *pipeline.Pipeline
}

// Result describes what was recorded.
type Result struct {
	// Drew is false when the frame was cleared without drawing.
	Drew     bool
	Vertices uint32
}

// Recorder owns the single command list every frame records into.
type Recorder struct {
	list  gpucore.CommandList
	clear gputypes.Color
	log   *slog.Logger
}

// New creates the command list against alloc with no pipeline bound and
// closes it, leaving it ready for the first Record.
func New(device gpucore.Device, alloc gpucore.CommandAllocator, clear gputypes.Color, log *slog.Logger) (*Recorder, error) {
	list, err := device.CreateCommandList(alloc, nil)
	if err != nil {
		return nil, fmt.Errorf("record: create command list: %w", err)
	}
	if err := list.Close(); err != nil {
		list.Destroy()
		return nil, fmt.Errorf("record: close initial command list: %w", err)
	}
	return &Recorder{list: list, clear: clear, log: logging.Or(log)}, nil
}

// List returns the command list for submission.
func (r *Recorder) List() gpucore.CommandList { return r.list }

// Record resets the list onto f.Allocator with f.Pipeline bound and records
// the frame. The allocator must already be reset. The list is closed on
// return, also on error.
func (r *Recorder) Record(f Frame) (Result, error) {
	p := f.Pipeline
	if err := r.list.Reset(f.Allocator, p.State); err != nil {
		return Result{}, fmt.Errorf("record: reset list: %w", err)
	}

	l := r.list
	l.SetGraphicsRootSignature(p.RootSignature)
	vp, scissor := gpucore.FullViewport(f.Target.Width(), f.Target.Height())
	l.RSSetViewports(vp)
	l.RSSetScissorRects(scissor)

	l.ResourceBarrier(gpucore.Transition(f.Target, gpucore.ResourceStatePresent, gpucore.ResourceStateRenderTarget))
	l.OMSetRenderTargets(f.RTV)
	l.ClearRenderTargetView(f.RTV, r.clear)

	var res Result
	if p.HasGeometry() {
		res = Result{Drew: true, Vertices: p.VertexCount()}
		l.IASetPrimitiveTopology(gputypes.PrimitiveTopologyTriangleList)
		l.IASetVertexBuffers(0, p.VertexView)
		l.DrawInstanced(res.Vertices, 1, 0, 0)
	}

	l.ResourceBarrier(gpucore.Transition(f.Target, gpucore.ResourceStateRenderTarget, gpucore.ResourceStatePresent))
	if err := l.Close(); err != nil {
		return Result{}, fmt.Errorf("record: close list: %w", err)
	}

	r.log.Debug("record: frame recorded", "buffer", f.Target.Index(), "drew", res.Drew)
	return res, nil
}

// Destroy releases the command list.
func (r *Recorder) Destroy() {
	if r.list != nil {
		r.list.Destroy()
		r.list = nil
	}
}
