package record

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/swapframe/backend/sim"
	"github.com/gogpu/swapframe/gpucore"
	"github.com/gogpu/swapframe/internal/pipeline"
)

// spyList records the names of the calls made on it.
type spyList struct {
	calls []string
	draws [][4]uint32
}

func (s *spyList) add(format string, args ...any) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *spyList) Reset(gpucore.CommandAllocator, gpucore.PipelineState) error {
	s.add("Reset")
	return nil
}
func (s *spyList) SetGraphicsRootSignature(gpucore.RootSignature) { s.add("SetGraphicsRootSignature") }
func (s *spyList) SetPipelineState(gpucore.PipelineState)         { s.add("SetPipelineState") }
func (s *spyList) RSSetViewports(vp gpucore.Viewport) {
	s.add("RSSetViewports %vx%v", vp.Width, vp.Height)
}
func (s *spyList) RSSetScissorRects(r gpucore.Rect) {
	s.add("RSSetScissorRects %dx%d", r.Right, r.Bottom)
}
func (s *spyList) ResourceBarrier(bs ...gpucore.ResourceBarrier) {
	for _, b := range bs {
		s.add("ResourceBarrier %s->%s", b.Before, b.After)
	}
}
func (s *spyList) OMSetRenderTargets(gpucore.CPUDescriptorHandle) { s.add("OMSetRenderTargets") }
func (s *spyList) ClearRenderTargetView(_ gpucore.CPUDescriptorHandle, c gputypes.Color) {
	s.add("ClearRenderTargetView %v", c)
}
func (s *spyList) IASetPrimitiveTopology(gputypes.PrimitiveTopology) { s.add("IASetPrimitiveTopology") }
func (s *spyList) IASetVertexBuffers(uint32, gpucore.VertexBufferView) {
	s.add("IASetVertexBuffers")
}
func (s *spyList) DrawInstanced(vc, ic, sv, si uint32) {
	s.add("DrawInstanced")
	s.draws = append(s.draws, [4]uint32{vc, ic, sv, si})
}
func (s *spyList) Close() error {
	s.add("Close")
	return nil
}
func (s *spyList) Destroy() {}

type spyDevice struct {
	gpucore.Device
	list *spyList
}

func (d *spyDevice) CreateCommandList(gpucore.CommandAllocator, gpucore.PipelineState) (gpucore.CommandList, error) {
	return d.list, nil
}

type fakeTarget struct{ w, h uint32 }

func (t fakeTarget) Index() uint32                  { return 0 }
func (t fakeTarget) Width() uint32                  { return t.w }
func (t fakeTarget) Height() uint32                 { return t.h }
func (t fakeTarget) Format() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (t fakeTarget) Release()                       {}

type fakeBuffer struct{ gpucore.Buffer }

// TestRecordSequence tests the exact command sequence of a frame.
func TestRecordSequence(t *testing.T) {
	spy := &spyList{}
	pipe := &pipeline.Pipeline{
		VertexView: gpucore.VertexBufferView{Buffer: fakeBuffer{}, SizeInBytes: 3 * pipeline.VertexStride, StrideInBytes: pipeline.VertexStride},
	}
	r, err := New(&spyDevice{list: spy}, nil, gputypes.Color{A: 1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	spy.calls = nil

	res, err := r.Record(Frame{Target: fakeTarget{800, 600}, Pipeline: pipe})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !res.Drew || res.Vertices != 3 {
		t.Errorf("Record() = %+v, want a 3-vertex draw", res)
	}

	want := []string{
		"Reset",
		"SetGraphicsRootSignature",
		"RSSetViewports 800x600",
		"RSSetScissorRects 800x600",
		"ResourceBarrier Present->RenderTarget",
		"OMSetRenderTargets",
		"ClearRenderTargetView {0 0 0 1}",
		"IASetPrimitiveTopology",
		"IASetVertexBuffers",
		"DrawInstanced",
		"ResourceBarrier RenderTarget->Present",
		"Close",
	}
	if !reflect.DeepEqual(spy.calls, want) {
		t.Errorf("calls =\n%v\nwant\n%v", spy.calls, want)
	}
	if len(spy.draws) != 1 || spy.draws[0] != [4]uint32{3, 1, 0, 0} {
		t.Errorf("draws = %v, want [[3 1 0 0]]", spy.draws)
	}
}

// TestRecordWithoutGeometry tests that a missing vertex buffer skips the
// draw but keeps the clear and both barriers.
func TestRecordWithoutGeometry(t *testing.T) {
	spy := &spyList{}
	r, err := New(&spyDevice{list: spy}, nil, gputypes.Color{A: 1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	spy.calls = nil

	res, err := r.Record(Frame{Target: fakeTarget{500, 500}, Pipeline: &pipeline.Pipeline{}})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if res.Drew {
		t.Error("Drew = true without geometry")
	}
	if len(spy.draws) != 0 {
		t.Errorf("draws = %v, want none", spy.draws)
	}
	barriers := 0
	for _, c := range spy.calls {
		if len(c) > 15 && c[:15] == "ResourceBarrier" {
			barriers++
		}
	}
	if barriers != 2 {
		t.Errorf("barriers = %d, want 2", barriers)
	}
}

// TestRecordOnSim tests a recorded frame executes cleanly on the simulated
// GPU.
func TestRecordOnSim(t *testing.T) {
	dev := sim.New()
	defer dev.Destroy()
	q, _ := dev.CreateCommandQueue()
	alloc, _ := dev.CreateCommandAllocator()
	fence, _ := dev.CreateFence(0)
	sc, err := dev.CreateSwapChain(q, gpucore.SwapChainDesc{
		Width: 32, Height: 32, Format: gputypes.TextureFormatBGRA8Unorm, BufferCount: gpucore.BufferCount,
	})
	if err != nil {
		t.Fatalf("CreateSwapChain: %v", err)
	}
	heap, _ := dev.CreateDescriptorHeap(gpucore.DescriptorHeapDesc{NumDescriptors: gpucore.BufferCount})
	buf, _ := sc.GetBuffer(0)
	defer buf.Release()
	if err := dev.CreateRenderTargetView(buf, heap.Handle(0)); err != nil {
		t.Fatalf("CreateRenderTargetView: %v", err)
	}

	pipe, err := pipeline.Build(dev, pipeline.DefaultConfig(), gputypes.TextureFormatBGRA8Unorm, nil)
	if err != nil {
		t.Fatalf("pipeline.Build: %v", err)
	}
	defer pipe.Destroy()

	r, err := New(dev, alloc, gputypes.Color{A: 1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Destroy()

	if _, err := r.Record(Frame{Allocator: alloc, Target: buf, RTV: heap.Handle(0), Pipeline: pipe}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := q.ExecuteCommandLists(r.List()); err != nil {
		t.Fatalf("ExecuteCommandLists: %v", err)
	}
	if err := q.Signal(fence, 1); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if err := fence.Wait(1, 2*time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if h := dev.Hazards(); len(h) != 0 {
		t.Errorf("hazards = %v", h)
	}
	if n := sim.Count(dev.Events(), sim.EventDraw); n != 1 {
		t.Errorf("draws = %d, want 1", n)
	}
}

// TestRecordResetFailure tests that a list reset error is returned.
func TestRecordResetFailure(t *testing.T) {
	dev := sim.New()
	defer dev.Destroy()
	alloc, _ := dev.CreateCommandAllocator()
	pipe, err := pipeline.Build(dev, pipeline.DefaultConfig(), gputypes.TextureFormatBGRA8Unorm, nil)
	if err != nil {
		t.Fatalf("pipeline.Build: %v", err)
	}
	defer pipe.Destroy()
	r, err := New(dev, alloc, gputypes.Color{A: 1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// An allocator from another device is rejected.
	other := sim.New()
	defer other.Destroy()
	foreign, _ := other.CreateCommandAllocator()
	_, err = r.Record(Frame{Allocator: foreign, Target: fakeTarget{1, 1}, Pipeline: pipe})
	if !errors.Is(err, gpucore.ErrWrongBackend) {
		t.Errorf("Record() = %v, want ErrWrongBackend", err)
	}
}
