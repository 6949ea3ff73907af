package gpucore

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestSwapChainDescValidate(t *testing.T) {
	valid := SwapChainDesc{
		Width: 500, Height: 500,
		Format:      gputypes.TextureFormatBGRA8Unorm,
		BufferCount: BufferCount,
	}

	tests := []struct {
		name   string
		modify func(*SwapChainDesc)
		want   error
	}{
		{"valid", func(*SwapChainDesc) {}, nil},
		{"zero width", func(d *SwapChainDesc) { d.Width = 0 }, ErrInvalidSize},
		{"zero height", func(d *SwapChainDesc) { d.Height = 0 }, ErrInvalidSize},
		{"three buffers", func(d *SwapChainDesc) { d.BufferCount = 3 }, ErrInvalidArgument},
		{"undefined format", func(d *SwapChainDesc) { d.Format = gputypes.TextureFormatUndefined }, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.modify(&d)
			err := d.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFullViewport(t *testing.T) {
	vp, sc := FullViewport(800, 600)
	if vp.Width != 800 || vp.Height != 600 || vp.MinDepth != 0 || vp.MaxDepth != 1 {
		t.Errorf("viewport = %+v", vp)
	}
	if sc != (Rect{Right: 800, Bottom: 600}) {
		t.Errorf("scissor = %+v", sc)
	}
}

// fakeBuffer satisfies Buffer for view tests.
type fakeBuffer struct{ Buffer }

func TestVertexBufferView(t *testing.T) {
	var zero VertexBufferView
	if zero.Valid() {
		t.Error("zero view should be invalid")
	}
	if zero.VertexCount() != 0 {
		t.Errorf("zero view VertexCount = %d, want 0", zero.VertexCount())
	}

	v := VertexBufferView{Buffer: fakeBuffer{}, SizeInBytes: 84, StrideInBytes: 28}
	if !v.Valid() {
		t.Error("view should be valid")
	}
	if v.VertexCount() != 3 {
		t.Errorf("VertexCount = %d, want 3", v.VertexCount())
	}
}

// fakeRootSignature satisfies RootSignature for pipeline tests.
type fakeRootSignature struct{}

func (fakeRootSignature) Destroy() {}

func TestPipelineStateDescValidate(t *testing.T) {
	base := func() *PipelineStateDesc {
		return &PipelineStateDesc{
			Label:         "triangle",
			RootSignature: fakeRootSignature{},
			VS:            ShaderStage{WGSL: "vs", EntryPoint: "main"},
			PS:            ShaderStage{WGSL: "fs", EntryPoint: "main"},
			InputLayout: []InputElement{
				{SemanticName: "POSITION", Format: gputypes.VertexFormatFloat32x3, Offset: 0},
				{SemanticName: "COLOR", Format: gputypes.VertexFormatFloat32x4, Offset: 12, Location: 1},
			},
			VertexStride: 28,
			RTVFormat:    gputypes.TextureFormatBGRA8Unorm,
			SampleCount:  1,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	d := base()
	d.VertexStride = 24
	if err := d.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("short stride: Validate() = %v, want ErrInvalidArgument", err)
	}

	d = base()
	d.PS = ShaderStage{}
	if err := d.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("missing pixel shader: Validate() = %v, want ErrInvalidArgument", err)
	}

	d = base()
	d.RootSignature = nil
	if err := d.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("missing root signature: Validate() = %v, want ErrInvalidArgument", err)
	}
}

func TestResourceStateString(t *testing.T) {
	if got := ResourceStateRenderTarget.String(); got != "RenderTarget" {
		t.Errorf("String() = %q, want RenderTarget", got)
	}
	if got := ResourceState(9).String(); got != "ResourceState(9)" {
		t.Errorf("String() = %q, want ResourceState(9)", got)
	}
}
