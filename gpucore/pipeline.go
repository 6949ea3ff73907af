package gpucore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// RootSignatureFlags modify a root signature.
type RootSignatureFlags uint32

// Root signature flags.
const (
	RootSignatureFlagNone RootSignatureFlags = 0

	// RootSignatureFlagAllowInputAssemblerInputLayout permits a fixed
	// input-assembler vertex layout in pipelines using the signature.
	RootSignatureFlagAllowInputAssemblerInputLayout RootSignatureFlags = 1 << 0
)

// RootSignatureDesc describes the resource binding layout of a pipeline.
// swapframe pipelines bind no resources, so only flags are described.
type RootSignatureDesc struct {
	Label string
	Flags RootSignatureFlags
}

// ShaderStage is one compiled shader stage.
type ShaderStage struct {
	// WGSL is the shader source.
	WGSL string

	// SPIRV is the compiled module, when the stage was compiled ahead of time.
	SPIRV []uint32

	// EntryPoint is the function invoked for the stage.
	EntryPoint string
}

// Empty reports whether the stage carries no shader.
func (s ShaderStage) Empty() bool {
	return s.WGSL == "" && len(s.SPIRV) == 0
}

// InputElement is one attribute of the input-assembler vertex layout.
type InputElement struct {
	SemanticName string
	Format       gputypes.VertexFormat
	Offset       uint32
	Location     uint32
}

// RasterizerDesc is the fixed-function rasterizer state.
type RasterizerDesc struct {
	CullMode  gputypes.CullMode
	FrontFace gputypes.FrontFace
}

// DefaultRasterizer returns solid fill with back faces culled and
// clockwise triangles facing front.
func DefaultRasterizer() RasterizerDesc {
	return RasterizerDesc{CullMode: gputypes.CullModeBack, FrontFace: gputypes.FrontFaceCW}
}

// BlendDesc is the output-merger blend state of the single render target.
type BlendDesc struct {
	Blend     *gputypes.BlendState
	WriteMask gputypes.ColorWriteMask
}

// DefaultBlend returns blending disabled with all channels written.
func DefaultBlend() BlendDesc {
	return BlendDesc{WriteMask: gputypes.ColorWriteMaskAll}
}

// PipelineStateDesc describes a graphics pipeline state object.
type PipelineStateDesc struct {
	Label         string
	RootSignature RootSignature
	VS            ShaderStage
	PS            ShaderStage
	InputLayout   []InputElement
	VertexStride  uint32
	Rasterizer    RasterizerDesc
	Blend         BlendDesc
	Topology      gputypes.PrimitiveTopology
	RTVFormat     gputypes.TextureFormat
	SampleCount   uint32
}

// Validate checks the description for the mistakes a backend cannot recover
// from.
func (d *PipelineStateDesc) Validate() error {
	switch {
	case d.RootSignature == nil:
		return fmt.Errorf("%w: pipeline %q has no root signature", ErrInvalidArgument, d.Label)
	case d.VS.Empty():
		return fmt.Errorf("%w: pipeline %q has no vertex shader", ErrInvalidArgument, d.Label)
	case d.PS.Empty():
		return fmt.Errorf("%w: pipeline %q has no pixel shader", ErrInvalidArgument, d.Label)
	case d.RTVFormat == gputypes.TextureFormatUndefined:
		return fmt.Errorf("%w: pipeline %q has no render target format", ErrInvalidArgument, d.Label)
	case d.SampleCount == 0:
		return fmt.Errorf("%w: pipeline %q has sample count 0", ErrInvalidArgument, d.Label)
	}
	for _, e := range d.InputLayout {
		if uint64(e.Offset)+e.Format.Size() > uint64(d.VertexStride) {
			return fmt.Errorf("%w: input %s at offset %d exceeds stride %d",
				ErrInvalidArgument, e.SemanticName, e.Offset, d.VertexStride)
		}
	}
	return nil
}
