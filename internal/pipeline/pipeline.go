// Package pipeline builds the graphics pipeline and the vertex buffer the
// renderer draws with.
package pipeline

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/swapframe/gpucore"
	"github.com/gogpu/swapframe/internal/logging"
)

// VertexStride is the size of one encoded Vertex.
const VertexStride = 28

// Vertex is a clip-space position with an RGBA color.
type Vertex struct {
	Position [3]float32
	Color    [4]float32
}

// Triangle returns the default red, green and blue triangle, wound
// clockwise.
func Triangle() []Vertex {
	return []Vertex{
		{Position: [3]float32{0, 0.25, 0}, Color: [4]float32{1, 0, 0, 1}},
		{Position: [3]float32{0.25, -0.25, 0}, Color: [4]float32{0, 1, 0, 1}},
		{Position: [3]float32{-0.25, -0.25, 0}, Color: [4]float32{0, 0, 1, 1}},
	}
}

// EncodeVertices packs vertices little-endian, position then color.
func EncodeVertices(vs []Vertex) []byte {
	out := make([]byte, len(vs)*VertexStride)
	for i, v := range vs {
		rec := out[i*VertexStride:]
		for j, f := range v.Position {
			binary.LittleEndian.PutUint32(rec[j*4:], math.Float32bits(f))
		}
		for j, f := range v.Color {
			binary.LittleEndian.PutUint32(rec[12+j*4:], math.Float32bits(f))
		}
	}
	return out
}

// InputLayout returns the layout matching EncodeVertices.
func InputLayout() []gpucore.InputElement {
	return []gpucore.InputElement{
		{SemanticName: "POSITION", Format: gputypes.VertexFormatFloat32x3, Offset: 0, Location: 0},
		{SemanticName: "COLOR", Format: gputypes.VertexFormatFloat32x4, Offset: 12, Location: 1},
	}
}

// Config selects the shaders and geometry a pipeline is built from.
type Config struct {
	Label string

	VertexShader   string
	VertexEntry    string
	FragmentShader string
	FragmentEntry  string

	Vertices   []Vertex
	Rasterizer gpucore.RasterizerDesc
}

// DefaultConfig returns the embedded pass-through shaders and Triangle.
func DefaultConfig() Config {
	return Config{
		Label:          "swapframe triangle",
		VertexShader:   vertexWGSL,
		VertexEntry:    VertexEntry,
		FragmentShader: fragmentWGSL,
		FragmentEntry:  FragmentEntry,
		Vertices:       Triangle(),
		Rasterizer:     gpucore.DefaultRasterizer(),
	}
}

// Pipeline is the root signature, pipeline state and vertex buffer of the
// frame.
type Pipeline struct {
	RootSignature gpucore.RootSignature
	State         gpucore.PipelineState

	// VertexBuffer is nil and VertexView is zero when the buffer could not
	// be created. Frames then render without the draw.
	VertexBuffer gpucore.Buffer
	VertexView   gpucore.VertexBufferView
}

// HasGeometry reports whether there is vertex data to draw.
func (p *Pipeline) HasGeometry() bool { return p.VertexView.Valid() }

// VertexCount returns the number of vertices in the view.
func (p *Pipeline) VertexCount() uint32 { return p.VertexView.VertexCount() }

// Build compiles the shaders and creates the pipeline for render targets of
// the given format. A vertex buffer allocation failure is logged and leaves
// the pipeline without geometry; any other failure is returned.
func Build(device gpucore.Device, cfg Config, format gputypes.TextureFormat, log *slog.Logger) (p *Pipeline, err error) {
	log = logging.Or(log)

	vs, err := CompileStage(cfg.VertexShader, cfg.VertexEntry)
	if err != nil {
		return nil, err
	}
	ps, err := CompileStage(cfg.FragmentShader, cfg.FragmentEntry)
	if err != nil {
		return nil, err
	}

	p = &Pipeline{}
	defer func() {
		if err != nil {
			p.Destroy()
			p = nil
		}
	}()

	p.RootSignature, err = device.CreateRootSignature(gpucore.RootSignatureDesc{
		Label: cfg.Label,
		Flags: gpucore.RootSignatureFlagAllowInputAssemblerInputLayout,
	})
	if err != nil {
		return p, fmt.Errorf("pipeline: root signature: %w", err)
	}

	p.State, err = device.CreatePipelineState(&gpucore.PipelineStateDesc{
		Label:         cfg.Label,
		RootSignature: p.RootSignature,
		VS:            vs,
		PS:            ps,
		InputLayout:   InputLayout(),
		VertexStride:  VertexStride,
		Rasterizer:    cfg.Rasterizer,
		Blend:         gpucore.DefaultBlend(),
		Topology:      gputypes.PrimitiveTopologyTriangleList,
		RTVFormat:     format,
		SampleCount:   1,
	})
	if err != nil {
		return p, fmt.Errorf("pipeline: state: %w", err)
	}

	if len(cfg.Vertices) == 0 {
		log.Debug("pipeline: no vertices configured")
		return p, nil
	}
	data := EncodeVertices(cfg.Vertices)
	buf, bufErr := device.CreateCommittedBuffer(gpucore.BufferDesc{
		Label: cfg.Label + " vertices",
		Size:  uint64(len(data)),
		Heap:  gpucore.HeapUpload,
	})
	if bufErr != nil {
		log.Warn("pipeline: vertex buffer unavailable, frames will not draw", "err", bufErr)
		return p, nil
	}
	p.VertexBuffer = buf

	mem, err := buf.Map()
	if err != nil {
		return p, fmt.Errorf("pipeline: map vertex buffer: %w", err)
	}
	copy(mem, data)
	buf.Unmap()

	p.VertexView = gpucore.VertexBufferView{
		Buffer:        buf,
		SizeInBytes:   uint32(len(data)),
		StrideInBytes: VertexStride,
	}
	log.Debug("pipeline: built", "vertices", len(cfg.Vertices), "format", format)
	return p, nil
}

// Destroy releases the buffer, pipeline state and root signature.
func (p *Pipeline) Destroy() {
	if p.VertexBuffer != nil {
		p.VertexBuffer.Destroy()
		p.VertexBuffer = nil
	}
	p.VertexView = gpucore.VertexBufferView{}
	if p.State != nil {
		p.State.Destroy()
		p.State = nil
	}
	if p.RootSignature != nil {
		p.RootSignature.Destroy()
		p.RootSignature = nil
	}
}
