package sim

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/swapframe/gpucore"
	"github.com/gogpu/swapframe/internal/color"
	"github.com/gogpu/swapframe/internal/parallel"
)

// minBandRows is the smallest row band handed to a raster worker.
const minBandRows = 32

// ensurePixels allocates the buffer image on first use.
func (b *backBuffer) ensurePixels() *image.RGBA {
	if b.pixels == nil {
		b.pixels = image.NewRGBA(image.Rect(0, 0, int(b.width), int(b.height)))
	}
	return b.pixels
}

func (b *backBuffer) clear(c gputypes.Color) {
	img := b.ensurePixels()
	px := color.For(b.format).RGBA(c.R, c.G, c.B, c.A)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = px.R
		img.Pix[i+1] = px.G
		img.Pix[i+2] = px.B
		img.Pix[i+3] = px.A
	}
}

type vertex struct {
	x, y       float64
	r, g, b, a float64
}

// draw rasterizes a triangle list with barycentric color interpolation.
// With a pool, each triangle is split into row bands.
func (b *backBuffer) draw(dc *drawCall, pool *parallel.WorkerPool) {
	if dc.topology != gputypes.PrimitiveTopologyTriangleList || dc.instanceCount == 0 {
		return
	}
	verts := decodeVertices(dc)
	img := b.ensurePixels()
	clip := image.Rect(int(dc.scissor.Left), int(dc.scissor.Top), int(dc.scissor.Right), int(dc.scissor.Bottom)).
		Intersect(img.Bounds())
	t := triangleRaster{img: img, clip: clip, vp: dc.viewport, rs: dc.pso.desc.Rasterizer, enc: color.For(b.format), pool: pool}
	for i := 0; i+2 < len(verts); i += 3 {
		t.fill(verts[i], verts[i+1], verts[i+2])
	}
}

// decodeVertices reads position from location 0 and color from location 1.
func decodeVertices(dc *drawCall) []vertex {
	buf, ok := dc.vb.Buffer.(*Buffer)
	if !ok || buf.data == nil {
		return nil
	}
	var pos, col *gpucore.InputElement
	for i := range dc.pso.desc.InputLayout {
		e := &dc.pso.desc.InputLayout[i]
		switch e.Location {
		case 0:
			pos = e
		case 1:
			col = e
		}
	}
	if pos == nil {
		return nil
	}

	stride := int(dc.vb.StrideInBytes)
	out := make([]vertex, 0, dc.vertexCount)
	for i := dc.startVertex; i < dc.startVertex+dc.vertexCount; i++ {
		base := int(i) * stride
		if base+stride > len(buf.data) {
			break
		}
		rec := buf.data[base : base+stride]
		v := vertex{r: 1, g: 1, b: 1, a: 1}
		v.x = readFloat(rec, pos.Offset)
		v.y = readFloat(rec, pos.Offset+4)
		if col != nil {
			v.r = readFloat(rec, col.Offset)
			v.g = readFloat(rec, col.Offset+4)
			v.b = readFloat(rec, col.Offset+8)
			if col.Format == gputypes.VertexFormatFloat32x4 {
				v.a = readFloat(rec, col.Offset+12)
			}
		}
		out = append(out, v)
	}
	return out
}

func readFloat(rec []byte, off uint32) float64 {
	if int(off)+4 > len(rec) {
		return 0
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off:])))
}

type point struct{ x, y float64 }

func edge(a, b, p point) float64 {
	return (b.x-a.x)*(p.y-a.y) - (b.y-a.y)*(p.x-a.x)
}

type triangleRaster struct {
	img  *image.RGBA
	clip image.Rectangle
	vp   gpucore.Viewport
	rs   gpucore.RasterizerDesc
	enc  color.Encoder
	pool *parallel.WorkerPool
}

func (t *triangleRaster) fill(v0, v1, v2 vertex) {
	toScreen := func(v vertex) point {
		return point{
			x: float64(t.vp.X) + (v.x+1)*0.5*float64(t.vp.Width),
			y: float64(t.vp.Y) + (1-v.y)*0.5*float64(t.vp.Height),
		}
	}
	p0, p1, p2 := toScreen(v0), toScreen(v1), toScreen(v2)

	area := edge(p0, p1, p2)
	if area == 0 {
		return
	}
	// Screen space is y-down, so a positive area winds clockwise.
	front := (area > 0) == (t.rs.FrontFace == gputypes.FrontFaceCW)
	if (t.rs.CullMode == gputypes.CullModeBack && !front) || (t.rs.CullMode == gputypes.CullModeFront && front) {
		return
	}

	minX := int(math.Floor(math.Min(p0.x, math.Min(p1.x, p2.x))))
	maxX := int(math.Ceil(math.Max(p0.x, math.Max(p1.x, p2.x))))
	minY := int(math.Floor(math.Min(p0.y, math.Min(p1.y, p2.y))))
	maxY := int(math.Ceil(math.Max(p0.y, math.Max(p1.y, p2.y))))
	bounds := image.Rect(minX, minY, maxX, maxY).Intersect(t.clip)

	rows := func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				p := point{float64(x) + 0.5, float64(y) + 0.5}
				w0 := edge(p1, p2, p) / area
				w1 := edge(p2, p0, p) / area
				w2 := edge(p0, p1, p) / area
				if w0 < 0 || w1 < 0 || w2 < 0 {
					continue
				}
				t.img.SetRGBA(x, y, t.enc.RGBA(
					w0*v0.r+w1*v1.r+w2*v2.r,
					w0*v0.g+w1*v1.g+w2*v2.g,
					w0*v0.b+w1*v1.b+w2*v2.b,
					w0*v0.a+w1*v1.a+w2*v2.a,
				))
			}
		}
	}
	if t.pool == nil {
		rows(bounds.Min.Y, bounds.Max.Y)
		return
	}
	t.pool.Bands(bounds.Min.Y, bounds.Max.Y, minBandRows, rows)
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
