// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/opchain/internal/blend"
)

// SoftwareContext is a CPU rendering context.
//
// It executes render passes synchronously on the calling goroutine using
// each pipeline's CPU fragment function. Textures are *image.NRGBA images
// with straight alpha. The rasterizer samples every pixel centre covered by
// the drawn triangle strip, interpolating vertex attributes barycentrically,
// which gives the same coverage as a GPU rasterizer for axis-aligned quads.
//
// SoftwareContext is safe for concurrent use. Passes are serialized.
//
// Example:
//
//	ctx := render.NewSoftwareContext()
//	defer ctx.Destroy()
//	tex, _ := ctx.NewTextureFromImage("photo", img)
type SoftwareContext struct {
	mu          sync.Mutex
	destroyed   bool
	submissions atomic.Int64
	live        map[*softTexture]struct{}
}

// NewSoftwareContext creates a CPU rendering context.
func NewSoftwareContext() *SoftwareContext {
	return &SoftwareContext{live: make(map[*softTexture]struct{})}
}

// Submissions returns the number of render passes executed so far.
func (c *SoftwareContext) Submissions() int64 {
	return c.submissions.Load()
}

// LiveTextures returns the number of textures created by the context that
// have not been destroyed.
func (c *SoftwareContext) LiveTextures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// NewTexture allocates a zeroed texture.
func (c *SoftwareContext) NewTexture(desc TextureDescriptor) (Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, desc.Width, desc.Height)
	}
	return c.track(desc.Label, image.NewNRGBA(image.Rect(0, 0, desc.Width, desc.Height)))
}

// NewTextureFromImage allocates a texture holding a copy of img.
func (c *SoftwareContext) NewTextureFromImage(label string, img image.Image) (Texture, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidSize)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, b.Dx(), b.Dy())
	}
	return c.track(label, toNRGBA(img))
}

func (c *SoftwareContext) track(label string, img *image.NRGBA) (Texture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	t := &softTexture{
		ctx:    c,
		label:  label,
		width:  img.Rect.Dx(),
		height: img.Rect.Dy(),
		img:    img,
	}
	c.live[t] = struct{}{}
	return t, nil
}

// NewVertexBuffer stores a copy of data.
func (c *SoftwareContext) NewVertexBuffer(label string, data []float32) (Buffer, error) {
	return c.newBuffer(label, data)
}

// NewUniformBuffer stores a copy of data.
func (c *SoftwareContext) NewUniformBuffer(label string, data []float32) (Buffer, error) {
	return c.newBuffer(label, data)
}

func (c *SoftwareContext) newBuffer(label string, data []float32) (Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer %q", ErrInvalidSize, label)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	return &softBuffer{ctx: c, label: label, data: append([]float32(nil), data...)}, nil
}

// NewPipeline validates desc and records its CPU fragment function.
// The WGSL source is not compiled here; see ValidateShader.
func (c *SoftwareContext) NewPipeline(desc *PipelineDescriptor) (Pipeline, error) {
	if desc == nil {
		return nil, ErrNilPipeline
	}
	d := desc.withDefaults()
	if d.Fragment == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoFragment, d.Label)
	}
	if d.VertexBuffers != d.Textures+1 {
		return nil, fmt.Errorf("%w: pipeline %q has %d vertex buffers for %d textures",
			ErrBindingMismatch, d.Label, d.VertexBuffers, d.Textures)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	return &softPipeline{ctx: c, desc: d}, nil
}

// Submit clears the target and rasterizes the pass.
func (c *SoftwareContext) Submit(pass *RenderPass) error {
	if pass == nil {
		return ErrNilTarget
	}
	p, ok := pass.Pipeline.(*softPipeline)
	if pass.Pipeline != nil && (!ok || p.ctx != c) {
		return ErrForeignResource
	}
	if p == nil {
		return ErrNilPipeline
	}
	if err := pass.validate(&p.desc); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}

	target, err := c.ownTexture(pass.Target)
	if err != nil {
		return err
	}
	sources := make([]*image.NRGBA, len(pass.Textures))
	for i, t := range pass.Textures {
		st, err := c.ownTexture(t)
		if err != nil {
			return fmt.Errorf("texture %d: %w", i, err)
		}
		sources[i] = st.img
	}
	streams := make([][]float32, len(pass.VertexBuffers))
	for i, b := range pass.VertexBuffers {
		sb, ok := b.(*softBuffer)
		if !ok || sb.ctx != c {
			return ErrForeignResource
		}
		if len(sb.data) < 2*pass.VertexCount {
			return fmt.Errorf("%w: vertex buffer %d holds %d values, need %d",
				ErrBindingMismatch, i, len(sb.data), 2*pass.VertexCount)
		}
		streams[i] = sb.data
	}
	var uniforms []float32
	if pass.Uniforms != nil {
		ub, ok := pass.Uniforms.(*softBuffer)
		if !ok || ub.ctx != c {
			return ErrForeignResource
		}
		uniforms = ub.data
	}

	clearNRGBA(target.img, clearColor(pass.ClearColor))
	rasterizeStrip(target.img, streams, sources, uniforms, pass.VertexCount, p.desc.Fragment)
	c.submissions.Add(1)

	slogger().Debug("render: software pass",
		"label", pass.Label, "pipeline", p.desc.Label,
		"width", target.width, "height", target.height)
	return nil
}

// ownTexture resolves t to a live texture of this context. Callers hold c.mu.
func (c *SoftwareContext) ownTexture(t Texture) (*softTexture, error) {
	st, ok := t.(*softTexture)
	if !ok || st.ctx != c {
		return nil, ErrForeignResource
	}
	if st.img == nil {
		return nil, ErrDestroyed
	}
	return st, nil
}

// Flush returns immediately: passes complete inside Submit.
func (c *SoftwareContext) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	return nil
}

// ReadImage returns a copy of the texture content.
func (c *SoftwareContext) ReadImage(tex Texture) (*image.NRGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.ownTexture(tex)
	if err != nil {
		return nil, err
	}
	out := image.NewNRGBA(st.img.Rect)
	copy(out.Pix, st.img.Pix)
	return out, nil
}

// Destroy releases every texture still owned by the context.
func (c *SoftwareContext) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.destroyed = true
	for t := range c.live {
		t.img = nil
	}
	c.live = nil
}

// softTexture is a CPU texture.
type softTexture struct {
	ctx    *SoftwareContext
	label  string
	width  int
	height int
	img    *image.NRGBA // nil once destroyed
}

func (t *softTexture) Width() int                     { return t.width }
func (t *softTexture) Height() int                    { return t.height }
func (t *softTexture) Format() gputypes.TextureFormat { return gputypes.TextureFormatRGBA8Unorm }

// Destroyed reports whether the pixel storage has been dropped.
func (t *softTexture) Destroyed() bool {
	t.ctx.mu.Lock()
	defer t.ctx.mu.Unlock()
	return t.img == nil
}

// Destroy drops the pixel storage.
func (t *softTexture) Destroy() {
	t.ctx.mu.Lock()
	defer t.ctx.mu.Unlock()
	if t.img == nil {
		return
	}
	t.img = nil
	delete(t.ctx.live, t)
}

// softBuffer is a CPU vertex or uniform buffer.
type softBuffer struct {
	ctx   *SoftwareContext
	label string
	data  []float32
}

func (b *softBuffer) Len() int { return len(b.data) }
func (b *softBuffer) Destroy() {}

// softPipeline is a pipeline descriptor bound to a software context.
type softPipeline struct {
	ctx  *SoftwareContext
	desc PipelineDescriptor
}

func (p *softPipeline) Label() string { return p.desc.Label }
func (p *softPipeline) Destroy()      {}

// clearColor converts a WebGPU clear colour to an 8-bit straight pixel.
func clearColor(c gputypes.Color) color.NRGBA {
	return blend.Color{R: float32(c.R), G: float32(c.G), B: float32(c.B), A: float32(c.A)}.NRGBA()
}

// rasterizeStrip draws a triangle strip into dst.
//
// streams[0] holds vertex positions in normalized device coordinates;
// streams[i] holds the texture coordinates used to sample sources[i-1].
func rasterizeStrip(dst *image.NRGBA, streams [][]float32, sources []*image.NRGBA,
	uniforms []float32, count int, frag FragmentFunc) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	in := &FragmentInput{
		Samples:  make([]RGBA, len(sources)),
		UV:       make([][2]float32, len(sources)),
		Uniforms: uniforms,
		textures: sources,
	}
	pos := streams[0]

	for tri := 0; tri+2 < count; tri++ {
		i0, i1, i2 := tri, tri+1, tri+2

		// Vertex positions in pixel space.
		x0, y0 := ndcToPixel(pos[2*i0], pos[2*i0+1], w, h)
		x1, y1 := ndcToPixel(pos[2*i1], pos[2*i1+1], w, h)
		x2, y2 := ndcToPixel(pos[2*i2], pos[2*i2+1], w, h)

		area := edge(x0, y0, x1, y1, x2, y2)
		if area == 0 {
			continue
		}

		minX := clampInt(floor(min(x0, x1, x2)), 0, w-1)
		maxX := clampInt(floor(max(x0, x1, x2)), 0, w-1)
		minY := clampInt(floor(min(y0, y1, y2)), 0, h-1)
		maxY := clampInt(floor(max(y0, y1, y2)), 0, h-1)

		for py := minY; py <= maxY; py++ {
			cy := float32(py) + 0.5
			for px := minX; px <= maxX; px++ {
				cx := float32(px) + 0.5

				b0 := edge(x1, y1, x2, y2, cx, cy) / area
				b1 := edge(x2, y2, x0, y0, cx, cy) / area
				b2 := edge(x0, y0, x1, y1, cx, cy) / area
				if b0 < 0 || b1 < 0 || b2 < 0 {
					continue
				}

				for s, src := range sources {
					uv := streams[s+1]
					u := b0*uv[2*i0] + b1*uv[2*i1] + b2*uv[2*i2]
					v := b0*uv[2*i0+1] + b1*uv[2*i1+1] + b2*uv[2*i2+1]
					in.UV[s] = [2]float32{u, v}
					in.Samples[s] = sampleBilinear(src, u, v)
				}
				in.Position = [2]float32{cx / float32(w), cy / float32(h)}

				c := frag(in).NRGBA()
				i := py*dst.Stride + px*4
				p := dst.Pix[i : i+4 : i+4]
				p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
			}
		}
	}
}

// ndcToPixel maps normalized device coordinates to pixel space with the
// origin at the top-left corner.
func ndcToPixel(x, y float32, w, h int) (float32, float32) {
	return (x + 1) * 0.5 * float32(w), (1 - y) * 0.5 * float32(h)
}

// edge returns twice the signed area of triangle (a, b, c).
func edge(ax, ay, bx, by, cx, cy float32) float32 {
	return (bx-ax)*(cy-ay) - (by-ay)*(cx-ax)
}

var (
	_ Context     = (*SoftwareContext)(nil)
	_ ImageReader = (*SoftwareContext)(nil)
)
