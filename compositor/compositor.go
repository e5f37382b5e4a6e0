// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	_ "embed"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/opchain"
	"github.com/gogpu/opchain/metrics"
	"github.com/gogpu/opchain/render"
)

//go:embed shaders/composite.wgsl
var compositeWGSL string

// Compositor construction errors.
var (
	// ErrNilContext is returned when New is given no rendering context.
	ErrNilContext = errors.New("compositor: nil rendering context")

	// ErrEmptyKey is returned when the base key is empty.
	ErrEmptyKey = errors.New("compositor: empty base key")

	// ErrKeyConflict is returned when the base and source keys are equal.
	ErrKeyConflict = errors.New("compositor: base and source keys are equal")
)

// errAllocate marks render failures that leave no output texture to emit.
var errAllocate = errors.New("allocate")

// Compositor is a node that blends a live base stream with a source image.
//
// Frames keyed with the base key are composited with the currently held
// source and forwarded. The source is either a static texture set with
// SetCompositeImage or the latest frame keyed with the source key, whichever
// was set most recently. Frames with any other key are dropped.
//
// Without a usable source the base frame is forwarded unmodified and no GPU
// work is submitted. A pass that fails to submit also forwards the base
// frame; only a failed output allocation drops it. The output size is the per-axis minimum of the base and source
// sizes; each input is letterbox-cropped to that aspect ratio.
//
// Compositor is safe for concurrent use: base and source frames may arrive
// from different producers.
type Compositor struct {
	ctx       render.Context
	pipeline  render.Pipeline
	positions render.Buffer
	baseKey   string
	name      string
	metrics   *metrics.Collector
	targets   opchain.Targets

	// mu guards everything below.
	mu           sync.Mutex
	sourceKey    string
	source       opchain.Frame
	sourceFrame  image.Rectangle
	mixture      float32
	mode         BlendMode
	baseCoords   *coordBuffer
	sourceCoords *coordBuffer
	closed       bool
}

// New creates a compositor on ctx treating frames keyed baseKey as the base
// stream. Pipeline construction failures are returned; the compositor must
// not be used in that case.
func New(ctx render.Context, baseKey string, opts ...Option) (*Compositor, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if baseKey == "" {
		return nil, ErrEmptyKey
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.sourceKey == baseKey {
		return nil, fmt.Errorf("%w: %q", ErrKeyConflict, baseKey)
	}

	pipeline, err := ctx.NewPipeline(&render.PipelineDescriptor{
		Label:         o.name,
		Shader:        compositeWGSL,
		VertexBuffers: 3,
		Textures:      2,
		UniformSize:   uniformSize,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Fragment:      compositeFragment,
	})
	if err != nil {
		return nil, fmt.Errorf("compositor: build pipeline: %w", err)
	}
	positions, err := ctx.NewVertexBuffer(o.name+"_positions", render.QuadVertices[:])
	if err != nil {
		pipeline.Destroy()
		return nil, fmt.Errorf("compositor: upload quad: %w", err)
	}

	opchain.Logger().Info("compositor: created", "name", o.name,
		"baseKey", baseKey, "sourceKey", o.sourceKey, "mode", o.mode)

	return &Compositor{
		ctx:         ctx,
		pipeline:    pipeline,
		positions:   positions,
		baseKey:     baseKey,
		name:        o.name,
		metrics:     o.metrics,
		sourceKey:   o.sourceKey,
		sourceFrame: o.sourceFrame,
		mixture:     o.mixture,
		mode:        o.mode,
	}, nil
}

// Targets returns the downstream targets.
func (c *Compositor) Targets() *opchain.Targets {
	return &c.targets
}

// Name returns the node name.
func (c *Compositor) Name() string {
	return c.name
}

// BaseKey returns the key of base frames.
func (c *Compositor) BaseKey() string {
	return c.baseKey
}

// SourceKey returns the key of streamed source frames.
func (c *Compositor) SourceKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sourceKey
}

// SetSourceKey changes the key of streamed source frames. The held source
// is kept.
func (c *Compositor) SetSourceKey(key string) error {
	if key == c.baseKey {
		return fmt.Errorf("%w: %q", ErrKeyConflict, key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sourceKey = key
	return nil
}

// SetSourceFrame places the source inside r (output pixels). The empty
// rectangle covers the whole output.
func (c *Compositor) SetSourceFrame(r image.Rectangle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sourceFrame = r.Canon()
}

// SetMixture sets the source weight in [0, 1].
func (c *Compositor) SetMixture(m float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mixture = clampMixture(m)
}

// SetBlendMode selects the blend mode.
func (c *Compositor) SetBlendMode(m BlendMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// SetCompositeImage sets a static source texture. The compositor takes
// ownership of tex and destroys it once it is replaced and no pass reads
// it. A nil texture clears the source, which puts the compositor in bypass.
func (c *Compositor) SetCompositeImage(tex render.Texture) {
	c.swapSource(opchain.NewFrame(tex, 0, c.SourceKey()))
}

// SetCompositeImageFrom uploads img and uses it as the static source.
// On failure the source is cleared and the error is returned.
func (c *Compositor) SetCompositeImageFrom(img image.Image) error {
	tex, err := c.ctx.NewTextureFromImage(c.name+"_source", img)
	if err != nil {
		c.swapSource(opchain.Frame{})
		opchain.Logger().Warn("compositor: source upload failed, bypassing",
			"name", c.name, "err", err)
		return fmt.Errorf("compositor: upload source: %w", err)
	}
	c.swapSource(opchain.NewFrame(tex, 0, c.SourceKey()))
	return nil
}

// HasSource reports whether a source is held.
func (c *Compositor) HasSource() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source.IsValid()
}

// swapSource installs f as the held source and releases the previous one.
// The compositor owns the reference held in f.
func (c *Compositor) swapSource(f opchain.Frame) {
	c.mu.Lock()
	old := c.source
	if c.closed {
		old = f
	} else {
		c.source = f
	}
	c.mu.Unlock()
	old.Release()
}

// Receive dispatches f by key.
func (c *Compositor) Receive(f opchain.Frame) {
	switch key := f.Key(); {
	case key == c.baseKey:
		c.composite(f)
	case key == c.SourceKey():
		c.swapSource(f)
	default:
		opchain.Logger().Debug("compositor: dropping frame with unknown key",
			"name", c.name, "key", key)
		c.metrics.Frame(c.name, metrics.OutcomeDropped)
		f.Release()
	}
}

// passState is the snapshot of shared state one render pass needs.
type passState struct {
	source       opchain.Frame
	baseCoords   *coordBuffer
	sourceCoords *coordBuffer
	width        int
	height       int
	uniforms     [uniformCount]float32
}

// release drops the references taken by snapshot.
func (p *passState) release() {
	p.source.Release()
	p.baseCoords.release()
	p.sourceCoords.release()
}

// composite blends base with the held source and forwards the result.
func (c *Compositor) composite(base opchain.Frame) {
	start := time.Now()

	pass, err := c.snapshot(base)
	if err != nil {
		opchain.Logger().Warn("compositor: coordinate upload failed, dropping frame",
			"name", c.name, "err", err)
		c.metrics.Frame(c.name, metrics.OutcomeDropped)
		base.Release()
		return
	}
	if pass == nil {
		c.metrics.Frame(c.name, metrics.OutcomeBypassed)
		opchain.Emit(&c.targets, base)
		return
	}
	defer pass.release()

	out, err := c.render(base, pass)
	if errors.Is(err, errAllocate) {
		opchain.Logger().Error("compositor: output allocation failed, dropping frame",
			"name", c.name, "ts", base.Timestamp(), "err", err)
		c.metrics.Frame(c.name, metrics.OutcomeDropped)
		base.Release()
		return
	}
	if err != nil {
		opchain.Logger().Warn("compositor: render failed, forwarding base frame",
			"name", c.name, "ts", base.Timestamp(), "err", err)
		c.metrics.Frame(c.name, metrics.OutcomeBypassed)
		opchain.Emit(&c.targets, base)
		return
	}
	c.metrics.ObserveRender(c.name, time.Since(start))
	c.metrics.Frame(c.name, metrics.OutcomeComposited)

	opchain.Emit(&c.targets, opchain.NewFrame(out, base.Timestamp(), base.Key()))
	base.Release()
}

// snapshot runs the only critical section of a base frame: it refreshes the
// coordinate cache and retains the source and buffers for the pass. It
// returns nil without error when there is nothing to composite.
func (c *Compositor) snapshot(base opchain.Frame) (*passState, error) {
	var stale opchain.Frame
	defer func() { stale.Release() }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.source.IsValid() || !base.IsValid() {
		return nil, nil
	}
	src := c.source
	if src.Texture().Destroyed() {
		opchain.Logger().Warn("compositor: source texture destroyed, bypassing",
			"name", c.name, "key", src.Key())
		stale, c.source = src, opchain.Frame{}
		return nil, nil
	}
	minW := min(base.Width(), src.Width())
	minH := min(base.Height(), src.Height())

	if err := c.refreshCoords(&c.baseCoords, "base",
		coordKey{base.Width(), base.Height(), minW, minH}); err != nil {
		return nil, err
	}
	if err := c.refreshCoords(&c.sourceCoords, "source",
		coordKey{src.Width(), src.Height(), minW, minH}); err != nil {
		return nil, err
	}

	p := &passState{
		source:       src.Retain(),
		baseCoords:   c.baseCoords.retain(),
		sourceCoords: c.sourceCoords.retain(),
		width:        minW,
		height:       minH,
	}
	p.uniforms[uMixture] = c.mixture
	p.uniforms[uMode] = float32(c.mode)
	if region, ok := normalizedRegion(c.sourceFrame, minW, minH); ok {
		uv := c.sourceCoords.uv
		p.uniforms[uHasRegion] = 1
		p.uniforms[uRegionX0] = region[0]
		p.uniforms[uRegionY0] = region[1]
		p.uniforms[uRegionX1] = region[2]
		p.uniforms[uRegionY1] = region[3]
		p.uniforms[uSourceU0] = uv[0]
		p.uniforms[uSourceV0] = uv[1]
		p.uniforms[uSourceU1] = uv[6]
		p.uniforms[uSourceV1] = uv[7]
	}
	return p, nil
}

// refreshCoords replaces *slot when key differs from the cached key.
// Callers hold c.mu.
func (c *Compositor) refreshCoords(slot **coordBuffer, input string, key coordKey) error {
	if cur := *slot; cur != nil && cur.key == key {
		return nil
	}
	uv := TextureCoordinates(key.w, key.h, key.targetW, key.targetH)
	buf, err := c.ctx.NewVertexBuffer(c.name+"_"+input+"_coords", uv[:])
	if err != nil {
		return fmt.Errorf("%s coordinates: %w", input, err)
	}
	next := &coordBuffer{key: key, uv: uv, buf: buf}
	next.refs.Store(1)
	if old := *slot; old != nil {
		old.release()
	}
	*slot = next

	c.metrics.CacheRecompute(c.name, input)
	opchain.Logger().Debug("compositor: coordinates recomputed", "name", c.name,
		"input", input, "size", fmt.Sprintf("%dx%d", key.w, key.h),
		"target", fmt.Sprintf("%dx%d", key.targetW, key.targetH))
	return nil
}

// render allocates the output texture and submits the pass. It runs
// without holding c.mu.
func (c *Compositor) render(base opchain.Frame, p *passState) (render.Texture, error) {
	desc := render.DefaultTextureDescriptor(p.width, p.height)
	desc.Label = c.name + "_output"
	out, err := c.ctx.NewTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: output: %w", errAllocate, err)
	}
	uniforms, err := c.ctx.NewUniformBuffer(c.name+"_params", p.uniforms[:])
	if err != nil {
		out.Destroy()
		return nil, fmt.Errorf("%w: uniforms: %w", errAllocate, err)
	}
	defer uniforms.Destroy()

	err = c.ctx.Submit(&render.RenderPass{
		Label:         c.name,
		Target:        out,
		ClearColor:    gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		Pipeline:      c.pipeline,
		VertexBuffers: []render.Buffer{c.positions, p.baseCoords.buf, p.sourceCoords.buf},
		Textures:      []render.Texture{base.Texture(), p.source.Texture()},
		Uniforms:      uniforms,
		VertexCount:   render.QuadVertexCount,
	})
	if err != nil {
		out.Destroy()
		return nil, fmt.Errorf("submit: %w", err)
	}
	return out, nil
}

// Close releases the held source, the coordinate cache and the pipeline.
// Base frames received afterwards are forwarded unmodified.
func (c *Compositor) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	source := c.source
	baseCoords, sourceCoords := c.baseCoords, c.sourceCoords
	c.source = opchain.Frame{}
	c.baseCoords, c.sourceCoords = nil, nil
	c.mu.Unlock()

	source.Release()
	baseCoords.release()
	sourceCoords.release()
	c.positions.Destroy()
	c.pipeline.Destroy()
	opchain.Logger().Info("compositor: closed", "name", c.name)
	return nil
}

// normalizedRegion converts r from output pixels to [0, 1] output
// coordinates. It reports false when r is empty, which means the source
// covers the whole output.
func normalizedRegion(r image.Rectangle, w, h int) ([4]float32, bool) {
	if r.Empty() || w <= 0 || h <= 0 {
		return [4]float32{}, false
	}
	fw, fh := float32(w), float32(h)
	return [4]float32{
		float32(r.Min.X) / fw,
		float32(r.Min.Y) / fh,
		float32(r.Max.X) / fw,
		float32(r.Max.Y) / fh,
	}, true
}

// coordKey identifies a letterbox coordinate buffer.
type coordKey struct {
	w, h, targetW, targetH int
}

// coordBuffer is a cached coordinate buffer shared between the cache and
// in-flight passes. The buffer is destroyed when the last holder releases.
type coordBuffer struct {
	key  coordKey
	uv   [8]float32
	buf  render.Buffer
	refs atomic.Int32
}

func (b *coordBuffer) retain() *coordBuffer {
	b.refs.Add(1)
	return b
}

func (b *coordBuffer) release() {
	if b == nil {
		return
	}
	if b.refs.Add(-1) == 0 {
		b.buf.Destroy()
	}
}

var (
	_ opchain.Node   = (*Compositor)(nil)
	_ opchain.Source = (*Compositor)(nil)
)
