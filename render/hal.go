// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// halFlushTimeout bounds how long Flush waits for the GPU.
const halFlushTimeout = 5 * time.Second

// HALContext is a rendering context backed by a wgpu HAL device.
//
// The device and queue belong to the host; HALContext never destroys them.
// Submissions are tracked with a single fence whose value is the submission
// index. Resources destroyed while a submission may still read them are
// released once the fence passes that submission.
type HALContext struct {
	mu        sync.Mutex
	device    hal.Device
	queue     hal.Queue
	fence     hal.Fence
	sampler   hal.Sampler
	submitted uint64
	inflight  []halSubmission
	deferred  []halRelease
	destroyed bool
}

// halSubmission is a queued command buffer and its fence value.
type halSubmission struct {
	index uint64
	cmd   hal.CommandBuffer
	free  []func()
}

// halRelease is a resource release that waits for a fence value.
type halRelease struct {
	after uint64
	fn    func()
}

// NewHALContext creates a context on an existing HAL device and queue.
func NewHALContext(device hal.Device, queue hal.Queue) (*HALContext, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("render: nil HAL device or queue")
	}
	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("render: create fence: %w", err)
	}
	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "opchain_linear_clamp",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		device.DestroyFence(fence)
		return nil, fmt.Errorf("render: create sampler: %w", err)
	}
	slogger().Info("render: HAL context created")
	return &HALContext{device: device, queue: queue, fence: fence, sampler: sampler}, nil
}

// NewHALContextFromProvider creates a context from a host device provider.
// The provider must expose HalDevice() any and HalQueue() any returning a
// hal.Device and hal.Queue.
func NewHALContextFromProvider(provider gpucontext.DeviceProvider) (*HALContext, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("render: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("render: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("render: provider HalQueue is not hal.Queue")
	}
	return NewHALContext(device, queue)
}

// Submissions returns the number of render passes queued so far.
func (c *HALContext) Submissions() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted
}

// NewTexture allocates a texture and its default view.
func (c *HALContext) NewTexture(desc TextureDescriptor) (Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, desc.Width, desc.Height)
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		desc.Format = gputypes.TextureFormatRGBA8Unorm
	}
	if desc.Usage == 0 {
		desc.Usage = DefaultTextureDescriptor(desc.Width, desc.Height).Usage
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	return c.newTextureLocked(desc)
}

func (c *HALContext) newTextureLocked(desc TextureDescriptor) (*halTexture, error) {
	tex, err := c.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: 1}, //nolint:gosec // validated positive
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage.gpuUsage(),
	})
	if err != nil {
		return nil, fmt.Errorf("render: create texture %q: %w", desc.Label, err)
	}
	view, err := c.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        desc.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		c.device.DestroyTexture(tex)
		return nil, fmt.Errorf("render: create texture view %q: %w", desc.Label, err)
	}
	return &halTexture{
		ctx:    c,
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		tex:    tex,
		view:   view,
	}, nil
}

// NewTextureFromImage allocates a texture and uploads img into it.
func (c *HALContext) NewTextureFromImage(label string, img image.Image) (Texture, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidSize)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, b.Dx(), b.Dy())
	}
	desc := DefaultTextureDescriptor(b.Dx(), b.Dy())
	desc.Label = label
	pixels := toNRGBA(img)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	t, err := c.newTextureLocked(desc)
	if err != nil {
		return nil, err
	}
	w, h := uint32(t.width), uint32(t.height) //nolint:gosec // validated positive
	c.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		pixels.Pix,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: w * 4, RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	return t, nil
}

// NewVertexBuffer uploads per-vertex data.
func (c *HALContext) NewVertexBuffer(label string, data []float32) (Buffer, error) {
	return c.newBuffer(label, data, len(data)*4, gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
}

// NewUniformBuffer uploads uniform data padded to a 16-byte multiple.
func (c *HALContext) NewUniformBuffer(label string, data []float32) (Buffer, error) {
	return c.newBuffer(label, data, uniformBytes(len(data)), gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
}

func (c *HALContext) newBuffer(label string, data []float32, size int, usage gputypes.BufferUsage) (Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer %q", ErrInvalidSize, label)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	buf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(size), //nolint:gosec // positive
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("render: create buffer %q: %w", label, err)
	}
	bytes := make([]byte, size)
	for i, f := range data {
		binary.LittleEndian.PutUint32(bytes[i*4:], math.Float32bits(f))
	}
	c.queue.WriteBuffer(buf, 0, bytes)
	return &halBuffer{
		ctx:   c,
		label: label,
		buf:   buf,
		data:  append([]float32(nil), data...),
		n:     len(data),
		size:  uint64(size), //nolint:gosec // positive
	}, nil
}

// NewPipeline compiles the WGSL source with naga and builds a quad render
// pipeline with the layout described by desc.
func (c *HALContext) NewPipeline(desc *PipelineDescriptor) (Pipeline, error) {
	if desc == nil {
		return nil, ErrNilPipeline
	}
	d := desc.withDefaults()
	if d.Shader == "" {
		return nil, ErrEmptyShader
	}
	spirv, err := naga.Compile(d.Shader)
	if err != nil {
		return nil, fmt.Errorf("render: compile %q: %w", d.Label, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}

	p := &halPipeline{ctx: c, desc: d}
	if err := p.build(spirvWords(spirv)); err != nil {
		p.release()
		return nil, err
	}
	slogger().Debug("render: pipeline created", "label", d.Label,
		"textures", d.Textures, "vertexBuffers", d.VertexBuffers)
	return p, nil
}

// Submit encodes the pass and queues it. It does not wait for completion.
func (c *HALContext) Submit(pass *RenderPass) error {
	if pass == nil {
		return ErrNilTarget
	}
	p, ok := pass.Pipeline.(*halPipeline)
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
	c.reclaimLocked()

	target, err := c.ownTexture(pass.Target)
	if err != nil {
		return err
	}
	textures := make([]*halTexture, len(pass.Textures))
	for i, t := range pass.Textures {
		if textures[i], err = c.ownTexture(t); err != nil {
			return fmt.Errorf("texture %d: %w", i, err)
		}
	}
	vbufs := make([]*halBuffer, len(pass.VertexBuffers))
	for i, b := range pass.VertexBuffers {
		hb, ok := b.(*halBuffer)
		if !ok || hb.ctx != c {
			return ErrForeignResource
		}
		if hb.destroyed {
			return fmt.Errorf("vertex buffer %d: %w", i, ErrDestroyed)
		}
		vbufs[i] = hb
	}
	var ubuf *halBuffer
	if pass.Uniforms != nil {
		ub, ok := pass.Uniforms.(*halBuffer)
		if !ok || ub.ctx != c {
			return ErrForeignResource
		}
		if ub.destroyed {
			return fmt.Errorf("uniforms: %w", ErrDestroyed)
		}
		ubuf = ub
	}

	// Strips are drawn as triangle lists, so the strip is expanded into
	// per-submission list buffers.
	var free []func()
	listBufs := make([]hal.Buffer, len(vbufs))
	for i, vb := range vbufs {
		lb, err := c.stripToList(vb, pass.VertexCount)
		if err != nil {
			runAll(free)
			return err
		}
		listBufs[i] = lb
		free = append(free, func() { c.device.DestroyBuffer(lb) })
	}

	bg, err := p.bindGroup(textures, ubuf, c.sampler)
	if err != nil {
		runAll(free)
		return err
	}
	free = append(free, func() { c.device.DestroyBindGroup(bg) })

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: pass.Label})
	if err != nil {
		runAll(free)
		return fmt.Errorf("render: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(pass.Label); err != nil {
		runAll(free)
		return fmt.Errorf("render: begin encoding: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: pass.Label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: pass.ClearColor,
		}},
	})
	rp.SetPipeline(p.pipeline)
	rp.SetBindGroup(0, bg, nil)
	for i, lb := range listBufs {
		rp.SetVertexBuffer(uint32(i), lb, 0) //nolint:gosec // small slot index
	}
	rp.Draw(uint32(stripListLen(pass.VertexCount)), 1, 0, 0) //nolint:gosec // small count
	rp.End()

	cmd, err := encoder.EndEncoding()
	if err != nil {
		runAll(free)
		return fmt.Errorf("render: end encoding: %w", err)
	}

	index := c.submitted + 1
	if err := c.queue.Submit([]hal.CommandBuffer{cmd}, c.fence, index); err != nil {
		c.device.FreeCommandBuffer(cmd)
		runAll(free)
		return fmt.Errorf("render: submit: %w", err)
	}
	c.submitted = index
	c.inflight = append(c.inflight, halSubmission{index: index, cmd: cmd, free: free})

	slogger().Debug("render: pass submitted", "label", pass.Label, "index", index)
	return nil
}

// stripToList uploads the triangle-list expansion of the first count
// vertices of a vec2 strip buffer.
func (c *HALContext) stripToList(vb *halBuffer, count int) (hal.Buffer, error) {
	if len(vb.data) < 2*count {
		return nil, fmt.Errorf("%w: vertex buffer %q holds %d values, need %d",
			ErrBindingMismatch, vb.label, vb.n, 2*count)
	}
	list := stripToList(vb.data, count)
	size := uint64(len(list) * 4) //nolint:gosec // small
	buf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: vb.label + "_list",
		Size:  size,
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("render: create list buffer: %w", err)
	}
	bytes := make([]byte, size)
	for i, f := range list {
		binary.LittleEndian.PutUint32(bytes[i*4:], math.Float32bits(f))
	}
	c.queue.WriteBuffer(buf, 0, bytes)
	return buf, nil
}

// ownTexture resolves t to a live texture of this context. Callers hold c.mu.
func (c *HALContext) ownTexture(t Texture) (*halTexture, error) {
	ht, ok := t.(*halTexture)
	if !ok || ht.ctx != c {
		return nil, ErrForeignResource
	}
	if ht.destroyed {
		return nil, ErrDestroyed
	}
	return ht, nil
}

// reclaimLocked frees command buffers of completed submissions and runs
// deferred releases whose fence value has passed.
func (c *HALContext) reclaimLocked() {
	if len(c.inflight) == 0 && len(c.deferred) == 0 {
		return
	}
	done := c.completedLocked()

	n := 0
	for _, s := range c.inflight {
		if s.index <= done {
			c.device.FreeCommandBuffer(s.cmd)
			runAll(s.free)
			continue
		}
		c.inflight[n] = s
		n++
	}
	c.inflight = c.inflight[:n]

	n = 0
	for _, r := range c.deferred {
		if r.after <= done {
			r.fn()
			continue
		}
		c.deferred[n] = r
		n++
	}
	c.deferred = c.deferred[:n]
}

// completedLocked returns the highest submission index known complete.
func (c *HALContext) completedLocked() uint64 {
	done := uint64(0)
	for _, s := range c.inflight {
		ok, err := c.device.Wait(c.fence, s.index, 0)
		if err != nil || !ok {
			break
		}
		done = s.index
	}
	if len(c.inflight) == 0 {
		done = c.submitted
	}
	return done
}

// releaseLocked runs fn once every submission queued so far has completed.
func (c *HALContext) releaseLocked(fn func()) {
	if c.destroyed || len(c.inflight) == 0 {
		fn()
		return
	}
	c.deferred = append(c.deferred, halRelease{after: c.submitted, fn: fn})
}

// Flush waits for all queued work and runs pending releases.
func (c *HALContext) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	return c.flushLocked()
}

func (c *HALContext) flushLocked() error {
	if c.submitted > 0 {
		ok, err := c.device.Wait(c.fence, c.submitted, halFlushTimeout)
		if err != nil {
			return fmt.Errorf("render: wait for GPU: %w", err)
		}
		if !ok {
			return fmt.Errorf("render: wait for GPU: timed out after %v", halFlushTimeout)
		}
	}
	c.reclaimLocked()
	return nil
}

// ReadImage copies a texture back to CPU memory. It waits for all queued
// work first.
func (c *HALContext) ReadImage(tex Texture) (*image.NRGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	t, err := c.ownTexture(tex)
	if err != nil {
		return nil, err
	}

	w, h := uint32(t.width), uint32(t.height) //nolint:gosec // positive
	size := uint64(w) * uint64(h) * 4
	staging, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: t.label + "_readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("render: create staging buffer: %w", err)
	}
	defer c.device.DestroyBuffer(staging)

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "opchain_readback"})
	if err != nil {
		return nil, fmt.Errorf("render: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("opchain_readback"); err != nil {
		return nil, fmt.Errorf("render: begin encoding: %w", err)
	}
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: w * 4, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("render: end encoding: %w", err)
	}

	index := c.submitted + 1
	if err := c.queue.Submit([]hal.CommandBuffer{cmd}, c.fence, index); err != nil {
		c.device.FreeCommandBuffer(cmd)
		return nil, fmt.Errorf("render: submit readback: %w", err)
	}
	c.submitted = index
	c.inflight = append(c.inflight, halSubmission{index: index, cmd: cmd})
	if err := c.flushLocked(); err != nil {
		return nil, err
	}

	out := image.NewNRGBA(image.Rect(0, 0, t.width, t.height))
	if err := c.queue.ReadBuffer(staging, 0, out.Pix); err != nil {
		return nil, fmt.Errorf("render: readback: %w", err)
	}
	return out, nil
}

// Destroy waits for queued work and releases the fence and sampler.
// Textures still referenced by frames become unusable.
func (c *HALContext) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	if err := c.flushLocked(); err != nil {
		slogger().Warn("render: destroy without GPU idle", "err", err)
	}
	for _, s := range c.inflight {
		c.device.FreeCommandBuffer(s.cmd)
		runAll(s.free)
	}
	for _, r := range c.deferred {
		r.fn()
	}
	c.inflight, c.deferred = nil, nil
	c.device.DestroySampler(c.sampler)
	c.device.DestroyFence(c.fence)
	c.destroyed = true
}

// halTexture is a GPU texture with its default view.
type halTexture struct {
	ctx       *HALContext
	label     string
	width     int
	height    int
	format    gputypes.TextureFormat
	tex       hal.Texture
	view      hal.TextureView
	destroyed bool
}

func (t *halTexture) Width() int                     { return t.width }
func (t *halTexture) Height() int                    { return t.height }
func (t *halTexture) Format() gputypes.TextureFormat { return t.format }

// Destroyed reports whether the texture or its context was destroyed.
func (t *halTexture) Destroyed() bool {
	t.ctx.mu.Lock()
	defer t.ctx.mu.Unlock()
	return t.destroyed || t.ctx.destroyed
}

// Destroy releases the texture after in-flight submissions complete.
func (t *halTexture) Destroy() {
	c := t.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.destroyed {
		return
	}
	t.destroyed = true
	if c.destroyed {
		// The host device may already be gone; drop handles only.
		return
	}
	tex, view := t.tex, t.view
	c.releaseLocked(func() {
		c.device.DestroyTextureView(view)
		c.device.DestroyTexture(tex)
	})
}

// halBuffer is a GPU buffer. The float data is kept for strip expansion.
type halBuffer struct {
	ctx       *HALContext
	label     string
	buf       hal.Buffer
	data      []float32
	n         int
	size      uint64
	destroyed bool
}

func (b *halBuffer) Len() int { return b.n }

// Destroy releases the buffer after in-flight submissions complete.
func (b *halBuffer) Destroy() {
	c := b.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	if c.destroyed {
		return
	}
	buf := b.buf
	c.releaseLocked(func() { c.device.DestroyBuffer(buf) })
}

// halPipeline owns the shader module, layouts and render pipeline.
type halPipeline struct {
	ctx         *HALContext
	desc        PipelineDescriptor
	module      hal.ShaderModule
	groupLayout hal.BindGroupLayout
	pipeLayout  hal.PipelineLayout
	pipeline    hal.RenderPipeline
	destroyed   bool
}

func (p *halPipeline) Label() string { return p.desc.Label }

// build creates the HAL objects. Callers hold ctx.mu.
func (p *halPipeline) build(spirv []uint32) error {
	dev := p.ctx.device
	d := &p.desc

	module, err := dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  d.Label + "_shader",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("render: create shader module %q: %w", d.Label, err)
	}
	p.module = module

	entries := make([]gputypes.BindGroupLayoutEntry, 0, d.Textures+2)
	for i := 0; i < d.Textures; i++ {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i), //nolint:gosec // small binding index
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding:    uint32(d.Textures), //nolint:gosec // small binding index
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	})
	if d.UniformSize > 0 {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(d.Textures + 1), //nolint:gosec // small binding index
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		})
	}
	groupLayout, err := dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   d.Label + "_group_layout",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("render: create bind group layout %q: %w", d.Label, err)
	}
	p.groupLayout = groupLayout

	pipeLayout, err := dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            d.Label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{groupLayout},
	})
	if err != nil {
		return fmt.Errorf("render: create pipeline layout %q: %w", d.Label, err)
	}
	p.pipeLayout = pipeLayout

	buffers := make([]gputypes.VertexBufferLayout, d.VertexBuffers)
	for i := range buffers {
		buffers[i] = gputypes.VertexBufferLayout{
			ArrayStride: 8,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{{
				Format:         gputypes.VertexFormatFloat32x2,
				Offset:         0,
				ShaderLocation: uint32(i), //nolint:gosec // small location
			}},
		}
	}

	pipeline, err := dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  d.Label,
		Layout: pipeLayout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: d.VertexEntryPoint,
			Buffers:    buffers,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: d.FragmentEntryPoint,
			Targets: []gputypes.ColorTargetState{{
				Format:    d.Format,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("render: create render pipeline %q: %w", d.Label, err)
	}
	p.pipeline = pipeline
	return nil
}

// bindGroup creates the per-pass bind group. Callers hold ctx.mu.
func (p *halPipeline) bindGroup(textures []*halTexture, uniforms *halBuffer, sampler hal.Sampler) (hal.BindGroup, error) {
	d := &p.desc
	entries := make([]gputypes.BindGroupEntry, 0, len(textures)+2)
	for i, t := range textures {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i), //nolint:gosec // small binding index
			Resource: gputypes.TextureViewBinding{TextureView: uintptr(t.view.NativeHandle())},
		})
	}
	entries = append(entries, gputypes.BindGroupEntry{
		Binding:  uint32(d.Textures), //nolint:gosec // small binding index
		Resource: gputypes.SamplerBinding{Sampler: uintptr(sampler.NativeHandle())},
	})
	if d.UniformSize > 0 {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: uint32(d.Textures + 1), //nolint:gosec // small binding index
			Resource: gputypes.BufferBinding{
				Buffer: uniforms.buf.NativeHandle(),
				Offset: 0,
				Size:   uniforms.size,
			},
		})
	}
	bg, err := p.ctx.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   d.Label + "_bind_group",
		Layout:  p.groupLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("render: create bind group %q: %w", d.Label, err)
	}
	return bg, nil
}

// Destroy releases the pipeline after in-flight submissions complete.
func (p *halPipeline) Destroy() {
	c := p.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.destroyed {
		return
	}
	p.destroyed = true
	if c.destroyed {
		return
	}
	c.releaseLocked(p.release)
}

// release destroys HAL objects in reverse creation order.
func (p *halPipeline) release() {
	dev := p.ctx.device
	if p.pipeline != nil {
		dev.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		dev.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.groupLayout != nil {
		dev.DestroyBindGroupLayout(p.groupLayout)
		p.groupLayout = nil
	}
	if p.module != nil {
		dev.DestroyShaderModule(p.module)
		p.module = nil
	}
}

// stripListLen returns the number of list vertices for a strip of count.
func stripListLen(count int) int {
	if count < 3 {
		return 0
	}
	return 3 * (count - 2)
}

// stripToList expands a vec2 triangle strip into a triangle list,
// preserving the winding of every other triangle.
func stripToList(strip []float32, count int) []float32 {
	out := make([]float32, 0, 2*stripListLen(count))
	for i := 0; i+2 < count; i++ {
		a, b := i, i+1
		if i%2 == 1 {
			a, b = b, a
		}
		out = append(out,
			strip[2*a], strip[2*a+1],
			strip[2*b], strip[2*b+1],
			strip[2*(i+2)], strip[2*(i+2)+1])
	}
	return out
}

// spirvWords converts SPIR-V bytes to little-endian words.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

var (
	_ Context     = (*HALContext)(nil)
	_ ImageReader = (*HALContext)(nil)
)
