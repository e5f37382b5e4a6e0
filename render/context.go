// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"

	"github.com/gogpu/opchain/internal/blend"
)

// Rendering context errors.
var (
	// ErrInvalidSize is returned when a texture or buffer has a non-positive size.
	ErrInvalidSize = errors.New("render: invalid size")

	// ErrNilTarget is returned when a render pass has no target texture.
	ErrNilTarget = errors.New("render: nil target")

	// ErrNilPipeline is returned when a render pass has no pipeline.
	ErrNilPipeline = errors.New("render: nil pipeline")

	// ErrEmptyShader is returned when a pipeline descriptor has no shader source.
	ErrEmptyShader = errors.New("render: empty shader source")

	// ErrNoFragment is returned by the software context for pipelines
	// without a CPU fragment function.
	ErrNoFragment = errors.New("render: pipeline has no CPU fragment function")

	// ErrForeignResource is returned when a resource created by another
	// context is passed to Submit.
	ErrForeignResource = errors.New("render: resource belongs to another context")

	// ErrDestroyed is returned when a destroyed context or resource is used.
	ErrDestroyed = errors.New("render: resource destroyed")

	// ErrBindingMismatch is returned when a render pass does not provide the
	// buffers or textures its pipeline declares.
	ErrBindingMismatch = errors.New("render: pass bindings do not match pipeline")
)

// RGBA is a straight (non-premultiplied) colour with components in [0, 1].
type RGBA = blend.Color

// QuadVertices are the standard normalized device positions of a
// full-target quad, ordered as a triangle strip: top-left, top-right,
// bottom-left, bottom-right.
var QuadVertices = [8]float32{-1, 1, 1, 1, -1, -1, 1, -1}

// QuadVertexCount is the number of strip vertices in a quad.
const QuadVertexCount = 4

// Buffer is a block of vertex or uniform data owned by a rendering context.
type Buffer interface {
	// Len returns the number of float32 values in the buffer.
	Len() int

	// Destroy releases the buffer. GPU-backed buffers are released once
	// in-flight submissions that read them have completed.
	Destroy()
}

// Pipeline is a compiled render pipeline.
type Pipeline interface {
	// Label returns the debug label of the pipeline.
	Label() string

	// Destroy releases the pipeline.
	Destroy()
}

// FragmentInput is the per-pixel input of a CPU fragment function.
type FragmentInput struct {
	// Position is the pixel centre in normalized output coordinates,
	// origin at the top-left corner.
	Position [2]float32

	// Samples holds one filtered sample per texture binding. Texture i is
	// sampled at the coordinates interpolated from vertex buffer i+1.
	Samples []RGBA

	// UV holds the interpolated texture coordinates of texture i.
	UV [][2]float32

	// Uniforms is the content of the pass uniform buffer.
	Uniforms []float32

	textures []*image.NRGBA
}

// Sample samples texture i at (u, v) with the pass sampler. It lets a
// fragment function sample at coordinates it computes itself.
func (in *FragmentInput) Sample(i int, u, v float32) RGBA {
	if i < 0 || i >= len(in.textures) {
		return RGBA{}
	}
	return sampleBilinear(in.textures[i], u, v)
}

// FragmentFunc is the CPU equivalent of a pipeline's fragment stage.
// The software context calls it once per covered pixel.
type FragmentFunc func(in *FragmentInput) RGBA

// PipelineDescriptor describes a quad render pipeline.
//
// Vertex buffer 0 carries positions, vertex buffer i (i >= 1) carries the
// texture coordinates of texture binding i-1. All vertex attributes are
// vec2<f32> at shader location equal to the buffer slot. Textures occupy
// bindings 0..Textures-1 of group 0, followed by a filtering sampler and,
// when UniformSize > 0, a uniform buffer.
type PipelineDescriptor struct {
	// Label is an optional debug label.
	Label string

	// Shader is the WGSL source for both stages.
	Shader string

	// VertexEntryPoint is the vertex stage entry point (default "vs_main").
	VertexEntryPoint string

	// FragmentEntryPoint is the fragment stage entry point (default "fs_main").
	FragmentEntryPoint string

	// VertexBuffers is the number of vec2<f32> vertex streams.
	VertexBuffers int

	// Textures is the number of sampled texture bindings.
	Textures int

	// UniformSize is the uniform buffer size in bytes (multiple of 16, or 0).
	UniformSize int

	// Format is the colour attachment format.
	Format gputypes.TextureFormat

	// Fragment is the CPU fragment function used by the software context.
	Fragment FragmentFunc
}

// withDefaults fills in entry points and format.
func (d PipelineDescriptor) withDefaults() PipelineDescriptor {
	if d.VertexEntryPoint == "" {
		d.VertexEntryPoint = "vs_main"
	}
	if d.FragmentEntryPoint == "" {
		d.FragmentEntryPoint = "fs_main"
	}
	if d.Format == gputypes.TextureFormatUndefined {
		d.Format = gputypes.TextureFormatRGBA8Unorm
	}
	return d
}

// RenderPass describes one quad draw into a freshly cleared target.
type RenderPass struct {
	// Label is an optional debug label.
	Label string

	// Target receives the output. It is cleared to ClearColor first.
	Target Texture

	// ClearColor is the colour the target is cleared to.
	ClearColor gputypes.Color

	// Pipeline is the pipeline used for the draw.
	Pipeline Pipeline

	// VertexBuffers are bound to slots 0..n-1.
	VertexBuffers []Buffer

	// Textures are bound to texture bindings 0..n-1.
	Textures []Texture

	// Uniforms is bound after the sampler; may be nil.
	Uniforms Buffer

	// VertexCount is the number of strip vertices to draw.
	VertexCount int
}

// validate checks the pass against its pipeline declaration.
func (p *RenderPass) validate(desc *PipelineDescriptor) error {
	if p.Target == nil {
		return ErrNilTarget
	}
	if p.Pipeline == nil {
		return ErrNilPipeline
	}
	if len(p.VertexBuffers) != desc.VertexBuffers || len(p.Textures) != desc.Textures {
		return fmt.Errorf("%w: %d vertex buffers, %d textures; pipeline %q wants %d, %d",
			ErrBindingMismatch, len(p.VertexBuffers), len(p.Textures),
			desc.Label, desc.VertexBuffers, desc.Textures)
	}
	if desc.UniformSize > 0 && p.Uniforms == nil {
		return fmt.Errorf("%w: pipeline %q needs uniforms", ErrBindingMismatch, desc.Label)
	}
	for i, t := range p.Textures {
		if t == nil {
			return fmt.Errorf("%w: texture %d is nil", ErrBindingMismatch, i)
		}
	}
	for i, b := range p.VertexBuffers {
		if b == nil {
			return fmt.Errorf("%w: vertex buffer %d is nil", ErrBindingMismatch, i)
		}
	}
	return nil
}

// Context is an explicitly passed rendering context: a device plus its
// command queue. The pipeline root owns it and hands it to every node at
// construction.
//
// Submit is fire-and-forget: it returns once the work is queued. Work
// submitted through one context executes in submission order.
type Context interface {
	// NewTexture allocates an uninitialized texture.
	NewTexture(desc TextureDescriptor) (Texture, error)

	// NewTextureFromImage allocates a texture and uploads img into it.
	NewTextureFromImage(label string, img image.Image) (Texture, error)

	// NewVertexBuffer uploads per-vertex data.
	NewVertexBuffer(label string, data []float32) (Buffer, error)

	// NewUniformBuffer uploads uniform data.
	NewUniformBuffer(label string, data []float32) (Buffer, error)

	// NewPipeline builds a quad render pipeline. Failures are construction
	// errors and must abort the setup of the node requesting the pipeline.
	NewPipeline(desc *PipelineDescriptor) (Pipeline, error)

	// Submit encodes and queues a render pass.
	Submit(pass *RenderPass) error

	// Flush blocks until all submitted work has completed.
	Flush() error

	// Destroy releases the context and everything it still owns.
	Destroy()
}

// ImageReader is implemented by contexts that can read a texture back to
// CPU memory. The returned image must not be modified.
type ImageReader interface {
	ReadImage(tex Texture) (*image.NRGBA, error)
}

// ValidateShader checks that WGSL source compiles.
func ValidateShader(source string) error {
	if source == "" {
		return ErrEmptyShader
	}
	if _, err := naga.Compile(source); err != nil {
		return fmt.Errorf("render: compile shader: %w", err)
	}
	return nil
}

// uniformBytes rounds a float count up to a 16-byte multiple.
func uniformBytes(n int) int {
	b := n * 4
	return (b + 15) &^ 15
}
