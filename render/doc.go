// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render provides the rendering context that operation chain nodes
// draw with.
//
// # Key Principle
//
// The chain RECEIVES a GPU device from the host application, it does NOT
// create its own. The host builds a [Context] once and hands it to the chain
// root, which passes it to every node at construction. There is no global
// device, queue or shader library.
//
// # Core Interfaces
//
//   - [Context]: allocates textures, buffers and pipelines and submits passes
//   - [Texture]: a 2D image owned by a context
//   - [Pipeline]: a quad render pipeline compiled from WGSL
//   - [RenderPass]: one clear-and-draw into a target texture
//
// # Implementations
//
//   - [HALContext]: wgpu HAL device and queue; WGSL is compiled with naga
//   - [SoftwareContext]: CPU rasterizer running each pipeline's
//     [FragmentFunc]; used by tests and hosts without a GPU
//
// # Usage
//
//	ctx, err := render.NewHALContext(device, queue)
//	if err != nil {
//	    return err
//	}
//	defer ctx.Destroy()
//
//	pipeline, err := ctx.NewPipeline(&render.PipelineDescriptor{
//	    Label:         "copy",
//	    Shader:        copyWGSL,
//	    VertexBuffers: 2,
//	    Textures:      1,
//	    Fragment:      copyFragment,
//	})
//
// Work submitted through a context executes in submission order. Submit does
// not wait; resources destroyed while a submission may read them are
// released after it completes.
package render
