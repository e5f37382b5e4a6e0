// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

// copyWGSL draws a textured quad with one sampled texture.
const copyWGSL = `
@group(0) @binding(0) var src_tex: texture_2d<f32>;
@group(0) @binding(1) var src_sampler: sampler;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(@location(0) position: vec2<f32>, @location(1) uv: vec2<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = vec4<f32>(position, 0.0, 1.0);
    out.uv = uv;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(src_tex, src_sampler, in.uv);
}
`

// copyFragment is the CPU equivalent of copyWGSL.
func copyFragment(in *FragmentInput) RGBA {
	return in.Samples[0]
}

// fullUV maps the quad corners to the full texture.
var fullUV = []float32{0, 0, 1, 0, 0, 1, 1, 1}

func copyDescriptor() *PipelineDescriptor {
	return &PipelineDescriptor{
		Label:         "copy",
		Shader:        copyWGSL,
		VertexBuffers: 2,
		Textures:      1,
		Fragment:      copyFragment,
	}
}
