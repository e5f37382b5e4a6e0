// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"image"

	"github.com/gogpu/opchain/metrics"
)

// BlendMode selects how the source is combined with the base.
type BlendMode int

const (
	// BlendOverlay mixes the source colour over the base weighted by the
	// source alpha and the mixture; the base alpha is kept.
	BlendOverlay BlendMode = iota

	// BlendReplaceBackground keeps the base where its alpha is opaque and
	// shows the source where it is transparent. Use it after a segmentation
	// model that writes the person mask into the base alpha. The output is
	// opaque.
	BlendReplaceBackground
)

// String returns the name of the blend mode.
func (m BlendMode) String() string {
	switch m {
	case BlendOverlay:
		return "overlay"
	case BlendReplaceBackground:
		return "replace-background"
	default:
		return "unknown"
	}
}

// DefaultSourceKey is the key of streamed source frames unless
// WithSourceKey overrides it.
const DefaultSourceKey = "background"

// Option configures a Compositor during creation.
//
// Example:
//
//	comp, err := compositor.New(ctx, "camera",
//	    compositor.WithSourceKey("mask"),
//	    compositor.WithBlendMode(compositor.BlendReplaceBackground),
//	)
type Option func(*options)

// options holds optional configuration for Compositor creation.
type options struct {
	name        string
	sourceKey   string
	sourceFrame image.Rectangle
	mixture     float32
	mode        BlendMode
	metrics     *metrics.Collector
}

// defaultOptions returns the default compositor options.
func defaultOptions() options {
	return options{
		name:      "background_compositor",
		sourceKey: DefaultSourceKey,
		mixture:   1,
		mode:      BlendOverlay,
	}
}

// WithName sets the node name used in logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithSourceKey sets the key of frames treated as the streamed source.
func WithSourceKey(key string) Option {
	return func(o *options) {
		o.sourceKey = key
	}
}

// WithSourceFrame places the source inside r, given in output pixels.
// Output pixels outside r keep the base colour. The empty rectangle (the
// default) covers the whole output.
func WithSourceFrame(r image.Rectangle) Option {
	return func(o *options) {
		o.sourceFrame = r.Canon()
	}
}

// WithMixture sets the source weight in [0, 1]. Values are clamped.
func WithMixture(m float32) Option {
	return func(o *options) {
		o.mixture = clampMixture(m)
	}
}

// WithBlendMode selects the blend mode.
func WithBlendMode(m BlendMode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// WithMetrics records frame outcomes and render timings in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

func clampMixture(m float32) float32 {
	if m < 0 || m != m {
		return 0
	}
	if m > 1 {
		return 1
	}
	return m
}
