// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package compositor provides the background compositor node.
//
// A [Compositor] blends a live base stream (for example the camera) with a
// source image. The source is either a static texture set with
// [Compositor.SetCompositeImage] or a second frame stream selected by key.
// Each input is letterbox-cropped to the output aspect ratio with
// [TextureCoordinates]; the output size is the per-axis minimum of the two
// input sizes.
//
// # Blend Modes
//
//   - [BlendOverlay]: the source is drawn over the base, weighted by its
//     alpha and the mixture
//   - [BlendReplaceBackground]: the source shows through where the base is
//     transparent, as written by a segmentation model
//
// # Usage
//
//	comp, err := compositor.New(ctx, "camera",
//	    compositor.WithBlendMode(compositor.BlendReplaceBackground),
//	    compositor.WithMetrics(collector),
//	)
//	if err != nil {
//	    return err
//	}
//	defer comp.Close()
//
//	if err := comp.SetCompositeImageFrom(background); err != nil {
//	    log.Printf("compositing disabled: %v", err)
//	}
//
// Without a source the compositor bypasses: base frames are forwarded
// unchanged and no GPU work is submitted.
package compositor
