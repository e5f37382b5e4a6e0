// Package opchain provides a push-based operation chain for real-time video
// effects: a directed graph of processing nodes that receive texture frames,
// transform or blend them on the GPU and forward the results downstream.
//
// # Overview
//
// A producer (camera capture, ML inference) pushes a [Frame] into a node's
// Receive method. The node processes it synchronously, submitting GPU work
// without waiting for completion, and fans the result out to its registered
// targets with [Emit]. Frames flow recursively until they reach terminal
// sinks such as a preview or a recorder.
//
// # Quick Start
//
//	ctx := render.NewSoftwareContext()
//	defer ctx.Destroy()
//
//	chain := opchain.NewChain(ctx)
//	defer chain.Close()
//
//	comp, err := compositor.New(ctx, "camera")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	comp.SetCompositeImage(background)
//
//	preview := sink.NewPreview(nil)
//	if err := chain.Link(camera, comp, preview); err != nil {
//	    log.Fatal(err)
//	}
//
// # Ownership
//
// Frames share their texture through a reference-counted handle. Each
// Receive call hands one reference to the receiver, which must forward it
// or call [Frame.Release]. The texture is destroyed on the last release.
//
// # Architecture
//
// The module is organized into:
//   - opchain: Frame, Node, Targets, Emit, Chain, audio edges, logging
//   - render: rendering context with CPU and wgpu HAL implementations
//   - compositor: letterbox-fit background compositor node
//   - capture, inference, imageload, sink: reference collaborators
//   - metrics: Prometheus instrumentation for nodes
//
// # Concurrency
//
// The graph is a synchronous callback graph with no scheduler. Per-node
// processing order equals arrival order. Target containers are safe for
// concurrent use and nodes may rewire the chain from inside Receive.
package opchain
