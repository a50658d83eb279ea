// Package phrames composites visitor photos behind campaign photo frames.
//
// # Overview
//
// A creator publishes a transparent PNG frame. A visitor loads a photo,
// drags and zooms it behind the frame while watching a live preview, and
// downloads a 1080x1080 composite. This package is the engine behind that
// flow; package-level HTTP bindings live in internal/server.
//
// # Quick Start
//
//	photo, err := phrames.DecodePhoto(data)
//	if err != nil {
//	    return err
//	}
//
//	e := phrames.NewEngine(phrames.WithFrameSources(
//	    &phrames.ProxySource{Endpoint: "https://phrames.example/api/image-proxy"},
//	    &phrames.DirectSource{},
//	))
//	defer e.Close()
//
//	e.SetPhoto(photo)      // auto-cover the 400x400 preview
//	e.Pan(20, -10)         // preview pixels
//	e.ZoomIn()             // +0.1 scale
//	blob, err := e.Export(ctx, frameURL)
//
// # Architecture
//
// The engine is organized into:
//   - Transform model: Transform, AutoFit, Pan, Zoom (pure functions)
//   - Input controller: InputController and FrameScheduler, which coalesce
//     drag updates to one repaint per frame without losing the last one
//   - Compositor: Canvas, Surface and Matrix, drawing the photo and then
//     the frame with source-over compositing
//   - Exporter: frame loading through the image proxy with fallbacks, PNG
//     encoding, download delivery, counters and sharing
//
// # Coordinate System
//
// Uses standard raster coordinates:
//   - Origin (0,0) at top-left
//   - X increases right
//   - Y increases down
//   - Transform offsets are preview (400x400) pixels from the canvas centre
//
// Only translation and uniform scaling are applied, so the photo's aspect
// ratio is always preserved.
package phrames
