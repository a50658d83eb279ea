package phrames

import (
	"context"
	"sync"
)

// Engine ties the transform model, input controller, compositor and
// exporter together for one visitor session. Its methods are safe for
// concurrent use.
type Engine struct {
	compositor *Compositor
	exporter   *Exporter
	input      *InputController
	onPreview  func(*Surface, Transform)

	mu      sync.Mutex
	photo   *Image
	preview *Surface
	frames  int
}

// NewEngine creates an engine with an empty preview.
//
//	e := phrames.NewEngine()
//	e.SetPhoto(photo)
//	e.PointerDown(phrames.Pt(200, 200))
//	e.PointerMove(phrames.Pt(220, 190))
//	e.PointerUp()
//	blob, err := e.Export(ctx, frameURL)
func NewEngine(opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	compositor := NewCompositor(o.previewInterp, o.exportInterp)
	e := &Engine{
		compositor: compositor,
		exporter: NewExporter(compositor, ExporterConfig{
			Sources:  o.sources,
			Counters: o.counters,
			Timeout:  o.exportTimeout,
			Now:      o.now,
		}),
		onPreview: o.onPreview,
		preview:   NewSurface(PreviewSize, PreviewSize),
	}
	e.input = NewInputController(o.clock, e.render)
	return e
}

// SetPhoto installs a new user photo and resets the transform to auto-cover.
func (e *Engine) SetPhoto(photo *Image) {
	e.mu.Lock()
	e.photo = photo
	e.mu.Unlock()

	if photo == nil {
		e.input.SetTransform(Transform{Scale: 1})
		return
	}
	e.input.Reset(photo.Width(), photo.Height())
}

// Photo returns the current photo, or nil.
func (e *Engine) Photo() *Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.photo
}

// Transform returns the current transform.
func (e *Engine) Transform() Transform {
	return e.input.Transform()
}

// Input returns the engine's input controller.
func (e *Engine) Input() *InputController {
	return e.input
}

// PointerDown starts a drag.
func (e *Engine) PointerDown(p Point) { e.input.PointerDown(p) }

// PointerMove continues a drag; repaints are coalesced per frame.
func (e *Engine) PointerMove(p Point) { e.input.PointerMove(p) }

// PointerUp ends a drag and paints the final position.
func (e *Engine) PointerUp() { e.input.PointerUp() }

// TouchStart starts a single-finger drag.
func (e *Engine) TouchStart(touches []Point) { e.input.TouchStart(touches) }

// TouchMove continues a touch drag.
func (e *Engine) TouchMove(touches []Point) { e.input.TouchMove(touches) }

// TouchEnd ends a touch drag.
func (e *Engine) TouchEnd() { e.input.TouchEnd() }

// Pan moves the photo by (dx, dy) preview pixels.
func (e *Engine) Pan(dx, dy float64) { e.input.Pan(dx, dy) }

// Zoom changes the scale by delta.
func (e *Engine) Zoom(delta float64) { e.input.ZoomBy(delta) }

// ZoomIn is the "+" control.
func (e *Engine) ZoomIn() { e.input.ZoomIn() }

// ZoomOut is the "-" control.
func (e *Engine) ZoomOut() { e.input.ZoomOut() }

// SetSlider sets the scale from the zoom slider (scale * 100).
func (e *Engine) SetSlider(value int) { e.input.SetSlider(value) }

// Reset restores the auto-cover transform for the current photo.
func (e *Engine) Reset() {
	photo := e.Photo()
	if photo == nil {
		e.input.SetTransform(Transform{Scale: 1})
		return
	}
	e.input.Reset(photo.Width(), photo.Height())
}

// PreviewPNG encodes the current preview surface.
func (e *Engine) PreviewPNG() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preview.PNG()
}

// Frames returns how many preview repaints have happened.
func (e *Engine) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// Export renders the current photo and transform at ExportSize with the
// frame at frameURL.
func (e *Engine) Export(ctx context.Context, frameURL string) (*Blob, error) {
	return e.exporter.Export(ctx, e.Photo(), frameURL, e.Transform())
}

// Download exports for campaign, delivers to target and updates counters.
func (e *Engine) Download(ctx context.Context, campaign CampaignRef, target DownloadTarget) (*Blob, error) {
	return e.exporter.Download(ctx, e.Photo(), campaign, e.Transform(), target)
}

// Share shares blob, or the campaign link when files cannot be shared.
func (e *Engine) Share(ctx context.Context, blob *Blob, campaign CampaignRef, sharer Sharer) (ShareOutcome, error) {
	return e.exporter.Share(ctx, blob, campaign, sharer)
}

// Close cancels any pending repaint and waits for background counter
// updates.
func (e *Engine) Close() {
	e.input.Close()
	e.exporter.Wait()
}

func (e *Engine) render(t Transform) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.compositor.RenderPreview(e.preview, e.photo, t)
	e.frames++
	if e.onPreview != nil {
		e.onPreview(e.preview, t)
	}
}
