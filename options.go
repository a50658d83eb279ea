package phrames

import "time"

// Option configures an Engine during creation.
// Use functional options to customize Engine behavior.
//
// Example:
//
//	// Headless engine driven one frame at a time
//	clock := phrames.NewManualClock()
//	e := phrames.NewEngine(phrames.WithFrameClock(clock))
//
//	// Engine exporting through the image proxy, then the direct URL
//	e := phrames.NewEngine(phrames.WithFrameSources(
//	    &phrames.ProxySource{Endpoint: "https://phrames.example/api/image-proxy"},
//	    &phrames.DirectSource{},
//	))
type Option func(*options)

// options holds optional configuration for Engine creation.
type options struct {
	clock         FrameClock
	previewInterp Interpolation
	exportInterp  Interpolation
	sources       []FrameSource
	counters      Counters
	exportTimeout time.Duration
	now           func() time.Time
	onPreview     func(*Surface, Transform)
}

// defaultOptions returns the default engine options.
func defaultOptions() options {
	return options{
		clock:         nil, // Will be a 60 Hz TimerClock if nil
		previewInterp: InterpBilinear,
		exportInterp:  InterpCatmullRom,
		exportTimeout: DefaultExportTimeout,
		now:           time.Now,
	}
}

// WithFrameClock sets the animation-frame source used to coalesce drag
// repaints.
func WithFrameClock(c FrameClock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithInterpolation sets the sampling modes for live previews and exports.
func WithInterpolation(preview, export Interpolation) Option {
	return func(o *options) {
		o.previewInterp = preview
		o.exportInterp = export
	}
}

// WithFrameSources sets the ordered frame loading chain used on export.
func WithFrameSources(sources ...FrameSource) Option {
	return func(o *options) {
		o.sources = sources
	}
}

// WithCounters sets the collaborator incremented after each download.
func WithCounters(c Counters) Option {
	return func(o *options) {
		o.counters = c
	}
}

// WithExportTimeout bounds frame loading during export.
func WithExportTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.exportTimeout = d
		}
	}
}

// WithNow overrides the clock used for download names and counter days.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPreviewHandler registers fn to receive the preview surface after each
// repaint. fn runs with the engine's preview locked and must not call back
// into the engine; copy or encode the surface before returning.
func WithPreviewHandler(fn func(*Surface, Transform)) Option {
	return func(o *options) {
		o.onPreview = fn
	}
}
