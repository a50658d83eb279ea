package phrames

import "math"

// Canvas geometry and zoom limits shared by the preview and export paths.
const (
	// PreviewSize is the edge length of the square preview surface.
	// Transform offsets are expressed in this pixel space.
	PreviewSize = 400

	// ExportSize is the edge length of the downloadable composite.
	ExportSize = 1080

	// MinScale and MaxScale bound Transform.Scale for zoom, slider and
	// explicit transforms. AutoFit is not clamped so small photos still
	// cover the canvas.
	MinScale = 0.1
	MaxScale = 5.0

	// ZoomStep is the scale delta of one zoom button press.
	ZoomStep = 0.1

	// SliderMin and SliderMax bound the zoom slider, which carries
	// the scale multiplied by 100.
	SliderMin = 10
	SliderMax = 500
)

// Transform is the pan offset and zoom applied to the user photo.
//
// X and Y are the offset of the photo centre from the canvas centre in
// preview pixels. Scale multiplies the photo's natural size.
type Transform struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
}

// AutoFit returns the transform that makes a photo of the given natural
// size cover a square canvas of canvasSize pixels, centred, with any excess
// cropped. The scale is not clamped. Degenerate sizes yield scale 1.
func AutoFit(imgWidth, imgHeight int, canvasSize float64) Transform {
	if imgWidth <= 0 || imgHeight <= 0 || canvasSize <= 0 {
		return Transform{Scale: 1}
	}
	s := math.Max(canvasSize/float64(imgWidth), canvasSize/float64(imgHeight))
	return Transform{Scale: s}
}

// Pan moves the photo by (dx, dy) preview pixels. Offsets are unbounded;
// dragging the photo out of the frame is allowed.
func Pan(t Transform, dx, dy float64) Transform {
	return Transform{X: t.X + dx, Y: t.Y + dy, Scale: t.Scale}
}

// Zoom adds delta to the scale and clamps the result to [MinScale, MaxScale].
func Zoom(t Transform, delta float64) Transform {
	t.Scale = clampScale(t.Scale + delta)
	return t
}

// FromSlider sets the scale from a slider position (scale * 100).
func FromSlider(t Transform, value int) Transform {
	t.Scale = clampScale(float64(value) / 100)
	return t
}

// SliderValue returns the slider position for t, within [SliderMin, SliderMax].
func SliderValue(t Transform) int {
	v := int(math.Round(t.Scale * 100))
	if v < SliderMin {
		return SliderMin
	}
	if v > SliderMax {
		return SliderMax
	}
	return v
}

// Clamp returns t with its scale forced into range. NaN scales become 1.
func (t Transform) Clamp() Transform {
	t.Scale = clampScale(t.Scale)
	return t
}

// Equal reports whether t and o differ by at most eps in every component.
func (t Transform) Equal(o Transform, eps float64) bool {
	return math.Abs(t.X-o.X) <= eps &&
		math.Abs(t.Y-o.Y) <= eps &&
		math.Abs(t.Scale-o.Scale) <= eps
}

func clampScale(s float64) float64 {
	if math.IsNaN(s) {
		return 1
	}
	if s < MinScale {
		return MinScale
	}
	if s > MaxScale {
		return MaxScale
	}
	return s
}
