package phrames

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// Interpolation selects how source pixels are sampled when an image is
// drawn under a scaling transform.
type Interpolation int

// Image interpolation modes.
const (
	// InterpBilinear performs linear interpolation between 4 neighboring pixels.
	// Good balance between quality and performance; the zero value.
	InterpBilinear Interpolation = iota

	// InterpNearest selects the closest pixel (no interpolation).
	// Fast but produces blocky results when scaling.
	InterpNearest

	// InterpCatmullRom performs cubic interpolation using a 4x4 pixel
	// neighborhood. Highest quality but slower than bilinear.
	InterpCatmullRom
)

// String returns the configuration name of the mode.
func (i Interpolation) String() string {
	switch i {
	case InterpNearest:
		return "nearest"
	case InterpCatmullRom:
		return "catmullrom"
	default:
		return "bilinear"
	}
}

// ParseInterpolation maps a configuration name to an Interpolation.
// The empty string selects bilinear.
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bilinear":
		return InterpBilinear, nil
	case "nearest":
		return InterpNearest, nil
	case "catmullrom", "bicubic":
		return InterpCatmullRom, nil
	}
	return InterpBilinear, fmt.Errorf("phrames: unknown interpolation %q", s)
}

func (i Interpolation) transformer() xdraw.Transformer {
	switch i {
	case InterpNearest:
		return xdraw.NearestNeighbor
	case InterpCatmullRom:
		return xdraw.CatmullRom
	default:
		return xdraw.BiLinear
	}
}

// Canvas is an immediate-mode drawing context over a Surface, modelled on
// the HTML canvas 2D context: a current transformation matrix, a save/restore
// stack, and DrawImage with source-over compositing.
type Canvas struct {
	surface *Surface
	interp  Interpolation

	matrix Matrix
	stack  []Matrix
}

// NewCanvas creates a canvas drawing into s with an identity transform.
func NewCanvas(s *Surface, interp Interpolation) *Canvas {
	return &Canvas{
		surface: s,
		interp:  interp,
		matrix:  Identity(),
		stack:   make([]Matrix, 0, 4),
	}
}

// Surface returns the surface the canvas draws into.
func (c *Canvas) Surface() *Surface {
	return c.surface
}

// Width returns the width of the canvas surface.
func (c *Canvas) Width() int {
	return c.surface.Width()
}

// Height returns the height of the canvas surface.
func (c *Canvas) Height() int {
	return c.surface.Height()
}

// Clear fills the whole surface, ignoring the current transform.
func (c *Canvas) Clear(col color.Color) {
	c.surface.Clear(col)
}

// Push saves the current transform.
func (c *Canvas) Push() {
	c.stack = append(c.stack, c.matrix)
}

// Pop restores the last saved transform.
func (c *Canvas) Pop() {
	if len(c.stack) == 0 {
		return
	}
	c.matrix = c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
}

// Identity resets the transformation matrix to identity.
func (c *Canvas) Identity() {
	c.matrix = Identity()
}

// Translate applies a translation to the transformation matrix.
func (c *Canvas) Translate(x, y float64) {
	c.matrix = c.matrix.Multiply(Translate(x, y))
}

// Scale applies a scaling transformation.
func (c *Canvas) Scale(x, y float64) {
	c.matrix = c.matrix.Multiply(Scale(x, y))
}

// GetTransform returns a copy of the current transformation matrix.
func (c *Canvas) GetTransform() Matrix {
	return c.matrix
}

// DrawImage draws img at its natural size with its top-left corner at
// (x, y) in user space.
func (c *Canvas) DrawImage(img image.Image, x, y float64) {
	b := img.Bounds()
	c.DrawImageScaled(img, x, y, float64(b.Dx()), float64(b.Dy()))
}

// DrawImageScaled draws img stretched to w by h user-space units with its
// top-left corner at (x, y). The current transform is applied and pixels
// are blended with source-over compositing, so transparent source regions
// leave the destination untouched.
func (c *Canvas) DrawImageScaled(img image.Image, x, y, w, h float64) {
	sr := img.Bounds()
	if sr.Empty() || w <= 0 || h <= 0 {
		return
	}

	m := c.matrix.
		Multiply(Translate(x, y)).
		Multiply(Scale(w/float64(sr.Dx()), h/float64(sr.Dy()))).
		Multiply(Translate(-float64(sr.Min.X), -float64(sr.Min.Y)))

	c.interp.transformer().Transform(c.surface.Image(), m.Aff3(), img, sr, xdraw.Over, nil)
}
