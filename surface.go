package phrames

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
)

// Surface is a square or rectangular pixel buffer that the compositor draws
// into. Pixels are stored premultiplied in an *image.RGBA so they can be
// handed to image/draw and golang.org/x/image/draw without conversion.
type Surface struct {
	img *image.RGBA
}

// NewSurface creates a transparent surface with the given dimensions.
func NewSurface(width, height int) *Surface {
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Width returns the width of the surface.
func (s *Surface) Width() int {
	return s.img.Rect.Dx()
}

// Height returns the height of the surface.
func (s *Surface) Height() int {
	return s.img.Rect.Dy()
}

// Resize reallocates the pixel buffer when the dimensions change and clears
// it either way, the way assigning canvas.width resets an HTML canvas.
func (s *Surface) Resize(width, height int) {
	if s.Width() != width || s.Height() != height {
		s.img = image.NewRGBA(image.Rect(0, 0, width, height))
		return
	}
	s.Clear(color.Transparent)
}

// Clear fills the entire surface with a color.
func (s *Surface) Clear(c color.Color) {
	draw.Draw(s.img, s.img.Rect, image.NewUniform(c), image.Point{}, draw.Src)
}

// NRGBAAt returns the non-premultiplied color of a single pixel.
// Out-of-range coordinates return transparent black.
func (s *Surface) NRGBAAt(x, y int) color.NRGBA {
	if !(image.Point{X: x, Y: y}).In(s.img.Rect) {
		return color.NRGBA{}
	}
	return color.NRGBAModel.Convert(s.img.RGBAAt(x, y)).(color.NRGBA)
}

// Image returns the backing image. The caller must not retain it across a
// Resize.
func (s *Surface) Image() *image.RGBA {
	return s.img
}

// EncodePNG writes the surface as a PNG to w.
func (s *Surface) EncodePNG(w io.Writer) error {
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(w, s.img); err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return nil
}

// PNG returns the surface encoded as PNG bytes.
func (s *Surface) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SavePNG saves the surface to a PNG file.
func (s *Surface) SavePNG(path string) error {
	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	if err := s.EncodePNG(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// At implements the image.Image interface.
func (s *Surface) At(x, y int) color.Color {
	return s.img.At(x, y)
}

// Bounds implements the image.Image interface.
func (s *Surface) Bounds() image.Rectangle {
	return s.img.Rect
}

// ColorModel implements the image.Image interface.
func (s *Surface) ColorModel() color.Model {
	return color.RGBAModel
}
