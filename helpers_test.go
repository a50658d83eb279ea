package phrames

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

var (
	red   = color.NRGBA{R: 220, G: 20, B: 20, A: 255}
	green = color.NRGBA{R: 0, G: 200, B: 0, A: 255}
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// solidImage returns a w x h image filled with c.
func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// windowFrame returns a size x size frame that is opaque c everywhere
// except a fully transparent square window of the given inset.
func windowFrame(size, inset int, c color.NRGBA) *image.NRGBA {
	img := solidImage(size, size, c)
	for y := inset; y < size-inset; y++ {
		for x := inset; x < size-inset; x++ {
			img.SetNRGBA(x, y, color.NRGBA{})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func colorClose(a, b color.NRGBA, tol int) bool {
	d := func(x, y uint8) bool {
		diff := int(x) - int(y)
		return diff >= -tol && diff <= tol
	}
	return d(a.R, b.R) && d(a.G, b.G) && d(a.B, b.B) && d(a.A, b.A)
}

// opaqueBounds returns the bounding box of pixels with alpha >= 128.
func opaqueBounds(s *Surface) (image.Rectangle, bool) {
	var r image.Rectangle
	found := false
	for y := 0; y < s.Height(); y++ {
		for x := 0; x < s.Width(); x++ {
			if s.NRGBAAt(x, y).A < 128 {
				continue
			}
			p := image.Rect(x, y, x+1, y+1)
			if !found {
				r = p
				found = true
				continue
			}
			r = r.Union(p)
		}
	}
	return r, found
}
