package phrames

import (
	"context"
	"fmt"
	"image/color"
)

// FrameLoader produces the decoded frame for a composite. A failing loader
// makes the compositor fall back to a photo-only render.
type FrameLoader func(ctx context.Context) (*Image, error)

// Compositor draws the photo and frame layers onto surfaces.
//
// Preview and composite renders share the same placement math, scaled by
// targetSize/PreviewSize, so what the user sees at 400px is what they get
// at 1080px.
type Compositor struct {
	previewInterp Interpolation
	exportInterp  Interpolation
}

// NewCompositor returns a compositor sampling with previewInterp for live
// previews and exportInterp for composites.
func NewCompositor(previewInterp, exportInterp Interpolation) *Compositor {
	return &Compositor{previewInterp: previewInterp, exportInterp: exportInterp}
}

// Placement returns the rectangle covered by a photo of the given natural
// size when t is rendered on a square surface of targetSize pixels.
func Placement(t Transform, imgWidth, imgHeight int, targetSize float64) Rect {
	k := targetSize / PreviewSize
	cx := targetSize/2 + t.X*k
	cy := targetSize/2 + t.Y*k
	w := float64(imgWidth) * t.Scale * k
	h := float64(imgHeight) * t.Scale * k
	return Rect{
		Min: Point{X: cx - w/2, Y: cy - h/2},
		Max: Point{X: cx + w/2, Y: cy + h/2},
	}
}

// PhotoMatrix returns the user-space to surface matrix used to draw the
// photo centred on the origin: translate to the surface centre, translate by
// the scaled offset, then scale uniformly.
func PhotoMatrix(t Transform, targetSize float64) Matrix {
	k := targetSize / PreviewSize
	return Translate(targetSize/2, targetSize/2).
		Multiply(Translate(t.X*k, t.Y*k)).
		Multiply(Scale(t.Scale*k, t.Scale*k))
}

// RenderPreview resets dst to PreviewSize and draws only the photo layer.
// The frame is layered on top by the client, so it is not drawn here.
// A nil photo leaves the surface cleared.
func (c *Compositor) RenderPreview(dst *Surface, photo *Image, t Transform) {
	dst.Resize(PreviewSize, PreviewSize)
	if photo == nil {
		return
	}
	cv := NewCanvas(dst, c.previewInterp)
	drawPhoto(cv, photo, t, PreviewSize)
}

// RenderComposite resets dst to targetSize and draws the photo, then the
// frame stretched over the whole surface with source-over compositing.
// When frame is nil the surface is filled white and only the photo is drawn.
func (c *Compositor) RenderComposite(dst *Surface, photo, frame *Image, t Transform, targetSize int) error {
	if photo == nil {
		return ErrNoPhoto
	}
	if targetSize <= 0 {
		return fmt.Errorf("phrames: invalid target size %d", targetSize)
	}

	dst.Resize(targetSize, targetSize)
	cv := NewCanvas(dst, c.exportInterp)
	if frame == nil {
		cv.Clear(color.White)
	}

	drawPhoto(cv, photo, t, float64(targetSize))

	if frame != nil {
		size := float64(targetSize)
		cv.DrawImageScaled(frame.Bitmap(), 0, 0, size, size)
	}
	return nil
}

// Composite loads the frame with load and renders the composite. A frame
// load failure is logged and degrades to a photo-only render on white.
func (c *Compositor) Composite(ctx context.Context, dst *Surface, photo *Image, load FrameLoader, t Transform, targetSize int) error {
	var frame *Image
	if load != nil {
		f, err := load(ctx)
		if err != nil {
			Logger().Warn("frame unavailable, rendering photo only", "err", err)
		} else {
			frame = f
		}
	}
	return c.RenderComposite(dst, photo, frame, t, targetSize)
}

func drawPhoto(cv *Canvas, photo *Image, t Transform, targetSize float64) {
	cv.Push()
	defer cv.Pop()

	k := targetSize / PreviewSize
	cv.Translate(targetSize/2, targetSize/2)
	cv.Translate(t.X*k, t.Y*k)
	cv.Scale(t.Scale*k, t.Scale*k)

	w, h := float64(photo.Width()), float64(photo.Height())
	cv.DrawImageScaled(photo.Bitmap(), -w/2, -h/2, w, h)
}
