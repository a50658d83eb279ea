package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saadchadu/phrames"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func fill(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	photo := filepath.Join(dir, "photo.png")
	frame := filepath.Join(dir, "frame.png")
	out := filepath.Join(dir, "out.png")
	preview := filepath.Join(dir, "preview.png")

	writePNG(t, photo, fill(300, 200, color.NRGBA{R: 255, A: 255}))
	writePNG(t, frame, fill(50, 50, color.NRGBA{})) // fully transparent

	var stdout bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"render", "--photo", photo, "--frame", frame, "--out", out, "--preview", preview})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, stdout.String(), "wrote "+out)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, phrames.ExportSize, img.Bounds().Dx())
	r, _, _, a := img.At(phrames.ExportSize/2, phrames.ExportSize/2).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), a)

	_, err = os.Stat(preview)
	assert.NoError(t, err)
}

func TestRenderCommandErrors(t *testing.T) {
	dir := t.TempDir()
	frame := filepath.Join(dir, "frame.png")
	writePNG(t, frame, fill(10, 10, color.NRGBA{}))

	cmd := rootCmd()
	cmd.SetArgs([]string{"render", "--frame", frame})
	assert.Error(t, cmd.Execute(), "photo is required")

	notImage := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notImage, []byte("just text"), 0o600))
	err := runRender(context.Background(), renderOptions{photo: notImage, frame: frame, out: filepath.Join(dir, "o.png")}, &bytes.Buffer{})
	assert.ErrorIs(t, err, phrames.ErrNotImage)

	photo := filepath.Join(dir, "photo.png")
	writePNG(t, photo, fill(10, 10, color.NRGBA{R: 255, A: 255}))
	err = runRender(context.Background(), renderOptions{photo: photo, frame: filepath.Join(dir, "missing.png"), out: filepath.Join(dir, "o.png")}, &bytes.Buffer{})
	assert.ErrorIs(t, err, phrames.ErrFrameUnavailable)
}
