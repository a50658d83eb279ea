package phrames

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image/color"
	"net/url"
	"testing"
)

func TestValidatePhoto(t *testing.T) {
	pngData := encodePNG(t, solidImage(3, 2, red))

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, ErrEmptyImage},
		{"too large", make([]byte, MaxPhotoBytes+1), ErrTooLarge},
		{"text", []byte("hello, this is not a picture"), ErrNotImage},
		{"png", pngData, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, err := ValidatePhoto(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidatePhoto() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && mime != "image/png" {
				t.Errorf("mime = %q, want image/png", mime)
			}
		})
	}
}

func TestDecodePhoto(t *testing.T) {
	img, err := DecodePhoto(encodePNG(t, solidImage(30, 20, red)))
	if err != nil {
		t.Fatalf("DecodePhoto() = %v", err)
	}
	if img.Width() != 30 || img.Height() != 20 {
		t.Errorf("size = %dx%d, want 30x20", img.Width(), img.Height())
	}
	if img.MIME() != "image/png" {
		t.Errorf("MIME() = %q", img.MIME())
	}
	got := color.NRGBAModel.Convert(img.Bitmap().At(5, 5)).(color.NRGBA)
	if got != red {
		t.Errorf("pixel = %v, want %v", got, red)
	}
}

func TestDecodePhotoCorrupt(t *testing.T) {
	data := encodePNG(t, solidImage(30, 20, red))
	// Keep the signature so sniffing passes, then truncate.
	_, err := DecodePhoto(data[:40])
	if !errors.Is(err, ErrDecode) {
		t.Errorf("DecodePhoto(truncated) = %v, want ErrDecode", err)
	}
}

// pngClaiming returns a 1x1 PNG whose header declares w x h pixels.
func pngClaiming(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := encodePNG(t, solidImage(1, 1, red))
	// Signature (8) + IHDR length (4) + "IHDR" (4), then width and height.
	binary.BigEndian.PutUint32(data[16:], w)
	binary.BigEndian.PutUint32(data[20:], h)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecodeRejectsHugeDimensions(t *testing.T) {
	huge := pngClaiming(t, 20000, 20000)
	if len(huge) > 1024 {
		t.Fatalf("test image is %d bytes, want a tiny file", len(huge))
	}

	if _, err := DecodePhoto(huge); !errors.Is(err, ErrTooLarge) {
		t.Errorf("DecodePhoto(20000x20000) = %v, want ErrTooLarge", err)
	}
	if _, err := DecodeFrame(huge); !errors.Is(err, ErrTooLarge) {
		t.Errorf("DecodeFrame(20000x20000) = %v, want ErrTooLarge", err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(huge)
	if _, err := DecodeDataURL(dataURL); !errors.Is(err, ErrTooLarge) {
		t.Errorf("DecodeDataURL(20000x20000) = %v, want ErrTooLarge", err)
	}
}

func TestCheckPixelsBoundary(t *testing.T) {
	if err := checkPixels(pngClaiming(t, 5000, 10000)); err != nil {
		t.Errorf("checkPixels(5000x10000) = %v, want nil at the limit", err)
	}
	if err := checkPixels(pngClaiming(t, 5001, 10000)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("checkPixels(5001x10000) = %v, want ErrTooLarge", err)
	}
}

func TestReadPhoto(t *testing.T) {
	img, err := ReadPhoto(bytes.NewReader(encodePNG(t, solidImage(4, 4, green))))
	if err != nil {
		t.Fatalf("ReadPhoto() = %v", err)
	}
	if img.Width() != 4 {
		t.Errorf("Width() = %d", img.Width())
	}

	_, err = ReadPhoto(bytes.NewReader(make([]byte, MaxPhotoBytes+10)))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("ReadPhoto(oversized) = %v, want ErrTooLarge", err)
	}
}

func TestDecodeDataURL(t *testing.T) {
	pngData := encodePNG(t, solidImage(8, 6, red))
	b64 := base64.StdEncoding.EncodeToString(pngData)

	img, err := DecodeDataURL("data:image/png;base64," + b64)
	if err != nil {
		t.Fatalf("DecodeDataURL(base64) = %v", err)
	}
	if img.Width() != 8 || img.Height() != 6 {
		t.Errorf("size = %dx%d", img.Width(), img.Height())
	}

	img, err = DecodeDataURL("data:image/png," + url.PathEscape(string(pngData)))
	if err != nil {
		t.Fatalf("DecodeDataURL(percent) = %v", err)
	}
	if img.Width() != 8 {
		t.Errorf("percent-encoded Width() = %d", img.Width())
	}

	errTests := []struct {
		name string
		in   string
		want error
	}{
		{"no scheme", "image/png;base64," + b64, ErrBadDataURL},
		{"no comma", "data:image/png;base64", ErrBadDataURL},
		{"bad base64", "data:image/png;base64,!!!", ErrBadDataURL},
		{"declared text", "data:text/plain;base64," + b64, ErrNotImage},
		{"payload is text", "data:image/png,hello", ErrNotImage},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeDataURL(tt.in); !errors.Is(err, tt.want) {
				t.Errorf("DecodeDataURL() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeFrame(t *testing.T) {
	frame, err := DecodeFrame(encodePNG(t, windowFrame(10, 2, green)))
	if err != nil {
		t.Fatalf("DecodeFrame() = %v", err)
	}
	if a := color.NRGBAModel.Convert(frame.Bitmap().At(5, 5)).(color.NRGBA).A; a != 0 {
		t.Errorf("window alpha = %d, want 0", a)
	}
	if _, err := DecodeFrame([]byte("<html>")); !errors.Is(err, ErrNotImage) {
		t.Errorf("DecodeFrame(html) = %v, want ErrNotImage", err)
	}
}
