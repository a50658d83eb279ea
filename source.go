package phrames

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"net/url"
	"strings"

	// Decoders for the formats visitors upload and creators use for frames.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxPhotoBytes is the largest accepted photo or frame upload (10 MB).
const MaxPhotoBytes = 10 << 20

// MaxPhotoPixels bounds the decoded size of a photo or frame. Compressed
// images far below MaxPhotoBytes can still expand to gigabytes of pixels.
const MaxPhotoPixels = 50_000_000

// Image is a decoded bitmap together with the MIME type it was sniffed as.
// It is immutable once created and safe to share between renders.
type Image struct {
	img  image.Image
	mime string
}

// NewImage wraps an already decoded image.
func NewImage(img image.Image) *Image {
	return &Image{img: img}
}

// Bitmap returns the decoded pixels.
func (i *Image) Bitmap() image.Image {
	return i.img
}

// Width returns the natural width in pixels.
func (i *Image) Width() int {
	return i.img.Bounds().Dx()
}

// Height returns the natural height in pixels.
func (i *Image) Height() int {
	return i.img.Bounds().Dy()
}

// MIME returns the sniffed MIME type, or "" for images built with NewImage.
func (i *Image) MIME() string {
	return i.mime
}

// ValidatePhoto checks that data is a non-empty image of at most
// MaxPhotoBytes, sniffing the content rather than trusting a declared type.
// It returns the detected MIME type.
func ValidatePhoto(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if len(data) > MaxPhotoBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(data), MaxPhotoBytes)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}
	return mt.String(), nil
}

// DecodePhoto validates and decodes a user photo. EXIF orientation is
// applied so phone pictures are upright.
func DecodePhoto(data []byte) (*Image, error) {
	mime, err := ValidatePhoto(data)
	if err != nil {
		return nil, err
	}
	if err := checkPixels(data); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: zero-sized image", ErrDecode)
	}
	return &Image{img: img, mime: mime}, nil
}

// ReadPhoto reads at most MaxPhotoBytes from r and decodes them as a photo.
func ReadPhoto(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxPhotoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("phrames: read photo: %w", err)
	}
	return DecodePhoto(data)
}

// DecodeDataURL decodes a photo carried in a data URL such as
// "data:image/png;base64,iVBOR...". The declared type must be an image type,
// and the payload is sniffed again before decoding.
func DecodeDataURL(s string) (*Image, error) {
	data, declared, err := parseDataURL(s)
	if err != nil {
		return nil, err
	}
	if declared != "" && !strings.HasPrefix(declared, "image/") {
		return nil, fmt.Errorf("%w: declared %s", ErrNotImage, declared)
	}
	return DecodePhoto(data)
}

// DecodeFrame decodes a frame image. Frames are drawn as-is, so no
// orientation correction is applied.
func DecodeFrame(data []byte) (*Image, error) {
	mime, err := ValidatePhoto(data)
	if err != nil {
		return nil, err
	}
	if err := checkPixels(data); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: zero-sized image", ErrDecode)
	}
	return &Image{img: img, mime: mime}, nil
}

// checkPixels reads the image header and rejects images whose pixel count
// exceeds MaxPhotoPixels.
func checkPixels(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: zero-sized image", ErrDecode)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPhotoPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, MaxPhotoPixels)
	}
	return nil
}

func parseDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, "", ErrBadDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrBadDataURL
	}

	params := strings.Split(meta, ";")
	declared := strings.ToLower(strings.TrimSpace(params[0]))
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	if isBase64 {
		if base64.StdEncoding.DecodedLen(len(payload)) > MaxPhotoBytes+3 {
			return nil, declared, ErrTooLarge
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, declared, fmt.Errorf("%w: %v", ErrBadDataURL, err)
		}
		return data, declared, nil
	}

	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, declared, fmt.Errorf("%w: %v", ErrBadDataURL, err)
	}
	return []byte(data), declared, nil
}
