package phrames

import "errors"

// Photo validation and decoding errors.
var (
	// ErrEmptyImage is returned when an upload carries no bytes.
	ErrEmptyImage = errors.New("phrames: empty image")

	// ErrNotImage is returned when the bytes are not an image MIME type.
	ErrNotImage = errors.New("phrames: not an image")

	// ErrTooLarge is returned when an upload exceeds MaxPhotoBytes or
	// MaxPhotoPixels.
	ErrTooLarge = errors.New("phrames: image too large")

	// ErrDecode is returned when image bytes cannot be decoded.
	ErrDecode = errors.New("phrames: decode image")

	// ErrBadDataURL is returned for malformed data URLs.
	ErrBadDataURL = errors.New("phrames: malformed data URL")
)

// Export errors.
var (
	// ErrNoPhoto is returned when an export is requested before a photo is set.
	ErrNoPhoto = errors.New("phrames: no photo loaded")

	// ErrNoFrameSource is returned when an exporter has nothing to load frames with.
	ErrNoFrameSource = errors.New("phrames: no frame source configured")

	// ErrFrameUnavailable is returned when every frame source failed.
	ErrFrameUnavailable = errors.New("phrames: frame image unavailable")

	// ErrFrameTimeout is returned when frame loading exceeds the export deadline.
	ErrFrameTimeout = errors.New("phrames: frame image load timed out")

	// ErrEncode is returned when the composite cannot be encoded.
	ErrEncode = errors.New("phrames: encode composite")
)
