package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
)

const (
	// DefaultMaxKB is the target encoded size ceiling. The upstream
	// vision API hard-rejects payloads over ~5MB, so we aim well under.
	DefaultMaxKB = 1024

	// DefaultTargetWidth is the width gallery uploads are downscaled to
	// before the quality loop runs.
	DefaultTargetWidth = 1200

	frameQuality = 90
	startQuality = 70
	qualityStep  = 10
	qualityFloor = 30
)

// ErrPermissionDenied is reported when a client signals that camera
// access was refused. It is distinct from decode failures so the two
// get different user-facing remedies.
var ErrPermissionDenied = errors.New("camera permission denied")

// DecodeError wraps a failure to decode the incoming image bytes
// (corrupt file or unsupported format).
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Image is a single normalized still frame: a size-bounded JPEG,
// consumed immediately by the analyzer and kept on disk only for the
// review screen.
type Image struct {
	Data   []byte
	Width  int
	Height int
}

// SizeKB returns the approximate encoded size in kilobytes.
func (i *Image) SizeKB() int {
	return len(i.Data) / 1024
}

// Base64 returns the payload in the wire format the vision APIs expect.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// Options control upload normalization. Zero values fall back to the
// package defaults.
type Options struct {
	MaxKB       int
	TargetWidth int
}

func (o Options) withDefaults() Options {
	if o.MaxKB <= 0 {
		o.MaxKB = DefaultMaxKB
	}
	if o.TargetWidth <= 0 {
		o.TargetWidth = DefaultTargetWidth
	}
	return o
}

// FromFrame normalizes a live camera frame. The frame is assumed to be
// at a sane device resolution already, so it is re-encoded once at
// fixed high quality with no iterative compression.
func FromFrame(raw []byte) (*Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	data, err := encodeJPEG(img, frameQuality)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}

	b := img.Bounds()
	return &Image{Data: data, Width: b.Dx(), Height: b.Dy()}, nil
}

// FromUpload normalizes a gallery-selected file. Wide images are
// proportionally downscaled to the target width, then re-encoded at
// decreasing JPEG quality until the result fits the size budget or the
// quality floor is hit. An image still over budget at the floor is
// accepted as-is and left for the upstream service to reject.
func FromUpload(raw []byte, contentType string, opts Options) (*Image, error) {
	opts = opts.withDefaults()

	img, err := decodeUpload(raw, contentType)
	if err != nil {
		return nil, err
	}

	if img.Bounds().Dx() > opts.TargetWidth {
		img = downscale(img, opts.TargetWidth)
	}

	quality := startQuality
	data, err := encodeJPEG(img, quality)
	if err != nil {
		return nil, fmt.Errorf("encoding upload: %w", err)
	}
	for len(data) > opts.MaxKB*1024 && quality > qualityFloor {
		quality -= qualityStep
		data, err = encodeJPEG(img, quality)
		if err != nil {
			return nil, fmt.Errorf("encoding upload: %w", err)
		}
	}

	b := img.Bounds()
	return &Image{Data: data, Width: b.Dx(), Height: b.Dy()}, nil
}

// downscale resizes to the given width, preserving aspect ratio.
func downscale(img image.Image, width int) image.Image {
	b := img.Bounds()
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
