package profile

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
)

var (
	ErrInvalidFileType = errors.New("uploaded file is not a supported image")
	ErrFileTooLarge    = errors.New("uploaded image exceeds the size limit")
)

// ImageNormalizer converts arbitrary uploaded images into a single
// canonical form: bounded dimensions, one color mode, JPEG at a fixed
// quality. Everything stored on disk went through here.
type ImageNormalizer struct {
	maxBytes     int64
	maxDimension int
	jpegQuality  int
}

func NewImageNormalizer(maxBytes int64, maxDimension, jpegQuality int) *ImageNormalizer {
	return &ImageNormalizer{
		maxBytes:     maxBytes,
		maxDimension: maxDimension,
		jpegQuality:  jpegQuality,
	}
}

// MaxBytes returns the payload cap so handlers can bound request reads.
func (n *ImageNormalizer) MaxBytes() int64 {
	return n.maxBytes
}

// Normalize validates and re-encodes an uploaded image. The size gate
// runs before any decoding: a payload at exactly the limit is accepted,
// one byte over is rejected.
func (n *ImageNormalizer) Normalize(data []byte) ([]byte, error) {
	if int64(len(data)) > n.maxBytes {
		return nil, fmt.Errorf("%w: got %d bytes, limit is %d", ErrFileTooLarge, len(data), n.maxBytes)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFileType, err)
	}

	// Clamp the longer side; Fit never upscales.
	bounds := img.Bounds()
	if bounds.Dx() > n.maxDimension || bounds.Dy() > n.maxDimension {
		img = imaging.Fit(img, n.maxDimension, n.maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(n.jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode normalized image: %w", err)
	}

	return buf.Bytes(), nil
}
