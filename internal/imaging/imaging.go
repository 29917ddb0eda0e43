// Package imaging normalises report photos before they are stored.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"

	"golang.org/x/image/draw"

	"github.com/erazemk/najdbe/internal/model"
)

// Defaults for Normalizer.
const (
	DefaultMaxDimension = 1024
	DefaultQuality      = 85
	DefaultMaxBytes     = 10 << 20
)

// Photo is a processed image ready for storage.
type Photo struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Normalizer accepts JPEG and PNG uploads, bounds their size and re-encodes
// them as JPEG.
type Normalizer struct {
	MaxDimension int
	Quality      int
	MaxBytes     int
}

// NewNormalizer returns a Normalizer with the default limits.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		MaxDimension: DefaultMaxDimension,
		Quality:      DefaultQuality,
		MaxBytes:     DefaultMaxBytes,
	}
}

// Normalize validates data by its content, not a client supplied type, and
// returns the downscaled JPEG. Rejected input wraps model.ErrValidation.
func (n *Normalizer) Normalize(data []byte) (*Photo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: photo is empty", model.ErrValidation)
	}
	if n.MaxBytes > 0 && len(data) > n.MaxBytes {
		return nil, fmt.Errorf("%w: photo exceeds %d bytes", model.ErrValidation, n.MaxBytes)
	}
	switch mime := http.DetectContentType(data); mime {
	case "image/jpeg", "image/png":
	default:
		return nil, fmt.Errorf("%w: unsupported photo format %s", model.ErrValidation, mime)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding photo: %v", model.ErrValidation, err)
	}
	img = fit(img, n.MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.Quality}); err != nil {
		return nil, fmt.Errorf("encoding photo: %w", err)
	}
	b := img.Bounds()
	return &Photo{
		Data:   buf.Bytes(),
		MIME:   "image/jpeg",
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// fit scales img down so neither side exceeds limit, keeping the aspect
// ratio. Smaller images are returned unchanged.
func fit(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if limit <= 0 || (w <= limit && h <= limit) {
		return img
	}

	nw, nh := limit, h*limit/w
	if h > w {
		nw, nh = w*limit/h, limit
	}
	nw, nh = max(nw, 1), max(nh, 1)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
