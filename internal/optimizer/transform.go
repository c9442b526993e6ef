package optimizer

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	// Decoders for every supported extension.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// bestCompressionMethod is libwebp's slowest, smallest-output effort level.
const bestCompressionMethod = 6

var (
	errZeroHeight = errors.New("resized height is zero")
	errEmptyImage = errors.New("image has no pixels")
)

// NeedsNormalization reports whether img carries a palette or non-opaque alpha.
// Such images are flattened to opaque RGB before encoding. Truecolor buffers whose
// alpha is fully opaque, like the RGBA the png decoder returns for RGB files, are left alone.
func NeedsNormalization(img image.Image) bool {
	switch m := img.(type) {
	case *image.Paletted:
		return true
	case *image.NRGBA, *image.RGBA,
		*image.NRGBA64, *image.RGBA64,
		*image.Alpha, *image.Alpha16,
		*image.NYCbCrA:
		o, ok := m.(interface{ Opaque() bool })
		return !ok || !o.Opaque()
	default:
		return false
	}
}

// NormalizeColorMode drops the alpha channel of img and expands any palette.
// Color values are kept as stored; transparent pixels are not composited over a background.
func NormalizeColorMode(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// TargetSize returns the dimensions an image of width x height is encoded at.
// Images no wider than maxWidth keep their size; wider ones are scaled to maxWidth
// with the height truncated toward zero.
func TargetSize(width, height, maxWidth int) (int, int, bool) {
	if width <= maxWidth {
		return width, height, false
	}
	scale := float64(maxWidth) / float64(width)
	return maxWidth, int(float64(height) * scale), true
}

// resize downscales img to fit maxWidth using Lanczos resampling.
func resize(img image.Image, maxWidth int) (image.Image, bool, error) {
	b := img.Bounds()
	w, h, resized := TargetSize(b.Dx(), b.Dy(), maxWidth)
	if !resized {
		return img, false, nil
	}
	if h <= 0 {
		return nil, false, fmt.Errorf("%w: %dx%d at max width %d", errZeroHeight, b.Dx(), b.Dy(), maxWidth)
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), true, nil
}

// encodeWebP writes img as lossy WebP at the given quality using the best compression method.
// Pixels are handed to libwebp as non-premultiplied RGBA; an opaque image gets no alpha chunk.
func encodeWebP(w io.Writer, img image.Image, quality int) error {
	if b := img.Bounds(); b.Empty() {
		return fmt.Errorf("%w: %dx%d", errEmptyImage, b.Dx(), b.Dy())
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = imaging.Clone(img)
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	if err != nil {
		return fmt.Errorf("webp options: %w", err)
	}
	options.Method = bestCompressionMethod

	if err := webp.Encode(w, nrgba, options); err != nil {
		return fmt.Errorf("webp encode: %w", err)
	}
	return nil
}
