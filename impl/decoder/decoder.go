// Package decoder turns encoded image bytes into a bitmap, optionally downsampled
// toward a requested size. Decoding is a pure function of its inputs: nothing is
// cached here and nothing is logged.
package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"imagefetch/types"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxPixels bounds the natural size of an image the decoder is willing to
// allocate for. Anything larger is reported as a decode failure.
const MaxPixels = 1 << 26

// ErrDecode is wrapped by every error the decoder returns
var ErrDecode = errors.New("unable to decode image")

// Func is the shape of a decoder. The request manager is handed one of these so
// tests can count decodes or force failures.
type Func func(data []byte, size types.Size) (*types.DecodedImage, error)

// Decode decodes the passed bytes. If size is set, the image is downsampled by the
// largest power of two that keeps both dimensions greater than or equal to the
// requested dimensions. The bounds are read first so the sample size is known
// before the pixels are decoded.
func Decode(data []byte, size types.Size) (*types.DecodedImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: image too large %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	natural := types.Size{Width: cfg.Width, Height: cfg.Height}
	if n := SampleSize(natural, size); n > 1 {
		img = downsample(img, n)
	}
	return &types.DecodedImage{
		Image:  img,
		Bytes:  Footprint(img),
		Format: format,
		Source: natural,
	}, nil
}

// SampleSize computes the power-of-two downsampling factor for an image of
// natural size src so that neither dimension drops below want. It returns 1 if
// want is not set or the image is already no larger than want.
func SampleSize(src, want types.Size) int {
	if !want.IsSet() {
		return 1
	}
	n := 1
	if src.Height > want.Height || src.Width > want.Width {
		halfHeight := src.Height / 2
		halfWidth := src.Width / 2
		for halfHeight/n >= want.Height && halfWidth/n >= want.Width {
			n *= 2
		}
	}
	return n
}

// downsample scales img down by factor n into a new RGBA bitmap
func downsample(img image.Image, n int) image.Image {
	b := img.Bounds()
	w, h := b.Dx()/n, b.Dy()/n
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Footprint returns the number of bytes in the pixel buffer of the passed image.
// For the standard library's concrete image types this is exact. For anything
// else four bytes per pixel is assumed.
func Footprint(img image.Image) int64 {
	rows := int64(img.Bounds().Dy())
	switch m := img.(type) {
	case *image.RGBA:
		return int64(m.Stride) * rows
	case *image.NRGBA:
		return int64(m.Stride) * rows
	case *image.RGBA64:
		return int64(m.Stride) * rows
	case *image.NRGBA64:
		return int64(m.Stride) * rows
	case *image.Gray:
		return int64(m.Stride) * rows
	case *image.Gray16:
		return int64(m.Stride) * rows
	case *image.Alpha:
		return int64(m.Stride) * rows
	case *image.Alpha16:
		return int64(m.Stride) * rows
	case *image.CMYK:
		return int64(m.Stride) * rows
	case *image.Paletted:
		return int64(m.Stride)*rows + int64(len(m.Palette))*4
	case *image.YCbCr:
		return int64(len(m.Y) + len(m.Cb) + len(m.Cr))
	case *image.NYCbCrA:
		return int64(len(m.Y) + len(m.Cb) + len(m.Cr) + len(m.A))
	}
	return int64(img.Bounds().Dx()) * rows * 4
}
