// Package imaging decodes stored attachments and renders the bounded
// thumbnails embedded in generated documents.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	imgio "github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	// Extra raster formats users commonly send from phones and desktops.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultThumbnailMax is the default longest side of a thumbnail, in pixels.
const DefaultThumbnailMax = 100

// MaxPixels bounds the pixel count of an image that will be fully decoded.
const MaxPixels = 50_000_000

// ErrTooLarge is returned for images whose header declares more than
// MaxPixels pixels.
var ErrTooLarge = errors.New("image too large")

// Thumbnail is an encoded PNG thumbnail with its pixel dimensions.
type Thumbnail struct {
	Data   []byte
	Width  int
	Height int
}

// Decode reads a raster image, applying EXIF orientation when present.
// Non-image payloads return an error; callers treat that as a normal branch.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imgio.Decode(r, imgio.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// Probe reads only the image header from r and checks its dimensions
// against MaxPixels.
func Probe(r io.Reader) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return image.Config{}, fmt.Errorf("reading image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, fmt.Errorf("reading image header: empty %dx%d image", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return image.Config{}, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	return cfg, nil
}

// IsImage reports whether r starts with a supported raster image header of
// acceptable size. Pixel data is not decoded.
func IsImage(r io.Reader) bool {
	_, err := Probe(r)
	return err == nil
}

// MakeThumbnail decodes r once and returns a PNG whose longest side is at
// most maxDim pixels, preserving aspect ratio. Images over MaxPixels are
// rejected from their header before any pixel data is decoded.
func MakeThumbnail(r io.Reader, maxDim int) (*Thumbnail, error) {
	if maxDim <= 0 {
		maxDim = DefaultThumbnailMax
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if _, err := Probe(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	img = downscale(img, maxDim)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	b := img.Bounds()
	return &Thumbnail{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// downscale resizes the image so neither dimension exceeds maxDim.
// Uses high-quality Catmull-Rom interpolation.
// Returns the original image if already within bounds.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := fitWithin(bounds.Dx(), bounds.Dy(), maxDim)
	if w == bounds.Dx() && h == bounds.Dy() {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// fitWithin returns w x h scaled so the longest side is at most maxDim.
func fitWithin(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}

	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	return newW, newH
}
