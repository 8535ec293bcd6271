package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func createTestJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func createTestPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{0, 0, 255, 255})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestIsImage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"jpeg", createTestJPEG(20, 10), true},
		{"png", createTestPNG(10, 20), true},
		{"pdf", []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj"), false},
		{"text", []byte("just some notes"), false},
		{"empty", nil, false},
		{"truncated png", createTestPNG(10, 10)[:16], false},
	}

	for _, tt := range tests {
		if got := IsImage(bytes.NewReader(tt.data)); got != tt.want {
			t.Errorf("IsImage(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMakeThumbnailBoundsLongestSide(t *testing.T) {
	thumb, err := MakeThumbnail(bytes.NewReader(createTestJPEG(400, 200)), 100)
	if err != nil {
		t.Fatalf("MakeThumbnail: %v", err)
	}
	if thumb.Width != 100 || thumb.Height != 50 {
		t.Errorf("expected 100x50, got %dx%d", thumb.Width, thumb.Height)
	}

	img, err := png.Decode(bytes.NewReader(thumb.Data))
	if err != nil {
		t.Fatalf("thumbnail is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("encoded thumbnail is %dx%d", b.Dx(), b.Dy())
	}
}

func TestMakeThumbnailPortrait(t *testing.T) {
	thumb, err := MakeThumbnail(bytes.NewReader(createTestPNG(150, 600)), 100)
	if err != nil {
		t.Fatalf("MakeThumbnail: %v", err)
	}
	if thumb.Width != 25 || thumb.Height != 100 {
		t.Errorf("expected 25x100, got %dx%d", thumb.Width, thumb.Height)
	}
}

func TestMakeThumbnailSmallImageNotUpscaled(t *testing.T) {
	thumb, err := MakeThumbnail(bytes.NewReader(createTestJPEG(50, 40)), 100)
	if err != nil {
		t.Fatalf("MakeThumbnail: %v", err)
	}
	if thumb.Width != 50 || thumb.Height != 40 {
		t.Errorf("small image should not be resized: got %dx%d", thumb.Width, thumb.Height)
	}
}

func TestMakeThumbnailRejectsNonImage(t *testing.T) {
	if _, err := MakeThumbnail(bytes.NewReader([]byte("not an image")), 100); err == nil {
		t.Error("expected error for non-image payload")
	}
}

func TestFitWithinNeverZero(t *testing.T) {
	w, h := fitWithin(10000, 1, 100)
	if w != 100 || h != 1 {
		t.Errorf("expected 100x1, got %dx%d", w, h)
	}
}

// pngHeader returns the signature and IHDR chunk of a w x h PNG with no
// pixel data after it.
func pngHeader(w, h uint32) []byte {
	hdr := append([]byte(nil), createTestPNG(1, 1)[:33]...)
	binary.BigEndian.PutUint32(hdr[16:20], w)
	binary.BigEndian.PutUint32(hdr[20:24], h)
	binary.BigEndian.PutUint32(hdr[29:33], crc32.ChecksumIEEE(hdr[12:29]))
	return hdr
}

func TestProbeReadsHeaderOnly(t *testing.T) {
	cfg, err := Probe(bytes.NewReader(pngHeader(640, 480)))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("Probe = %dx%d, want 640x480", cfg.Width, cfg.Height)
	}
	if !IsImage(bytes.NewReader(pngHeader(640, 480))) {
		t.Error("IsImage should accept a valid header")
	}

	// The pixel data is missing, so the one full decode fails.
	if _, err := MakeThumbnail(bytes.NewReader(pngHeader(640, 480)), 100); err == nil {
		t.Error("expected MakeThumbnail to fail without pixel data")
	}
}

func TestOversizedImageRejected(t *testing.T) {
	huge := pngHeader(20000, 20000)

	if _, err := Probe(bytes.NewReader(huge)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Probe = %v, want ErrTooLarge", err)
	}
	if IsImage(bytes.NewReader(huge)) {
		t.Error("IsImage accepted an oversized image")
	}
	if _, err := MakeThumbnail(bytes.NewReader(huge), 100); !errors.Is(err, ErrTooLarge) {
		t.Errorf("MakeThumbnail = %v, want ErrTooLarge", err)
	}
}
