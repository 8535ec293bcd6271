package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{0, 255, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func TestSaveOpenRelease(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	ref, err := s.Save(42, Attachment{Filename: "shirt.PNG", Data: bytes.NewReader(pngBytes(t))})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(ref, "42/") || !strings.HasSuffix(ref, ".png") {
		t.Errorf("unexpected ref %q", ref)
	}
	if !s.IsDisplayableImage(ref) {
		t.Error("expected saved PNG to be displayable")
	}

	f, err := s.Open(ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if !bytes.Equal(data, pngBytes(t)) {
		t.Error("stored payload differs from the original")
	}

	s.Release(ref)
	if _, err := s.Open(ref); err == nil {
		t.Error("expected Open to fail after Release")
	}
	// Releasing twice only logs.
	s.Release(ref)
}

func TestSaveSameNameDoesNotCollide(t *testing.T) {
	s, _ := NewStore(t.TempDir())

	a, err := s.Save(1, Attachment{Filename: "photo.jpg", Data: strings.NewReader("one")})
	if err != nil {
		t.Fatalf("Save a: %v", err)
	}
	b, err := s.Save(1, Attachment{Filename: "photo.jpg", Data: strings.NewReader("two")})
	if err != nil {
		t.Fatalf("Save b: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct refs, both %q", a)
	}
}

func TestNonImageIsNotDisplayable(t *testing.T) {
	s, _ := NewStore(t.TempDir())

	ref, err := s.Save(7, Attachment{Filename: "invoice.pdf", Data: strings.NewReader("%PDF-1.4 fake")})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if s.IsDisplayableImage(ref) {
		t.Error("pdf must not be displayable")
	}
	if s.IsDisplayableImage("7/missing.png") {
		t.Error("missing file must not be displayable")
	}
	if s.IsDisplayableImage("") {
		t.Error("empty ref must not be displayable")
	}
}

func TestReleaseRejectsEscapingRefs(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(filepath.Dir(root), "keep.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing outside file: %v", err)
	}
	t.Cleanup(func() { os.Remove(outside) })

	s, _ := NewStore(root)
	s.Release("../keep.txt")

	if _, err := os.Stat(outside); err != nil {
		t.Errorf("file outside media root was removed: %v", err)
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		filename, mime, want string
	}{
		{"a.JPG", "", ".jpg"},
		{"", "image/jpeg", ".jpg"},
		{"", "image/png; charset=binary", ".png"},
		{"noext", "application/pdf", ".pdf"},
		{"", "", ".bin"},
		{"weird.ext with space", "", ".bin"},
	}
	for _, tt := range tests {
		if got := extension(tt.filename, tt.mime); got != tt.want {
			t.Errorf("extension(%q, %q) = %q, want %q", tt.filename, tt.mime, got, tt.want)
		}
	}
}

func TestName(t *testing.T) {
	if got := Name("42/abc.png"); got != "abc.png" {
		t.Errorf("Name = %q, want abc.png", got)
	}
	if got := Name(""); got != "" {
		t.Errorf("Name(\"\") = %q, want empty", got)
	}
}
