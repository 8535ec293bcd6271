// Package media persists inbound attachments under a per-user directory and
// hands out opaque references to them.
package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/erazemk/tovor/internal/imaging"
)

// ErrMediaIO wraps failures to store or read an attachment.
var ErrMediaIO = errors.New("media i/o error")

// Attachment is an inbound binary payload as delivered by the chat adapter.
type Attachment struct {
	Filename string
	MIME     string
	Data     io.Reader
}

// preferredExt pins the extension for MIME types whose system mapping is
// ambiguous (image/jpeg maps to .jfif, .jpe, .jpeg and .jpg).
var preferredExt = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"application/pdf": ".pdf",
}

var extRe = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// Store keeps attachments on local disk as <root>/<user>/<uuid><ext>.
type Store struct {
	root string
}

// NewStore creates the media root if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating media root: %w", err)
	}
	return &Store{root: root}, nil
}

// Save writes the attachment and returns its reference. Two attachments with
// the same display name never collide.
func (s *Store) Save(userID int64, a Attachment) (string, error) {
	if a.Data == nil {
		return "", fmt.Errorf("%w: empty attachment", ErrMediaIO)
	}

	dir := filepath.Join(s.root, strconv.FormatInt(userID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating user directory: %v", ErrMediaIO, err)
	}

	name := uuid.NewString() + extension(a.Filename, a.MIME)

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: creating temp file: %v", ErrMediaIO, err)
	}
	if _, err := io.Copy(tmp, a.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: writing attachment: %v", ErrMediaIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: closing attachment: %v", ErrMediaIO, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: moving attachment: %v", ErrMediaIO, err)
	}

	return strconv.FormatInt(userID, 10) + "/" + name, nil
}

// Open returns the stored payload of ref.
func (s *Store) Open(ref string) (io.ReadCloser, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrMediaIO, ref, err)
	}
	return f, nil
}

// Release deletes the payload behind ref. Failures are logged, not returned.
func (s *Store) Release(ref string) {
	if ref == "" {
		return
	}
	path, err := s.path(ref)
	if err != nil {
		slog.Warn("refusing to release media", "ref", ref, "error", err)
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to release media", "ref", ref, "error", err)
	}
}

// IsDisplayableImage reports whether ref starts with a supported raster image
// header of acceptable size. Only the header is read. Missing files and
// arbitrary documents simply report false.
func (s *Store) IsDisplayableImage(ref string) bool {
	if ref == "" {
		return false
	}
	f, err := s.Open(ref)
	if err != nil {
		return false
	}
	defer f.Close()
	return imaging.IsImage(f)
}

// Name returns the stored filename of ref.
func Name(ref string) string {
	if ref == "" {
		return ""
	}
	return filepath.Base(filepath.FromSlash(ref))
}

// path resolves ref inside the media root.
func (s *Store) path(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("%w: invalid reference %q", ErrMediaIO, ref)
	}
	return filepath.Join(s.root, clean), nil
}

// extension picks the stored file extension from the original filename,
// falling back to the MIME hint and finally to .bin.
func extension(filename, mimeType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); extRe.MatchString(ext) {
		return ext
	}
	mimeType = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	if ext, ok := preferredExt[mimeType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
