package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Local keeps documents on disk as <root>/<user>/<name>.
type Local struct {
	root string
}

// NewLocal creates the archive root if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive root: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) dir(userID int64) string {
	return filepath.Join(l.root, strconv.FormatInt(userID, 10))
}

// List returns the user's documents ordered by name. A user without an
// archive directory has an empty archive.
func (l *Local) List(ctx context.Context, userID int64) ([]Entry, error) {
	entries, err := os.ReadDir(l.dir(userID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}

	var out []Entry
	for _, e := range entries {
		if !e.Type().IsRegular() || checkName(e.Name()) != nil || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Open returns the named document.
func (l *Local) Open(ctx context.Context, userID int64, name string) (io.ReadCloser, error) {
	if err := checkName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	f, err := os.Open(filepath.Join(l.dir(userID), name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	return f, nil
}

// Write stores data under name, replacing any previous document.
func (l *Local) Write(ctx context.Context, userID int64, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	dir := l.dir(userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "doc-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp document: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing document: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("storing document: %w", err)
	}
	return nil
}
