// Package archive stores finished documents under a per-user namespace.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrNotFound is returned when a user's archive holds no document of the
// requested name.
var ErrNotFound = errors.New("document not found")

// ContentType is the MIME type of archived documents.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Entry describes one archived document.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified"`
}

// Archive lists, opens and writes documents. List returns entries ordered
// by name. Write overwrites an existing document of the same name.
type Archive interface {
	List(ctx context.Context, userID int64) ([]Entry, error)
	Open(ctx context.Context, userID int64, name string) (io.ReadCloser, error)
	Write(ctx context.Context, userID int64, name string, data []byte) error
}

// checkName rejects names that would escape the user's namespace.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("invalid document name %q", name)
	}
	return nil
}
