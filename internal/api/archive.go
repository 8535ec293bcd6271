package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/erazemk/tovor/internal/archive"
)

// ArchiveHandler serves users' archived documents to the bridge.
type ArchiveHandler struct {
	Archive archive.Archive
}

// List handles GET /api/users/{id}/archive.
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	entries, err := h.Archive.List(r.Context(), id)
	if err != nil {
		slog.Error("failed to list archive", "user", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}
	if entries == nil {
		entries = []archive.Entry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}

// Get handles GET /api/users/{id}/archive/{name}.
func (h *ArchiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	name := r.PathValue("name")

	doc, err := h.Archive.Open(r.Context(), id, name)
	if errors.Is(err, archive.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "no such file")
		return
	}
	if err != nil {
		slog.Error("failed to open document", "user", id, "name", name, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to open document")
		return
	}
	defer doc.Close()

	w.Header().Set("Content-Type", archive.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if _, err := io.Copy(w, doc); err != nil {
		slog.Warn("failed to send document", "user", id, "name", name, "error", err)
	}
}
