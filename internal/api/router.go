package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/tovor/internal/archive"
)

// NewRouter creates the bridge API router with all endpoints registered.
// Every route requires a valid, unrevoked bridge token.
func NewRouter(db *sql.DB, jwtSecret string, dispatcher Dispatcher, arch archive.Archive) http.Handler {
	mux := http.NewServeMux()

	eventsHandler := &EventsHandler{Dispatcher: dispatcher}
	archiveHandler := &ArchiveHandler{Archive: arch}

	authMW := AuthMiddleware(jwtSecret, db)

	// Inbound chat events.
	mux.Handle("POST /api/events", authMW(http.HandlerFunc(eventsHandler.Text)))
	mux.Handle("POST /api/events/attachment", authMW(http.HandlerFunc(eventsHandler.Attachment)))

	// Archived documents.
	mux.Handle("GET /api/users/{id}/archive", authMW(http.HandlerFunc(archiveHandler.List)))
	mux.Handle("GET /api/users/{id}/archive/{name}", authMW(http.HandlerFunc(archiveHandler.Get)))

	return mux
}
