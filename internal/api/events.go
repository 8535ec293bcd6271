package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/tovor/internal/bot"
	"github.com/erazemk/tovor/internal/media"
)

// maxAttachment is the largest accepted attachment upload.
const maxAttachment = 20 << 20

// Dispatcher handles chat events.
type Dispatcher interface {
	Handle(ctx context.Context, ev bot.Event) []bot.Reply
}

// EventsHandler accepts events from a chat bridge and returns the replies
// the bridge should render.
type EventsHandler struct {
	Dispatcher Dispatcher
}

type eventRequest struct {
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
	Button string `json:"button"`
}

type eventResponse struct {
	Replies []bot.Reply `json:"replies"`
}

// Text handles POST /api/events.
func (h *EventsHandler) Text(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID == 0 {
		jsonError(w, http.StatusBadRequest, "user_id required")
		return
	}
	if (req.Text == "") == (req.Button == "") {
		jsonError(w, http.StatusBadRequest, "exactly one of text or button required")
		return
	}

	replies := h.Dispatcher.Handle(r.Context(), bot.Event{
		UserID: req.UserID,
		Bridge: bridgeName(r),
		Text:   req.Text,
		Button: req.Button,
	})
	jsonResponse(w, http.StatusOK, eventResponse{Replies: replies})
}

// Attachment handles POST /api/events/attachment.
func (h *EventsHandler) Attachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAttachment)

	if err := r.ParseMultipartForm(maxAttachment); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	userID, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("user_id")), 10, 64)
	if err != nil || userID == 0 {
		jsonError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	replies := h.Dispatcher.Handle(r.Context(), bot.Event{
		UserID: userID,
		Bridge: bridgeName(r),
		Attachment: &media.Attachment{
			Filename: header.Filename,
			MIME:     header.Header.Get("Content-Type"),
			Data:     file,
		},
	})
	jsonResponse(w, http.StatusOK, eventResponse{Replies: replies})
}

// bridgeName returns the bridge named in the request's token.
func bridgeName(r *http.Request) string {
	if claims := GetClaims(r.Context()); claims != nil {
		return claims.Bridge
	}
	return ""
}
