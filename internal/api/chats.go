package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/1040440-eng/chatfamily/internal/apperr"
	"github.com/1040440-eng/chatfamily/internal/models"
	"github.com/1040440-eng/chatfamily/internal/store"
	"github.com/1040440-eng/chatfamily/internal/upload"
	"github.com/1040440-eng/chatfamily/internal/ws"
)

const messageHistoryLimit = 300

// ChatsRoutes returns the chi router for /api/chats.
func ChatsRoutes(st store.Store, fanout *ws.Fanout, uploader upload.Uploader, jwtSecret string, maxUploadBytes int64) chi.Router {
	r := chi.NewRouter()
	h := &chatsHandler{store: st, fanout: fanout, uploader: uploader, maxUploadBytes: maxUploadBytes}
	r.Use(RequireAuth(jwtSecret))
	r.Post("/", h.createOrGet)
	r.Get("/", h.list)
	r.Get("/{chatID}/messages", h.messages)
	r.Post("/{chatID}/read", h.markRead)
	r.Post("/{chatID}/attachments", h.uploadAttachment)
	return r
}

type chatsHandler struct {
	store          store.Store
	fanout         *ws.Fanout
	uploader       upload.Uploader
	maxUploadBytes int64
}

func (h *chatsHandler) createOrGet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContactName string `json:"contactName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ContactName) == "" {
		writeError(w, apperr.New(apperr.InvalidArgument, "contactName is required"))
		return
	}
	userID := userIDFromContext(r.Context())
	contact, err := h.store.GetUserByLogin(r.Context(), req.ContactName)
	if err != nil {
		writeError(w, err)
		return
	}
	chat, err := h.store.CreateOrGetDirectChat(r.Context(), userID, contact.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := h.summaryFor(r, userID, chat.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *chatsHandler) list(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.ListChatsForUser(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []models.ChatSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *chatsHandler) messages(w http.ResponseWriter, r *http.Request) {
	chat, err := h.memberChat(r)
	if err != nil {
		writeError(w, err)
		return
	}
	msgs, err := h.store.ListMessages(r.Context(), chat.ID, messageHistoryLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *chatsHandler) markRead(w http.ResponseWriter, r *http.Request) {
	chat, err := h.memberChat(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.MarkChatRead(r.Context(), chat.ID, userIDFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	h.fanout.ChatUpdated(chat.ParticipantIDs, chat.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *chatsHandler) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	chat, err := h.memberChat(r)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := userIDFromContext(r.Context())
	sender, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, apperr.New(apperr.TooLarge, "attachment exceeds the upload limit"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperr.New(apperr.InvalidArgument, "file is required"))
		return
	}
	defer file.Close()

	obj, err := h.uploader.Store(header.Filename, file)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "upload failed", err))
		return
	}

	media := &models.Media{
		URL:         obj.URL,
		FileName:    header.Filename,
		MimeType:    obj.MimeType,
		Size:        obj.Size,
		DurationSec: parseFloat(r.FormValue("duration")),
		Width:       parseInt(r.FormValue("width")),
		Height:      parseInt(r.FormValue("height")),
	}
	kind := models.MessageKind(r.FormValue("kind"))
	if !models.ValidKind(kind) {
		kind = kindFromMime(obj.MimeType)
	}
	msg, err := h.store.AddMessage(r.Context(), chat.ID, userID, sender.Name, kind, r.FormValue("caption"), media)
	if err != nil {
		writeError(w, err)
		return
	}
	h.fanout.NewMessage(chat.ParticipantIDs, msg)
	h.fanout.ChatUpdated(chat.ParticipantIDs, chat.ID)
	writeJSON(w, http.StatusOK, msg)
}

// memberChat loads the chat named in the URL and verifies the caller
// participates in it.
func (h *chatsHandler) memberChat(r *http.Request) (*models.Chat, error) {
	chat, err := h.store.GetChat(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		return nil, err
	}
	userID := userIDFromContext(r.Context())
	for _, id := range chat.ParticipantIDs {
		if id == userID {
			return chat, nil
		}
	}
	return nil, apperr.New(apperr.Forbidden, "not a chat participant")
}

func (h *chatsHandler) summaryFor(r *http.Request, userID, chatID string) (*models.ChatSummary, error) {
	summaries, err := h.store.ListChatsForUser(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		if summaries[i].ChatID == chatID {
			return &summaries[i], nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "chat not found")
}

func kindFromMime(mime string) models.MessageKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.KindImage
	case strings.HasPrefix(mime, "video/"):
		return models.KindVideo
	case strings.HasPrefix(mime, "audio/"):
		return models.KindAudio
	default:
		return models.KindFile
	}
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
