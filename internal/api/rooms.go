package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/1040440-eng/chatfamily/internal/apperr"
	"github.com/1040440-eng/chatfamily/internal/calls"
	"github.com/1040440-eng/chatfamily/internal/rooms"
	"github.com/1040440-eng/chatfamily/internal/store"
)

const roomTokenValidFor = 4 * time.Hour

// RoomsRoutes returns the router for /api/rooms. Join tokens are minted only
// for current participants of a live call, so knowing a room address alone
// grants nothing.
func RoomsRoutes(st store.Store, registry *calls.Registry, roomSvc *rooms.Service, jwtSecret string) chi.Router {
	r := chi.NewRouter()
	h := &roomsHandler{store: st, registry: registry, rooms: roomSvc}
	r.Use(RequireAuth(jwtSecret))
	r.Post("/token", h.token)
	return r
}

type roomsHandler struct {
	store    store.Store
	registry *calls.Registry
	rooms    *rooms.Service
}

func (h *roomsHandler) token(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CallID string `json:"callId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CallID == "" {
		writeError(w, apperr.New(apperr.InvalidArgument, "callId is required"))
		return
	}
	call, err := h.registry.Get(req.CallID)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := userIDFromContext(r.Context())
	if !call.HasParticipant(userID) {
		writeError(w, apperr.New(apperr.Forbidden, "not a call participant"))
		return
	}
	user, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := h.rooms.JoinToken(user.ID, user.Name, rooms.RoomName(call.ID, call.Kind), roomTokenValidFor)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "token generation failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":       token,
		"roomAddress": call.RoomURL,
	})
}
