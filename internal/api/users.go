package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/1040440-eng/chatfamily/internal/apperr"
	"github.com/1040440-eng/chatfamily/internal/models"
	"github.com/1040440-eng/chatfamily/internal/store"
)

// UsersRoutes returns the chi router for /api/users.
func UsersRoutes(st store.Store, jwtSecret string) chi.Router {
	r := chi.NewRouter()
	h := &usersHandler{store: st}
	r.Use(RequireAuth(jwtSecret))
	r.Get("/search", h.search)
	return r
}

type usersHandler struct {
	store store.Store
}

func (h *usersHandler) search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len([]rune(query)) < 2 {
		writeError(w, apperr.New(apperr.InvalidArgument, "query must be at least 2 characters"))
		return
	}
	users, err := h.store.SearchUsers(r.Context(), query, userIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}
