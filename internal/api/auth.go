package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/1040440-eng/chatfamily/internal/apperr"
	"github.com/1040440-eng/chatfamily/internal/auth"
	"github.com/1040440-eng/chatfamily/internal/models"
	"github.com/1040440-eng/chatfamily/internal/notify"
	"github.com/1040440-eng/chatfamily/internal/store"
)

var validate = validator.New()

// AuthRoutes returns the chi router for /api/auth.
func AuthRoutes(st store.Store, otp *notify.OTP, jwtSecret string, jwtExpiry time.Duration) chi.Router {
	r := chi.NewRouter()
	h := &authHandler{store: st, otp: otp, jwtSecret: jwtSecret, jwtExpiry: jwtExpiry}
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/otp/request", h.otpRequest)
	r.Post("/otp/verify", h.otpVerify)
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(jwtSecret))
		r.Get("/me", h.me)
	})
	return r
}

type authHandler struct {
	store     store.Store
	otp       *notify.OTP
	jwtSecret string
	jwtExpiry time.Duration
}

func (h *authHandler) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.InvalidArgument, "invalid body"))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		writeError(w, apperr.New(apperr.InvalidArgument, "name must be 2-40 characters and password at least 8"))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("hash password", "err", err)
		writeError(w, apperr.Wrap(apperr.Internal, "registration failed", err))
		return
	}
	user, err := h.store.CreateUser(r.Context(), req.Name, "", req.Email, &hash)
	if err != nil {
		writeError(w, err)
		return
	}
	h.sendAuthResponse(w, user)
}

func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.InvalidArgument, "invalid body"))
		return
	}
	user, err := h.store.GetUserByLogin(r.Context(), strings.TrimSpace(req.Name))
	if err != nil || user.PasswordHash == nil || !auth.ComparePassword(*user.PasswordHash, req.Password) {
		writeError(w, apperr.New(apperr.Unauthorized, "invalid name or password"))
		return
	}
	h.sendAuthResponse(w, user)
}

func (h *authHandler) otpRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.InvalidArgument, "invalid body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, apperr.New(apperr.InvalidArgument, "a valid email is required"))
		return
	}
	// Issued even for unknown addresses so callers cannot probe accounts.
	retryAfter, err := h.otp.Issue(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"retryAfterSec": int(retryAfter.Seconds())})
}

func (h *authHandler) otpVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.InvalidArgument, "invalid body"))
		return
	}
	if !h.otp.Verify(req.Email, req.Code) {
		writeError(w, apperr.New(apperr.Unauthorized, "invalid or expired code"))
		return
	}
	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, apperr.New(apperr.Unauthorized, "invalid or expired code"))
		return
	}
	h.sendAuthResponse(w, user)
}

func (h *authHandler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUserByID(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeError(w, apperr.New(apperr.Unauthorized, "user not found"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *authHandler) sendAuthResponse(w http.ResponseWriter, user *models.User) {
	token, err := auth.IssueToken(user.ID, h.jwtSecret, time.Now().Add(h.jwtExpiry))
	if err != nil {
		slog.Error("issue token", "err", err)
		writeError(w, apperr.Wrap(apperr.Internal, "could not create session", err))
		return
	}
	writeJSON(w, http.StatusOK, models.AuthResponse{Token: token, User: *user})
}
