package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/1040440-eng/chatfamily/internal/api"
	"github.com/1040440-eng/chatfamily/internal/calls"
	"github.com/1040440-eng/chatfamily/internal/config"
	"github.com/1040440-eng/chatfamily/internal/notify"
	"github.com/1040440-eng/chatfamily/internal/rooms"
	"github.com/1040440-eng/chatfamily/internal/store"
	"github.com/1040440-eng/chatfamily/internal/upload"
	"github.com/1040440-eng/chatfamily/internal/ws"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	db, err := store.Open(cfg.DataDir, cfg.MessageCap, logger)
	if err != nil {
		slog.Error("store open failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	uploader, err := upload.NewLocalStore(cfg.UploadDir, "/uploads")
	if err != nil {
		slog.Error("upload store init failed", "err", err)
		os.Exit(1)
	}

	hub := ws.NewHub()
	fanout := ws.NewFanout(hub)
	registry := calls.NewRegistry()
	roomSvc := rooms.NewService(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.LiveKitURL)
	otp := notify.NewOTP(cfg.OTPTTL, cfg.OTPRetryAfter, &notify.LogSender{Log: logger}, nil)
	commands := ws.NewCommandHandler(db, hub, registry, roomSvc)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/api/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable","error":"store"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api/auth", api.AuthRoutes(db, otp, cfg.JWTSecret, cfg.JWTExpiry))
	r.Mount("/api/users", api.UsersRoutes(db, cfg.JWTSecret))
	r.Mount("/api/chats", api.ChatsRoutes(db, fanout, uploader, cfg.JWTSecret, cfg.MaxUploadBytes))
	r.Mount("/api/rooms", api.RoomsRoutes(db, registry, roomSvc, cfg.JWTSecret))
	r.Get("/ws", ws.Handler(hub, commands, db, cfg.JWTSecret, cfg.CORSOrigin))

	fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir)))
	r.Get("/uploads/*", fs.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled: WebSocket connections manage their own write deadlines via writeWait.
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		slog.Info("shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
		close(done)
	}()

	slog.Info("server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
