package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1040440-eng/chatfamily/internal/auth"
	"github.com/1040440-eng/chatfamily/internal/models"
	"github.com/1040440-eng/chatfamily/internal/store"
)

const connectTimeout = 10 * time.Second

// Handler returns an HTTP handler that upgrades to WebSocket, authenticates
// the connection (token query param or a first `auth` frame), subscribes it
// to the user's channels and runs the client. corsOrigin "*" allows all
// origins, otherwise the Origin header must match.
func Handler(hub *Hub, handler *CommandHandler, st store.Store, jwtSecret, corsOrigin string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if corsOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == corsOrigin
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			user, err := userFromFirstFrame(r.Context(), conn, st, jwtSecret)
			if err != nil {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "auth required"))
				_ = conn.Close()
				return
			}
			run(conn, hub, handler, st, user)
			return
		}
		user, err := resolveUser(r.Context(), token, st, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		run(conn, hub, handler, st, user)
	}
}

func run(conn *websocket.Conn, hub *Hub, handler *CommandHandler, st store.Store, user *models.User) {
	client := NewClient(conn, hub, user.ID, user.Name, handler)
	hub.Register(client)
	subscribeChats(client, hub, st)
	client.Run()
}

// subscribeChats joins the connection to the channel of every chat the user
// currently participates in, so persisted fan-out reaches it immediately.
func subscribeChats(c *Client, hub *Hub, st store.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	summaries, err := st.ListChatsForUser(ctx, c.userID)
	if err != nil {
		return
	}
	for _, s := range summaries {
		hub.SubscribeChat(c, s.ChatID)
	}
}

func resolveUser(ctx context.Context, token string, st store.Store, jwtSecret string) (*models.User, error) {
	userID, err := auth.VerifyToken(token, jwtSecret)
	if err != nil {
		return nil, err
	}
	return st.GetUserByID(ctx, userID)
}

func userFromFirstFrame(ctx context.Context, conn *websocket.Conn, st store.Store, jwtSecret string) (*models.User, error) {
	_ = conn.SetReadDeadline(time.Now().Add(connectTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var frame struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, err
	}
	if frame.Type != "auth" || frame.Token == "" {
		return nil, errors.New("expected auth frame with a token")
	}
	return resolveUser(ctx, frame.Token, st, jwtSecret)
}
