package ws

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is a single WebSocket connection bound to an authenticated user.
type Client struct {
	id       string
	userID   string
	userName string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	handler  *CommandHandler
}

// NewClient creates a client for an authenticated connection. handler may be
// nil in tests that only exercise the hub.
func NewClient(conn *websocket.Conn, hub *Hub, userID, userName string, handler *CommandHandler) *Client {
	return &Client{
		id:       uuid.New().String(),
		userID:   userID,
		userName: userName,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		handler:  handler,
	}
}

// Run runs the read and write pumps. Call after Register; blocks until the
// connection closes, then unregisters and triggers disconnect cleanup if
// this was the user's last connection.
func (c *Client) Run() {
	defer func() {
		last := c.hub.Unregister(c)
		if last && c.handler != nil {
			c.handler.Disconnected(c.userID)
		}
		_ = c.conn.Close()
	}()
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer close(c.send)
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("ws read error", "err", err)
			}
			return
		}
		if c.handler != nil {
			c.handler.Handle(c, raw)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
