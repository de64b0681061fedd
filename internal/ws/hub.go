package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub holds all connected clients and their logical channels: one per user
// (all of that user's connections) and one per chat (connections that opened
// the chat or were subscribed at connect time).
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client            // clientID -> client
	byUser  map[string]map[string]*Client // userID -> clientID -> client
	chats   map[string]map[string]*Client // chatID -> clientID -> client
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		byUser:  make(map[string]map[string]*Client),
		chats:   make(map[string]map[string]*Client),
	}
}

// Register adds a client and broadcasts the updated presence set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	if h.byUser[c.userID] == nil {
		h.byUser[c.userID] = make(map[string]*Client)
	}
	h.byUser[c.userID][c.id] = c
	h.broadcastPresenceLocked()
}

// Unregister removes a client from all channels. Returns true when this was
// the user's last connection, so the caller can run disconnect cleanup.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
	for _, m := range h.chats {
		delete(m, c.id)
	}
	last := false
	if m := h.byUser[c.userID]; m != nil {
		delete(m, c.id)
		if len(m) == 0 {
			delete(h.byUser, c.userID)
			last = true
		}
	}
	h.broadcastPresenceLocked()
	return last
}

// SubscribeChat adds the client to the chat channel. Idempotent.
func (h *Hub) SubscribeChat(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.chats[chatID] == nil {
		h.chats[chatID] = make(map[string]*Client)
	}
	h.chats[chatID][c.id] = c
}

// UnsubscribeChat removes the client from the chat channel.
func (h *Hub) UnsubscribeChat(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.chats[chatID]; m != nil {
		delete(m, c.id)
		if len(m) == 0 {
			delete(h.chats, chatID)
		}
	}
}

// SendToUser delivers the payload to every connection of the user.
func (h *Hub) SendToUser(userID string, payload []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byUser[userID]))
	for _, c := range h.byUser[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.enqueue(payload)
	}
}

// SendToChat delivers the payload to every connection subscribed to the
// chat, except excludeClientID when non-empty.
func (h *Hub) SendToChat(chatID string, payload []byte, excludeClientID string) {
	h.mu.RLock()
	m := h.chats[chatID]
	targets := make([]*Client, 0, len(m))
	for id, c := range m {
		if id != excludeClientID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.enqueue(payload)
	}
}

// OnlineUserIDs returns the set of users with at least one connection.
func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.byUser))
	for id := range h.byUser {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) broadcastPresenceLocked() {
	ids := make([]string, 0, len(h.byUser))
	for id := range h.byUser {
		ids = append(ids, id)
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"type":    "presence",
		"userIds": ids,
	})
	for _, c := range h.clients {
		c.enqueue(payload)
	}
}

// enqueue hands the payload to the client's write pump without blocking; a
// full buffer drops the payload for that connection.
func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		slog.Warn("ws client send buffer full", "clientID", c.id, "userID", c.userID)
	}
}
