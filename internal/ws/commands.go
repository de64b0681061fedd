package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/1040440-eng/chatfamily/internal/apperr"
	"github.com/1040440-eng/chatfamily/internal/calls"
	"github.com/1040440-eng/chatfamily/internal/models"
	"github.com/1040440-eng/chatfamily/internal/rooms"
	"github.com/1040440-eng/chatfamily/internal/store"
)

const commandTimeout = 10 * time.Second

// CommandHandler processes realtime client commands. Every command is
// resolved with exactly one acknowledgment; handler errors never close the
// connection.
type CommandHandler struct {
	store    store.Store
	hub      *Hub
	fanout   *Fanout
	registry *calls.Registry
	rooms    *rooms.Service
}

// NewCommandHandler wires the realtime command surface.
func NewCommandHandler(st store.Store, hub *Hub, registry *calls.Registry, roomSvc *rooms.Service) *CommandHandler {
	return &CommandHandler{
		store:    st,
		hub:      hub,
		fanout:   NewFanout(hub),
		registry: registry,
		rooms:    roomSvc,
	}
}

// command is the envelope every client frame shares. Ref correlates the
// acknowledgment with the command.
type command struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`

	ChatID    string          `json:"chatId"`
	Kind      string          `json:"kind"`
	Text      string          `json:"text"`
	Media     *models.Media   `json:"media"`
	CallID    string          `json:"callId"`
	Accepted  *bool           `json:"accepted"`
	ToUserID  string          `json:"toUserId"`
	SDP       json.RawMessage `json:"sdp"`
	Candidate json.RawMessage `json:"candidate"`
}

// Handle routes one raw client frame.
func (h *CommandHandler) Handle(c *Client, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.nack(c, "", apperr.New(apperr.InvalidArgument, "malformed command"))
		return
	}
	switch cmd.Type {
	case "auth":
		// Authentication happened during the handshake; ignore repeats.
	case "send_message":
		h.sendMessage(c, &cmd)
	case "open_chat":
		h.openChat(c, &cmd)
	case "call_invite":
		h.callInvite(c, &cmd)
	case "call_answer":
		h.callAnswer(c, &cmd)
	case "call_end":
		h.callEnd(c, &cmd)
	case "webrtc_offer":
		h.relay(c, &cmd, "webrtc_offer", "sdp", cmd.SDP)
	case "webrtc_answer":
		h.relay(c, &cmd, "webrtc_answer", "sdp", cmd.SDP)
	case "webrtc_ice_candidate":
		h.relay(c, &cmd, "webrtc_ice_candidate", "candidate", cmd.Candidate)
	default:
		h.nack(c, cmd.Ref, apperr.New(apperr.InvalidArgument, "unknown command"))
	}
}

func (h *CommandHandler) sendMessage(c *Client, cmd *command) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	chat, err := h.memberChat(ctx, cmd.ChatID, c.userID)
	if err != nil {
		h.nack(c, cmd.Ref, err)
		return
	}
	kind := models.MessageKind(cmd.Kind)
	if kind == models.KindText || (!models.ValidKind(kind) && cmd.Media == nil) {
		if strings.TrimSpace(cmd.Text) == "" {
			h.nack(c, cmd.Ref, apperr.New(apperr.InvalidArgument, "message text is required"))
			return
		}
	}
	msg, err := h.store.AddMessage(ctx, chat.ID, c.userID, c.userName, kind, cmd.Text, cmd.Media)
	if err != nil {
		slog.Warn("ws add message failed", "err", err, "chatID", chat.ID)
		h.nack(c, cmd.Ref, err)
		return
	}
	h.fanout.NewMessage(chat.ParticipantIDs, msg)
	h.fanout.ChatUpdated(chat.ParticipantIDs, chat.ID)
	h.ack(c, cmd.Ref, map[string]interface{}{"message": msg})
}

func (h *CommandHandler) openChat(c *Client, cmd *command) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	chat, err := h.memberChat(ctx, cmd.ChatID, c.userID)
	if err != nil {
		h.nack(c, cmd.Ref, err)
		return
	}
	h.hub.SubscribeChat(c, chat.ID)
	if err := h.store.MarkChatRead(ctx, chat.ID, c.userID); err != nil {
		slog.Warn("ws mark read failed", "err", err, "chatID", chat.ID)
		h.nack(c, cmd.Ref, err)
		return
	}
	// Peers and the reader's other devices all see the unread change.
	h.fanout.ChatUpdated(chat.ParticipantIDs, chat.ID)
	h.ack(c, cmd.Ref, nil)
}

func (h *CommandHandler) callInvite(c *Client, cmd *command) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	kind := calls.Kind(cmd.Kind)
	if !calls.ValidKind(kind) {
		h.nack(c, cmd.Ref, apperr.New(apperr.InvalidArgument, "call kind must be audio or video"))
		return
	}
	chat, err := h.memberChat(ctx, cmd.ChatID, c.userID)
	if err != nil {
		h.nack(c, cmd.Ref, err)
		return
	}
	call := h.registry.Create(chat.ID, kind, c.userID, c.userName, chat.ParticipantIDs, func(callID string) string {
		return h.rooms.Address(callID, kind)
	})
	h.fanout.IncomingCall(call)
	h.ack(c, cmd.Ref, map[string]interface{}{"callId": call.ID, "roomAddress": call.RoomURL})
}

func (h *CommandHandler) callAnswer(c *Client, cmd *command) {
	if cmd.Accepted == nil {
		h.nack(c, cmd.Ref, apperr.New(apperr.InvalidArgument, "accepted is required"))
		return
	}
	call, err := h.registry.Answer(cmd.CallID, c.userID, *cmd.Accepted)
	if err != nil {
		h.nack(c, cmd.Ref, err)
		return
	}
	h.fanout.CallAnswered(call, *cmd.Accepted, c.userID, c.userName)
	h.ack(c, cmd.Ref, nil)
}

func (h *CommandHandler) callEnd(c *Client, cmd *command) {
	call, err := h.registry.End(cmd.CallID, c.userID)
	if err != nil {
		h.nack(c, cmd.Ref, err)
		return
	}
	h.fanout.CallEnded(call, calls.ReasonEnded, c.userID)
	h.ack(c, cmd.Ref, nil)
}

func (h *CommandHandler) relay(c *Client, cmd *command, eventType, field string, payload json.RawMessage) {
	if cmd.ToUserID == "" || len(payload) == 0 {
		h.nack(c, cmd.Ref, apperr.New(apperr.InvalidArgument, "recipient and payload are required"))
		return
	}
	if err := h.registry.AuthorizeRelay(cmd.CallID, c.userID, cmd.ToUserID); err != nil {
		h.nack(c, cmd.Ref, err)
		return
	}
	h.fanout.Signal(eventType, cmd.ToUserID, cmd.CallID, c.userID, field, payload)
	h.ack(c, cmd.Ref, nil)
}

// Disconnected tears down every call the user participates in once their
// last connection is gone: ringing calls end as missed, active ones as
// ended by the leaving user.
func (h *CommandHandler) Disconnected(userID string) {
	for _, e := range h.registry.DropUser(userID) {
		h.fanout.CallEnded(e.Call, e.Reason, e.EndedBy)
	}
}

// memberChat loads the chat and verifies the user participates in it.
func (h *CommandHandler) memberChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	if chatID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "chatId is required")
	}
	chat, err := h.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	for _, id := range chat.ParticipantIDs {
		if id == userID {
			return chat, nil
		}
	}
	return nil, apperr.New(apperr.Forbidden, "not a chat participant")
}

func (h *CommandHandler) ack(c *Client, ref string, data map[string]interface{}) {
	out := map[string]interface{}{"type": "ack", "ok": true}
	if ref != "" {
		out["ref"] = ref
	}
	for k, v := range data {
		out[k] = v
	}
	payload, _ := json.Marshal(out)
	c.enqueue(payload)
}

func (h *CommandHandler) nack(c *Client, ref string, err error) {
	out := map[string]interface{}{
		"type":  "ack",
		"ok":    false,
		"error": apperr.MessageOf(err),
		"code":  string(apperr.CodeOf(err)),
	}
	if ref != "" {
		out["ref"] = ref
	}
	payload, _ := json.Marshal(out)
	c.enqueue(payload)
}
