package ws

import (
	"encoding/json"
	"time"

	"github.com/1040440-eng/chatfamily/internal/calls"
	"github.com/1040440-eng/chatfamily/internal/models"
)

// Fanout delivers server-to-client events onto user channels. One event per
// participant connection; delivery is best effort and not atomic across
// participants.
type Fanout struct {
	hub *Hub
}

// NewFanout returns a Fanout over the hub.
func NewFanout(hub *Hub) *Fanout {
	return &Fanout{hub: hub}
}

func (f *Fanout) toUsers(userIDs []string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	for _, id := range userIDs {
		f.hub.SendToUser(id, payload)
	}
}

// NewMessage delivers the persisted message to every participant.
func (f *Fanout) NewMessage(participantIDs []string, msg *models.Message) {
	f.toUsers(participantIDs, struct {
		Type    string          `json:"type"`
		Message *models.Message `json:"message"`
	}{"new_message", msg})
}

// ChatUpdated tells every participant that the chat's summary changed
// (new activity or unread counts).
func (f *Fanout) ChatUpdated(participantIDs []string, chatID string) {
	f.toUsers(participantIDs, struct {
		Type   string `json:"type"`
		ChatID string `json:"chatId"`
	}{"chat_updated", chatID})
}

// IncomingCall notifies every call participant of a new ringing call.
func (f *Fanout) IncomingCall(call calls.Call) {
	f.toUsers(call.ParticipantIDs, struct {
		Type         string    `json:"type"`
		CallID       string    `json:"callId"`
		ChatID       string    `json:"chatId"`
		FromUserID   string    `json:"fromUserId"`
		FromUserName string    `json:"fromUserName"`
		Kind         string    `json:"kind"`
		RoomAddress  string    `json:"roomAddress"`
		CreatedAt    time.Time `json:"createdAt"`
	}{"incoming_call", call.ID, call.ChatID, call.CallerID, call.CallerName, string(call.Kind), call.RoomURL, call.CreatedAt})
}

// CallAnswered notifies all original participants of an accept or decline.
// Room address and kind are only carried on accept.
func (f *Fanout) CallAnswered(call calls.Call, accepted bool, answeredByID, answeredByName string) {
	event := struct {
		Type           string `json:"type"`
		CallID         string `json:"callId"`
		ChatID         string `json:"chatId"`
		Accepted       bool   `json:"accepted"`
		AnsweredByID   string `json:"answeredByUserId"`
		AnsweredByName string `json:"answeredByName"`
		RoomAddress    string `json:"roomAddress,omitempty"`
		Kind           string `json:"kind,omitempty"`
	}{
		Type:           "call_answered",
		CallID:         call.ID,
		ChatID:         call.ChatID,
		Accepted:       accepted,
		AnsweredByID:   answeredByID,
		AnsweredByName: answeredByName,
	}
	if accepted {
		event.RoomAddress = call.RoomURL
		event.Kind = string(call.Kind)
	}
	f.toUsers(call.ParticipantIDs, event)
}

// CallEnded notifies all original participants that the call is gone.
func (f *Fanout) CallEnded(call calls.Call, reason, endedByUserID string) {
	f.toUsers(call.ParticipantIDs, struct {
		Type    string `json:"type"`
		CallID  string `json:"callId"`
		ChatID  string `json:"chatId"`
		Reason  string `json:"reason"`
		EndedBy string `json:"endedByUserId"`
	}{"call_ended", call.ID, call.ChatID, reason, endedByUserID})
}

// Signal forwards an opaque negotiation payload to a single user, tagged
// with the call and sender. field names the forwarded payload ("sdp" or
// "candidate"); its contents are never inspected.
func (f *Fanout) Signal(eventType, toUserID, callID, fromUserID, field string, payload json.RawMessage) {
	f.toUsers([]string{toUserID}, map[string]interface{}{
		"type":       eventType,
		"callId":     callID,
		"fromUserId": fromUserID,
		field:        payload,
	})
}
