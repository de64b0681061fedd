// Package calls owns the ephemeral call records and their lifecycle.
// Calls live only in memory and do not survive a process restart.
package calls

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1040440-eng/chatfamily/internal/apperr"
)

// Kind is the call media kind.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ValidKind reports whether k is a known call kind.
func ValidKind(k Kind) bool { return k == KindAudio || k == KindVideo }

// Status is the call lifecycle state. A call past its lifetime has no
// status; it is simply gone from the registry.
type Status string

const (
	StatusRinging Status = "ringing"
	StatusActive  Status = "active"
)

// End reasons reported to remaining participants.
const (
	ReasonEnded  = "ended"
	ReasonMissed = "missed"
)

// Call is one in-flight call. ParticipantIDs snapshot the chat's
// participants at invite time.
type Call struct {
	ID             string
	ChatID         string
	Kind           Kind
	CallerID       string
	CallerName     string
	ParticipantIDs []string
	RoomURL        string
	Status         Status
	CreatedAt      time.Time
}

// HasParticipant reports whether userID belongs to the call.
func (c *Call) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Registry holds active calls behind a mutex so that concurrent
// invite/answer/end/disconnect events resolve to exactly one winner per
// transition. It is an owned instance, not a process-wide singleton.
type Registry struct {
	mu    sync.Mutex
	calls map[string]*Call
}

// NewRegistry creates an empty call registry.
func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*Call)}
}

// Create registers a new ringing call and returns its snapshot. roomURL
// receives the generated call ID, since the meeting address is a function of
// it.
func (r *Registry) Create(chatID string, kind Kind, callerID, callerName string, participantIDs []string, roomURL func(callID string) string) Call {
	id := uuid.New().String()
	call := &Call{
		ID:             id,
		ChatID:         chatID,
		Kind:           kind,
		CallerID:       callerID,
		CallerName:     callerName,
		ParticipantIDs: append([]string(nil), participantIDs...),
		RoomURL:        roomURL(id),
		Status:         StatusRinging,
		CreatedAt:      time.Now().UTC(),
	}
	r.mu.Lock()
	r.calls[call.ID] = call
	r.mu.Unlock()
	return *call
}

// Get returns a snapshot of the call.
func (r *Registry) Get(callID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[callID]
	if !ok {
		return Call{}, apperr.New(apperr.NotFound, "call not found")
	}
	return *call, nil
}

// Answer applies an accept or decline by a participant. Accepting moves the
// call to active; declining removes it. Either way the returned snapshot
// carries the full original participant set for notification.
func (r *Registry) Answer(callID, userID string, accepted bool) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[callID]
	if !ok {
		return Call{}, apperr.New(apperr.NotFound, "call not found")
	}
	if !call.HasParticipant(userID) {
		return Call{}, apperr.New(apperr.Forbidden, "not a call participant")
	}
	if accepted {
		call.Status = StatusActive
		return *call, nil
	}
	delete(r.calls, callID)
	return *call, nil
}

// End removes the call on behalf of a participant.
func (r *Registry) End(callID, userID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[callID]
	if !ok {
		return Call{}, apperr.New(apperr.NotFound, "call not found")
	}
	if !call.HasParticipant(userID) {
		return Call{}, apperr.New(apperr.Forbidden, "not a call participant")
	}
	delete(r.calls, callID)
	return *call, nil
}

// AuthorizeRelay checks that a signaling payload may pass between the two
// users: the call must exist and both ends must be participants. The payload
// itself is never inspected.
func (r *Registry) AuthorizeRelay(callID, fromUserID, toUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[callID]
	if !ok {
		return apperr.New(apperr.NotFound, "call not found")
	}
	if !call.HasParticipant(fromUserID) || !call.HasParticipant(toUserID) {
		return apperr.New(apperr.Forbidden, "not a call participant")
	}
	return nil
}

// Ended describes a call torn down by disconnect cleanup.
type Ended struct {
	Call    Call
	Reason  string
	EndedBy string
}

// DropUser removes every call the user participates in, as when their last
// connection is lost. Ringing calls end as missed; active calls end normally,
// attributed to the leaving user.
func (r *Registry) DropUser(userID string) []Ended {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ended []Ended
	for id, call := range r.calls {
		if !call.HasParticipant(userID) {
			continue
		}
		reason := ReasonEnded
		if call.Status == StatusRinging {
			reason = ReasonMissed
		}
		ended = append(ended, Ended{Call: *call, Reason: reason, EndedBy: userID})
		delete(r.calls, id)
	}
	return ended
}
