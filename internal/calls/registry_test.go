package calls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1040440-eng/chatfamily/internal/apperr"
)

func testRoomURL(callID string) string { return "wss://rooms.test/" + callID }

func newRinging(r *Registry) Call {
	return r.Create("chat-1", KindVideo, "alice", "Alice", []string{"alice", "bob"}, testRoomURL)
}

func TestCreate_StartsRinging(t *testing.T) {
	r := NewRegistry()
	call := newRinging(r)

	assert.NotEmpty(t, call.ID)
	assert.Equal(t, StatusRinging, call.Status)
	assert.Equal(t, "wss://rooms.test/"+call.ID, call.RoomURL)
	assert.True(t, call.HasParticipant("bob"))
	assert.False(t, call.HasParticipant("carol"))

	got, err := r.Get(call.ID)
	require.NoError(t, err)
	assert.Equal(t, call.ID, got.ID)
}

func TestGet_Unknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("nope")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestAnswer_AcceptActivates(t *testing.T) {
	r := NewRegistry()
	call := newRinging(r)

	answered, err := r.Answer(call.ID, "bob", true)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, answered.Status)

	got, err := r.Get(call.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
}

func TestAnswer_DeclineRemoves(t *testing.T) {
	r := NewRegistry()
	call := newRinging(r)

	declined, err := r.Answer(call.ID, "bob", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, declined.ParticipantIDs)

	_, err = r.Get(call.ID)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestAnswer_NonParticipantForbidden(t *testing.T) {
	r := NewRegistry()
	call := newRinging(r)

	_, err := r.Answer(call.ID, "mallory", true)
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.CodeOf(err))

	// The call is untouched.
	got, err := r.Get(call.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRinging, got.Status)
}

func TestEnd_RemovesCall(t *testing.T) {
	r := NewRegistry()
	call := newRinging(r)

	ended, err := r.End(call.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, call.ID, ended.ID)

	_, err = r.End(call.ID, "alice")
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestEnd_NonParticipantForbidden(t *testing.T) {
	r := NewRegistry()
	call := newRinging(r)

	_, err := r.End(call.ID, "mallory")
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.CodeOf(err))
}

func TestAuthorizeRelay(t *testing.T) {
	r := NewRegistry()
	call := newRinging(r)

	assert.NoError(t, r.AuthorizeRelay(call.ID, "alice", "bob"))

	err := r.AuthorizeRelay(call.ID, "alice", "mallory")
	assert.Equal(t, apperr.Forbidden, apperr.CodeOf(err))

	err = r.AuthorizeRelay(call.ID, "mallory", "bob")
	assert.Equal(t, apperr.Forbidden, apperr.CodeOf(err))

	err = r.AuthorizeRelay("nope", "alice", "bob")
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestDropUser_RingingMissedActiveEnded(t *testing.T) {
	r := NewRegistry()
	ringing := r.Create("chat-1", KindAudio, "alice", "Alice", []string{"alice", "bob"}, testRoomURL)
	active := r.Create("chat-2", KindVideo, "carol", "Carol", []string{"carol", "bob"}, testRoomURL)
	_, err := r.Answer(active.ID, "bob", true)
	require.NoError(t, err)
	untouched := r.Create("chat-3", KindAudio, "carol", "Carol", []string{"carol", "dave"}, testRoomURL)

	ended := r.DropUser("bob")
	require.Len(t, ended, 2)

	reasons := map[string]string{}
	for _, e := range ended {
		reasons[e.Call.ID] = e.Reason
		assert.Equal(t, "bob", e.EndedBy)
	}
	assert.Equal(t, ReasonMissed, reasons[ringing.ID])
	assert.Equal(t, ReasonEnded, reasons[active.ID])

	_, err = r.Get(ringing.ID)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
	_, err = r.Get(active.ID)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))

	// Calls without the dropped user survive.
	_, err = r.Get(untouched.ID)
	assert.NoError(t, err)
}

func TestDropUser_NoCalls(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.DropUser("nobody"))
}

func TestValidKind(t *testing.T) {
	assert.True(t, ValidKind(KindAudio))
	assert.True(t, ValidKind(KindVideo))
	assert.False(t, ValidKind("screen"))
	assert.False(t, ValidKind(""))
}
