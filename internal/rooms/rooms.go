// Package rooms integrates the external meeting provider (LiveKit). The
// server only derives room addresses and mints join tokens; media never
// touches this process.
package rooms

import (
	"fmt"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/1040440-eng/chatfamily/internal/calls"
)

// Service derives room names/addresses and mints LiveKit access tokens.
type Service struct {
	apiKey    string
	apiSecret string
	baseURL   string
}

// NewService builds a Service. baseURL is the public LiveKit endpoint.
func NewService(apiKey, apiSecret, baseURL string) *Service {
	return &Service{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// RoomName derives the deterministic room name for a call.
func RoomName(callID string, kind calls.Kind) string {
	return fmt.Sprintf("call-%s-%s", kind, callID)
}

// Address returns the meeting address participants connect to. The room name
// alone grants nothing; joining requires a token minted for a current
// participant.
func (s *Service) Address(callID string, kind calls.Kind) string {
	return s.baseURL + "/" + RoomName(callID, kind)
}

// JoinToken creates a LiveKit access token for the given identity and room.
func (s *Service) JoinToken(identity, participantName, roomName string, validFor time.Duration) (string, error) {
	if s.apiKey == "" || s.apiSecret == "" {
		return "", fmt.Errorf("LiveKit API key and secret required")
	}
	at := auth.NewAccessToken(s.apiKey, s.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           roomName,
		CanPublish:     boolPtr(true),
		CanSubscribe:   boolPtr(true),
		CanPublishData: boolPtr(true),
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(participantName).
		SetValidFor(validFor)
	return at.ToJWT()
}

func boolPtr(b bool) *bool {
	return &b
}
