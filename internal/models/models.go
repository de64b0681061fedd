package models

import "time"

// MessageKind classifies a message body.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindVideo  MessageKind = "video"
	KindAudio  MessageKind = "audio"
	KindFile   MessageKind = "file"
	KindSystem MessageKind = "system"
)

// ValidKind reports whether k is one of the known message kinds.
func ValidKind(k MessageKind) bool {
	switch k {
	case KindText, KindImage, KindVideo, KindAudio, KindFile, KindSystem:
		return true
	}
	return false
}

// User is the domain user. PasswordHash is nil for passcode-only accounts.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Login        string    `json:"login"`
	Email        string    `json:"email,omitempty"`
	PasswordHash *string   `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Chat is a direct conversation between exactly two users.
type Chat struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	ParticipantIDs []string  `json:"participantIds"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Media describes an attachment carried by a message. Zero-valued fields are
// omitted on the wire.
type Media struct {
	URL         string  `json:"url"`
	FileName    string  `json:"fileName,omitempty"`
	MimeType    string  `json:"mimeType,omitempty"`
	Size        int64   `json:"size,omitempty"`
	DurationSec float64 `json:"durationSec,omitempty"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
}

// Message is one persisted chat message. ReadBy only ever grows.
type Message struct {
	ID         string      `json:"id"`
	ChatID     string      `json:"chatId"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Kind       MessageKind `json:"kind"`
	Text       string      `json:"text"`
	Media      *Media      `json:"media,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	ReadBy     []string    `json:"readBy"`
}

// IsReadBy reports whether userID is in the message's readBy set.
func (m *Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// ChatSummary is the per-user view of a chat returned by chat listings.
type ChatSummary struct {
	ChatID      string    `json:"chatId"`
	Peer        User      `json:"peer"`
	LastMessage *Message  `json:"lastMessage,omitempty"`
	LastPreview string    `json:"lastPreview,omitempty"`
	UnreadCount int       `json:"unreadCount"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RegisterRequest is the body for POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=40"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// LoginRequest is the body for POST /api/auth/login.
type LoginRequest struct {
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by register, login and passcode verify.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
