package events

import (
	"encoding/json"
	"time"

	"chatsphere/internal/models"
)

// NewMessagePayload is the broadcast shape for a persisted message, enriched
// with denormalized sender fields so clients can render without a lookup.
type NewMessagePayload struct {
	ID           int             `json:"id"`
	SenderID     int             `json:"sender_id"`
	SenderName   string          `json:"sender_name"`
	SenderPic    string          `json:"sender_pic,omitempty"`
	RecipientID  int             `json:"recipient_id,omitempty"`
	GroupID      int             `json:"group_id,omitempty"`
	Content      string          `json:"content,omitempty"`
	MessageType  string          `json:"message_type"`
	MediaURL     string          `json:"media_url,omitempty"`
	CallDuration int             `json:"call_duration,omitempty"`
	CallStatus   string          `json:"call_status,omitempty"`
	Timestamp    string          `json:"timestamp"`
	IsRead       bool            `json:"is_read"`
}

func NewMessageFrom(m *models.Message, sender *models.User) *NewMessagePayload {
	return &NewMessagePayload{
		ID:           m.ID,
		SenderID:     m.SenderID,
		SenderName:   sender.Username,
		SenderPic:    sender.ProfilePic,
		RecipientID:  m.RecipientID,
		GroupID:      m.GroupID,
		Content:      m.Content,
		MessageType:  string(m.Type),
		MediaURL:     m.MediaURL,
		CallDuration: m.CallDuration,
		CallStatus:   m.CallStatus,
		Timestamp:    m.Timestamp.UTC().Format(time.RFC3339Nano),
		IsRead:       m.IsRead,
	}
}

type UserTypingPayload struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type MessagesReadPayload struct {
	MessageIDs []int `json:"message_ids"`
}

type PresencePayload struct {
	UserID int `json:"user_id"`
}

type JoinedChatPayload struct {
	Room string `json:"room"`
}

type IncomingCallPayload struct {
	CallerID   int             `json:"caller_id"`
	CallerName string          `json:"caller_name"`
	CallerPic  string          `json:"caller_pic,omitempty"`
	CallType   string          `json:"call_type"`
	RoomID     string          `json:"room_id,omitempty"`
	Offer      json.RawMessage `json:"offer,omitempty"`
}

type CallAnsweredPayload struct {
	RoomID string          `json:"room_id,omitempty"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

type CallEndedPayload struct {
	RoomID string `json:"room_id,omitempty"`
}

type IceCandidatePayload struct {
	RoomID    string          `json:"room_id,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type CallLoggedPayload struct {
	MessageID int `json:"message_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
